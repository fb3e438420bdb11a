package superop

import (
	"math/cmplx"

	"github.com/pkg/errors"

	"github.com/anthony-santana/QuaC/mat"
)

// SteadyState returns the normalized fixed point of the Lindblad
// generator: the eigenvector of the Liouvillian whose eigenvalue has
// smallest magnitude (the null space of a trace-preserving generator),
// computed via a dense eigendecomposition rather than the original
// PETSc KSP/GMRES Krylov solve in solver.c's steady_state(). Requires
// Finalize to have been called in Lindblad mode.
func (b *Builder) SteadyState() ([]complex128, error) {
	if !b.finalized {
		return nil, errors.Errorf("superop: SteadyState called before Finalize")
	}
	if !b.Lindblad {
		return nil, errors.Errorf("superop: SteadyState requires at least one dissipator (Lindblad mode)")
	}

	real2n := realify(b.Drift)
	vvs, err := real2n.Eigen()
	if err != nil {
		return nil, errors.Wrap(err, "superop: steady-state eigendecomposition failed")
	}

	best := 0
	for i, vv := range vvs {
		if cmplx.Abs(vv.Val) < cmplx.Abs(vvs[best].Val) {
			best = i
		}
	}

	n := b.Drift.Rows()
	vec := complexify(vvs[best].Vec, n)
	normalize(vec)
	return vec, nil
}

// realify embeds an n x n complex matrix A+iB as the 2n x 2n real matrix
// [[A,-B],[B,A]], whose real eigenvectors correspond one-to-one with the
// original complex matrix's eigenvectors.
func realify(m *mat.COO) *mat.COO {
	n := m.Rows()
	out := mat.COOZeros(2*n, 2*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := m.At(i, j)
			a, bi := real(v), imag(v)
			if a != 0 {
				out.Set(i, j, complex64(complex(float64(a), 0)))
				out.Set(n+i, n+j, complex64(complex(float64(a), 0)))
			}
			if bi != 0 {
				out.Set(i, n+j, complex64(complex(-float64(bi), 0)))
				out.Set(n+i, j, complex64(complex(float64(bi), 0)))
			}
		}
	}
	return out
}

// complexify recovers a length-n complex vector z = p + i*q from a
// realify'd eigenvector (p;q): if A*p - B*q = lambda*p and B*p + A*q =
// lambda*q, then (A+iB)*(p+iq) = lambda*(p+iq), so the top half alone only
// reconstructs the original eigenvector when q is zero.
func complexify(real2n []complex128, n int) []complex128 {
	out := make([]complex128, n)
	for i := 0; i < n; i++ {
		p := real2n[i]
		q := real2n[n+i]
		out[i] = p + 1i*q
	}
	return out
}

func normalize(v []complex128) {
	var sum float64
	for _, c := range v {
		sum += real(c)*real(c) + imag(c)*imag(c)
	}
	if sum == 0 {
		return
	}
	norm := cmplx.Sqrt(complex(sum, 0))
	for i := range v {
		v[i] /= norm
	}
}
