// Package superop lifts parsed Hamiltonian terms into sparse operators on
// the Liouville (or, absent any dissipator, plain Hilbert) space and
// assembles the drift and stiff matrices the time-stepping engine
// integrates, tensoring per-qubit operators against identity elsewhere via
// repeated Kronecker products.
package superop

import (
	"math"

	"github.com/pkg/errors"

	"github.com/anthony-santana/QuaC/ham"
	"github.com/anthony-santana/QuaC/mat"
)

// AssemblyError is fatal for the owning Instance: unsupported operand
// arity, an unknown operator symbol, or an out-of-range qubit index. The
// builder does not resolve channel names; an unknown channel surfaces
// from the solver's RHS when Run first evaluates that term.
type AssemblyError struct {
	msg string
}

func (e *AssemblyError) Error() string { return "superop: assembly error: " + e.msg }

func newAssemblyError(format string, args ...interface{}) *AssemblyError {
	return &AssemblyError{msg: errors.Errorf(format, args...).Error()}
}

// DependentTerm is a time-dependent contribution to the drift matrix: the
// builder keeps its lifted unit operator (coefficient 1) and the static
// scalar coefficient separately, so the time-stepping engine only needs to
// multiply by the channel's instantaneous Sample(t) at each RHS evaluation.
type DependentTerm struct {
	Channel     string
	StaticCoeff complex128
	Unit        *mat.COO
}

// Builder accumulates Hamiltonian terms and qubit decay into a drift
// matrix (and the per-channel dependent-term records the RHS adds in),
// deferring the Liouville-space lift until Finalize so that a
// Lindblad-free model can stay in the cheaper Hilbert-space representation
// (the Schrödinger fallback).
type Builder struct {
	numQubits  int
	levelCount int

	hamiltonian *mat.COO // accumulated H0 in Hilbert space, size dim x dim
	dependent   []pendingDependent
	dissipators []*mat.COO // each sqrt(kappa)*sigma_plus embedded in Hilbert space

	finalized bool

	Drift *mat.COO
	Stiff *mat.COO
	Terms []DependentTerm

	// Lindblad is true once Finalize has lifted the assembly into
	// Liouville space; false means Drift/Terms act directly on |psi>.
	Lindblad bool
}

type pendingDependent struct {
	channel string
	coeff   complex128
	op      *mat.COO
}

// NewBuilder constructs an assembly for an N-qudit register with uniform
// level count L (L=2 for qubits).
func NewBuilder(numQubits, levelCount int) *Builder {
	dim := intPow(levelCount, numQubits)
	return &Builder{
		numQubits:   numQubits,
		levelCount:  levelCount,
		hamiltonian: mat.COOZeros(dim, dim),
	}
}

func intPow(base, exp int) int {
	n := 1
	for i := 0; i < exp; i++ {
		n *= base
	}
	return n
}

// AddIndependentTerm implements ham.Builder, lifting a constant-coefficient
// Hamiltonian term of arity 1 or 2 into the accumulated Hilbert-space
// Hamiltonian.
func (b *Builder) AddIndependentTerm(coeff complex128, ops []ham.QubitOp) error {
	op, err := b.embed(ops)
	if err != nil {
		return err
	}
	op.Scale(complex64(coeff))
	b.hamiltonian.Add(1, op)
	return nil
}

// AddDependentTerm implements ham.Builder, recording a channel-tagged term
// for later lifting; the static coefficient and the unscaled operator are
// kept apart so Finalize can build one lifted unit matrix per term.
func (b *Builder) AddDependentTerm(channel string, coeff complex128, ops []ham.QubitOp) error {
	op, err := b.embed(ops)
	if err != nil {
		return err
	}
	b.dependent = append(b.dependent, pendingDependent{channel: channel, coeff: coeff, op: op})
	return nil
}

// AddDecay installs the standard Lindblad dissipator for qubit decay: a
// collapse operator sqrt(kappa)*sigma_plus acting on qubit i, whose
// c†c projects onto index 1 so the dissipator drains population from
// |1> into |0>. Calling AddDecay at least once switches Finalize into
// Lindblad (Liouville-space) mode; calling it zero times keeps the
// Schrödinger fallback.
func (b *Builder) AddDecay(qubit int, kappa float64) error {
	if qubit < 0 || qubit >= b.numQubits {
		return newAssemblyError("qubit index %d out of range [0,%d)", qubit, b.numQubits)
	}
	if kappa < 0 {
		return newAssemblyError("decay rate kappa=%v must be non-negative", kappa)
	}
	op, err := b.embed([]ham.QubitOp{{Op: ham.OpSP, Qubit: qubit}})
	if err != nil {
		return err
	}
	scale := complex64(complex(math.Sqrt(kappa), 0))
	op.Scale(scale)
	b.dissipators = append(b.dissipators, op)
	return nil
}

// embed lifts a 1- or 2-operand product into the N-qudit Hilbert space,
// tensoring the named operators at their qubit positions and identity
// elsewhere. More than two operands is the hard cap; the builder aborts
// assembly with a fatal AssemblyError rather than attempting the product.
func (b *Builder) embed(ops []ham.QubitOp) (*mat.COO, error) {
	if len(ops) == 0 || len(ops) > 2 {
		return nil, newAssemblyError("term has %d operands; only products of 1 or 2 operators are supported", len(ops))
	}

	at := make(map[int]*mat.COO, len(ops))
	for _, o := range ops {
		if o.Qubit < 0 || o.Qubit >= b.numQubits {
			return nil, newAssemblyError("qubit index %d out of range [0,%d)", o.Qubit, b.numQubits)
		}
		m, err := operatorMatrix(o.Op)
		if err != nil {
			return nil, err
		}
		if existing, ok := at[o.Qubit]; ok {
			at[o.Qubit] = mat.MatMul(existing, m)
			continue
		}
		at[o.Qubit] = m
	}

	result := mat.COOIdentity(1)
	for q := 0; q < b.numQubits; q++ {
		factor, ok := at[q]
		if !ok {
			factor = mat.M(mat.PauliI)
		}
		result.Kron(factor)
	}
	return result, nil
}

func operatorMatrix(op ham.Operator) (*mat.COO, error) {
	switch op {
	case ham.OpI:
		return mat.M(mat.PauliI), nil
	case ham.OpX:
		return mat.M(mat.PauliX), nil
	case ham.OpY:
		return mat.M(mat.PauliY), nil
	case ham.OpZ:
		return mat.M(mat.PauliZ), nil
	case ham.OpSP:
		return mat.M(mat.PauliSP), nil
	case ham.OpSM:
		return mat.M(mat.PauliSM), nil
	default:
		return nil, newAssemblyError("unknown operator symbol %v", op)
	}
}

// Finalize lifts the accumulated Hamiltonian, dependent terms, and
// dissipators into their final representation: Liouville space
// (L^{2N} x L^{2N}) if any decay was added, or plain Hilbert space
// (L^N x L^N) as the Schrödinger fallback otherwise. It is idempotent: a
// second call returns the already-finalized matrices unchanged.
func (b *Builder) Finalize() error {
	if b.finalized {
		return nil
	}
	b.finalized = true

	if len(b.dissipators) == 0 {
		// Schrödinger fallback: bake -i into the stored matrix so the
		// engine's RHS (dy/dt = B*y) is identical in shape to the
		// Lindblad case, which already carries its -i/+i factors from
		// the commutator lift.
		b.Lindblad = false
		b.hamiltonian.Scale(-1i)
		b.Drift = b.hamiltonian
		b.Stiff = b.Drift
		b.Terms = make([]DependentTerm, 0, len(b.dependent))
		for _, d := range b.dependent {
			d.op.Scale(-1i)
			b.Terms = append(b.Terms, DependentTerm{Channel: d.channel, StaticCoeff: d.coeff, Unit: d.op})
		}
		return nil
	}

	b.Lindblad = true
	dim := b.hamiltonian.Rows()
	liou := mat.COOZeros(dim*dim, dim*dim)
	addHamiltonianLift(liou, b.hamiltonian, 1)

	for _, diss := range b.dissipators {
		addDissipator(liou, diss)
	}
	b.Drift = liou
	b.Stiff = b.Drift

	b.Terms = make([]DependentTerm, 0, len(b.dependent))
	for _, d := range b.dependent {
		unit := mat.COOZeros(dim*dim, dim*dim)
		addHamiltonianLift(unit, d.op, 1)
		b.Terms = append(b.Terms, DependentTerm{Channel: d.channel, StaticCoeff: d.coeff, Unit: unit})
	}
	return nil
}

// LoadDrift installs a previously-assembled drift matrix and its dependent
// terms (as recovered from a checkpoint) directly, short-circuiting
// Finalize: any terms accumulated via
// AddIndependentTerm/AddDependentTerm/AddDecay before this call are
// discarded, since drift and terms together already reflect whatever
// assembly produced them.
func (b *Builder) LoadDrift(drift *mat.COO, terms []DependentTerm, lindblad bool) {
	b.Drift = drift
	b.Stiff = drift
	b.Lindblad = lindblad
	b.Terms = terms
	b.finalized = true
}

// addHamiltonianLift adds scale*(-i(I⊗H) + i(Hᵗ⊗I)) into dst, the
// vectorized commutator -i[H,.].
func addHamiltonianLift(dst *mat.COO, h *mat.COO, scale complex64) {
	dim := h.Rows()

	left := mat.COOIdentity(dim)
	left.Kron(h)
	dst.Add(-1i*scale, left)

	right := mat.Transpose(h)
	right.Kron(mat.COOIdentity(dim))
	dst.Add(1i*scale, right)
}

// addDissipator adds the Lindblad superoperator C⊗C̄ - 1/2(I⊗C†C) -
// 1/2((C†C)ᵗ⊗I) for collapse operator c into dst.
func addDissipator(dst *mat.COO, c *mat.COO) {
	dim := c.Rows()

	term1 := c.Clone()
	term1.Kron(mat.Conjugate(c))
	dst.Add(1, term1)

	cDag := mat.Transpose(mat.Conjugate(c))
	cDagC := mat.MatMul(cDag, c)

	left := mat.COOIdentity(dim)
	left.Kron(cDagC)
	dst.Add(-0.5, left)

	right := mat.Transpose(cDagC)
	right.Kron(mat.COOIdentity(dim))
	dst.Add(-0.5, right)
}
