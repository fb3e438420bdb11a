// Package solver advances the vectorized state forward in time under the
// assembled drift/dependent-term matrices, using an adaptive embedded
// Runge-Kutta scheme by default and a Rosenbrock-W alternative for stiff
// problems. Grounded in original_source/src/solver.c's time_step()
// (TSRK3BS default, TSROSW stiff branch) and _RHS_time_dep_ham (working
// matrix rebuilt from drift plus scaled time-dependent contributions).
package solver

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"

	"github.com/anthony-santana/QuaC/mat"
	"github.com/anthony-santana/QuaC/pulse"
	"github.com/anthony-santana/QuaC/superop"
)

// IntegratorError is surfaced to the caller without invalidating the
// owning Instance: step-size collapse, a non-finite state, or a
// linear-algebra failure. The state is left at its last accepted value.
type IntegratorError struct {
	msg string
}

func (e *IntegratorError) Error() string { return "solver: integrator error: " + e.msg }

// Method selects the integration scheme.
type Method int

const (
	// BogackiShampine23 is the default adaptive explicit RK scheme.
	BogackiShampine23 Method = iota
	// RosenbrockW is the stiff alternative.
	RosenbrockW
)

// MonitorResult is returned by a Monitor callback to request the engine
// continue or stop before the next step.
type MonitorResult int

const (
	Continue MonitorResult = iota
	Stop
)

// Monitor observes every accepted step. It must not mutate y.
type Monitor func(stepIndex int, t float64, y []complex128) MonitorResult

// System bundles the assembled superoperator and the pulse controller
// that supplies its time-dependent coefficients.
type System struct {
	Drift      *mat.COO
	Terms      []superop.DependentTerm
	Controller *pulse.Controller
}

// RHS evaluates dy/dt = B(t)*y: a fresh copy of Drift, with each
// dependent term's pre-seeded unit contribution added in after scaling by
// its static coefficient and the controller's instantaneous sample.
func (s *System) RHS(t float64, y []complex128) ([]complex128, error) {
	work := s.Drift.Clone()
	for _, term := range s.Terms {
		id, err := s.Controller.ResolveChannel(term.Channel)
		if err != nil {
			return nil, errors.Wrapf(err, "solver: resolving channel %q", term.Channel)
		}
		sample := s.Controller.Sample(id, t)
		coeff := complex64(term.StaticCoeff * sample)
		if coeff != 0 {
			work.Add(coeff, term.Unit)
		}
	}

	y64 := toComplex64(y)
	dy64 := work.MulVec(y64)
	return toComplex128(dy64), nil
}

// Jacobian materializes the same working matrix RHS uses (drift plus
// every dependent term's contribution at t) as a dense matrix, for the
// Rosenbrock-W stage solve.
func (s *System) Jacobian(t float64) (denseC, error) {
	work := s.Drift.Clone()
	for _, term := range s.Terms {
		id, err := s.Controller.ResolveChannel(term.Channel)
		if err != nil {
			return nil, errors.Wrapf(err, "solver: resolving channel %q", term.Channel)
		}
		sample := s.Controller.Sample(id, t)
		coeff := complex64(term.StaticCoeff * sample)
		if coeff != 0 {
			work.Add(coeff, term.Unit)
		}
	}

	n := work.Rows()
	dense := work.Dense()
	out := make(denseC, n)
	for i := 0; i < n; i++ {
		out[i] = make([]complex128, n)
		for j := 0; j < n; j++ {
			out[i][j] = complex128(dense[i][j])
		}
	}
	return out, nil
}

func toComplex64(v []complex128) []complex64 {
	out := make([]complex64, len(v))
	for i, c := range v {
		out[i] = complex64(c)
	}
	return out
}

func toComplex128(v []complex64) []complex128 {
	out := make([]complex128, len(v))
	for i, c := range v {
		out[i] = complex128(c)
	}
	return out
}

// Options configure one Run.
type Options struct {
	Method     Method
	T0, TMax   float64
	DtInitial  float64
	DtMin      float64
	DtMax      float64
	StepMax    int
	Tol        float64
	Normalize  bool // Normalize event: renormalize Tr(rho)=1 every accepted step
	Monitor    Monitor
}

// Result holds the accepted trajectory.
type Result struct {
	Times []float64
	States [][]complex128
	Steps int
}

// Run advances y0 from Options.T0 to Options.TMax (or until StepMax
// accepted steps or the monitor requests Stop), honoring an exact
// final-time stepover on the last step.
func Run(sys *System, y0 []complex128, opts Options) (*Result, error) {
	if opts.DtInitial <= 0 {
		return nil, errors.Errorf("solver: DtInitial must be positive")
	}
	if opts.Tol <= 0 {
		opts.Tol = 1e-6
	}
	if opts.DtMin <= 0 {
		opts.DtMin = opts.DtInitial / 1e6
	}
	if opts.DtMax <= 0 {
		opts.DtMax = opts.DtInitial * 1e3
	}

	step := func(t, dt float64, y []complex128) ([]complex128, []complex128, error) {
		switch opts.Method {
		case RosenbrockW:
			return rosenbrockW(sys, t, dt, y)
		default:
			return bogackiShampine23(sys, t, dt, y)
		}
	}

	t := opts.T0
	y := append([]complex128(nil), y0...)
	dt := opts.DtInitial

	res := &Result{Times: []float64{t}, States: [][]complex128{append([]complex128(nil), y...)}}

	for n := 0; n < opts.StepMax && t < opts.TMax; n++ {
		if t+dt > opts.TMax {
			dt = opts.TMax - t
		}

		y5, errEst, err := step(t, dt, y)
		if err != nil {
			return res, &IntegratorError{msg: err.Error()}
		}

		errNorm := normInf(errEst)
		if errNorm > opts.Tol && dt > opts.DtMin {
			dt = shrink(dt, errNorm, opts.Tol, opts.DtMin)
			n--
			continue
		}

		for _, c := range y5 {
			if cmplx.IsNaN(c) || cmplx.IsInf(c) {
				return res, &IntegratorError{msg: "non-finite state encountered"}
			}
		}

		t += dt
		y = y5
		if opts.Normalize {
			normalizeTrace(y)
		}

		res.Times = append(res.Times, t)
		res.States = append(res.States, append([]complex128(nil), y...))
		res.Steps++

		if opts.Monitor != nil {
			if opts.Monitor(res.Steps, t, y) == Stop {
				break
			}
		}

		dt = grow(dt, errNorm, opts.Tol, opts.DtMax)
	}

	return res, nil
}

func normInf(v []complex128) float64 {
	max := 0.0
	for _, c := range v {
		if a := cmplx.Abs(c); a > max {
			max = a
		}
	}
	return max
}

func shrink(dt, errNorm, tol, dtMin float64) float64 {
	factor := 0.9 * math.Pow(tol/maxf(errNorm, 1e-300), 1.0/3)
	factor = clamp(factor, 0.1, 0.5)
	next := dt * factor
	if next < dtMin {
		return dtMin
	}
	return next
}

func grow(dt, errNorm, tol, dtMax float64) float64 {
	factor := 0.9 * math.Pow(tol/maxf(errNorm, 1e-12), 1.0/3)
	factor = clamp(factor, 1.0, 5.0)
	next := dt * factor
	if next > dtMax {
		return dtMax
	}
	return next
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// normalizeTrace implements the Normalize event: rescales y so that, when
// interpreted as vec(rho), Tr(rho) = 1. In Liouville space Tr(rho) is the
// sum of the diagonal entries of the unvectorized rho, which for the
// column-major vec(rho) superop builds (index col*n+row) of an n x n
// matrix are at indices i*n+i.
func normalizeTrace(y []complex128) {
	n := isqrt(len(y))
	if n*n != len(y) {
		// Schrödinger-mode state vector: renormalize the 2-norm instead.
		var sum float64
		for _, c := range y {
			sum += real(c)*real(c) + imag(c)*imag(c)
		}
		if sum == 0 {
			return
		}
		norm := cmplx.Sqrt(complex(sum, 0))
		for i := range y {
			y[i] /= norm
		}
		return
	}

	var trace complex128
	for i := 0; i < n; i++ {
		trace += y[i*n+i]
	}
	if trace == 0 {
		return
	}
	for i := range y {
		y[i] /= trace
	}
}

func isqrt(n int) int {
	r := 0
	for r*r < n {
		r++
	}
	return r
}
