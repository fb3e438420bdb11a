package solver

import (
	"fmt"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthony-santana/QuaC/ham"
	"github.com/anthony-santana/QuaC/pulse"
	"github.com/anthony-santana/QuaC/superop"
)

func buildSchrodingerSystem(t *testing.T, omega float64) *System {
	t.Helper()
	b := superop.NewBuilder(1, 2)
	term, err := ham.Parse("coeff*Z0", ham.Vars{"coeff": -omega / 2})
	require.NoError(t, err)
	require.NoError(t, term.Apply(b))
	require.NoError(t, b.Finalize())
	require.False(t, b.Lindblad)

	return &System{Drift: b.Drift, Terms: b.Terms, Controller: pulse.NewController(pulse.BackendConfig{})}
}

func buildDecaySystem(t *testing.T, kappa float64) *System {
	t.Helper()
	b := superop.NewBuilder(1, 2)
	require.NoError(t, b.AddDecay(0, kappa))
	require.NoError(t, b.Finalize())
	require.True(t, b.Lindblad)

	return &System{Drift: b.Drift, Terms: b.Terms, Controller: pulse.NewController(pulse.BackendConfig{})}
}

func TestTracePreservationUnderHermitianH0(t *testing.T) {
	t.Parallel()
	omega := 2 * math.Pi * 1.0
	sys := buildSchrodingerSystem(t, omega)
	y0 := []complex128{1 / complexSqrt2(), 1 / complexSqrt2()}

	res, err := Run(sys, y0, Options{
		T0: 0, TMax: 1.0, DtInitial: 0.01, StepMax: 100000, Tol: 1e-8,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.States)

	for _, y := range res.States {
		norm := real(y[0])*real(y[0]) + imag(y[0])*imag(y[0]) + real(y[1])*real(y[1]) + imag(y[1])*imag(y[1])
		assert.InDelta(t, 1.0, norm, 1e-3)
	}
}

func TestDecayPopulationDecreases(t *testing.T) {
	t.Parallel()
	kappa := 0.5
	sys := buildDecaySystem(t, kappa)
	y0 := []complex128{0, 0, 0, 1} // vec(|1><1|)

	res, err := Run(sys, y0, Options{
		T0: 0, TMax: 2.0, DtInitial: 0.01, StepMax: 100000, Tol: 1e-8, Normalize: true,
	})
	require.NoError(t, err)
	require.True(t, len(res.States) > 1)

	first := real(res.States[0][3])
	last := real(res.States[len(res.States)-1][3])
	assert.Less(t, last, first)
	assert.GreaterOrEqual(t, last, -1e-3)
}

func TestNormalizeEventKeepsTraceNearOne(t *testing.T) {
	t.Parallel()
	kappa := 0.1
	sys := buildDecaySystem(t, kappa)
	y0 := []complex128{0, 0, 0, 1}

	res, err := Run(sys, y0, Options{
		T0: 0, TMax: 1.0, DtInitial: 0.05, StepMax: 100000, Tol: 1e-6, Normalize: true,
	})
	require.NoError(t, err)

	for _, y := range res.States {
		trace := y[0] + y[3]
		assert.InDelta(t, 1.0, real(trace), 1e-6)
	}
}

func TestRunStopsAtStepMax(t *testing.T) {
	t.Parallel()
	sys := buildSchrodingerSystem(t, 1.0)
	y0 := []complex128{1, 0}

	res, err := Run(sys, y0, Options{
		T0: 0, TMax: 1000.0, DtInitial: 0.1, StepMax: 3, Tol: 1e-6,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Steps, 3)
}

func TestMonitorCanStopEarly(t *testing.T) {
	t.Parallel()
	sys := buildSchrodingerSystem(t, 1.0)
	y0 := []complex128{1, 0}

	stopped := 0
	res, err := Run(sys, y0, Options{
		T0: 0, TMax: 10.0, DtInitial: 0.1, StepMax: 100000, Tol: 1e-6,
		Monitor: func(step int, tt float64, y []complex128) MonitorResult {
			if step >= 2 {
				stopped++
				return Stop
			}
			return Continue
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 2, res.Steps)
}

func complexSqrt2() complex128 {
	return complex(math.Sqrt2, 0)
}

// TestEnergyConservationRabiFrequencyMatchesAnalytic exercises H0=(omega/2)Z0
// against its closed-form solution: starting from the +1 eigenstate of X, the
// Bloch vector precesses about Z at angular frequency omega, so
// <X>(t) = 2*Re(conj(y0)*y1) should track cos(omega*t).
func TestEnergyConservationRabiFrequencyMatchesAnalytic(t *testing.T) {
	t.Parallel()
	omega := 2 * math.Pi * 1.0

	b := superop.NewBuilder(1, 2)
	require.NoError(t, b.AddIndependentTerm(complex(omega/2, 0), []ham.QubitOp{{Op: ham.OpZ, Qubit: 0}}))
	require.NoError(t, b.Finalize())
	require.False(t, b.Lindblad)
	sys := &System{Drift: b.Drift, Terms: b.Terms, Controller: pulse.NewController(pulse.BackendConfig{})}

	y0 := []complex128{1 / complexSqrt2(), 1 / complexSqrt2()}
	tMax := 10 / omega

	res, err := Run(sys, y0, Options{T0: 0, TMax: tMax, DtInitial: tMax / 2000, StepMax: 1000000, Tol: 1e-9})
	require.NoError(t, err)
	require.NotEmpty(t, res.States)

	for i, tt := range res.Times {
		y := res.States[i]
		gotX := 2 * real(cmplx.Conj(y[0])*y[1])
		wantX := math.Cos(omega * tt)
		assert.InDelta(t, wantX, gotX, 0.01)
	}
}

type recordedIndependentTerm struct {
	coeff complex128
	ops   []ham.QubitOp
}

// recordingBuilder implements ham.Builder, capturing every
// AddIndependentTerm call without assembling any matrix, for asserting on
// the term tree a Hamiltonian string list expands to.
type recordingBuilder struct {
	independent []recordedIndependentTerm
}

func (r *recordingBuilder) AddIndependentTerm(coeff complex128, ops []ham.QubitOp) error {
	r.independent = append(r.independent, recordedIndependentTerm{coeff: coeff, ops: ops})
	return nil
}

func (r *recordingBuilder) AddDependentTerm(channel string, coeff complex128, ops []ham.QubitOp) error {
	return fmt.Errorf("recordingBuilder: unexpected dependent term on channel %q", channel)
}

// TestScenarioS2SumAndProductInstallThreeIndependentTerms exercises S2:
// parsing ["_SUM[i,0,1,omega*Z{i}]", "J*X0*X1"] with {omega:1.0, J:0.1}
// must yield exactly the three independent terms 1.0*Z0, 1.0*Z1, 0.1*X0X1,
// and those three terms must assemble into a drift matrix of the expected
// two-qubit Hilbert-space dimension.
func TestScenarioS2SumAndProductInstallThreeIndependentTerms(t *testing.T) {
	t.Parallel()
	terms, err := ham.ParseAll([]string{"_SUM[i,0,1,omega*Z{i}]", "J*X0*X1"}, ham.Vars{"omega": 1.0, "J": 0.1})
	require.NoError(t, err)

	rec := &recordingBuilder{}
	for _, term := range terms {
		require.NoError(t, term.Apply(rec))
	}

	require.Len(t, rec.independent, 3)
	assert.Equal(t, complex(1, 0), rec.independent[0].coeff)
	assert.Equal(t, []ham.QubitOp{{Op: ham.OpZ, Qubit: 0}}, rec.independent[0].ops)
	assert.Equal(t, complex(1, 0), rec.independent[1].coeff)
	assert.Equal(t, []ham.QubitOp{{Op: ham.OpZ, Qubit: 1}}, rec.independent[1].ops)
	assert.InDelta(t, 0.1, real(rec.independent[2].coeff), 1e-9)
	assert.Equal(t, []ham.QubitOp{{Op: ham.OpX, Qubit: 0}, {Op: ham.OpX, Qubit: 1}}, rec.independent[2].ops)

	b := superop.NewBuilder(2, 2)
	for _, term := range terms {
		require.NoError(t, term.Apply(b))
	}
	require.NoError(t, b.Finalize())
	require.False(t, b.Lindblad)
	assert.Equal(t, 4, b.Drift.Rows())
	assert.Greater(t, b.Drift.NumNonZero(), 0)
}

// TestScenarioS3TwoChannelScheduleBoundary exercises S3: a D0 schedule over
// [0,2] and a U0 schedule over [1,3] on the same controller must not bleed
// into each other, and each must fall silent once its own window closes.
func TestScenarioS3TwoChannelScheduleBoundary(t *testing.T) {
	t.Parallel()
	flat := make([]complex128, 4000)
	for i := range flat {
		flat[i] = complex(1, 0)
	}
	cfg := pulse.BackendConfig{
		Dt:           0.001,
		LOFreqsDrive: []float64{0},
		LOFreqsCtrl:  []float64{0},
		PulseLib:     pulse.Lib{"d0pulse": flat, "u0pulse": flat},
	}
	c := pulse.NewController(cfg)

	d0, err := c.GetDriveChannelID(0)
	require.NoError(t, err)
	u0, err := c.GetControlChannelID(0)
	require.NoError(t, err)

	require.NoError(t, c.AddSchedule(d0, pulse.ScheduleEntry{Name: "d0pulse", StartTime: 0, StopTime: 2}))
	require.NoError(t, c.AddSchedule(u0, pulse.ScheduleEntry{Name: "u0pulse", StartTime: 1, StopTime: 3}))

	assert.NotZero(t, c.Sample(d0, 1.5))
	assert.Zero(t, c.Sample(d0, 2.5))

	assert.Zero(t, c.Sample(u0, 0.5))
	assert.NotZero(t, c.Sample(u0, 1.0))
	assert.NotZero(t, c.Sample(u0, 2.9))
}
