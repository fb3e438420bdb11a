package pulse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, ChannelID) {
	t.Helper()
	cfg := BackendConfig{
		Dt:           1.0,
		LOFreqsDrive: []float64{5.0, 10.0},
		PulseLib: Lib{
			"pulse1": {0.1, 0.2, 0.1, 0.0, -0.1, -0.2, 0.1, 0.1, 0.05},
		},
	}
	c := NewController(cfg)
	id, err := c.GetDriveChannelID(1)
	require.NoError(t, err)
	require.NoError(t, c.AddSchedule(id, ScheduleEntry{Name: "pulse1", StartTime: 0, StopTime: 8.0}))
	c.AddFrameChange(id, FrameChangeEntry{StartTime: 2.0, Phase: 0.3})
	c.AddFrameChange(id, FrameChangeEntry{StartTime: 3.0, Phase: 0.2})
	c.AddFrameChange(id, FrameChangeEntry{StartTime: 5.0, Phase: -0.5})
	return c, id
}

func TestAccumulatedPhaseSequence(t *testing.T) {
	t.Parallel()
	c, id := newTestController(t)

	tcs := []struct {
		t    float64
		want float64
	}{
		{t: 0, want: 0},
		{t: 1.9, want: 0},
		{t: 2.0, want: 0.3},
		{t: 2.5, want: 0.3},
		{t: 3.0, want: 0.5},
		{t: 4.9, want: 0.5},
		{t: 5.0, want: 0},
		{t: 6.0, want: 0},
	}
	for _, tc := range tcs {
		got := c.AccumulatedPhase(id, tc.t)
		assert.InDelta(t, tc.want, got, 1e-9, "t=%v", tc.t)
	}
}

func TestSampleRectangularPulseCarrier(t *testing.T) {
	t.Parallel()
	cfg := BackendConfig{
		Dt:           0.5,
		LOFreqsDrive: []float64{3.0},
		PulseLib: Lib{
			"rect": {1.0, 1.0, 1.0, 1.0},
		},
	}
	c := NewController(cfg)
	id, err := c.GetDriveChannelID(0)
	require.NoError(t, err)
	require.NoError(t, c.AddSchedule(id, ScheduleEntry{Name: "rect", StartTime: 1.0, StopTime: 3.0}))

	for n := 0; n < 4; n++ {
		tn := 1.0 + float64(n)*0.5
		got := c.Sample(id, tn)
		want := math.Cos(3.0 * tn)
		assert.InDelta(t, want, real(got), 1e-9, "n=%d", n)
		assert.Zero(t, imag(got), "n=%d", n)
	}
}

// TestSampleDropsImaginaryComponentUnderFrameChange exercises a nonzero
// accumulated phase together with a nonzero LO frequency, the case where
// dropping the imaginary part after carrier modulation actually matters:
// Sample must return Re{envelope*exp(-i*(loFreq*t+phase))}, not the full
// complex product.
func TestSampleDropsImaginaryComponentUnderFrameChange(t *testing.T) {
	t.Parallel()
	cfg := BackendConfig{
		Dt:           0.5,
		LOFreqsDrive: []float64{3.0},
		PulseLib: Lib{
			"rect": {1.0, 1.0, 1.0, 1.0},
		},
	}
	c := NewController(cfg)
	id, err := c.GetDriveChannelID(0)
	require.NoError(t, err)
	require.NoError(t, c.AddSchedule(id, ScheduleEntry{Name: "rect", StartTime: 0, StopTime: 2.0}))
	c.AddFrameChange(id, FrameChangeEntry{StartTime: 0, Phase: 0.7})

	for n := 0; n < 4; n++ {
		tn := float64(n) * 0.5
		got := c.Sample(id, tn)
		angle := 3.0*tn + 0.7
		want := math.Cos(angle)
		assert.InDelta(t, want, real(got), 1e-9, "n=%d", n)
		assert.Zero(t, imag(got), "n=%d", n)
	}
}

func TestSampleOutsideScheduleIsZero(t *testing.T) {
	t.Parallel()
	c, id := newTestController(t)
	assert.Equal(t, complex128(0), c.Sample(id, 100.0))
}

func TestSampleMagnitudeMatchesEnvelope(t *testing.T) {
	t.Parallel()
	c, id := newTestController(t)
	got := c.Sample(id, 0.0)
	assert.InDelta(t, 0.1, cAbs(got), 1e-9)
}

func TestResolveChannel(t *testing.T) {
	t.Parallel()
	cfg := BackendConfig{LOFreqsDrive: []float64{1, 2}, LOFreqsCtrl: []float64{3}}
	c := NewController(cfg)

	id, err := c.ResolveChannel("D1")
	require.NoError(t, err)
	assert.Equal(t, ChannelID{IsControl: false, Index: 1}, id)

	id, err = c.ResolveChannel("U0")
	require.NoError(t, err)
	assert.Equal(t, ChannelID{IsControl: true, Index: 0}, id)

	_, err = c.ResolveChannel("D5")
	assert.Error(t, err)

	_, err = c.ResolveChannel("Z0")
	assert.Error(t, err)
}

func cAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
