// Package pulse implements the sampled waveform lookup, carrier
// modulation, and frame-change bookkeeping a drive (D<i>) or control
// (U<j>) channel needs to produce its time-dependent coefficient at a
// given simulation time. Grounded in QuaC_Pulse_Visitor's PulseLib /
// BackendChannelConfigs / PulseScheduleEntry / FrameChangeCommandEntry
// setup.
package pulse

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Lib maps a pulse name to its sampled, dimensionless complex envelope.
type Lib map[string][]complex128

// ScheduleEntry places one named pulse from the library onto a channel
// over an absolute time window.
type ScheduleEntry struct {
	Name      string
	StartTime float64
	StopTime  float64
}

// FrameChangeEntry applies an additive phase shift to a channel's carrier
// starting at StartTime and persisting for all later samples.
type FrameChangeEntry struct {
	StartTime float64
	Phase     float64
}

// BackendConfig describes the sample spacing and LO frequency assigned to
// each drive channel, plus the pulse library shared across all channels.
type BackendConfig struct {
	Dt           float64
	LOFreqsDrive []float64 // indexed by drive channel id
	LOFreqsCtrl  []float64 // indexed by control channel id
	PulseLib     Lib
}

// ChannelID identifies a drive (D<i>) or control (U<j>) channel.
type ChannelID struct {
	IsControl bool
	Index     int
}

func (c ChannelID) String() string {
	if c.IsControl {
		return ctrlName(c.Index)
	}
	return driveName(c.Index)
}

func driveName(i int) string { return "D" + itoa(i) }
func ctrlName(i int) string  { return "U" + itoa(i) }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// channel holds the resolved schedule and frame-change entries for one
// channel id, sorted by start time for the sweep in Sample.
type channel struct {
	schedule     []ScheduleEntry
	frameChanges []FrameChangeEntry
	loFreq       float64
}

// Controller resolves a channel id and simulation time to a complex drive
// coefficient: sampled envelope value, times the LO carrier, with the
// accumulated frame-change phase folded into the carrier's phase.
type Controller struct {
	cfg      BackendConfig
	channels map[string]*channel
}

// NewController builds a Controller from a backend config. Schedules and
// frame-change entries are registered afterward via AddSchedule and
// AddFrameChange.
func NewController(cfg BackendConfig) *Controller {
	return &Controller{cfg: cfg, channels: make(map[string]*channel)}
}

// GetDriveChannelID returns the channel id for drive channel index i,
// validating it against the configured LO frequency table.
func (c *Controller) GetDriveChannelID(i int) (ChannelID, error) {
	if i < 0 || i >= len(c.cfg.LOFreqsDrive) {
		return ChannelID{}, errors.Errorf("pulse: drive channel D%d has no configured LO frequency", i)
	}
	return ChannelID{IsControl: false, Index: i}, nil
}

// GetControlChannelID returns the channel id for control channel index i.
func (c *Controller) GetControlChannelID(i int) (ChannelID, error) {
	if i < 0 || i >= len(c.cfg.LOFreqsCtrl) {
		return ChannelID{}, errors.Errorf("pulse: control channel U%d has no configured LO frequency", i)
	}
	return ChannelID{IsControl: true, Index: i}, nil
}

// ResolveChannel parses a channel tag as produced by ham.Dependent
// (e.g. "D0" or "U1") into a ChannelID.
func (c *Controller) ResolveChannel(tag string) (ChannelID, error) {
	if len(tag) < 2 {
		return ChannelID{}, errors.Errorf("pulse: malformed channel tag %q", tag)
	}
	idx, err := parseUint(tag[1:])
	if err != nil {
		return ChannelID{}, errors.Wrapf(err, "pulse: malformed channel tag %q", tag)
	}
	switch tag[0] {
	case 'D':
		return c.GetDriveChannelID(idx)
	case 'U':
		return c.GetControlChannelID(idx)
	default:
		return ChannelID{}, errors.Errorf("pulse: channel tag %q must start with D or U", tag)
	}
}

func parseUint(s string) (int, error) {
	if s == "" {
		return 0, errors.Errorf("empty index")
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("non-digit in index %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func (c *Controller) get(id ChannelID) *channel {
	key := id.String()
	ch, ok := c.channels[key]
	if !ok {
		loFreq := 0.0
		if id.IsControl {
			if id.Index < len(c.cfg.LOFreqsCtrl) {
				loFreq = c.cfg.LOFreqsCtrl[id.Index]
			}
		} else if id.Index < len(c.cfg.LOFreqsDrive) {
			loFreq = c.cfg.LOFreqsDrive[id.Index]
		}
		ch = &channel{loFreq: loFreq}
		c.channels[key] = ch
	}
	return ch
}

// AddSchedule places a pulse from the library onto the named channel.
func (c *Controller) AddSchedule(id ChannelID, entry ScheduleEntry) error {
	if _, ok := c.cfg.PulseLib[entry.Name]; !ok {
		return errors.Errorf("pulse: %q is not registered in the pulse library", entry.Name)
	}
	ch := c.get(id)
	ch.schedule = append(ch.schedule, entry)
	sort.Slice(ch.schedule, func(i, j int) bool { return ch.schedule[i].StartTime < ch.schedule[j].StartTime })
	return nil
}

// AddFrameChange registers a frame-change command on the named channel.
func (c *Controller) AddFrameChange(id ChannelID, entry FrameChangeEntry) {
	ch := c.get(id)
	ch.frameChanges = append(ch.frameChanges, entry)
	sort.Slice(ch.frameChanges, func(i, j int) bool { return ch.frameChanges[i].StartTime < ch.frameChanges[j].StartTime })
}

// AccumulatedPhase returns the sum of every frame-change phase whose
// StartTime has elapsed by time t, the "cancel all FC phases up to now"
// behavior a frame-change entry with a compensating negative phase relies
// on.
func (c *Controller) AccumulatedPhase(id ChannelID, t float64) float64 {
	ch, ok := c.channels[id.String()]
	if !ok {
		return 0
	}
	phase := 0.0
	for _, fc := range ch.frameChanges {
		if fc.StartTime <= t {
			phase += fc.Phase
		}
	}
	return phase
}

// Sample returns the real drive coefficient for channel id at time t:
// Re{ envelope * exp(-i*(loFreq*t + phase)) }, where envelope is the active
// schedule entry's sample (index n = floor((t-t0)/dt), zero once n exceeds
// the waveform length) and phase is the channel's accumulated frame change.
// The result is carried in a complex128 with a zero imaginary part so it
// composes directly with the builder's complex-valued unit operators.
func (c *Controller) Sample(id ChannelID, t float64) complex128 {
	ch, ok := c.channels[id.String()]
	if !ok {
		return 0
	}

	var envelope complex128
	for _, entry := range ch.schedule {
		if t < entry.StartTime || t > entry.StopTime {
			continue
		}
		samples := c.cfg.PulseLib[entry.Name]
		n := int((t - entry.StartTime) / c.cfg.Dt)
		if n < 0 || n >= len(samples) {
			continue
		}
		envelope = samples[n]
		break
	}

	if envelope == 0 {
		return 0
	}

	phase := c.AccumulatedPhase(id, t)
	angle := ch.loFreq*t + phase
	return complex(real(envelope*complexExp(-angle)), 0)
}

func complexExp(theta float64) complex128 {
	return complex(math.Cos(theta), math.Sin(theta))
}
