package quac

import (
	"encoding/json"

	"github.com/anthony-santana/QuaC/ham"
	"github.com/anthony-santana/QuaC/pulse"
)

// HamiltonianDoc is the boundary schema for a Hamiltonian JSON document:
// an array of term strings parseable per the ham grammar, plus the
// variable bindings their coefficient expressions reference.
type HamiltonianDoc struct {
	HStr []string           `json:"h_str"`
	Vars map[string]float64 `json:"vars"`
}

// LoadHamiltonianJSON decodes a Hamiltonian JSON document and parses every
// term string, short-circuiting on the first parse failure.
func LoadHamiltonianJSON(data []byte) ([]ham.Term, ham.Vars, error) {
	var doc HamiltonianDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, newParseError("decoding Hamiltonian document: %v", err)
	}
	vars := ham.Vars(doc.Vars)
	terms, err := ham.ParseAll(doc.HStr, vars)
	if err != nil {
		return nil, nil, newParseError("%v", err)
	}
	return terms, vars, nil
}

// PulseSamplePair is a [re, im] pair as it appears in a pulseLib entry.
type PulseSamplePair [2]float64

// BackendConfigDoc is the boundary schema for a backend config document:
// sample period, one LO frequency per drive channel and one per control
// channel, and the shared pulse library.
type BackendConfigDoc struct {
	Dt              float64                      `json:"dt"`
	LOFreqsDChannel []float64                     `json:"loFreqs_dChannels"`
	LOFreqsUChannel []float64                     `json:"loFreqs_uChannels"`
	PulseLib        map[string][]PulseSamplePair  `json:"pulseLib"`
}

// LoadBackendConfigJSON decodes a backend config document into a
// pulse.BackendConfig.
func LoadBackendConfigJSON(data []byte) (pulse.BackendConfig, error) {
	var doc BackendConfigDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return pulse.BackendConfig{}, newParseError("decoding backend config document: %v", err)
	}
	if doc.Dt <= 0 {
		return pulse.BackendConfig{}, newParseError("backend config: dt must be positive, got %v", doc.Dt)
	}

	lib := make(pulse.Lib, len(doc.PulseLib))
	for name, samples := range doc.PulseLib {
		wave := make([]complex128, len(samples))
		for i, pair := range samples {
			wave[i] = complex(pair[0], pair[1])
		}
		lib[name] = wave
	}

	return pulse.BackendConfig{
		Dt:           doc.Dt,
		LOFreqsDrive: doc.LOFreqsDChannel,
		LOFreqsCtrl:  doc.LOFreqsUChannel,
		PulseLib:     lib,
	}, nil
}

// PulseScheduleDoc is one channel's worth of the pulse program document:
// a named sequence of scheduled pulses plus frame-change commands.
type PulseScheduleDoc struct {
	Channel      string                    `json:"channel"`
	Schedule     []pulse.ScheduleEntry     `json:"schedule"`
	FrameChanges []pulse.FrameChangeEntry  `json:"frame_changes"`
}

// LoadPulseProgramJSON decodes a pulse program document: an array of
// per-channel schedule/frame-change entries.
func LoadPulseProgramJSON(data []byte) ([]PulseScheduleDoc, error) {
	var docs []PulseScheduleDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, newParseError("decoding pulse program document: %v", err)
	}
	return docs, nil
}

// InstallPulseProgram resolves and registers every channel in docs against
// the instance's pulse controller.
func (inst *Instance) InstallPulseProgram(docs []PulseScheduleDoc) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	for _, doc := range docs {
		id, err := inst.controller.ResolveChannel(doc.Channel)
		if err != nil {
			return newParseError("%v", err)
		}
		if err := inst.ConfigureChannel(id, doc.Schedule, doc.FrameChanges); err != nil {
			return err
		}
	}
	return nil
}
