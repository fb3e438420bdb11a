// Command qpulse drives one end-to-end pulse simulation: it installs a
// fixed one-qubit Hamiltonian and drive schedule (scenario S1 in
// DESIGN.md), runs the integrator to the requested horizon, and writes the
// trajectory to a CSV file, adapted from the cmd/run/main.go
// flag/mainWithErr shape.
package main

import (
	"flag"
	"log"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/anthony-santana/QuaC/pulse"
	"github.com/anthony-santana/QuaC/quac"
)

var (
	outDir  = flag.String("o", "runs/qpulse", "output directory for the exported CSV")
	horizon = flag.Float64("t_max", 8.0, "simulation horizon")
	kappa   = flag.Float64("kappa", 1e-4, "qubit decay rate")
	verbose = flag.Bool("v", false, "enable debug-level logging")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if err := os.MkdirAll(*outDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	const dt = 1e-3
	const driveFreq = 5.0

	samples := make([]complex128, int(*horizon/dt)+1)
	for i := range samples {
		t := float64(i) * dt
		samples[i] = complex(math.Cos(2*math.Pi*driveFreq*t), 0)
	}

	cfg := pulse.BackendConfig{
		Dt:           dt,
		LOFreqsDrive: []float64{0},
		PulseLib:     pulse.Lib{"drive": samples},
	}

	inst, err := quac.NewInstance(1, 2, cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer inst.Finalize()

	if *verbose {
		inst.SetLogVerbosity(quac.LogDebug)
	}

	if err := inst.Initialize(dt, *horizon, 10_000_000); err != nil {
		return errors.Wrap(err, "")
	}
	if err := inst.AddConstTerm1("Z", 0, -math.Pi*driveFreq, 0); err != nil {
		return errors.Wrap(err, "")
	}
	if err := inst.AddTimeDepTerm1("X", 0, "D0"); err != nil {
		return errors.Wrap(err, "")
	}
	if err := inst.ConfigureChannel(pulse.ChannelID{Index: 0}, []pulse.ScheduleEntry{
		{Name: "drive", StartTime: 0, StopTime: *horizon},
	}, nil); err != nil {
		return errors.Wrap(err, "")
	}
	if err := inst.AddQubitDecay(0, *kappa); err != nil {
		return errors.Wrap(err, "")
	}
	if err := inst.SetInitialState([]complex128{1, 0, 0, 0}); err != nil {
		return errors.Wrap(err, "")
	}

	res, err := inst.Run(nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("ran %d accepted steps to t=%v", res.Steps, res.Times[len(res.Times)-1])

	path, err := inst.ExportCSV(*outDir)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("wrote %s", path)
	return nil
}
