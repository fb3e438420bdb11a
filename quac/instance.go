// Package quac owns the Instance lifecycle that wires together the
// Hamiltonian parser (ham), the superoperator builder (superop), the pulse
// channel controller (pulse), and the time-stepping engine (solver) into
// the single entry point an external caller drives: create qubits, install
// terms, add decay, run, retrieve results, clear, finalize.
package quac

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/anthony-santana/QuaC/ham"
	"github.com/anthony-santana/QuaC/pulse"
	"github.com/anthony-santana/QuaC/solver"
	"github.com/anthony-santana/QuaC/superop"
)

// Instance owns qubit count, per-qubit level count, the initial state, the
// superoperator builder, the pulse controller, and the most recent run's
// result. clear is idempotent and returns the instance to the
// post-construction state; finalize releases the underlying linear-algebra
// context and is terminal.
type Instance struct {
	numQubits  int
	levelCount int

	builder    *superop.Builder
	controller *pulse.Controller
	cfg        pulse.BackendConfig

	logs  componentLoggers
	level Verbosity

	dt      float64
	tMax    float64
	stepMax int
	method  solver.Method

	y0     []complex128
	result *solver.Result

	// termLog records a canonical descriptor for every term installed so
	// far, in installation order; contentHash digests it to key a
	// checkpoint against the Hamiltonian description that produced it.
	termLog []string

	initialized bool
	finalized   bool
}

// NewInstance creates a qubit register of numQubits qudits with uniform
// level count (2 for ordinary qubits) and the pulse controller resolved
// against cfg.
func NewInstance(numQubits, levelCount int, cfg pulse.BackendConfig) (*Instance, error) {
	if numQubits <= 0 {
		return nil, newResourceError("numQubits must be positive, got %d", numQubits)
	}
	if levelCount < 2 {
		return nil, newResourceError("levelCount must be at least 2, got %d", levelCount)
	}

	inst := &Instance{
		numQubits:  numQubits,
		levelCount: levelCount,
		cfg:        cfg,
		logs:       newComponentLoggers(newRootLogger()),
		level:      LogMinimal,
	}
	inst.logs.setLevel(inst.level.zerologLevel())
	inst.reset()
	return inst, nil
}

func (inst *Instance) reset() {
	inst.builder = superop.NewBuilder(inst.numQubits, inst.levelCount)
	inst.controller = pulse.NewController(inst.cfg)
	inst.y0 = nil
	inst.result = nil
	inst.termLog = nil
	inst.initialized = false
}

func (inst *Instance) checkLive() error {
	if inst.finalized {
		return newResourceError("instance has been finalized")
	}
	return nil
}

// Initialize records the sample period, final simulation time, and step
// budget the Run hook will use; install/add calls may happen before or
// after Initialize, matching the boundary's initialize(...) → ok contract,
// which only fixes the integration window, not term installation order.
func (inst *Instance) Initialize(dt, tMax float64, stepMax int) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	if dt <= 0 {
		return newResourceError("dt must be positive, got %v", dt)
	}
	if tMax <= 0 {
		return newResourceError("t_max must be positive, got %v", tMax)
	}
	if stepMax <= 0 {
		return newResourceError("step_max must be positive, got %d", stepMax)
	}
	inst.dt, inst.tMax, inst.stepMax = dt, tMax, stepMax
	inst.initialized = true
	inst.logs.instance.Debug().Float64("dt", dt).Float64("t_max", tMax).Int("step_max", stepMax).Msg("initialized")
	return nil
}

// SetMethod selects the integration scheme Run uses; the default
// (zero value) is the adaptive Bogacki-Shampine 3(2) explicit scheme.
func (inst *Instance) SetMethod(m solver.Method) { inst.method = m }

// AddConstTerm1 installs a time-independent one-qubit term
// c*op[qubit] into H0.
func (inst *Instance) AddConstTerm1(opSymbol string, qubit int, cRe, cIm float64) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	op := ham.ParseOperator(opSymbol)
	if op == ham.OpNA {
		return newParseError("unknown operator symbol %q", opSymbol)
	}
	err := inst.builder.AddIndependentTerm(complex(cRe, cIm), []ham.QubitOp{{Op: op, Qubit: qubit}})
	if err != nil {
		return err
	}
	inst.termLog = append(inst.termLog, fmt.Sprintf("const1:%s:%d:%g:%g", opSymbol, qubit, cRe, cIm))
	inst.logs.builder.Debug().Str("op", opSymbol).Int("qubit", qubit).Msg("added const term")
	return nil
}

// AddConstTerm2 installs a time-independent two-qubit product term
// c*op1[q1]*op2[q2] into H0.
func (inst *Instance) AddConstTerm2(op1 string, q1 int, op2 string, q2 int, cRe, cIm float64) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	o1, o2 := ham.ParseOperator(op1), ham.ParseOperator(op2)
	if o1 == ham.OpNA || o2 == ham.OpNA {
		return newParseError("unknown operator symbol in pair (%q, %q)", op1, op2)
	}
	err := inst.builder.AddIndependentTerm(complex(cRe, cIm), []ham.QubitOp{{Op: o1, Qubit: q1}, {Op: o2, Qubit: q2}})
	if err != nil {
		return err
	}
	inst.termLog = append(inst.termLog, fmt.Sprintf("const2:%s:%d:%s:%d:%g:%g", op1, q1, op2, q2, cRe, cIm))
	inst.logs.builder.Debug().Str("op1", op1).Int("q1", q1).Str("op2", op2).Int("q2", q2).Msg("added const term2")
	return nil
}

// AddTimeDepTerm1 installs a one-qubit term tagged to drive/control
// channelID (e.g. "D0", "U1"), with static coefficient 1 (the coefficient
// the channel's sampled envelope scales at run time).
func (inst *Instance) AddTimeDepTerm1(opSymbol string, qubit int, channelID string) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	op := ham.ParseOperator(opSymbol)
	if op == ham.OpNA {
		return newParseError("unknown operator symbol %q", opSymbol)
	}
	err := inst.builder.AddDependentTerm(channelID, 1, []ham.QubitOp{{Op: op, Qubit: qubit}})
	if err != nil {
		return err
	}
	inst.termLog = append(inst.termLog, fmt.Sprintf("dep1:%s:%d:%s", opSymbol, qubit, channelID))
	inst.logs.builder.Debug().Str("op", opSymbol).Int("qubit", qubit).Str("channel", channelID).Msg("added time-dep term")
	return nil
}

// AddTimeDepTerm2 installs a two-qubit product term tagged to channelName.
func (inst *Instance) AddTimeDepTerm2(op1 string, q1 int, op2 string, q2 int, channelName string) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	o1, o2 := ham.ParseOperator(op1), ham.ParseOperator(op2)
	if o1 == ham.OpNA || o2 == ham.OpNA {
		return newParseError("unknown operator symbol in pair (%q, %q)", op1, op2)
	}
	err := inst.builder.AddDependentTerm(channelName, 1, []ham.QubitOp{{Op: o1, Qubit: q1}, {Op: o2, Qubit: q2}})
	if err != nil {
		return err
	}
	inst.termLog = append(inst.termLog, fmt.Sprintf("dep2:%s:%d:%s:%d:%s", op1, q1, op2, q2, channelName))
	inst.logs.builder.Debug().Str("op1", op1).Int("q1", q1).Str("op2", op2).Int("q2", q2).
		Str("channel", channelName).Msg("added time-dep term2")
	return nil
}

// InstallTermString parses a Hamiltonian term string with the given
// variable bindings and installs every resulting leaf term.
func (inst *Instance) InstallTermString(s string, vars ham.Vars) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	term, err := ham.Parse(s, vars)
	if err != nil {
		return newParseError("%v", err)
	}
	if err := term.Apply(inst.builder); err != nil {
		return err
	}
	inst.termLog = append(inst.termLog, fmt.Sprintf("term:%s|%s", s, formatVars(vars)))
	inst.logs.parser.Debug().Str("term", s).Msg("installed term string")
	return nil
}

// formatVars canonicalizes a variable binding into a deterministic string,
// sorted by key, for content hashing.
func formatVars(vars ham.Vars) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, vars[k]))
	}
	return strings.Join(parts, ",")
}

// AddQubitDecay installs the standard amplitude-damping Lindblad
// dissipator for qubit at rate kappa, switching the builder into
// Liouville-space (Lindblad) mode.
func (inst *Instance) AddQubitDecay(qubit int, kappa float64) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	if err := inst.builder.AddDecay(qubit, kappa); err != nil {
		return err
	}
	inst.termLog = append(inst.termLog, fmt.Sprintf("decay:%d:%g", qubit, kappa))
	inst.logs.builder.Debug().Int("qubit", qubit).Float64("kappa", kappa).Msg("added qubit decay")
	return nil
}

// ConfigureChannel registers a drive or control channel's schedule and
// frame changes against the pulse controller prior to Run.
func (inst *Instance) ConfigureChannel(id pulse.ChannelID, schedule []pulse.ScheduleEntry, frameChanges []pulse.FrameChangeEntry) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	for _, entry := range schedule {
		if err := inst.controller.AddSchedule(id, entry); err != nil {
			return err
		}
	}
	for _, fc := range frameChanges {
		inst.controller.AddFrameChange(id, fc)
	}
	return nil
}

// SetInitialState binds the initial vectorized state. Its length must
// match the builder's eventual drift dimension: L^N in Schrödinger mode,
// L^(2N) once any decay has been added.
func (inst *Instance) SetInitialState(y0 []complex128) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	inst.y0 = append([]complex128(nil), y0...)
	return nil
}

// SetLogVerbosity maps the boundary's four-level enum onto the instance's
// component loggers.
func (inst *Instance) SetLogVerbosity(level Verbosity) {
	inst.level = level
	inst.logs.setLevel(level.zerologLevel())
}

// Run finalizes the superoperator assembly (if not already finalized),
// then advances the initial state from t=0 to t_max under the installed
// terms, honoring the optional caller-supplied monitor.
func (inst *Instance) Run(monitor solver.Monitor) (*solver.Result, error) {
	if err := inst.checkLive(); err != nil {
		return nil, err
	}
	if !inst.initialized {
		return nil, newResourceError("Initialize must be called before Run")
	}
	if inst.y0 == nil {
		return nil, newResourceError("SetInitialState must be called before Run")
	}
	if err := inst.builder.Finalize(); err != nil {
		return nil, err
	}
	if len(inst.y0) != inst.builder.Drift.Rows() {
		return nil, newResourceError("initial state has length %d, drift expects %d", len(inst.y0), inst.builder.Drift.Rows())
	}

	sys := &solver.System{Drift: inst.builder.Drift, Terms: inst.builder.Terms, Controller: inst.controller}
	opts := solver.Options{
		Method:    inst.method,
		T0:        0,
		TMax:      inst.tMax,
		DtInitial: inst.dt,
		StepMax:   inst.stepMax,
		Normalize: inst.builder.Lindblad,
		Monitor:   inst.wrapMonitor(monitor),
	}

	inst.logs.solver.Info().Float64("t_max", inst.tMax).Int("step_max", inst.stepMax).Bool("lindblad", inst.builder.Lindblad).Msg("run starting")
	res, err := solver.Run(sys, inst.y0, opts)
	inst.result = res
	if err != nil {
		return res, err
	}
	inst.logs.solver.Info().Int("steps", res.Steps).Msg("run finished")
	return res, nil
}

func (inst *Instance) wrapMonitor(caller solver.Monitor) solver.Monitor {
	if inst.level < LogDebugDiag && caller == nil {
		return nil
	}
	return func(stepIndex int, t float64, y []complex128) solver.MonitorResult {
		if inst.level >= LogDebugDiag {
			inst.logs.solver.Trace().Int("step", stepIndex).Float64("t", t).Int("nnz_drift", inst.builder.Drift.NumNonZero()).Msg("step")
		}
		if caller == nil {
			return solver.Continue
		}
		return caller(stepIndex, t, y)
	}
}

// Results returns the trajectory recorded by the most recent Run.
func (inst *Instance) Results() (*solver.Result, error) {
	if err := inst.checkLive(); err != nil {
		return nil, err
	}
	if inst.result == nil {
		return nil, newResourceError("no results available; Run has not completed")
	}
	return inst.result, nil
}

// Clear is idempotent: it returns the instance to its post-construction
// state, discarding installed terms, decay, schedules, and results, but
// keeping numQubits/levelCount/cfg and the verbosity level.
func (inst *Instance) Clear() error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	inst.reset()
	inst.dt, inst.tMax, inst.stepMax = 0, 0, 0
	inst.logs.instance.Debug().Msg("cleared")
	return nil
}

// Finalize releases the instance's linear-algebra context. It is terminal:
// every subsequent term-installing, run, result, checkpoint, or Clear call
// on this Instance returns a ResourceError. A repeated Finalize returns
// nil, and SetMethod/SetLogVerbosity do not check for finalization.
func (inst *Instance) Finalize() error {
	if inst.finalized {
		return nil
	}
	inst.finalized = true
	inst.builder = nil
	inst.controller = nil
	inst.y0 = nil
	inst.logs.instance.Debug().Msg("finalized")
	return nil
}

// SteadyState exposes the builder's Lindblad fixed-point solve. It
// finalizes the assembly itself if Run has not already done so; the
// generator must be in Lindblad mode (at least one decay added).
func (inst *Instance) SteadyState() ([]complex128, error) {
	if err := inst.checkLive(); err != nil {
		return nil, err
	}
	if err := inst.builder.Finalize(); err != nil {
		return nil, err
	}
	vec, err := inst.builder.SteadyState()
	if err != nil {
		return nil, errors.Wrap(err, "quac: steady-state solve failed")
	}
	return vec, nil
}
