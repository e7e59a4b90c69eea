package control

import (
	"math"

	"mpc-drive-core/curve"
	"mpc-drive-core/mpc"
	"mpc-drive-core/utils"
)

// Pipeline runs the per-cycle control sequence: predict the pose past
// the actuation latency, transform waypoints into that frame, fit the
// reference curve, solve the horizon problem, and map the raw result
// into a bounded command.
//
// A Pipeline belongs to one session. The only state carried between
// cycles is the last issued command, which feeds the next prediction;
// cycles themselves are strictly sequential.
type Pipeline struct {
	cfg    Config
	log    *utils.Logger
	solver *mpc.Solver

	// last issued actuation in physical units. The command sent this
	// cycle has not influenced this cycle's telemetry yet; that delay
	// is exactly what the predictor compensates for.
	lastSteerRad float64
	lastThrottle float64
	lastCmd      Command
	issued       bool
}

func NewPipeline(cfg Config, log *utils.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	solver, err := mpc.NewSolver(cfg.mpcParams())
	if err != nil {
		return nil, wrapError(KindConfiguration, "solver", err)
	}
	return &Pipeline{cfg: cfg, log: log, solver: solver}, nil
}

// LastCommand returns the most recently issued command, zero before the
// first successful cycle. The session's hold policy reissues it when a
// cycle fails.
func (p *Pipeline) LastCommand() Command { return p.lastCmd }

// Cycle runs one full control cycle. On error no command is produced
// and the carryover state is untouched; inspect the failure with
// KindOf.
func (p *Pipeline) Cycle(t Telemetry) (CycleOutput, error) {
	if err := validateTelemetry(t); err != nil {
		return CycleOutput{}, err
	}

	pose := WorldPose{X: t.X, Y: t.Y, Heading: t.Heading, Speed: t.Speed * MphToMps}

	// Until this pipeline has issued a command, trust the actuation the
	// simulator reports; a session attached mid-drive should not
	// predict as if the wheel were centered.
	steer, throttle := p.lastSteerRad, p.lastThrottle
	if !p.issued {
		steer, throttle = t.LastSteering, t.LastThrottle
	}

	pred := Predict(pose, steer, throttle, p.cfg.LatencyS, p.cfg.WheelbaseLf, p.cfg.AccelScale)

	lx, ly, err := ToVehicleFrame(pred, t.WaypointsX, t.WaypointsY)
	if err != nil {
		return CycleOutput{}, err
	}

	coeffs, err := curve.Fit(lx, ly, RefDegree)
	if err != nil {
		return CycleOutput{}, wrapError(KindOf(err), "reference fit", err)
	}

	state := mpc.State{
		V:    pred.Speed,
		CTE:  coeffs.Eval(0),
		EPsi: -math.Atan(coeffs[1]),
	}
	sol, err := p.solver.Solve(state, coeffs)
	if err != nil {
		return CycleOutput{}, wrapError(KindOf(err), "trajectory optimization", err)
	}

	cmd := p.mapOutput(sol)
	p.lastSteerRad = sol.Steering
	p.lastThrottle = sol.Throttle
	p.lastCmd = cmd
	p.issued = true

	if p.log != nil {
		p.log.Debug("cycle: v=%.2f cte=%.3f epsi=%.3f -> steer=%.3f throttle=%.3f",
			pred.Speed, state.CTE, state.EPsi, cmd.Steering, cmd.Throttle)
	}

	return CycleOutput{
		Command:    cmd,
		PredictedX: sol.X,
		PredictedY: sol.Y,
		ReferenceX: lx,
		ReferenceY: ly,
	}, nil
}

// mapOutput normalizes the raw optimizer outputs: steering divided by
// the physical bound with the sign flipped to the platform's turn
// convention, throttle clamped to its range.
func (p *Pipeline) mapOutput(sol mpc.Solution) Command {
	return Command{
		Steering: clamp(-sol.Steering/p.cfg.SteerBoundRad(), -1, 1),
		Throttle: clamp(sol.Throttle, -1, 1),
	}
}

func validateTelemetry(t Telemetry) error {
	if len(t.WaypointsX) != len(t.WaypointsY) {
		return newError(KindInputValidation, "waypoint slices differ: %d vs %d",
			len(t.WaypointsX), len(t.WaypointsY))
	}
	if len(t.WaypointsX) == 0 {
		return newError(KindInputValidation, "no waypoints supplied")
	}
	for _, v := range []float64{t.X, t.Y, t.Heading, t.Speed, t.LastSteering, t.LastThrottle} {
		if !isFinite(v) {
			return newError(KindInputValidation, "non-finite telemetry scalar %g", v)
		}
	}
	for i := range t.WaypointsX {
		if !isFinite(t.WaypointsX[i]) || !isFinite(t.WaypointsY[i]) {
			return newError(KindInputValidation, "non-finite waypoint at index %d", i)
		}
	}
	return nil
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
