package control

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"mpc-drive-core/mpc"
	"mpc-drive-core/nlp"
)

// MphToMps converts the simulator's reported speed to meters/second.
const MphToMps = 0.44704

// RefDegree is the degree of the fitted reference curve.
const RefDegree = 3

// Config is the full tuning set for one control session. It is built
// once at startup, validated, and passed by value into every stage;
// nothing mutates it afterwards.
type Config struct {
	// Latency between issuing a command and the actuators responding.
	// The predictor advances the state by this much before planning.
	LatencyS float64 `json:"latency_s"`

	HorizonSteps   int     `json:"horizon_steps"`
	HorizonDtS     float64 `json:"horizon_dt_s"`
	TargetSpeedMPS float64 `json:"target_speed_mps"`
	SteerBoundDeg  float64 `json:"steer_bound_deg"`
	WheelbaseLf    float64 `json:"wheelbase_lf_m"`
	AccelScale     float64 `json:"accel_scale_mps2"`

	Weights mpc.Weights `json:"weights"`

	SolverOuterIter int     `json:"solver_outer_iter"`
	SolverInnerIter int     `json:"solver_inner_iter"`
	ConstraintTol   float64 `json:"constraint_tol"`
}

// DefaultConfig returns the tuning used against the term-2 simulator:
// 100 ms actuation latency, 10-step horizon at 100 ms, 40 mph target,
// 25 degree steering limit on a 2.67 m Lf chassis.
func DefaultConfig() Config {
	return Config{
		LatencyS:       0.1,
		HorizonSteps:   10,
		HorizonDtS:     0.1,
		TargetSpeedMPS: 40 * MphToMps,
		SteerBoundDeg:  25,
		WheelbaseLf:    2.67,
		AccelScale:     9.81,
		Weights: mpc.Weights{
			CTE:       900,
			EPsi:      900,
			Speed:     1,
			Steer:     25,
			Accel:     25,
			SteerRate: 2500,
			AccelRate: 250,
		},
		SolverOuterIter: 12,
		SolverInnerIter: 2000,
		ConstraintTol:   1e-6,
	}
}

// LoadConfig reads a JSON config file over the defaults and validates
// the result; any field left out keeps its default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects structurally invalid parameters. These are fatal at
// startup, never recoverable per cycle.
func (c Config) Validate() error {
	switch {
	case c.LatencyS < 0 || !isFinite(c.LatencyS):
		return newError(KindConfiguration, "latency_s must be >= 0, got %g", c.LatencyS)
	case c.AccelScale <= 0:
		return newError(KindConfiguration, "accel_scale_mps2 must be positive, got %g", c.AccelScale)
	case c.SolverOuterIter < 0 || c.SolverInnerIter < 0:
		return newError(KindConfiguration, "solver iteration budgets must be >= 0")
	case c.ConstraintTol <= 0:
		return newError(KindConfiguration, "constraint_tol must be positive, got %g", c.ConstraintTol)
	}
	if err := c.mpcParams().Validate(); err != nil {
		return wrapError(KindConfiguration, "mpc parameters", err)
	}
	return nil
}

// SteerBoundRad is the physical steering limit in radians.
func (c Config) SteerBoundRad() float64 {
	return c.SteerBoundDeg * math.Pi / 180
}

func (c Config) mpcParams() mpc.Params {
	s := nlp.DefaultSettings()
	s.OuterIter = c.SolverOuterIter
	s.InnerIter = c.SolverInnerIter
	s.ConstraintTol = c.ConstraintTol
	return mpc.Params{
		N:           c.HorizonSteps,
		Dt:          c.HorizonDtS,
		Lf:          c.WheelbaseLf,
		SteerBound:  c.SteerBoundRad(),
		TargetSpeed: c.TargetSpeedMPS,
		Weights:     c.Weights,
		Solver:      s,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
