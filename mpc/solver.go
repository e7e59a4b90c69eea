// Package mpc plans steering and throttle over a finite horizon. Each
// solve builds one constrained problem (kinematic bicycle dynamics as
// equality constraints between consecutive timesteps, actuator bounds,
// a weighted tracking cost) and hands it to the nlp solver. Only the
// first control pair is applied (receding horizon); the full predicted
// trajectory is returned for display.
package mpc

import (
	"fmt"
	"math"

	"mpc-drive-core/autodiff"
	"mpc-drive-core/curve"
	"mpc-drive-core/nlp"
)

// Weights scale the cost terms. All must be non-negative.
type Weights struct {
	CTE       float64 `json:"cte"`
	EPsi      float64 `json:"epsi"`
	Speed     float64 `json:"speed"`
	Steer     float64 `json:"steer"`
	Accel     float64 `json:"accel"`
	SteerRate float64 `json:"steer_rate"`
	AccelRate float64 `json:"accel_rate"`
}

// Params fixes the horizon and vehicle model for a solver instance.
type Params struct {
	N           int     // horizon timesteps, >= 2
	Dt          float64 // horizon step, seconds
	Lf          float64 // center of gravity to front axle, meters
	SteerBound  float64 // |delta| limit, radians
	TargetSpeed float64 // m/s
	Weights     Weights
	Solver      nlp.Settings
}

// Validate reports the first structurally invalid parameter.
func (p Params) Validate() error {
	switch {
	case p.N < 2:
		return fmt.Errorf("mpc: horizon must be >= 2 steps, got %d", p.N)
	case p.Dt <= 0:
		return fmt.Errorf("mpc: horizon step must be positive, got %g", p.Dt)
	case p.Lf <= 0:
		return fmt.Errorf("mpc: Lf must be positive, got %g", p.Lf)
	case p.SteerBound <= 0:
		return fmt.Errorf("mpc: steering bound must be positive, got %g", p.SteerBound)
	case p.TargetSpeed <= 0:
		return fmt.Errorf("mpc: target speed must be positive, got %g", p.TargetSpeed)
	}
	for _, w := range []struct {
		name string
		v    float64
	}{
		{"cte", p.Weights.CTE}, {"epsi", p.Weights.EPsi}, {"speed", p.Weights.Speed},
		{"steer", p.Weights.Steer}, {"accel", p.Weights.Accel},
		{"steer_rate", p.Weights.SteerRate}, {"accel_rate", p.Weights.AccelRate},
	} {
		if w.v < 0 || math.IsNaN(w.v) {
			return fmt.Errorf("mpc: weight %s must be non-negative, got %g", w.name, w.v)
		}
	}
	return nil
}

// State is the vehicle state in the predicted local frame, where
// position and heading are zero by construction.
type State struct {
	V    float64
	CTE  float64
	EPsi float64
}

// Solution is the first control pair plus the optimized trajectory.
type Solution struct {
	Steering float64 // radians, within ±SteerBound
	Throttle float64 // fraction in [-1, 1]
	X, Y     []float64
}

// Solver is immutable after construction and safe for concurrent use;
// every Solve builds its own scratch state.
type Solver struct {
	p Params
}

func NewSolver(p Params) (*Solver, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Solver{p: p}, nil
}

// decision vector layout, matching the horizon blocks:
// [x… y… psi… v… cte… epsi…] then [delta…, a…] of length N-1 each.
type layout struct {
	n                            int
	x, y, psi, v, cte, epsi      int
	delta, a                     int
	dim, numEq                   int
}

func newLayout(n int) layout {
	l := layout{n: n}
	l.x = 0
	l.y = n
	l.psi = 2 * n
	l.v = 3 * n
	l.cte = 4 * n
	l.epsi = 5 * n
	l.delta = 6 * n
	l.a = 6*n + (n - 1)
	l.dim = 6*n + 2*(n-1)
	l.numEq = 6 * n // 6 initial conditions + 6(n-1) dynamics
	return l
}

// Solve plans from the given predicted state along the fitted curve.
// On nlp failure the error wraps nlp.ErrNoConvergence or
// nlp.ErrInfeasible.
func (s *Solver) Solve(st State, coeffs curve.Polynomial) (Solution, error) {
	if len(coeffs) == 0 {
		return Solution{}, fmt.Errorf("mpc: empty reference curve")
	}
	l := newLayout(s.p.N)
	prob := nlp.Problem{
		Dim:   l.dim,
		NumEq: l.numEq,
		Eval:  s.eval(l, st, coeffs),
	}
	prob.Lower, prob.Upper = s.bounds(l)

	res, err := nlp.Solve(prob, s.warmStart(l, st, coeffs), s.p.Solver)
	if err != nil {
		return Solution{}, fmt.Errorf("mpc solve: %w", err)
	}

	sol := Solution{
		Steering: res.X[l.delta],
		Throttle: res.X[l.a],
		X:        append([]float64(nil), res.X[l.x:l.x+l.n]...),
		Y:        append([]float64(nil), res.X[l.y:l.y+l.n]...),
	}
	return sol, nil
}

// eval builds the cost and equality residuals in dual arithmetic.
func (s *Solver) eval(l layout, st State, coeffs curve.Polynomial) func([]autodiff.Dual) (autodiff.Dual, []autodiff.Dual) {
	p := s.p
	deriv := coeffs.Deriv()
	return func(z []autodiff.Dual) (autodiff.Dual, []autodiff.Dual) {
		w := p.Weights
		cost := autodiff.Const(0)
		for k := 0; k < l.n; k++ {
			cost = cost.Add(z[l.cte+k].Sqr().Scale(w.CTE))
			cost = cost.Add(z[l.epsi+k].Sqr().Scale(w.EPsi))
			cost = cost.Add(z[l.v+k].SubConst(p.TargetSpeed).Sqr().Scale(w.Speed))
		}
		for k := 0; k < l.n-1; k++ {
			cost = cost.Add(z[l.delta+k].Sqr().Scale(w.Steer))
			cost = cost.Add(z[l.a+k].Sqr().Scale(w.Accel))
		}
		for k := 0; k < l.n-2; k++ {
			cost = cost.Add(z[l.delta+k+1].Sub(z[l.delta+k]).Sqr().Scale(w.SteerRate))
			cost = cost.Add(z[l.a+k+1].Sub(z[l.a+k]).Sqr().Scale(w.AccelRate))
		}

		eq := make([]autodiff.Dual, l.numEq)
		// Timestep 0 is pinned to the predicted state. Hard equality,
		// not a cost term.
		eq[0] = z[l.x]
		eq[1] = z[l.y]
		eq[2] = z[l.psi]
		eq[3] = z[l.v].SubConst(st.V)
		eq[4] = z[l.cte].SubConst(st.CTE)
		eq[5] = z[l.epsi].SubConst(st.EPsi)

		for k := 0; k < l.n-1; k++ {
			xk, yk := z[l.x+k], z[l.y+k]
			psik, vk := z[l.psi+k], z[l.v+k]
			epsik := z[l.epsi+k]
			dk, ak := z[l.delta+k], z[l.a+k]

			fx := polyEval(coeffs, xk)
			psides := polyEval(deriv, xk).Atan()

			row := 6 + 6*k
			eq[row+0] = z[l.x+k+1].Sub(xk.Add(vk.Mul(psik.Cos()).Scale(p.Dt)))
			eq[row+1] = z[l.y+k+1].Sub(yk.Add(vk.Mul(psik.Sin()).Scale(p.Dt)))
			eq[row+2] = z[l.psi+k+1].Sub(psik.Sub(vk.Mul(dk).Scale(p.Dt / p.Lf)))
			eq[row+3] = z[l.v+k+1].Sub(vk.Add(ak.Scale(p.Dt)))
			eq[row+4] = z[l.cte+k+1].Sub(fx.Sub(yk).Add(vk.Mul(epsik.Sin()).Scale(p.Dt)))
			eq[row+5] = z[l.epsi+k+1].Sub(psik.Sub(psides).Sub(vk.Mul(dk).Scale(p.Dt / p.Lf)))
		}
		return cost, eq
	}
}

func (s *Solver) bounds(l layout) (lo, hi []float64) {
	lo = make([]float64, l.dim)
	hi = make([]float64, l.dim)
	for i := 0; i < l.delta; i++ {
		lo[i] = math.Inf(-1)
		hi[i] = math.Inf(1)
	}
	for k := 0; k < l.n-1; k++ {
		lo[l.delta+k], hi[l.delta+k] = -s.p.SteerBound, s.p.SteerBound
		lo[l.a+k], hi[l.a+k] = -1, 1
	}
	return lo, hi
}

// warmStart rolls the model forward from the initial state under zero
// controls, so every equality constraint holds at the starting point.
func (s *Solver) warmStart(l layout, st State, coeffs curve.Polynomial) []float64 {
	deriv := coeffs.Deriv()
	x0 := make([]float64, l.dim)
	x, y, psi := 0.0, 0.0, 0.0
	v, cte, epsi := st.V, st.CTE, st.EPsi
	for k := 0; k < l.n; k++ {
		x0[l.x+k] = x
		x0[l.y+k] = y
		x0[l.psi+k] = psi
		x0[l.v+k] = v
		x0[l.cte+k] = cte
		x0[l.epsi+k] = epsi

		fx := coeffs.Eval(x)
		psides := math.Atan(deriv.Eval(x))
		nx := x + v*math.Cos(psi)*s.p.Dt
		ny := y + v*math.Sin(psi)*s.p.Dt
		cte = (fx - y) + v*math.Sin(epsi)*s.p.Dt
		epsi = (psi - psides)
		x, y = nx, ny
	}
	return x0
}

func polyEval(p curve.Polynomial, x autodiff.Dual) autodiff.Dual {
	r := autodiff.Const(0)
	for i := len(p) - 1; i >= 0; i-- {
		r = r.Mul(x).AddConst(p[i])
	}
	return r
}
