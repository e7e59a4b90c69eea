// Package nlp solves smooth equality-constrained minimization problems
// with simple bounds. The method is an augmented Lagrangian: bounds are
// eliminated with a tanh change of variables so every iterate respects
// them strictly, equality constraints enter the inner objective through
// multipliers plus a quadratic penalty, and each inner problem is
// minimized with gonum's L-BFGS. Derivatives come from the problem's
// dual-number evaluation, never from a hand-derived Jacobian.
package nlp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"mpc-drive-core/autodiff"
)

var (
	// ErrNoConvergence means the iteration budget ran out before a
	// feasible stationary point was certified.
	ErrNoConvergence = errors.New("nlp: no convergence within budget")
	// ErrInfeasible means the penalty hit its cap while the constraint
	// violation stagnated above tolerance.
	ErrInfeasible = errors.New("nlp: constraints appear infeasible")
)

// Problem is an equality-constrained NLP. Eval must compute the
// objective and all equality constraint residuals (feasible when zero)
// in dual arithmetic; it is called once per directional derivative and
// must not keep state across calls.
type Problem struct {
	Dim   int
	NumEq int
	Eval  func(x []autodiff.Dual) (obj autodiff.Dual, eq []autodiff.Dual)

	// Lower/Upper bound each variable; use ±Inf for free variables.
	// One-sided bounds are not supported.
	Lower, Upper []float64
}

// Settings bound the solve. Zero iteration budgets are honored: the
// solver reports ErrNoConvergence without attempting a step.
type Settings struct {
	OuterIter      int
	InnerIter      int
	ConstraintTol  float64
	GradientTol    float64
	InitialPenalty float64
	PenaltyGrowth  float64
	MaxPenalty     float64
}

// DefaultSettings returns budgets that converge comfortably on
// well-scaled problems of a few hundred variables. The inner budget is
// deliberately generous: L-BFGS needs on the order of a thousand
// iterations per outer step once the penalty grows, and an inner solve
// that stops short never certifies stationarity.
func DefaultSettings() Settings {
	return Settings{
		OuterIter:      12,
		InnerIter:      2000,
		ConstraintTol:  1e-6,
		GradientTol:    1e-5,
		InitialPenalty: 10,
		PenaltyGrowth:  10,
		MaxPenalty:     1e9,
	}
}

// Result is the best point seen, returned even alongside an error so
// the caller can inspect how far the solve got.
type Result struct {
	X            []float64
	Objective    float64
	MaxViolation float64
	OuterIter    int
}

// Solve minimizes p starting from x0. x0 is projected into the bounds.
func Solve(p Problem, x0 []float64, s Settings) (Result, error) {
	if err := checkProblem(p, x0); err != nil {
		return Result{}, err
	}

	res := Result{X: append([]float64(nil), x0...)}
	res.Objective, res.MaxViolation = evalPoint(p, res.X)
	if s.OuterIter <= 0 || s.InnerIter <= 0 {
		return res, ErrNoConvergence
	}

	u := toUnbounded(p, x0)
	lambda := make([]float64, p.NumEq)
	mu := s.InitialPenalty
	prevViol := math.Inf(1)

	for outer := 0; outer < s.OuterIter; outer++ {
		al := func(z []autodiff.Dual) autodiff.Dual {
			x := fromUnboundedDual(p, z)
			obj, eq := p.Eval(x)
			for i, c := range eq {
				obj = obj.Add(c.Scale(lambda[i])).Add(c.Sqr().Scale(mu / 2))
			}
			return obj
		}

		inner := optimize.Problem{
			Func: func(v []float64) float64 { return autodiff.Value(al, v) },
			Grad: func(grad, v []float64) { autodiff.Gradient(grad, al, v) },
		}
		settings := &optimize.Settings{
			GradientThreshold: s.GradientTol,
			MajorIterations:   s.InnerIter,
		}
		r, innerErr := optimize.Minimize(inner, u, settings, &optimize.LBFGS{})
		if r != nil {
			u = r.X
		}

		x := fromUnbounded(p, u)
		obj, eq := evalConstraints(p, x)
		viol := maxAbs(eq)

		if viol < res.MaxViolation || (viol <= s.ConstraintTol && obj < res.Objective) {
			copy(res.X, x)
			res.Objective = obj
			res.MaxViolation = viol
		}
		res.OuterIter = outer + 1

		// Stationarity: the inner solve hit the gradient threshold,
		// stopped making progress, or the line search gave up (the
		// usual floating-point endgame of L-BFGS).
		stationary := innerErr != nil ||
			(r != nil && (r.Status == optimize.GradientThreshold ||
				r.Status == optimize.FunctionConvergence))
		if viol <= s.ConstraintTol && stationary {
			copy(res.X, x)
			res.Objective = obj
			res.MaxViolation = viol
			return res, nil
		}

		for i, c := range eq {
			lambda[i] += mu * c
		}
		if viol > 0.25*prevViol {
			mu *= s.PenaltyGrowth
			if mu > s.MaxPenalty {
				return res, ErrInfeasible
			}
		}
		prevViol = viol
	}
	return res, ErrNoConvergence
}

func checkProblem(p Problem, x0 []float64) error {
	if p.Dim <= 0 || p.Eval == nil {
		return fmt.Errorf("nlp: malformed problem")
	}
	if len(x0) != p.Dim || len(p.Lower) != p.Dim || len(p.Upper) != p.Dim {
		return fmt.Errorf("nlp: dimension mismatch: dim=%d x0=%d lower=%d upper=%d",
			p.Dim, len(x0), len(p.Lower), len(p.Upper))
	}
	for i := range p.Lower {
		lo, hi := p.Lower[i], p.Upper[i]
		if math.IsInf(lo, -1) != math.IsInf(hi, 1) {
			return fmt.Errorf("nlp: one-sided bound on variable %d", i)
		}
		if !math.IsInf(lo, -1) && lo >= hi {
			return fmt.Errorf("nlp: empty bound [%g, %g] on variable %d", lo, hi, i)
		}
	}
	return nil
}

// bounded variables are optimized in a space where
// x = center + radius*tanh(u); free variables pass through.

func toUnbounded(p Problem, x []float64) []float64 {
	u := make([]float64, p.Dim)
	for i, v := range x {
		lo, hi := p.Lower[i], p.Upper[i]
		if math.IsInf(lo, -1) {
			u[i] = v
			continue
		}
		c, r := (lo+hi)/2, (hi-lo)/2
		t := (v - c) / r
		// Keep the warm start off the asymptotes.
		if t > 0.999 {
			t = 0.999
		} else if t < -0.999 {
			t = -0.999
		}
		u[i] = math.Atanh(t)
	}
	return u
}

func fromUnbounded(p Problem, u []float64) []float64 {
	x := make([]float64, p.Dim)
	for i, v := range u {
		lo, hi := p.Lower[i], p.Upper[i]
		if math.IsInf(lo, -1) {
			x[i] = v
			continue
		}
		c, r := (lo+hi)/2, (hi-lo)/2
		x[i] = c + r*math.Tanh(v)
	}
	return x
}

func fromUnboundedDual(p Problem, u []autodiff.Dual) []autodiff.Dual {
	x := make([]autodiff.Dual, p.Dim)
	for i, v := range u {
		lo, hi := p.Lower[i], p.Upper[i]
		if math.IsInf(lo, -1) {
			x[i] = v
			continue
		}
		c, r := (lo+hi)/2, (hi-lo)/2
		x[i] = v.Tanh().Scale(r).AddConst(c)
	}
	return x
}

func evalConstraints(p Problem, x []float64) (float64, []float64) {
	z := make([]autodiff.Dual, len(x))
	for i, v := range x {
		z[i] = autodiff.Const(v)
	}
	obj, eq := p.Eval(z)
	out := make([]float64, len(eq))
	for i, c := range eq {
		out[i] = c.Re
	}
	return obj.Re, out
}

func evalPoint(p Problem, x []float64) (obj, viol float64) {
	o, eq := evalConstraints(p, x)
	return o, maxAbs(eq)
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
