package mpc

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"mpc-drive-core/autodiff"
	"mpc-drive-core/curve"
	"mpc-drive-core/nlp"
)

func testParams() Params {
	return Params{
		N:           10,
		Dt:          0.1,
		Lf:          2.67,
		SteerBound:  25 * math.Pi / 180,
		TargetSpeed: 17.88,
		Weights: Weights{
			CTE:       900,
			EPsi:      900,
			Speed:     1,
			Steer:     25,
			Accel:     25,
			SteerRate: 2500,
			AccelRate: 250,
		},
		Solver: nlp.DefaultSettings(),
	}
}

var straight = curve.Polynomial{0, 0, 0, 0}

// On a straight reference with the car exactly on the path, the plan is
// to hold the wheel and accelerate toward the target speed.
func TestStraightPathScenario(t *testing.T) {
	s, err := NewSolver(testParams())
	require.NoError(t, err)

	sol, err := s.Solve(State{V: 10, CTE: 0, EPsi: 0}, straight)
	require.NoError(t, err)

	assert.InDelta(t, 0, sol.Steering, 0.02, "steering should stay near zero on path")
	assert.Greater(t, sol.Throttle, 0.0, "below target speed, throttle must push forward")
	require.Len(t, sol.X, 10)
	require.Len(t, sol.Y, 10)
	for k := 1; k < len(sol.X); k++ {
		assert.GreaterOrEqual(t, sol.X[k], sol.X[k-1]-1e-9, "x must be monotone at step %d", k)
	}
	for k, y := range sol.Y {
		assert.InDelta(t, 0, y, 0.05, "y should stay flat at step %d", k)
	}
}

// Reference curve a constant 1 m to the left, car at the origin: the
// returned steering must be nonzero with the sign that closes the
// offset (negative in the optimizer's convention, i.e. heading rate
// toward +y), and within the physical bound.
func TestOffsetScenario(t *testing.T) {
	p := testParams()
	s, err := NewSolver(p)
	require.NoError(t, err)

	offset := curve.Polynomial{1, 0, 0, 0}
	sol, err := s.Solve(State{V: p.TargetSpeed, CTE: 1, EPsi: 0}, offset)
	require.NoError(t, err)

	assert.Less(t, sol.Steering, -1e-4, "steering must correct toward the reference")
	assert.LessOrEqual(t, math.Abs(sol.Steering), p.SteerBound+1e-9)
}

// Timestep 0 of the solved trajectory is bound to the supplied state by
// hard equality constraints, not by cost.
func TestInitialConditionEquality(t *testing.T) {
	p := testParams()
	s, err := NewSolver(p)
	require.NoError(t, err)

	st := State{V: 12.5, CTE: 0.4, EPsi: -0.05}
	coeffs := curve.Polynomial{0.4, -0.05, 0.002, 0.0001}

	l := newLayout(p.N)
	prob := nlp.Problem{Dim: l.dim, NumEq: l.numEq, Eval: s.eval(l, st, coeffs)}
	prob.Lower, prob.Upper = s.bounds(l)

	res, err := nlp.Solve(prob, s.warmStart(l, st, coeffs), p.Solver)
	require.NoError(t, err)

	tol := 1e-4
	assert.InDelta(t, 0, res.X[l.x], tol)
	assert.InDelta(t, 0, res.X[l.y], tol)
	assert.InDelta(t, 0, res.X[l.psi], tol)
	assert.InDelta(t, st.V, res.X[l.v], tol)
	assert.InDelta(t, st.CTE, res.X[l.cte], tol)
	assert.InDelta(t, st.EPsi, res.X[l.epsi], tol)
}

func TestSteeringStaysWithinBound(t *testing.T) {
	p := testParams()
	s, err := NewSolver(p)
	require.NoError(t, err)

	// A hard left reference to push the wheel against its limit.
	sharp := curve.Polynomial{3, 0.8, 0.05, 0}
	sol, err := s.Solve(State{V: p.TargetSpeed, CTE: 3, EPsi: -math.Atan(0.8)}, sharp)
	require.NoError(t, err)

	assert.LessOrEqual(t, math.Abs(sol.Steering), p.SteerBound+1e-9)
	assert.NotZero(t, sol.Steering)
}

func TestZeroBudgetNoConvergence(t *testing.T) {
	p := testParams()
	p.Solver.OuterIter = 0
	s, err := NewSolver(p)
	require.NoError(t, err)

	_, err = s.Solve(State{V: 10}, straight)
	require.Error(t, err)
	assert.True(t, errors.Is(err, nlp.ErrNoConvergence), "got %v", err)
}

func TestParamsValidation(t *testing.T) {
	p := testParams()
	p.N = 1
	assert.Error(t, p.Validate())

	p = testParams()
	p.Weights.CTE = -1
	assert.Error(t, p.Validate())

	p = testParams()
	p.SteerBound = 0
	assert.Error(t, p.Validate())

	assert.NoError(t, testParams().Validate())
}

// The dual-number gradient of the full objective-plus-penalty must
// match finite differences; a mismatch between the constraint
// derivatives and the dynamics silently produces a wrong optimum.
func TestGradientMatchesFiniteDifference(t *testing.T) {
	p := testParams()
	s, err := NewSolver(p)
	require.NoError(t, err)

	st := State{V: 11, CTE: 0.6, EPsi: 0.1}
	coeffs := curve.Polynomial{0.6, 0.1, -0.01, 0.001}
	l := newLayout(p.N)
	eval := s.eval(l, st, coeffs)

	merit := func(z []autodiff.Dual) autodiff.Dual {
		obj, eq := eval(z)
		for _, c := range eq {
			obj = obj.Add(c.Sqr())
		}
		return obj
	}

	x := s.warmStart(l, st, coeffs)
	// Perturb off the constraint manifold so constraint gradients are
	// exercised too.
	for i := range x {
		x[i] += 0.01 * math.Sin(float64(3*i+1))
	}

	grad := make([]float64, l.dim)
	autodiff.Gradient(grad, merit, x)
	ref := fd.Gradient(nil, func(v []float64) float64 { return autodiff.Value(merit, v) }, x, nil)

	for i := range grad {
		scale := math.Max(1, math.Abs(ref[i]))
		assert.InDelta(t, ref[i], grad[i], 1e-4*scale, "component %d", i)
	}
}

func TestSolveRejectsEmptyCurve(t *testing.T) {
	s, err := NewSolver(testParams())
	require.NoError(t, err)
	_, err = s.Solve(State{V: 10}, nil)
	assert.Error(t, err)
}
