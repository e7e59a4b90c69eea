package nlp

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpc-drive-core/autodiff"
)

func free(n int) (lo, hi []float64) {
	lo = make([]float64, n)
	hi = make([]float64, n)
	for i := range lo {
		lo[i] = math.Inf(-1)
		hi[i] = math.Inf(1)
	}
	return lo, hi
}

// min (x-1)^2 + (y-2)^2 subject to x+y=1: optimum at (0, 1).
func TestEqualityConstrainedQuadratic(t *testing.T) {
	lo, hi := free(2)
	p := Problem{
		Dim:   2,
		NumEq: 1,
		Eval: func(z []autodiff.Dual) (autodiff.Dual, []autodiff.Dual) {
			obj := z[0].SubConst(1).Sqr().Add(z[1].SubConst(2).Sqr())
			eq := []autodiff.Dual{z[0].Add(z[1]).SubConst(1)}
			return obj, eq
		},
		Lower: lo,
		Upper: hi,
	}

	res, err := Solve(p, []float64{0.5, 0.5}, DefaultSettings())
	require.NoError(t, err)
	assert.InDelta(t, 0, res.X[0], 1e-4)
	assert.InDelta(t, 1, res.X[1], 1e-4)
	assert.Less(t, res.MaxViolation, 1e-6+1e-12)
}

// min (x-2)^2 with x in [-1, 1]: optimum pinned at the upper bound.
func TestActiveBound(t *testing.T) {
	p := Problem{
		Dim:   1,
		NumEq: 0,
		Eval: func(z []autodiff.Dual) (autodiff.Dual, []autodiff.Dual) {
			return z[0].SubConst(2).Sqr(), nil
		},
		Lower: []float64{-1},
		Upper: []float64{1},
	}

	res, err := Solve(p, []float64{0}, DefaultSettings())
	require.NoError(t, err)
	assert.InDelta(t, 1, res.X[0], 1e-3)
	assert.LessOrEqual(t, res.X[0], 1.0)
}

func TestZeroBudgetReportsNoConvergence(t *testing.T) {
	lo, hi := free(1)
	p := Problem{
		Dim:   1,
		NumEq: 1,
		Eval: func(z []autodiff.Dual) (autodiff.Dual, []autodiff.Dual) {
			return z[0].Sqr(), []autodiff.Dual{z[0].SubConst(3)}
		},
		Lower: lo,
		Upper: hi,
	}

	s := DefaultSettings()
	s.OuterIter = 0
	res, err := Solve(p, []float64{0}, s)
	require.ErrorIs(t, err, ErrNoConvergence)
	// Best point is still reported for inspection.
	assert.Len(t, res.X, 1)
}

func TestMalformedProblems(t *testing.T) {
	eval := func(z []autodiff.Dual) (autodiff.Dual, []autodiff.Dual) {
		return z[0], nil
	}

	_, err := Solve(Problem{Dim: 1, Eval: eval,
		Lower: []float64{0}, Upper: []float64{0, 1}}, []float64{0}, DefaultSettings())
	assert.Error(t, err, "dimension mismatch")

	_, err = Solve(Problem{Dim: 1, Eval: eval,
		Lower: []float64{0}, Upper: []float64{math.Inf(1)}}, []float64{0}, DefaultSettings())
	assert.Error(t, err, "one-sided bound")

	_, err = Solve(Problem{Dim: 1, Eval: eval,
		Lower: []float64{2}, Upper: []float64{1}}, []float64{0}, DefaultSettings())
	assert.Error(t, err, "empty bound interval")
}

// Infeasible constraints (x=0 and x=1) must not be reported as solved.
func TestInfeasibleConstraints(t *testing.T) {
	lo, hi := free(1)
	p := Problem{
		Dim:   1,
		NumEq: 2,
		Eval: func(z []autodiff.Dual) (autodiff.Dual, []autodiff.Dual) {
			return z[0].Sqr(), []autodiff.Dual{z[0], z[0].SubConst(1)}
		},
		Lower: lo,
		Upper: hi,
	}

	_, err := Solve(p, []float64{0.5}, DefaultSettings())
	require.Error(t, err)
	ok := errors.Is(err, ErrInfeasible) || errors.Is(err, ErrNoConvergence)
	assert.True(t, ok, "expected infeasible or no-convergence, got %v", err)
}
