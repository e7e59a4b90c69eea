// Package curve fits and evaluates the polynomial reference path the
// optimizer tracks. Waypoints are fitted in the vehicle-local frame, so
// the value at x=0 is the cross-track error and the tangent slope at
// x=0 gives the heading error.
package curve

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateFit marks a fit that cannot be computed: too few points
// for the requested degree, or a rank-deficient/ill-conditioned system.
var ErrDegenerateFit = errors.New("curve: degenerate fit")

// Polynomial holds coefficients lowest degree first.
type Polynomial []float64

// Fit computes the least-squares polynomial of the given degree through
// (xs, ys) using a QR factorization of the Vandermonde matrix. Normal
// equations are deliberately avoided: near-collinear waypoints square
// the condition number and blow up the fit.
func Fit(xs, ys []float64, degree int) (Polynomial, error) {
	if degree < 1 {
		return nil, fmt.Errorf("curve: degree must be >= 1, got %d", degree)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("curve: mismatched point counts %d vs %d", len(xs), len(ys))
	}
	if len(xs) < degree+1 {
		return nil, fmt.Errorf("%w: need %d points for degree %d, got %d",
			ErrDegenerateFit, degree+1, degree, len(xs))
	}

	a := mat.NewDense(len(xs), degree+1, nil)
	for i, x := range xs {
		p := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, p)
			p *= x
		}
	}

	var qr mat.QR
	qr.Factorize(a)

	b := mat.NewVecDense(len(ys), nil)
	for i, y := range ys {
		b.SetVec(i, y)
	}

	var c mat.VecDense
	if err := qr.SolveVecTo(&c, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	out := make(Polynomial, degree+1)
	for i := range out {
		out[i] = c.AtVec(i)
	}
	return out, nil
}

// Eval evaluates the polynomial at x (Horner).
func (p Polynomial) Eval(x float64) float64 {
	r := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		r = r*x + p[i]
	}
	return r
}

// Deriv returns the first-derivative polynomial.
func (p Polynomial) Deriv() Polynomial {
	if len(p) < 2 {
		return Polynomial{0}
	}
	d := make(Polynomial, len(p)-1)
	for i := 1; i < len(p); i++ {
		d[i-1] = float64(i) * p[i]
	}
	return d
}
