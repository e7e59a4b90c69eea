package autodiff

import "math"

// Dual is a forward-mode dual number: a value plus its derivatives with
// respect to every seeded variable at once. Carrying the full seed
// vector lets one evaluation of the horizon model produce the whole
// gradient; the alternative of re-evaluating the model once per
// coordinate is far too slow against the control cadence. A nil Dv is
// the zero derivative, so constants cost nothing.
type Dual struct {
	Re float64   // value
	Dv []float64 // derivative per seeded variable; nil means all zero
}

// Const lifts a plain value (zero derivative).
func Const(v float64) Dual { return Dual{Re: v} }

// Var lifts a single seeded variable (unit derivative).
func Var(v float64) Dual { return Dual{Re: v, Dv: []float64{1}} }

// Seed lifts x with z[i] seeded as the i-th variable.
func Seed(x []float64) []Dual {
	z := make([]Dual, len(x))
	for i, v := range x {
		dv := make([]float64, len(x))
		dv[i] = 1
		z[i] = Dual{Re: v, Dv: dv}
	}
	return z
}

// Deriv returns the derivative with respect to seeded variable i.
func (a Dual) Deriv(i int) float64 {
	if i < len(a.Dv) {
		return a.Dv[i]
	}
	return 0
}

func (a Dual) Add(b Dual) Dual { return Dual{a.Re + b.Re, lincomb(1, a.Dv, 1, b.Dv)} }
func (a Dual) Sub(b Dual) Dual { return Dual{a.Re - b.Re, lincomb(1, a.Dv, -1, b.Dv)} }

func (a Dual) Mul(b Dual) Dual {
	return Dual{a.Re * b.Re, lincomb(b.Re, a.Dv, a.Re, b.Dv)}
}

func (a Dual) Div(b Dual) Dual {
	inv := 1 / b.Re
	return Dual{a.Re * inv, lincomb(inv, a.Dv, -a.Re*inv*inv, b.Dv)}
}

func (a Dual) Neg() Dual               { return Dual{-a.Re, scaled(-1, a.Dv)} }
func (a Dual) Scale(c float64) Dual    { return Dual{c * a.Re, scaled(c, a.Dv)} }
func (a Dual) AddConst(c float64) Dual { return Dual{a.Re + c, a.Dv} }
func (a Dual) SubConst(c float64) Dual { return Dual{a.Re - c, a.Dv} }

// Sqr is a*a without the duplicated derivative work of Mul.
func (a Dual) Sqr() Dual { return Dual{a.Re * a.Re, scaled(2*a.Re, a.Dv)} }

func (a Dual) Sin() Dual { return Dual{math.Sin(a.Re), scaled(math.Cos(a.Re), a.Dv)} }
func (a Dual) Cos() Dual { return Dual{math.Cos(a.Re), scaled(-math.Sin(a.Re), a.Dv)} }

func (a Dual) Atan() Dual {
	return Dual{math.Atan(a.Re), scaled(1/(1+a.Re*a.Re), a.Dv)}
}

func (a Dual) Tanh() Dual {
	t := math.Tanh(a.Re)
	return Dual{t, scaled(1-t*t, a.Dv)}
}

// lincomb returns p*u + q*w, treating nil as zero. Inputs are never
// written through; AddConst and friends may alias their Dv.
func lincomb(p float64, u []float64, q float64, w []float64) []float64 {
	if u == nil && w == nil {
		return nil
	}
	n := len(u)
	if len(w) > n {
		n = len(w)
	}
	out := make([]float64, n)
	for i, v := range u {
		out[i] = p * v
	}
	for i, v := range w {
		out[i] += q * v
	}
	return out
}

func scaled(c float64, v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = c * x
	}
	return out
}

// Gradient fills grad with df/dx at x in a single batched sweep: every
// coordinate is seeded up front and f is evaluated exactly once.
func Gradient(grad []float64, f func(x []Dual) Dual, x []float64) {
	r := f(Seed(x))
	for i := range grad {
		grad[i] = r.Deriv(i)
	}
}

// Value evaluates f at x with no seeds.
func Value(f func(x []Dual) Dual, x []float64) float64 {
	z := make([]Dual, len(x))
	for i, v := range x {
		z[i] = Const(v)
	}
	return f(z).Re
}
