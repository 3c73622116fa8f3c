// Package poly provides dense power-series polynomials with a linear map
// from a physical domain onto a working window, in the style of numerical
// polynomial classes: coefficients act on w = off + scl*x.
package poly

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrFit is returned when a least-squares fit cannot be computed.
var ErrFit = errors.New("poly: fit failed")

// Poly is Σ Coeffs[k]·w^k with w mapped from x by Domain -> Window.
type Poly struct {
	Coeffs []float64
	Domain [2]float64
	Window [2]float64
}

// mapParams returns off, scl such that w = off + scl*x.
func (p *Poly) mapParams() (float64, float64) {
	d0, d1 := p.Domain[0], p.Domain[1]
	w0, w1 := p.Window[0], p.Window[1]
	scl := (w1 - w0) / (d1 - d0)
	off := (w0*d1 - w1*d0) / (d1 - d0)
	return off, scl
}

// Eval evaluates p at x using Horner's scheme.
func (p *Poly) Eval(x float64) float64 {
	off, scl := p.mapParams()
	w := off + scl*x
	v := 0.0
	for k := len(p.Coeffs) - 1; k >= 0; k-- {
		v = v*w + p.Coeffs[k]
	}
	return v
}

// Deriv returns dp/dx.
func (p *Poly) Deriv() *Poly {
	_, scl := p.mapParams()
	out := &Poly{Domain: p.Domain, Window: p.Window}
	if len(p.Coeffs) <= 1 {
		out.Coeffs = []float64{0}
		return out
	}
	out.Coeffs = make([]float64, len(p.Coeffs)-1)
	for k := 1; k < len(p.Coeffs); k++ {
		out.Coeffs[k-1] = float64(k) * p.Coeffs[k] * scl
	}
	return out
}

// Integ returns the antiderivative with respect to x whose value is k where
// the window coordinate is zero.
func (p *Poly) Integ(k float64) *Poly {
	_, scl := p.mapParams()
	out := &Poly{Domain: p.Domain, Window: p.Window, Coeffs: make([]float64, len(p.Coeffs)+1)}
	out.Coeffs[0] = k
	for i, c := range p.Coeffs {
		out.Coeffs[i+1] = c / float64(i+1) / scl
	}
	return out
}

// Fit computes the least-squares polynomial of degree deg through (x, y).
// The domain is the span of x and the window is window.
func Fit(x, y []float64, deg int, window [2]float64) (*Poly, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d abscissae, %d ordinates", ErrFit, len(x), len(y))
	}
	if deg < 0 || len(x) < deg+1 {
		return nil, fmt.Errorf("%w: %d points cannot determine degree %d", ErrFit, len(x), deg)
	}
	lo, hi := x[0], x[0]
	for _, v := range x {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return nil, fmt.Errorf("%w: degenerate domain", ErrFit)
	}
	p := &Poly{Domain: [2]float64{lo, hi}, Window: window}
	off, scl := p.mapParams()

	a := mat.NewDense(len(x), deg+1, nil)
	for i, v := range x {
		w := off + scl*v
		pw := 1.0
		for k := 0; k <= deg; k++ {
			a.Set(i, k, pw)
			pw *= w
		}
	}
	var c mat.VecDense
	if err := c.SolveVec(a, mat.NewVecDense(len(y), append([]float64(nil), y...))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFit, err)
	}
	p.Coeffs = make([]float64, deg+1)
	for k := range p.Coeffs {
		p.Coeffs[k] = c.AtVec(k)
	}
	return p, nil
}
