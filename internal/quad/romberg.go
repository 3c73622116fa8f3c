// Package quad implements Romberg integration of scalar functions.
package quad

import (
	"errors"
	"math"
)

// ErrNotConverged is returned when the tolerance is not met within the
// maximum number of extrapolation levels. The best estimate is still
// returned alongside it.
var ErrNotConverged = errors.New("quad: romberg did not converge")

// Settings controls Romberg integration.
type Settings struct {
	// Tol and RTol are the absolute and relative tolerances on the change
	// between successive extrapolation levels.
	Tol, RTol float64
	// DivMax is the maximum extrapolation order.
	DivMax int
}

// DefaultSettings mirrors the usual Romberg defaults: both tolerances 1.48e-8
// and at most 25 levels.
func DefaultSettings() Settings { return Settings{Tol: 1.48e-8, RTol: 1.48e-8, DivMax: 25} }

// Romberg integrates f over [a, b].
func Romberg(f func(float64) float64, a, b float64, s Settings) (float64, error) {
	if s.DivMax <= 0 {
		s.DivMax = DefaultSettings().DivMax
	}
	n := 1
	width := b - a
	ordsum := difftrap(f, a, b, n)
	result := width * ordsum
	lastRow := []float64{result}
	for i := 1; i <= s.DivMax; i++ {
		n *= 2
		ordsum += difftrap(f, a, b, n)
		row := make([]float64, i+1)
		row[0] = width * ordsum / float64(n)
		for k := 0; k < i; k++ {
			row[k+1] = rombergDiff(lastRow[k], row[k], k+1)
		}
		result = row[i]
		err := math.Abs(result - lastRow[i-1])
		if err < s.Tol || err < s.RTol*math.Abs(result) {
			return result, nil
		}
		lastRow = row
	}
	return result, ErrNotConverged
}

// difftrap sums the new trapezoid points added when the panel count of the
// composite rule doubles to numtraps.
func difftrap(f func(float64) float64, a, b float64, numtraps int) float64 {
	if numtraps == 1 {
		return 0.5 * (f(a) + f(b))
	}
	numtosum := numtraps / 2
	h := (b - a) / float64(numtosum)
	lox := a + 0.5*h
	s := 0.0
	for i := 0; i < numtosum; i++ {
		s += f(lox + h*float64(i))
	}
	return s
}

// rombergDiff is one Richardson extrapolation step of order k.
func rombergDiff(b, c float64, k int) float64 {
	tmp := math.Pow(4, float64(k))
	return (tmp*c - b) / (tmp - 1)
}
