// Package nlp defines the synchronous callback contract between a
// discretised optimal-control problem and a nonlinear programming solver,
// together with the one backend the module ships.
package nlp

import (
	"context"
	"fmt"
	"math"
)

// Callbacks are the pure functions of the decision vector a solver may call.
// Jacobian values are aligned with the (row, col) pairs JacobianStructure
// returns.
type Callbacks interface {
	Objective(x []float64) float64
	Gradient(x []float64) []float64
	Constraints(x []float64) []float64
	Jacobian(x []float64) []float64
	JacobianStructure() (rows, cols []int)
}

// Problem is min f(x) s.t. CL <= c(x) <= CU and XL <= x <= XU.
type Problem struct {
	N, M      int
	XL, XU    []float64
	CL, CU    []float64
	X0        []float64
	Callbacks Callbacks
}

// Validate checks that every vector has the declared size and that bounds
// are ordered.
func (p *Problem) Validate() error {
	check := func(name string, v []float64, n int) error {
		if len(v) != n {
			return fmt.Errorf("%w: %s has length %d, want %d", ErrDimension, name, len(v), n)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    []float64
		n    int
	}{{"XL", p.XL, p.N}, {"XU", p.XU, p.N}, {"X0", p.X0, p.N}, {"CL", p.CL, p.M}, {"CU", p.CU, p.M}} {
		if err := check(c.name, c.v, c.n); err != nil {
			return err
		}
	}
	for i := range p.XL {
		if p.XL[i] > p.XU[i] {
			return fmt.Errorf("%w: variable %d has lower bound %g above upper bound %g", ErrBounds, i, p.XL[i], p.XU[i])
		}
	}
	for i := range p.CL {
		if p.CL[i] > p.CU[i] {
			return fmt.Errorf("%w: constraint %d has lower bound %g above upper bound %g", ErrBounds, i, p.CL[i], p.CU[i])
		}
	}
	if p.Callbacks == nil {
		return fmt.Errorf("%w: no callbacks", ErrDimension)
	}
	return nil
}

// Options tune a backend.
type Options struct {
	// Tolerance bounds both the constraint violation and the projected
	// gradient norm at a solution.
	Tolerance     float64
	MaxIterations int
}

// DefaultOptions mirrors the settings defaults.
func DefaultOptions() Options {
	return Options{Tolerance: 1e-8, MaxIterations: 2000}
}

// Result is the raw solver output. Status is never modified after the
// backend returns it.
type Result struct {
	X      []float64
	Lambda []float64
	Status Status
}

// Solver runs one synchronous solve. The context carries logger and tracer
// only; solves are not cancelled through it.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Result, error)
	Name() string
}

// ============================================================
// Registry
// ============================================================

// BackendALM is the augmented-Lagrangian backend.
const BackendALM = "alm"

// New returns the solver registered under backend.
func New(backend string, opts Options) (Solver, error) {
	switch backend {
	case BackendALM:
		if opts.Tolerance <= 0 || math.IsNaN(opts.Tolerance) {
			opts.Tolerance = DefaultOptions().Tolerance
		}
		if opts.MaxIterations <= 0 {
			opts.MaxIterations = DefaultOptions().MaxIterations
		}
		return &alm{opts: opts}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, backend)
}

// HessianCallbacks is implemented by problems that can evaluate the lower
// triangle of the Lagrangian Hessian σ∇²f(x) + Σ λ_i ∇²c_i(x). Backends
// that use second derivatives type-assert for it.
type HessianCallbacks interface {
	Hessian(x []float64, sigma float64, lambda []float64) []float64
	HessianStructure() (rows, cols []int)
}
