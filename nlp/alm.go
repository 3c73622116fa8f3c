package nlp

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/internal/telemetry"
)

const (
	almOuterMax    = 50
	almPenaltyInit = 10.0
	almPenaltyMax  = 1e12
	almPenaltyGrow = 10.0
	// almDecrease is the fraction the violation must shrink by between
	// outer iterations before the penalty is held.
	almDecrease = 0.25

	spgMemory   = 10
	spgArmijo   = 1e-4
	spgStepMin  = 1e-10
	spgStepMax  = 1e10
	spgMinAlpha = 1e-12
)

// alm minimises the Powell-Hestenes-Rockafellar augmented Lagrangian of the
// ranged constraints over the variable box, solving each subproblem with a
// nonmonotone spectral projected gradient method.
type alm struct {
	opts Options
}

func (a *alm) Name() string { return BackendALM }

// almState holds the subproblem data of one solve.
type almState struct {
	p      *Problem
	rows   []int
	cols   []int
	lambda []float64
	mu     float64
}

func (s *almState) project(x []float64) {
	for i := range x {
		x[i] = math.Min(math.Max(x[i], s.p.XL[i]), s.p.XU[i])
	}
}

// shifted returns c + λ/μ minus its projection onto [CL, CU].
func (s *almState) shifted(c []float64) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		w := v + s.lambda[i]/s.mu
		out[i] = w - math.Min(math.Max(w, s.p.CL[i]), s.p.CU[i])
	}
	return out
}

func (s *almState) merit(x []float64) float64 {
	r := s.shifted(s.p.Callbacks.Constraints(x))
	return s.p.Callbacks.Objective(x) + s.mu/2*floats.Dot(r, r) - floats.Dot(s.lambda, s.lambda)/(2*s.mu)
}

func (s *almState) gradient(x []float64) []float64 {
	r := s.shifted(s.p.Callbacks.Constraints(x))
	g := append([]float64(nil), s.p.Callbacks.Gradient(x)...)
	jac := s.p.Callbacks.Jacobian(x)
	for k, v := range jac {
		if r[s.rows[k]] != 0 {
			g[s.cols[k]] += s.mu * r[s.rows[k]] * v
		}
	}
	return g
}

// projectedStep returns P(x - t·g) - x.
func (s *almState) projectedStep(x, g []float64, t float64) []float64 {
	d := make([]float64, len(x))
	floats.AddScaledTo(d, x, -t, g)
	s.project(d)
	floats.Sub(d, x)
	return d
}

func violation(c, cl, cu []float64) float64 {
	v := 0.0
	for i := range c {
		v = math.Max(v, math.Max(cl[i]-c[i], c[i]-cu[i]))
	}
	return v
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Solve runs the outer multiplier loop.
func (a *alm) Solve(ctx context.Context, p *Problem) (res *Result, err error) {
	ctx, span := telemetry.Start(ctx, "nlp.Solve")
	defer func() { telemetry.End(span, err) }()
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &almState{p: p, lambda: make([]float64, p.M), mu: almPenaltyInit}
	s.rows, s.cols = p.Callbacks.JacobianStructure()
	if len(s.rows) != len(s.cols) {
		return nil, fmt.Errorf("%w: jacobian structure has %d rows and %d cols", ErrDimension, len(s.rows), len(s.cols))
	}

	x := append([]float64(nil), p.X0...)
	s.project(x)
	eps := 1e-2
	prevViol := math.Inf(1)
	total := 0
	status := Status{Code: MaxIterationsExceeded}
	searchFailed := false
	optimality := math.Inf(1)

outer:
	for k := 0; k < almOuterMax; k++ {
		var inner int
		optimality, inner, searchFailed = s.minimise(x, math.Max(eps, a.opts.Tolerance), a.opts.MaxIterations-total)
		total += inner

		c := p.Callbacks.Constraints(x)
		if !finite(c) || !finite(x) {
			status.Code = NumericalError
			status.Message = "non-finite constraint values"
			break
		}
		viol := violation(c, p.CL, p.CU)
		r := s.shifted(c)
		for i := range s.lambda {
			s.lambda[i] = s.mu * r[i]
		}
		logger.Debug("Augmented Lagrangian iteration.",
			"outer", k, "inner", inner, "violation", viol, "optimality", optimality, "penalty", s.mu)

		switch {
		case viol <= a.opts.Tolerance && optimality <= a.opts.Tolerance:
			status.Code = Solved
			status.Message = "converged"
			break outer
		case total >= a.opts.MaxIterations:
			status.Code = MaxIterationsExceeded
			status.Message = fmt.Sprintf("iteration limit %d reached", a.opts.MaxIterations)
			break outer
		case viol > almDecrease*prevViol:
			if s.mu >= almPenaltyMax {
				status.Code = Infeasible
				status.Message = fmt.Sprintf("constraint violation %g at maximum penalty", viol)
				break outer
			}
			s.mu = math.Min(s.mu*almPenaltyGrow, almPenaltyMax)
		}
		prevViol = viol
		eps = math.Max(a.opts.Tolerance, eps*0.1)
	}
	if status.Code == MaxIterationsExceeded && status.Message == "" {
		if searchFailed {
			status.Code = SearchFailed
			status.Message = "line search could not reduce the merit function"
		} else {
			status.Message = fmt.Sprintf("outer iteration limit %d reached", almOuterMax)
		}
	}

	status.Iterations = total
	status.Objective = p.Callbacks.Objective(x)
	status.Violation = violation(p.Callbacks.Constraints(x), p.CL, p.CU)
	status.Optimality = optimality
	telemetry.ObserveSolve(a.Name(), status.Code.String())
	logger.Info("NLP solve finished.",
		"status", status.Code.String(), "iterations", total, "objective", status.Objective,
		"violation", status.Violation, "duration", time.Since(start))
	return &Result{X: x, Lambda: append([]float64(nil), s.lambda...), Status: status}, nil
}

// minimise runs SPG on the current subproblem in place. It returns the
// final projected gradient norm, the iterations used, and whether it
// stopped on a failed line search.
func (s *almState) minimise(x []float64, eps float64, budget int) (float64, int, bool) {
	f := s.merit(x)
	g := s.gradient(x)
	hist := []float64{f}

	pg := floats.Norm(s.projectedStep(x, g, 1), math.Inf(1))
	alpha := 1.0
	if pg > 0 {
		alpha = math.Min(spgStepMax, math.Max(spgStepMin, 1/pg))
	}
	it := 0
	for ; it < budget; it++ {
		if pg <= eps {
			return pg, it, false
		}
		d := s.projectedStep(x, g, alpha)
		gd := floats.Dot(g, d)
		fmax := floats.Max(hist[max(0, len(hist)-spgMemory):])

		xn := make([]float64, len(x))
		lambda := 1.0
		var fn float64
		for {
			floats.AddScaledTo(xn, x, lambda, d)
			fn = s.merit(xn)
			if fn <= fmax+spgArmijo*lambda*gd {
				break
			}
			if lambda < spgMinAlpha || math.IsNaN(fn) {
				return pg, it, true
			}
			// Safeguarded quadratic interpolation.
			lt := -0.5 * lambda * lambda * gd / (fn - f - lambda*gd)
			if lt >= 0.1*lambda && lt <= 0.9*lambda {
				lambda = lt
			} else {
				lambda /= 2
			}
		}
		gn := s.gradient(xn)
		step := make([]float64, len(x))
		floats.SubTo(step, xn, x)
		dg := make([]float64, len(x))
		floats.SubTo(dg, gn, g)
		if sy := floats.Dot(step, dg); sy > 0 {
			alpha = math.Min(spgStepMax, math.Max(spgStepMin, floats.Dot(step, step)/sy))
		} else {
			alpha = spgStepMax
		}
		copy(x, xn)
		f, g = fn, gn
		hist = append(hist, f)
		pg = floats.Norm(s.projectedStep(x, g, 1), math.Inf(1))
	}
	return pg, it, false
}
