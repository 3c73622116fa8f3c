package ocp

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/njchilds90/gocollo/config"
	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/internal/telemetry"
	"github.com/njchilds90/gocollo/iteration"
	"github.com/njchilds90/gocollo/mesh"
	"github.com/njchilds90/gocollo/nlp"
)

// Refiner proposes the next mesh from a solution's mesh error. Returning a
// nil mesh stops the loop.
type Refiner interface {
	Refine(ctx context.Context, current *mesh.Mesh, sol *iteration.Solution) (*mesh.Mesh, error)
}

// NoRefinement never proposes a new mesh.
type NoRefinement struct{}

// Refine always returns nil.
func (NoRefinement) Refine(context.Context, *mesh.Mesh, *iteration.Solution) (*mesh.Mesh, error) {
	return nil, nil
}

// Result records every mesh iteration of a solve.
type Result struct {
	Model     *Model
	Meshes    []*mesh.Mesh
	Solutions []*iteration.Solution
	// Converged is set when the last solution met the mesh tolerance.
	Converged bool
}

// Final is the last solution, or nil if nothing was solved.
func (r *Result) Final() *iteration.Solution {
	if len(r.Solutions) == 0 {
		return nil
	}
	return r.Solutions[len(r.Solutions)-1]
}

// Objective is the final objective in the problem's own sense.
func (r *Result) Objective() float64 {
	if f := r.Final(); f != nil {
		return r.Model.Sense * f.Status.Objective
	}
	return 0
}

// tolerance for the pre-solve derivative check.
const checkTolerance = 1e-4

// Solve compiles p and solves it on the default uniform mesh, asking
// refiner for a new mesh until the mesh error meets the tolerance. A nil
// refiner means NoRefinement. Solver failures end the loop and are left in
// the final solution's status.
func Solve(ctx context.Context, p *Problem, s config.Settings, refiner Refiner) (res *Result, err error) {
	ctx, span := telemetry.Start(ctx, "ocp.Solve", attribute.String("problem", p.Name))
	defer func() { telemetry.End(span, err) }()
	logger := ctxlog.FromContext(ctx)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	if refiner == nil {
		refiner = NoRefinement{}
	}
	solver, err := nlp.New(s.NLPBackend, nlp.Options{Tolerance: s.NLPTolerance, MaxIterations: s.MaxNLPIterations})
	if err != nil {
		return nil, err
	}
	model, err := Compile(ctx, p, s)
	if err != nil {
		return nil, err
	}
	msh, err := mesh.NewUniform(s.DefaultSegments, s.DefaultPoints)
	if err != nil {
		return nil, err
	}

	res = &Result{Model: model}
	guess := model.Guess
	for number := 1; number <= s.MaxMeshIterations; number++ {
		if err := checkPoints(msh, s); err != nil {
			return res, err
		}
		it, err := model.NewIteration(ctx, msh, number, guess)
		if err != nil {
			return res, err
		}
		if s.CheckNLPFunctions {
			checkDerivatives(ctx, it)
		}
		sol, err := it.Solve(ctx, solver)
		if err != nil {
			return res, err
		}
		res.Meshes = append(res.Meshes, msh)
		res.Solutions = append(res.Solutions, sol)

		if !sol.Status.Success() {
			logger.Warn("NLP solve failed, stopping mesh iterations.",
				"number", number, "status", sol.Status.Code.String(), "message", sol.Status.Message)
			return res, nil
		}
		meshErr := sol.MaxMeshError()
		logger.Info("Mesh iteration complete.",
			"number", number, "nodes", msh.N(), "objective", model.Sense*sol.Status.Objective,
			"max_mesh_error", meshErr)
		if meshErr <= s.MeshTolerance {
			res.Converged = true
			return res, nil
		}
		next, err := refiner.Refine(ctx, msh, sol)
		if err != nil {
			return res, fmt.Errorf("refine mesh %d: %w", number, err)
		}
		if next == nil {
			return res, nil
		}
		msh, guess = next, GuessFrom(sol)
	}
	logger.Warn("Mesh tolerance not met.", "max_mesh_iterations", s.MaxMeshIterations)
	return res, nil
}

func checkPoints(m *mesh.Mesh, s config.Settings) error {
	for k, n := range m.SegmentPoints() {
		if n < s.CollocationPointsMin || n > s.CollocationPointsMax {
			return fmt.Errorf("%w: segment %d has %d points, allowed %d to %d",
				mesh.ErrCollocationPoints, k, n, s.CollocationPointsMin, s.CollocationPointsMax)
		}
	}
	return nil
}

// checkDerivatives compares the analytic callbacks with finite differences
// at the initial point and logs the outcome.
func checkDerivatives(ctx context.Context, it *iteration.Iteration) {
	logger := ctxlog.FromContext(ctx)
	lambda := make([]float64, it.Layout.NumC())
	for k := range lambda {
		lambda[k] = 1
	}
	rep := it.CheckDerivatives(it.X0, 1, lambda)
	attrs := []any{
		"number", it.Number,
		"gradient_error", rep.GradientError,
		"jacobian_error", rep.JacobianError,
		"hessian_error", rep.HessianError,
		"undeclared_jacobian", rep.UndeclaredJacobian,
		"undeclared_hessian", rep.UndeclaredHessian,
	}
	if rep.OK(checkTolerance) {
		logger.Debug("NLP functions checked.", attrs...)
		return
	}
	logger.Warn("NLP function check failed.", attrs...)
}

// GuessFrom turns a solution into the guess for the next mesh.
func GuessFrom(sol *iteration.Solution) iteration.Guess {
	return iteration.Guess{
		Time:      sol.Time(),
		State:     sol.State(),
		Control:   sol.Control(),
		Integral:  sol.Integral(),
		Parameter: sol.Parameter(),
	}
}
