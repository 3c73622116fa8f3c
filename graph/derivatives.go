package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/internal/telemetry"
	"github.com/njchilds90/gocollo/symbolic"
)

// Derivatives is the record of every function the NLP callbacks evaluate.
// Gradients and Jacobians have one row per function entry and one column per
// variable of the function's domain. Hessians are lower triangular.
type Derivatives struct {
	TimeNormalisation         Function
	TimeNormalisationGradient Function

	Objective         Function
	ObjectiveGradient Function

	// Continuous stacks dynamics, path constraints and integrands.
	Continuous         Function
	ContinuousJacobian Function

	// Endpoint stacks state endpoint and user endpoint constraints.
	Endpoint         Function
	EndpointJacobian Function

	ObjectiveHessian Function
	DefectHessian    Function
	PathHessian      Function
	IntegralHessian  Function
	EndpointHessian  Function
}

// form interns exprs as a rows×cols function and differentiates it order
// times with respect to wrt. It returns the function and its last
// derivative; Hessians (order 2) are made lower triangular.
func (g *ExpressionGraph) form(ctx context.Context, name, msg string, exprs []symbolic.Expr, rows, cols int, wrt []NodeID, order int) (Function, Function, error) {
	start := time.Now()
	defer telemetry.ObserveDerivative(name, start)

	base, err := g.initialiseFunction(name, exprs, rows, cols)
	if err != nil {
		return Function{}, Function{}, fmt.Errorf("%s: %w", name, err)
	}
	cur := base
	for k := 1; k <= order; k++ {
		m := g.differentiate(cur, wrt)
		if k == 2 {
			m = m.LowerTriangular()
		}
		cur, err = g.initialiseFunction(fmt.Sprintf("%s_d%d", name, k), m.Entries(), m.Rows(), m.Cols())
		if err != nil {
			return Function{}, Function{}, fmt.Errorf("%s: %w", name, err)
		}
		if k == 1 && order == 2 {
			// The gradient is re-interned as a column so its derivative
			// has one row per variable.
			cur.Rows, cur.Cols = len(wrt), 1
		}
	}
	ctxlog.FromContext(ctx).Debug("Symbolic " + msg + " calculated.")
	return base, cur, nil
}

func (g *ExpressionGraph) buildDerivatives(ctx context.Context, in Inputs) error {
	d := &g.Derivatives
	internal := func(es []symbolic.Expr) []symbolic.Expr {
		out := make([]symbolic.Expr, len(es))
		for i, e := range es {
			out[i] = g.toInternal(e)
		}
		return out
	}
	dynamics := internal(in.Dynamics)
	path := internal(in.Path)
	integrands := internal(in.Integrands)
	stateEndpoint := internal(in.StateEndpoint)
	endpointCons := internal(in.EndpointConstraints)
	g.NumDynamics, g.NumPath, g.NumIntegrands = len(dynamics), len(path), len(integrands)
	g.NumStateEndpoint, g.NumEndpoint = len(stateEndpoint), len(endpointCons)

	var err error
	d.TimeNormalisation, d.TimeNormalisationGradient, err = g.form(ctx, "t_norm", "time normalisation",
		[]symbolic.Expr{g.toInternal(in.Stretch)}, 1, 1, g.endpoint, 1)
	if err != nil {
		return err
	}
	d.Objective, d.ObjectiveGradient, err = g.form(ctx, "J", "objective gradient",
		[]symbolic.Expr{g.toInternal(in.Objective)}, 1, 1, g.endpoint, 1)
	if err != nil {
		return err
	}

	continuous := append(append(append([]symbolic.Expr{}, dynamics...), path...), integrands...)
	d.Continuous, d.ContinuousJacobian, err = g.form(ctx, "c", "Jacobian of the continuous constraints",
		continuous, len(continuous), 1, g.continuous, 1)
	if err != nil {
		return err
	}
	endpoint := append(append([]symbolic.Expr{}, stateEndpoint...), endpointCons...)
	d.Endpoint, d.EndpointJacobian, err = g.form(ctx, "b", "Jacobian of the endpoint constraints",
		endpoint, len(endpoint), 1, g.endpoint, 1)
	if err != nil {
		return err
	}
	if err := g.validateDomains(); err != nil {
		return err
	}

	if g.order < 2 {
		return nil
	}
	return g.buildLagrangians(ctx)
}

// validateDomains checks each function only touches variables of its own
// domain and that dynamics and integrands do not use integral variables.
func (g *ExpressionGraph) validateDomains() error {
	d := &g.Derivatives
	inContinuous := idSet(g.continuous)
	inEndpoint := idSet(g.endpoint)
	check := func(f Function, allowed map[NodeID]bool) error {
		for _, id := range g.closure(f.Nodes) {
			n := g.nodes[id]
			if n.Kind == KindVariable && !allowed[id] {
				return fmt.Errorf("%w: %s uses %s", ErrVariableDomain, f.Name, n.Key)
			}
		}
		return nil
	}
	if err := check(d.Continuous, inContinuous); err != nil {
		return err
	}
	if err := check(d.Objective, inEndpoint); err != nil {
		return err
	}
	if err := check(d.Endpoint, inEndpoint); err != nil {
		return err
	}
	if err := check(d.TimeNormalisation, inEndpoint); err != nil {
		return err
	}
	for k, root := range d.Continuous.Nodes {
		if k >= g.NumDynamics && k < g.NumDynamics+g.NumPath {
			continue
		}
		for _, q := range g.integral {
			if g.Reaches(root, q) {
				return fmt.Errorf("%w: row %d uses %s", ErrIntegralDependency, k, g.nodes[q].Key)
			}
		}
	}
	return nil
}

func (g *ExpressionGraph) buildLagrangians(ctx context.Context) error {
	d := &g.Derivatives
	sigma := symbolic.S("_sigma")
	g.sigma = g.addNode(&Node{Kind: KindVariable, Symbol: sigma})
	g.variables = append(g.variables, g.sigma)

	numC := d.Continuous.Len() + d.Endpoint.Len()
	lambdas := make([]symbolic.Expr, numC)
	for k := range lambdas {
		lambdas[k] = symbolic.S(fmt.Sprintf("_lambda_%d", k))
		id := g.addNode(&Node{Kind: KindVariable, Symbol: lambdas[k]})
		g.variables = append(g.variables, id)
		g.lambdas = append(g.lambdas, id)
	}
	stretch := d.TimeNormalisation.Expr[0]

	weighted := func(lo, hi int, scaled bool) symbolic.Expr {
		var terms []symbolic.Expr
		for k := lo; k < hi; k++ {
			var f symbolic.Expr
			if k < d.Continuous.Len() {
				f = d.Continuous.Expr[k]
			} else {
				f = d.Endpoint.Expr[k-d.Continuous.Len()]
			}
			if scaled {
				terms = append(terms, symbolic.MulOf(stretch, lambdas[k], f))
			} else {
				terms = append(terms, symbolic.MulOf(lambdas[k], f))
			}
		}
		return symbolic.AddOf(terms...)
	}
	nDyn, nPath, nInt := g.NumDynamics, g.NumPath, g.NumIntegrands
	nCont := d.Continuous.Len()

	blocks := []struct {
		name, msg string
		expr      symbolic.Expr
		wrt       []NodeID
		dst       *Function
	}{
		{"L_J", "Hessian of the objective Lagrangian", symbolic.MulOf(sigma, d.Objective.Expr[0]), g.endpoint, &d.ObjectiveHessian},
		{"L_zeta", "Hessian of the defect Lagrangian", weighted(0, nDyn, true), g.continuous, &d.DefectHessian},
		{"L_gamma", "Hessian of the path Lagrangian", weighted(nDyn, nDyn+nPath, false), g.continuous, &d.PathHessian},
		{"L_rho", "Hessian of the integral Lagrangian", weighted(nDyn+nPath, nDyn+nPath+nInt, true), g.continuous, &d.IntegralHessian},
		{"L_beta", "Hessian of the endpoint Lagrangian", weighted(nCont, numC, false), g.endpoint, &d.EndpointHessian},
	}
	for _, b := range blocks {
		_, h, err := g.form(ctx, b.name, b.msg, []symbolic.Expr{b.expr}, 1, 1, b.wrt, 2)
		if err != nil {
			return err
		}
		*b.dst = h
	}
	return nil
}

func idSet(ids []NodeID) map[NodeID]bool {
	out := make(map[NodeID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// Functions lists every built function in callback order. Hessians of
// first-order graphs are absent.
func (d *Derivatives) Functions() []Function {
	all := []Function{
		d.TimeNormalisation, d.TimeNormalisationGradient,
		d.Objective, d.ObjectiveGradient,
		d.Continuous, d.ContinuousJacobian,
		d.Endpoint, d.EndpointJacobian,
		d.ObjectiveHessian, d.DefectHessian, d.PathHessian, d.IntegralHessian, d.EndpointHessian,
	}
	out := make([]Function, 0, len(all))
	for _, f := range all {
		if f.Name != "" {
			out = append(out, f)
		}
	}
	return out
}
