package graph_test

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/gocollo/graph"
	"github.com/njchilds90/gocollo/symbolic"
)

func vars(names ...string) []graph.Variable {
	out := make([]graph.Variable, len(names))
	for i, n := range names {
		out[i] = graph.Variable{Name: n}
	}
	return out
}

var (
	s  = symbolic.S
	n  = symbolic.N
	ad = symbolic.AddOf
	mu = symbolic.MulOf
)

func stretch() symbolic.Expr {
	return mu(symbolic.F(1, 2), symbolic.SubOf(s("tF"), s("t0")))
}

// pendulumInputs exercises constants, precomputable and dependent auxiliary
// intermediates, a piecewise table and every function group.
func pendulumInputs(t *testing.T) graph.Inputs {
	t.Helper()
	drag, err := symbolic.NewTable("drag", symbolic.PolynomialTable,
		[]float64{-10, 0, 10}, [][]float64{{1, 0.1}, {2, 0.1}})
	require.NoError(t, err)

	return graph.Inputs{
		Continuous: vars("y0", "y1", "u0", "q0", "t0", "tF", "s0"),
		Endpoint:   vars("y0_t0", "y1_t0", "y0_tF", "y1_tF", "q0", "t0", "tF", "s0"),
		Integral:   []string{"q0"},
		Constants:  []graph.Constant{{Name: "g", Value: 9.81}, {Name: "m", Value: 2}},
		Auxiliary: []graph.Definition{
			{Name: "v", Expr: mu(s("y1"), symbolic.CosOf(s("y0")))},
			{Name: "k", Expr: symbolic.Quo(s("g"), s("m"))},
		},
		Objective: ad(s("q0"), mu(symbolic.Square(s("tF")), s("s0")), mu(s("y1_tF"), s("y0_t0"))),
		Dynamics: []symbolic.Expr{
			ad(s("v"), s("y1")),
			ad(
				symbolic.Neg(mu(s("k"), symbolic.SinOf(s("y0")))),
				symbolic.Quo(s("u0"), ad(n(1), symbolic.Square(s("y1")))),
				mu(s("s0"), symbolic.PiecewiseOf(drag, s("y1"))),
			),
		},
		Path:          []symbolic.Expr{ad(symbolic.Square(s("u0")), mu(s("v"), s("y0")))},
		Integrands:    []symbolic.Expr{ad(symbolic.Square(s("u0")), symbolic.ExpOf(mu(symbolic.F(1, 10), s("y0"))))},
		StateEndpoint: []symbolic.Expr{s("y0_t0"), s("y1_tF")},
		EndpointConstraints: []symbolic.Expr{
			symbolic.SubOf(mu(s("y0_tF"), s("y1_t0")), s("q0")),
			symbolic.SqrtOf(ad(symbolic.SubOf(s("tF"), s("t0")), n(1))),
		},
		Stretch: stretch(),
	}
}

func build(t *testing.T, in graph.Inputs) *graph.ExpressionGraph {
	t.Helper()
	g, err := graph.New(context.Background(), in)
	require.NoError(t, err)
	return g
}

// ============================================================
// Interning and tiers
// ============================================================

func TestNew_TierInvariant(t *testing.T) {
	g := build(t, pendulumInputs(t))
	for id := 0; id < g.Len(); id++ {
		node := g.Node(graph.NodeID(id))
		maxDep := -1
		for _, d := range node.Dependencies {
			if tier := g.Node(d).Tier; tier > maxDep {
				maxDep = tier
			}
		}
		if len(node.Dependencies) == 0 {
			assert.Equal(t, 0, node.Tier, node.String())
		} else {
			assert.Greater(t, node.Tier, maxDep, node.String())
		}
		if node.Kind == graph.KindVariable {
			assert.False(t, node.Precomputable, node.String())
		}
		if node.Kind == graph.KindConstant || node.Kind == graph.KindNumber {
			assert.True(t, node.Precomputable, node.String())
		}
	}
}

func TestIntern_IdentityStable(t *testing.T) {
	g := build(t, pendulumInputs(t))
	e := mu(s("y1"), symbolic.CosOf(s("y0")))
	a, err := g.Intern(e)
	require.NoError(t, err)
	b, err := g.Intern(mu(symbolic.CosOf(s("y0")), s("y1")))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	v, ok := g.Lookup("v")
	require.True(t, ok)
	assert.Equal(t, v, a, "auxiliary v and its formula share one node")

	before := g.Len()
	_, err = g.Intern(e)
	require.NoError(t, err)
	assert.Equal(t, before, g.Len())
}

func TestIntern_Precomputable(t *testing.T) {
	g := build(t, pendulumInputs(t))
	k, ok := g.Lookup("k")
	require.True(t, ok)
	node := g.Node(k)
	assert.Equal(t, graph.KindIntermediate, node.Kind)
	assert.True(t, node.Precomputable)
	assert.InDelta(t, 9.81/2, g.NewEnv()[k], 1e-12)

	gc, _ := g.Lookup("g")
	assert.Equal(t, graph.KindConstant, g.Node(gc).Kind)
	assert.Contains(t, g.Constants(), gc)
	assert.NotEmpty(t, g.Numbers())
}

func TestIntern_PiecewisePayload(t *testing.T) {
	g := build(t, pendulumInputs(t))
	names := map[string]bool{}
	for _, id := range g.Intermediates() {
		if p := g.Node(id).Payload; p != nil {
			assert.True(t, strings.HasPrefix(p.Name, "drag"), p.Name)
			names[p.Name] = true
		}
	}
	assert.True(t, names["drag"])
	assert.True(t, names["drag'"], "derivative nodes carry the derived table")
}

// ============================================================
// Configuration errors
// ============================================================

func TestNew_CyclicDependency(t *testing.T) {
	in := pendulumInputs(t)
	in.Auxiliary = append(in.Auxiliary,
		graph.Definition{Name: "a", Expr: ad(s("b"), n(1))},
		graph.Definition{Name: "b", Expr: mu(n(2), s("a"))},
	)
	_, err := graph.New(context.Background(), in)
	require.ErrorIs(t, err, graph.ErrCyclicDependency)
}

func TestNew_UnknownSymbol(t *testing.T) {
	in := pendulumInputs(t)
	in.Path = append(in.Path, s("nope"))
	_, err := graph.New(context.Background(), in)
	require.ErrorIs(t, err, graph.ErrUnknownSymbol)
}

func TestNew_IntegralDependency(t *testing.T) {
	in := pendulumInputs(t)
	in.Dynamics[0] = ad(in.Dynamics[0], s("q0"))
	_, err := graph.New(context.Background(), in)
	require.ErrorIs(t, err, graph.ErrIntegralDependency)
}

func TestNew_VariableDomain(t *testing.T) {
	in := pendulumInputs(t)
	in.Path = append(in.Path, s("y0_t0"))
	_, err := graph.New(context.Background(), in)
	require.ErrorIs(t, err, graph.ErrVariableDomain)
}

func TestNew_UserNames(t *testing.T) {
	in := graph.Inputs{
		Continuous: []graph.Variable{{Name: "_y0", User: "x"}, {Name: "_t0", User: "t0"}, {Name: "_tF", User: "tF"}},
		Endpoint:   []graph.Variable{{Name: "_y0_tF", User: "x_tF"}, {Name: "_t0", User: "t0"}, {Name: "_tF", User: "tF"}},
		Objective:  s("tF"),
		Dynamics:   []symbolic.Expr{mu(n(3), s("x"))},
		Stretch:    stretch(),
	}
	g := build(t, in)
	d := g.Derivatives
	assert.Equal(t, "3*_y0", g.Definition(d.Continuous, 0).String())
	assert.Equal(t, "[[3, 0, 0]]", formatMatrix(d.ContinuousJacobian))
	assert.Equal(t, "[[0, 0, 1]]", formatMatrix(d.ObjectiveGradient))
	assert.Equal(t, "3*x", g.ToUser(g.Definition(d.Continuous, 0)).String())
}

func TestDerivatives_Functions(t *testing.T) {
	g := build(t, pendulumInputs(t))
	var names []string
	for _, f := range g.Derivatives.Functions() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"t_norm", "t_norm_d1", "J", "J_d1", "c", "c_d1", "b", "b_d1",
		"L_J_d2", "L_zeta_d2", "L_gamma_d2", "L_rho_d2", "L_beta_d2",
	}, names)

	in := pendulumInputs(t)
	in.Order = 1
	assert.Len(t, build(t, in).Derivatives.Functions(), 8)
}

func formatMatrix(f graph.Function) string {
	return symbolic.MatrixFromSlice(f.Rows, f.Cols, f.Expr).String()
}

// ============================================================
// hSAD
// ============================================================

func TestGradient_ProductIsExact(t *testing.T) {
	in := graph.Inputs{
		Continuous: vars("x", "y", "t0", "tF"),
		Endpoint:   vars("x", "y", "t0", "tF"),
		Objective:  mu(s("x"), s("y")),
		Stretch:    stretch(),
	}
	g := build(t, in)
	grad := g.Derivatives.ObjectiveGradient
	require.Equal(t, 1, grad.Rows)
	require.Equal(t, 4, grad.Cols)
	assert.True(t, grad.At(0, 0).Equal(s("y")), grad.At(0, 0).String())
	assert.True(t, grad.At(0, 1).Equal(s("x")), grad.At(0, 1).String())
	assert.True(t, grad.IsZero(0, 2))
	assert.True(t, grad.IsZero(0, 3))
}

func TestHessians_LowerTriangular(t *testing.T) {
	g := build(t, pendulumInputs(t))
	d := g.Derivatives
	for _, h := range []graph.Function{d.ObjectiveHessian, d.DefectHessian, d.PathHessian, d.IntegralHessian, d.EndpointHessian} {
		require.Equal(t, h.Rows, h.Cols, h.Name)
		require.NotZero(t, h.Rows, h.Name)
		for i := 0; i < h.Rows; i++ {
			for j := i + 1; j < h.Cols; j++ {
				assert.True(t, h.IsZero(i, j), "%s[%d][%d] = %s", h.Name, i, j, h.At(i, j))
			}
		}
	}
}

func TestNew_FirstOrderSkipsHessians(t *testing.T) {
	in := pendulumInputs(t)
	in.Order = 1
	g := build(t, in)
	assert.Equal(t, 1, g.Order())
	assert.Zero(t, g.Derivatives.DefectHessian.Len())
	assert.NotZero(t, g.Derivatives.ContinuousJacobian.Len())
}

// evaluator wraps a compiled function and an environment.
type evaluator struct {
	g   *graph.ExpressionGraph
	env []float64
}

func (e *evaluator) run(t *testing.T, f graph.Function) []float64 {
	t.Helper()
	p, err := e.g.Compile(f)
	require.NoError(t, err)
	out := make([]float64, p.Len())
	p.Eval(e.env, out)
	return out
}

func randomEnv(g *graph.ExpressionGraph, rng *rand.Rand) []float64 {
	env := g.NewEnv()
	for _, id := range g.Variables() {
		env[id] = 0.5 + rng.Float64()
	}
	// keep tF - t0 + 1 comfortably positive
	t0, _ := g.Lookup("t0")
	tF, _ := g.Lookup("tF")
	env[t0] = 0.1 * rng.Float64()
	env[tF] = 1 + rng.Float64()
	return env
}

func checkJacobian(t *testing.T, g *graph.ExpressionGraph, base, jac graph.Function, wrt []graph.NodeID, rng *rand.Rand) {
	t.Helper()
	const h = 1e-6
	for trial := 0; trial < 5; trial++ {
		ev := &evaluator{g: g, env: randomEnv(g, rng)}
		analytic := ev.run(t, jac)
		require.Equal(t, base.Len()*len(wrt), len(analytic), jac.Name)
		for j, id := range wrt {
			orig := ev.env[id]
			ev.env[id] = orig + h
			hi := ev.run(t, base)
			ev.env[id] = orig - h
			lo := ev.run(t, base)
			ev.env[id] = orig
			for i := range hi {
				fd := (hi[i] - lo[i]) / (2 * h)
				an := analytic[i*len(wrt)+j]
				assert.InDelta(t, fd, an, 1e-5*(1+math.Abs(an)),
					"%s[%d][%d] trial %d", jac.Name, i, j, trial)
			}
		}
	}
}

func TestDerivatives_MatchFiniteDifferences(t *testing.T) {
	g := build(t, pendulumInputs(t))
	d := g.Derivatives
	rng := rand.New(rand.NewSource(7))

	checkJacobian(t, g, d.TimeNormalisation, d.TimeNormalisationGradient, g.EndpointVariables(), rng)
	checkJacobian(t, g, d.Objective, d.ObjectiveGradient, g.EndpointVariables(), rng)
	checkJacobian(t, g, d.Continuous, d.ContinuousJacobian, g.ContinuousVariables(), rng)
	checkJacobian(t, g, d.Endpoint, d.EndpointJacobian, g.EndpointVariables(), rng)
}

func TestHessians_MatchFiniteDifferences(t *testing.T) {
	g := build(t, pendulumInputs(t))
	d := g.Derivatives
	rng := rand.New(rand.NewSource(11))
	ev := &evaluator{g: g, env: randomEnv(g, rng)}
	lambdas := g.Lambdas()
	nCont := d.Continuous.Len()

	lagrangian := func(lo, hi int, scaled bool) func() float64 {
		return func() float64 {
			c := ev.run(t, d.Continuous)
			b := ev.run(t, d.Endpoint)
			sc := 1.0
			if scaled {
				sc = ev.run(t, d.TimeNormalisation)[0]
			}
			sum := 0.0
			for k := lo; k < hi; k++ {
				v := 0.0
				if k < nCont {
					v = c[k]
				} else {
					v = b[k-nCont]
				}
				sum += sc * ev.env[lambdas[k]] * v
			}
			return sum
		}
	}
	objective := func() float64 {
		return ev.env[g.Sigma()] * ev.run(t, d.Objective)[0]
	}
	nDyn, nPath := g.NumDynamics, g.NumPath

	cases := []struct {
		h   graph.Function
		f   func() float64
		wrt []graph.NodeID
	}{
		{d.ObjectiveHessian, objective, g.EndpointVariables()},
		{d.DefectHessian, lagrangian(0, nDyn, true), g.ContinuousVariables()},
		{d.PathHessian, lagrangian(nDyn, nDyn+nPath, false), g.ContinuousVariables()},
		{d.IntegralHessian, lagrangian(nDyn+nPath, nCont, true), g.ContinuousVariables()},
		{d.EndpointHessian, lagrangian(nCont, nCont+d.Endpoint.Len(), false), g.EndpointVariables()},
	}
	const h = 1e-4
	for _, tc := range cases {
		analytic := ev.run(t, tc.h)
		n := len(tc.wrt)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				xi, xj := tc.wrt[i], tc.wrt[j]
				eval := func(di, dj float64) float64 {
					oi, oj := ev.env[xi], ev.env[xj]
					ev.env[xi] += di
					ev.env[xj] += dj
					v := tc.f()
					ev.env[xi], ev.env[xj] = oi, oj
					return v
				}
				fd := (eval(h, h) - eval(h, -h) - eval(-h, h) + eval(-h, -h)) / (4 * h * h)
				an := analytic[i*n+j]
				assert.InDelta(t, fd, an, 1e-4*(1+math.Abs(an)), "%s[%d][%d]", tc.h.Name, i, j)
			}
		}
	}
}

func TestDefinition_ExpandsIntermediates(t *testing.T) {
	g := build(t, pendulumInputs(t))
	d := g.Derivatives
	got := g.Definition(d.Continuous, 0)
	want := ad(mu(s("y1"), symbolic.CosOf(s("y0"))), s("y1"))
	vals := map[string]float64{"y0": 0.3, "y1": -0.7}
	a, err := symbolic.EvalFloat(got, vals)
	require.NoError(t, err)
	b, err := symbolic.EvalFloat(want, vals)
	require.NoError(t, err)
	assert.InDelta(t, b, a, 1e-12)
}
