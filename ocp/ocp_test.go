package ocp_test

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/gocollo/config"
	"github.com/njchilds90/gocollo/graph"
	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/iteration"
	"github.com/njchilds90/gocollo/mesh"
	"github.com/njchilds90/gocollo/ocp"
	"github.com/njchilds90/gocollo/symbolic"
)

var s = symbolic.S

// minimumTime drives x from 0 to 1 with |u| <= 1 as fast as possible.
func minimumTime() *ocp.Problem {
	return &ocp.Problem{
		Name: "minimum time",
		States: []ocp.State{{
			Name:     "x",
			Equation: s("u"),
			Bound:    ocp.Between(-5, 5),
			Initial:  &ocp.Bound{Lower: symbolic.N(0), Upper: symbolic.N(0)},
			Final:    &ocp.Bound{Lower: symbolic.N(1), Upper: symbolic.N(1)},
		}},
		Controls:    []ocp.Control{{Name: "u", Bound: ocp.Between(-1, 1)}},
		Objective:   s("tF"),
		InitialTime: ocp.Fixed(0),
		FinalTime:   ocp.Between(0.1, 10),
		GuessTime:   []float64{0, 2},
	}
}

func oneSegment() config.Settings {
	st := config.Default()
	st.DefaultSegments = 1
	st.DefaultPoints = 4
	st.MaxNLPIterations = 5000
	return st
}

func TestSolve_MinimumTime(t *testing.T) {
	res, err := ocp.Solve(context.Background(), minimumTime(), oneSegment(), nil)
	require.NoError(t, err)
	require.Len(t, res.Solutions, 1)

	sol := res.Final()
	require.True(t, sol.Status.Success(), sol.Status.Message)
	assert.True(t, res.Converged)
	assert.InDelta(t, 1.0, sol.FinalTime(), 1e-3)
	assert.InDelta(t, 0.0, sol.InitialTime(), 1e-9)
	assert.InDelta(t, 1.0, res.Objective(), 1e-3)
	for _, u := range sol.Control()[0] {
		assert.InDelta(t, 1.0, u, 1e-2)
	}
}

func TestSolve_Maximise(t *testing.T) {
	p := minimumTime()
	p.Objective = symbolic.Neg(s("tF"))
	st := oneSegment()
	st.MaximiseObjective = true

	res, err := ocp.Solve(context.Background(), p, st, nil)
	require.NoError(t, err)
	require.True(t, res.Final().Status.Success())
	assert.Equal(t, -1.0, res.Model.Sense)
	assert.InDelta(t, -1.0, res.Objective(), 1e-3)
}

func TestSolve_CheckNLPFunctions(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.New("debug", "json", &buf))
	st := oneSegment()
	st.CheckNLPFunctions = true

	_, err := ocp.Solve(ctx, minimumTime(), st, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "NLP functions checked.")
	assert.NotContains(t, buf.String(), "NLP function check failed.")
}

func TestSolve_InvalidSettings(t *testing.T) {
	st := config.Default()
	st.NLPBackend = "ipopt"
	_, err := ocp.Solve(context.Background(), minimumTime(), st, nil)
	assert.ErrorIs(t, err, config.ErrInvalidSettings)
}

func TestSolve_CollocationPointsOutOfRange(t *testing.T) {
	st := oneSegment()
	st.CollocationPointsMin = 4
	st.DefaultPoints = 4
	refiner := &countingRefiner{next: func() (*mesh.Mesh, error) { return mesh.NewUniform(1, 3) }}
	st.MeshTolerance = 1e-300

	_, err := ocp.Solve(context.Background(), decay(), st, refiner)
	assert.ErrorIs(t, err, mesh.ErrCollocationPoints)
}

// decay is x' = -x with fixed times; its solution is not polynomial so
// the mesh error never vanishes.
func decay() *ocp.Problem {
	return &ocp.Problem{
		Name: "decay",
		States: []ocp.State{{
			Name:     "x",
			Equation: symbolic.Neg(s("x")),
			Bound:    ocp.Between(-10, 10),
			Initial:  &ocp.Bound{Lower: symbolic.N(1), Upper: symbolic.N(1)},
		}},
		Objective:   s("x_tF"),
		InitialTime: ocp.Fixed(0),
		FinalTime:   ocp.Fixed(1),
	}
}

type countingRefiner struct {
	calls int
	seen  []*mesh.Mesh
	next  func() (*mesh.Mesh, error)
}

func (r *countingRefiner) Refine(_ context.Context, m *mesh.Mesh, sol *iteration.Solution) (*mesh.Mesh, error) {
	r.calls++
	r.seen = append(r.seen, m)
	if r.next == nil {
		return nil, nil
	}
	return r.next()
}

func TestSolve_Refiner(t *testing.T) {
	st := oneSegment()
	st.MeshTolerance = 1e-300
	refined, err := mesh.NewUniform(2, 4)
	require.NoError(t, err)
	r := &countingRefiner{}
	r.next = func() (*mesh.Mesh, error) {
		if r.calls == 1 {
			return refined, nil
		}
		return nil, nil
	}

	res, err := ocp.Solve(context.Background(), decay(), st, r)
	require.NoError(t, err)
	assert.Equal(t, 2, r.calls)
	require.Len(t, res.Solutions, 2)
	assert.Same(t, refined, res.Meshes[1])
	assert.Same(t, refined, r.seen[1])
	assert.False(t, res.Converged)
	assert.Equal(t, 2, res.Solutions[1].Number)

	// The refined mesh resolves exp(-t) better.
	first, second := res.Solutions[0], res.Solutions[1]
	assert.Less(t, second.MaxMeshError(), first.MaxMeshError())
	assert.InDelta(t, math.Exp(-1), res.Objective(), 1e-3)
}

func TestSolve_MaxMeshIterations(t *testing.T) {
	st := oneSegment()
	st.MeshTolerance = 1e-300
	st.MaxMeshIterations = 2
	r := &countingRefiner{next: func() (*mesh.Mesh, error) { return mesh.NewUniform(1, 5) }}

	res, err := ocp.Solve(context.Background(), decay(), st, r)
	require.NoError(t, err)
	assert.Len(t, res.Solutions, 2)
	assert.False(t, res.Converged)
}

func TestGuessFrom(t *testing.T) {
	res, err := ocp.Solve(context.Background(), minimumTime(), oneSegment(), nil)
	require.NoError(t, err)
	g := ocp.GuessFrom(res.Final())
	assert.Equal(t, res.Final().Time(), g.Time)
	assert.Equal(t, res.Final().State(), g.State)
	assert.Equal(t, res.Final().Control(), g.Control)
}

// ============================================================
// Compile
// ============================================================

func TestCompile_Bounds(t *testing.T) {
	p := minimumTime()
	p.Constants = map[string]float64{"xmax": 3}
	p.States[0].Bound = ocp.Bound{Lower: symbolic.Neg(s("xmax")), Upper: s("xmax")}
	p.States[0].Final = nil
	p.Controls[0].Bound = ocp.Free()
	p.Parameters = []ocp.Parameter{{Name: "k", Bound: ocp.Between(math.Inf(-1), 2), Guess: 1}}
	p.Endpoint = []ocp.Constraint{{Expr: symbolic.SubOf(s("x_tF"), s("k")), Bound: ocp.Fixed(0)}}

	st := config.Default()
	m, err := ocp.Compile(context.Background(), p, st)
	require.NoError(t, err)

	inf := st.InfValue
	assert.Equal(t, []iteration.Interval{{Lower: -3, Upper: 3}}, m.Bounds.State)
	assert.Equal(t, []iteration.Interval{{Lower: -inf, Upper: inf}}, m.Bounds.Control)
	assert.Equal(t, []iteration.Interval{{Lower: -inf, Upper: 2}}, m.Bounds.Parameter)
	assert.Equal(t, []iteration.Interval{
		{Lower: 0, Upper: 0},  // x_t0
		{Lower: -3, Upper: 3}, // x_tF falls back to the state bound
		{Lower: 0, Upper: 0},
	}, m.Bounds.Boundary)
	assert.Equal(t, iteration.Interval{Lower: 0, Upper: 0}, m.Bounds.InitialTime)
	assert.Equal(t, iteration.Dims{States: 1, Controls: 1, Parameters: 1}, m.Dims)
	assert.Equal(t, 1.0, m.Sense)
}

func TestCompile_Guess(t *testing.T) {
	p := minimumTime()
	p.GuessTime = nil
	p.Integrals = []ocp.Integral{{Name: "e", Integrand: symbolic.Square(s("u")), Bound: ocp.Between(0, 10), Guess: 0.5}}

	m, err := ocp.Compile(context.Background(), p, config.Default())
	require.NoError(t, err)
	g := m.Guess
	// t0 is fixed at 0 and tF sits mid-way in [0.1, 10].
	assert.Equal(t, []float64{0, 5.05}, g.Time)
	assert.Equal(t, [][]float64{{0, 1}}, g.State)
	assert.Equal(t, [][]float64{{0, 0}}, g.Control)
	assert.Equal(t, []float64{0.5}, g.Integral)
}

func TestCompile_NonConstantBound(t *testing.T) {
	p := minimumTime()
	p.Controls[0].Bound = ocp.Bound{Upper: s("x")}
	_, err := ocp.Compile(context.Background(), p, config.Default())
	assert.ErrorIs(t, err, ocp.ErrNonConstantBound)
}

func TestCompile_Names(t *testing.T) {
	cases := map[string]struct {
		mutate func(*ocp.Problem)
		want   error
	}{
		"underscore": {func(p *ocp.Problem) { p.Controls[0].Name = "_u" }, ocp.ErrReservedName},
		"time":       {func(p *ocp.Problem) { p.Controls[0].Name = "tF" }, ocp.ErrReservedName},
		"duplicate":  {func(p *ocp.Problem) { p.Controls[0].Name = "x" }, ocp.ErrDuplicateName},
		"endpoint":   {func(p *ocp.Problem) { p.Controls[0].Name = "x_t0" }, ocp.ErrDuplicateName},
		"constant": {func(p *ocp.Problem) {
			p.Constants = map[string]float64{"u": 1}
		}, ocp.ErrDuplicateName},
		"no states":    {func(p *ocp.Problem) { p.States = nil }, ocp.ErrIncomplete},
		"no objective": {func(p *ocp.Problem) { p.Objective = nil }, ocp.ErrIncomplete},
		"no equation":  {func(p *ocp.Problem) { p.States[0].Equation = nil }, ocp.ErrIncomplete},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := minimumTime()
			tc.mutate(p)
			_, err := ocp.Compile(context.Background(), p, config.Default())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCompile_GraphErrors(t *testing.T) {
	p := minimumTime()
	p.Endpoint = []ocp.Constraint{{Expr: s("x"), Bound: ocp.Fixed(0)}}
	_, err := ocp.Compile(context.Background(), p, config.Default())
	assert.ErrorIs(t, err, graph.ErrVariableDomain)

	p = minimumTime()
	p.States[0].Equation = s("w")
	_, err = ocp.Compile(context.Background(), p, config.Default())
	assert.ErrorIs(t, err, graph.ErrUnknownSymbol)
}

func TestCompile_DerivativeLevel(t *testing.T) {
	st := config.Default()
	st.DerivativeLevel = 1
	m, err := ocp.Compile(context.Background(), minimumTime(), st)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Graph.Order())

	msh, err := mesh.NewUniform(1, 4)
	require.NoError(t, err)
	it, err := m.NewIteration(context.Background(), msh, 1, m.Guess)
	require.NoError(t, err)
	rows, cols := it.HessianStructure()
	assert.Nil(t, rows)
	assert.Nil(t, cols)
}

func TestCompile_Auxiliary(t *testing.T) {
	p := minimumTime()
	p.Constants = map[string]float64{"gain": 2}
	p.Auxiliary = []ocp.Auxiliary{{Name: "thrust", Expr: symbolic.MulOf(s("gain"), s("u"))}}
	p.States[0].Equation = s("thrust")

	m, err := ocp.Compile(context.Background(), p, config.Default())
	require.NoError(t, err)
	msh, err := mesh.NewUniform(1, 3)
	require.NoError(t, err)
	it, err := m.NewIteration(context.Background(), msh, 1, m.Guess)
	require.NoError(t, err)
	rep := it.CheckDerivatives(it.X0, 1, []float64{1, 1, 1, 1})
	assert.True(t, rep.OK(1e-5), "%+v", rep)
}
