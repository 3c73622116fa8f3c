package iteration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/interp"

	"github.com/njchilds90/gocollo/graph"
	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/internal/telemetry"
	"github.com/njchilds90/gocollo/mesh"
	"github.com/njchilds90/gocollo/nlp"
)

// Mesh is what the discretisation needs from a collocation mesh.
type Mesh interface {
	N() int
	Segments() int
	SegmentPoints() []int
	IndexBoundaries() []int
	Tau() []float64
	Integration() *mesh.Sparse
	Differentiation() *mesh.Sparse
	Weights() []float64
	Time(t0, tF float64) []float64
}

// Interval is a closed bound.
type Interval struct {
	Lower, Upper float64
}

// Bounds holds one interval per variable and per constraint function.
// State and control bounds apply at every node.
type Bounds struct {
	State     []Interval
	Control   []Interval
	Integral  []Interval
	Parameter []Interval

	InitialTime Interval
	FinalTime   Interval

	Path []Interval
	// Boundary covers the state endpoint functions followed by the
	// endpoint constraints, in graph order.
	Boundary []Interval
}

// Guess is a trajectory sampled at increasing absolute times. Time[0] and
// the last time give the initial and final time.
type Guess struct {
	Time      []float64
	State     [][]float64
	Control   [][]float64
	Integral  []float64
	Parameter []float64
}

// Config is everything New needs besides the graph and the mesh.
type Config struct {
	Number int
	Dims   Dims
	Bounds Bounds
	Guess  Guess
}

// Iteration is one discretisation of the problem against one mesh. It
// implements nlp.Callbacks and nlp.HessianCallbacks.
type Iteration struct {
	ID     uuid.UUID
	Number int
	Layout Layout
	Mesh   Mesh

	XL, XU []float64
	CL, CU []float64
	X0     []float64

	g         *graph.ExpressionGraph
	progs     programs
	structure *Structure
	hessian   *hessianStructure
	contIDs   []graph.NodeID
	endIDs    []graph.NodeID
}

// New lays out the NLP for m and declares its sparsity.
func New(ctx context.Context, g *graph.ExpressionGraph, m Mesh, cfg Config) (it *Iteration, err error) {
	ctx, span := telemetry.Start(ctx, "iteration.New",
		attribute.Int("iteration.number", cfg.Number),
		attribute.Int("mesh.nodes", m.N()))
	defer func() { telemetry.End(span, err) }()
	logger := ctxlog.FromContext(ctx)

	d := cfg.Dims
	if g.NumDynamics != d.States || g.NumIntegrands != d.Integrals {
		return nil, fmt.Errorf("%w: graph has %d dynamics and %d integrands for %d states and %d integrals",
			ErrDimension, g.NumDynamics, g.NumIntegrands, d.States, d.Integrals)
	}
	l := newLayout(d, m.N(), g.NumPath, g.NumStateEndpoint+g.NumEndpoint)
	it = &Iteration{
		ID:      uuid.New(),
		Number:  cfg.Number,
		Layout:  l,
		Mesh:    m,
		g:       g,
		contIDs: g.ContinuousVariables(),
		endIDs:  g.EndpointVariables(),
	}
	if len(it.contIDs) != l.numContinuous() || len(it.endIDs) != 2*d.States+d.Integrals+NumTime+d.Parameters {
		return nil, fmt.Errorf("%w: graph variables do not match %+v", ErrDimension, d)
	}
	if it.progs, err = compilePrograms(g); err != nil {
		return nil, err
	}
	if it.structure, err = buildStructure(l, &g.Derivatives, m); err != nil {
		return nil, err
	}
	if g.Order() >= 2 {
		it.hessian = buildHessianStructure(l, &g.Derivatives, len(it.endIDs))
	}
	if err := it.setBounds(cfg.Bounds); err != nil {
		return nil, err
	}
	if it.X0, err = it.interpolate(cfg.Guess); err != nil {
		return nil, err
	}
	telemetry.SetJacobianNonZeros(it.structure.Len())
	logger.Debug("Iteration initialised.",
		"id", it.ID, "number", it.Number, "variables", l.NumX(), "constraints", l.NumC(),
		"jacobian_nonzeros", it.structure.Len())
	return it, nil
}

// Structure exposes the Jacobian pattern and its named blocks.
func (it *Iteration) Structure() *Structure { return it.structure }

func (it *Iteration) setBounds(b Bounds) error {
	l := it.Layout
	for _, c := range []struct {
		name string
		got  int
		want int
	}{
		{"state", len(b.State), l.States},
		{"control", len(b.Control), l.Controls},
		{"integral", len(b.Integral), l.Integrals},
		{"parameter", len(b.Parameter), l.Parameters},
		{"path", len(b.Path), l.NumPath},
		{"boundary", len(b.Boundary), l.NumBoundary},
	} {
		if c.got != c.want {
			return fmt.Errorf("%w: %d %s bounds, want %d", ErrDimension, c.got, c.name, c.want)
		}
	}
	it.XL, it.XU = make([]float64, l.NumX()), make([]float64, l.NumX())
	set := func(at int, iv Interval) { it.XL[at], it.XU[at] = iv.Lower, iv.Upper }
	for i, iv := range b.State {
		for c := 0; c < l.N; c++ {
			set(l.Y.Start+i*l.N+c, iv)
		}
	}
	for i, iv := range b.Control {
		for c := 0; c < l.N; c++ {
			set(l.U.Start+i*l.N+c, iv)
		}
	}
	for i, iv := range b.Integral {
		set(l.Q.Start+i, iv)
	}
	set(l.T.Start, b.InitialTime)
	set(l.T.Start+1, b.FinalTime)
	for i, iv := range b.Parameter {
		set(l.S.Start+i, iv)
	}

	it.CL, it.CU = make([]float64, l.NumC()), make([]float64, l.NumC())
	for j, iv := range b.Path {
		for c := 0; c < l.N; c++ {
			it.CL[l.Path.Start+j*l.N+c], it.CU[l.Path.Start+j*l.N+c] = iv.Lower, iv.Upper
		}
	}
	for j, iv := range b.Boundary {
		it.CL[l.Boundary.Start+j], it.CU[l.Boundary.Start+j] = iv.Lower, iv.Upper
	}
	return nil
}

// interpolate maps the guess onto the mesh nodes linearly.
func (it *Iteration) interpolate(gs Guess) ([]float64, error) {
	l := it.Layout
	if len(gs.Time) < 2 {
		return nil, fmt.Errorf("%w: need at least two guess times, have %d", ErrGuess, len(gs.Time))
	}
	if len(gs.State) != l.States || len(gs.Control) != l.Controls ||
		len(gs.Integral) != l.Integrals || len(gs.Parameter) != l.Parameters {
		return nil, fmt.Errorf("%w: guess does not match %+v", ErrDimension, l.Dims)
	}
	for k := 1; k < len(gs.Time); k++ {
		if gs.Time[k] <= gs.Time[k-1] {
			return nil, fmt.Errorf("%w: guess times not increasing at %d", ErrGuess, k)
		}
	}
	t0, tF := gs.Time[0], gs.Time[len(gs.Time)-1]
	nodes := it.Mesh.Time(t0, tF)
	x := make([]float64, l.NumX())
	fill := func(start int, ys []float64) error {
		if len(ys) != len(gs.Time) {
			return fmt.Errorf("%w: trajectory has %d samples for %d times", ErrGuess, len(ys), len(gs.Time))
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(gs.Time, ys); err != nil {
			return fmt.Errorf("%w: %v", ErrGuess, err)
		}
		for c, t := range nodes {
			x[start+c] = pl.Predict(t)
		}
		return nil
	}
	for i, ys := range gs.State {
		if err := fill(l.Y.Start+i*l.N, ys); err != nil {
			return nil, err
		}
	}
	for i, ys := range gs.Control {
		if err := fill(l.U.Start+i*l.N, ys); err != nil {
			return nil, err
		}
	}
	copy(x[l.Q.Start:], gs.Integral)
	x[l.T.Start], x[l.T.Start+1] = t0, tF
	copy(x[l.S.Start:], gs.Parameter)
	return x, nil
}

// Problem returns the NLP this iteration defines.
func (it *Iteration) Problem() *nlp.Problem {
	l := it.Layout
	return &nlp.Problem{
		N: l.NumX(), M: l.NumC(),
		XL: it.XL, XU: it.XU,
		CL: it.CL, CU: it.CU,
		X0:        it.X0,
		Callbacks: it,
	}
}

// Solve runs the solver synchronously and post-processes its output. The
// solver status is returned untouched inside the Solution.
func (it *Iteration) Solve(ctx context.Context, solver nlp.Solver) (sol *Solution, err error) {
	ctx, span := telemetry.Start(ctx, "iteration.Solve",
		attribute.String("iteration.id", it.ID.String()),
		attribute.String("nlp.backend", solver.Name()))
	defer func() { telemetry.End(span, err) }()
	logger := ctxlog.FromContext(ctx)

	start := time.Now()
	res, err := solver.Solve(ctx, it.Problem())
	if err != nil {
		return nil, fmt.Errorf("iteration %d: %w", it.Number, err)
	}
	logger.Info("Mesh iteration solved.",
		"number", it.Number, "status", res.Status.Code.String(), "objective", res.Status.Objective,
		"duration", time.Since(start))
	return newSolution(ctx, it, res)
}
