package ocp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/njchilds90/gocollo/config"
	"github.com/njchilds90/gocollo/graph"
	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/iteration"
	"github.com/njchilds90/gocollo/symbolic"
)

// Model is a problem lowered onto an expression graph, with its bounds and
// initial guess resolved to numbers.
type Model struct {
	Problem *Problem
	Graph   *graph.ExpressionGraph
	Dims    iteration.Dims
	Bounds  iteration.Bounds
	Guess   iteration.Guess

	// Sense is -1 when the objective was negated for maximisation.
	Sense float64
}

// Internal variable names. The leading underscore keeps them apart from
// user names.
func stateName(k int) string     { return fmt.Sprintf("_y%d", k) }
func controlName(k int) string   { return fmt.Sprintf("_u%d", k) }
func integralName(k int) string  { return fmt.Sprintf("_q%d", k) }
func parameterName(k int) string { return fmt.Sprintf("_s%d", k) }

const (
	internalT0 = "_t0"
	internalTF = "_tF"
)

// Compile validates p, builds its expression graph and resolves bounds and
// the initial guess with the settings' infinity.
func Compile(ctx context.Context, p *Problem, s config.Settings) (*Model, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	in, sense := p.inputs(s)
	g, err := graph.New(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("problem %q: %w", p.Name, err)
	}
	m := &Model{
		Problem: p,
		Graph:   g,
		Sense:   sense,
		Dims: iteration.Dims{
			States:     len(p.States),
			Controls:   len(p.Controls),
			Integrals:  len(p.Integrals),
			Parameters: len(p.Parameters),
		},
	}
	r := resolver{constants: p.Constants, inf: s.InfValue}
	if m.Bounds, err = r.bounds(p); err != nil {
		return nil, err
	}
	m.Guess = r.guess(p, m.Bounds)
	ctxlog.FromContext(ctx).Debug("Problem compiled.",
		"problem", p.Name, "states", m.Dims.States, "controls", m.Dims.Controls,
		"integrals", m.Dims.Integrals, "parameters", m.Dims.Parameters)
	return m, nil
}

// NewIteration discretises the model on msh starting from guess.
func (m *Model) NewIteration(ctx context.Context, msh iteration.Mesh, number int, guess iteration.Guess) (*iteration.Iteration, error) {
	return iteration.New(ctx, m.Graph, msh, iteration.Config{
		Number: number,
		Dims:   m.Dims,
		Bounds: m.Bounds,
		Guess:  guess,
	})
}

// ============================================================
// Validation
// ============================================================

func (p *Problem) validate() error {
	if len(p.States) == 0 {
		return fmt.Errorf("%w: no states", ErrIncomplete)
	}
	if p.Objective == nil {
		return fmt.Errorf("%w: no objective", ErrIncomplete)
	}
	seen := map[string]string{
		InitialTimeName: "time",
		FinalTimeName:   "time",
	}
	declare := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("%w: unnamed %s", ErrIncomplete, kind)
		}
		if strings.HasPrefix(name, "_") {
			return fmt.Errorf("%w: %s %s", ErrReservedName, kind, name)
		}
		if prev, ok := seen[name]; ok {
			if prev == "time" {
				return fmt.Errorf("%w: %s %s", ErrReservedName, kind, name)
			}
			return fmt.Errorf("%w: %s %s already names a %s", ErrDuplicateName, kind, name, prev)
		}
		seen[name] = kind
		return nil
	}
	for _, st := range p.States {
		if st.Equation == nil {
			return fmt.Errorf("%w: state %s has no equation", ErrIncomplete, st.Name)
		}
		for _, name := range []string{st.Name, InitialName(st.Name), FinalName(st.Name)} {
			if err := declare("state", name); err != nil {
				return err
			}
		}
	}
	for _, c := range p.Controls {
		if err := declare("control", c.Name); err != nil {
			return err
		}
	}
	for _, q := range p.Integrals {
		if q.Integrand == nil {
			return fmt.Errorf("%w: integral %s has no integrand", ErrIncomplete, q.Name)
		}
		if err := declare("integral", q.Name); err != nil {
			return err
		}
	}
	for _, sp := range p.Parameters {
		if err := declare("parameter", sp.Name); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(p.Constants) {
		if err := declare("constant", name); err != nil {
			return err
		}
	}
	for _, a := range p.Auxiliary {
		if err := declare("auxiliary", a.Name); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============================================================
// Lowering
// ============================================================

// inputs maps user names onto internal variables and stacks the problem's
// functions in graph order.
func (p *Problem) inputs(s config.Settings) (graph.Inputs, float64) {
	var in graph.Inputs
	shared := func() []graph.Variable {
		var out []graph.Variable
		for k, q := range p.Integrals {
			out = append(out, graph.Variable{Name: integralName(k), User: q.Name})
		}
		out = append(out,
			graph.Variable{Name: internalT0, User: InitialTimeName},
			graph.Variable{Name: internalTF, User: FinalTimeName})
		for k, sp := range p.Parameters {
			out = append(out, graph.Variable{Name: parameterName(k), User: sp.Name})
		}
		return out
	}

	for k, st := range p.States {
		in.Continuous = append(in.Continuous, graph.Variable{Name: stateName(k), User: st.Name})
		in.Dynamics = append(in.Dynamics, st.Equation)
	}
	for k, c := range p.Controls {
		in.Continuous = append(in.Continuous, graph.Variable{Name: controlName(k), User: c.Name})
	}
	in.Continuous = append(in.Continuous, shared()...)

	for k, st := range p.States {
		name := stateName(k) + "_" + InitialTimeName
		in.Endpoint = append(in.Endpoint, graph.Variable{Name: name, User: InitialName(st.Name)})
		in.StateEndpoint = append(in.StateEndpoint, symbolic.S(name))
	}
	for k, st := range p.States {
		name := stateName(k) + "_" + FinalTimeName
		in.Endpoint = append(in.Endpoint, graph.Variable{Name: name, User: FinalName(st.Name)})
		in.StateEndpoint = append(in.StateEndpoint, symbolic.S(name))
	}
	in.Endpoint = append(in.Endpoint, shared()...)

	for k, q := range p.Integrals {
		in.Integral = append(in.Integral, integralName(k))
		in.Integrands = append(in.Integrands, q.Integrand)
	}
	for _, c := range p.Path {
		in.Path = append(in.Path, c.Expr)
	}
	for _, c := range p.Endpoint {
		in.EndpointConstraints = append(in.EndpointConstraints, c.Expr)
	}
	for _, name := range sortedKeys(p.Constants) {
		in.Constants = append(in.Constants, graph.Constant{Name: name, Value: p.Constants[name]})
	}
	for _, a := range p.Auxiliary {
		in.Auxiliary = append(in.Auxiliary, graph.Definition{Name: a.Name, Expr: a.Expr})
	}

	sense := 1.0
	in.Objective = p.Objective
	if s.MaximiseObjective {
		sense = -1
		in.Objective = symbolic.Neg(p.Objective)
	}
	in.Stretch = symbolic.MulOf(symbolic.F(1, 2), symbolic.SubOf(symbolic.S(internalTF), symbolic.S(internalT0)))
	in.Order = s.DerivativeLevel
	return in, sense
}

// ============================================================
// Bounds and guess
// ============================================================

type resolver struct {
	constants map[string]float64
	inf       float64
}

func (r resolver) end(e symbolic.Expr, unbounded float64) (float64, error) {
	if e == nil {
		return unbounded, nil
	}
	v, err := symbolic.EvalFloat(e, r.constants)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNonConstantBound, e, err)
	}
	return math.Max(-r.inf, math.Min(r.inf, v)), nil
}

func (r resolver) interval(what string, b Bound) (iteration.Interval, error) {
	lo, err := r.end(b.Lower, -r.inf)
	if err != nil {
		return iteration.Interval{}, fmt.Errorf("%s: %w", what, err)
	}
	hi, err := r.end(b.Upper, r.inf)
	if err != nil {
		return iteration.Interval{}, fmt.Errorf("%s: %w", what, err)
	}
	return iteration.Interval{Lower: lo, Upper: hi}, nil
}

func (r resolver) bounds(p *Problem) (iteration.Bounds, error) {
	var (
		b   iteration.Bounds
		err error
	)
	add := func(dst *[]iteration.Interval, what string, bd Bound) {
		if err != nil {
			return
		}
		var iv iteration.Interval
		iv, err = r.interval(what, bd)
		*dst = append(*dst, iv)
	}
	for _, st := range p.States {
		add(&b.State, "state "+st.Name, st.Bound)
	}
	for _, c := range p.Controls {
		add(&b.Control, "control "+c.Name, c.Bound)
	}
	for _, q := range p.Integrals {
		add(&b.Integral, "integral "+q.Name, q.Bound)
	}
	for _, sp := range p.Parameters {
		add(&b.Parameter, "parameter "+sp.Name, sp.Bound)
	}
	for k, c := range p.Path {
		add(&b.Path, fmt.Sprintf("path constraint %d", k), c.Bound)
	}
	endpoint := func(st State, at *Bound) Bound {
		if at != nil {
			return *at
		}
		return st.Bound
	}
	for _, st := range p.States {
		add(&b.Boundary, InitialName(st.Name), endpoint(st, st.Initial))
	}
	for _, st := range p.States {
		add(&b.Boundary, FinalName(st.Name), endpoint(st, st.Final))
	}
	for k, c := range p.Endpoint {
		add(&b.Boundary, fmt.Sprintf("endpoint constraint %d", k), c.Bound)
	}
	if err != nil {
		return b, err
	}
	if b.InitialTime, err = r.interval(InitialTimeName, p.InitialTime); err != nil {
		return b, err
	}
	if b.FinalTime, err = r.interval(FinalTimeName, p.FinalTime); err != nil {
		return b, err
	}
	return b, nil
}

// mid picks a representative point of iv, preferring finite ends.
func (r resolver) mid(iv iteration.Interval) float64 {
	loOK, hiOK := iv.Lower > -r.inf, iv.Upper < r.inf
	switch {
	case loOK && hiOK:
		return (iv.Lower + iv.Upper) / 2
	case loOK:
		return iv.Lower
	case hiOK:
		return iv.Upper
	}
	return 0
}

// guess fills every trajectory the problem leaves out: states run straight
// between their endpoint bounds and controls sit at their bound midpoint.
func (r resolver) guess(p *Problem, b iteration.Bounds) iteration.Guess {
	times := append([]float64(nil), p.GuessTime...)
	if len(times) < 2 {
		t0 := r.mid(b.InitialTime)
		tF := r.mid(b.FinalTime)
		if tF <= t0 {
			tF = t0 + 1
		}
		times = []float64{t0, tF}
	}
	t0, tF := times[0], times[len(times)-1]
	line := func(a, z float64) []float64 {
		out := make([]float64, len(times))
		for k, t := range times {
			w := (t - t0) / (tF - t0)
			out[k] = a + w*(z-a)
		}
		return out
	}
	constant := func(v float64) []float64 { return line(v, v) }

	g := iteration.Guess{Time: times}
	n := len(p.States)
	for k, st := range p.States {
		if st.Guess != nil {
			g.State = append(g.State, st.Guess)
			continue
		}
		g.State = append(g.State, line(r.mid(b.Boundary[k]), r.mid(b.Boundary[n+k])))
	}
	for k, c := range p.Controls {
		if c.Guess != nil {
			g.Control = append(g.Control, c.Guess)
			continue
		}
		g.Control = append(g.Control, constant(r.mid(b.Control[k])))
	}
	for _, q := range p.Integrals {
		g.Integral = append(g.Integral, q.Guess)
	}
	for _, sp := range p.Parameters {
		g.Parameter = append(g.Parameter, sp.Guess)
	}
	return g
}
