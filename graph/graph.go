package graph

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/internal/telemetry"
	"github.com/njchilds90/gocollo/symbolic"
)

// Variable pairs the internal symbol name of a decision variable with the
// name the problem author used for it.
type Variable struct {
	Name string
	User string
}

// Constant is a named auxiliary value.
type Constant struct {
	Name  string
	Value float64
}

// Definition names an auxiliary intermediate expression.
type Definition struct {
	Name string
	Expr symbolic.Expr
}

// Inputs is everything the problem-authoring layer hands to New. User-facing
// variable names in any expression are replaced by their internal names.
type Inputs struct {
	Continuous []Variable
	Endpoint   []Variable
	// Integral lists the internal names of integral variables.
	Integral []string

	Constants []Constant
	Auxiliary []Definition

	Objective           symbolic.Expr
	Dynamics            []symbolic.Expr
	Path                []symbolic.Expr
	Integrands          []symbolic.Expr
	StateEndpoint       []symbolic.Expr
	EndpointConstraints []symbolic.Expr

	// Stretch is the time-normalisation factor (tF - t0)/2.
	Stretch symbolic.Expr

	// Order is the highest derivative order built: 1 skips the Lagrangian
	// Hessians. Zero means 2.
	Order int
}

// ExpressionGraph is the node arena plus the derivative record built from it.
type ExpressionGraph struct {
	nodes    []*Node
	values   []float64
	bySymbol map[string]NodeID
	byShape  map[string]NodeID
	slots    map[string]int

	variables     []NodeID
	constants     []NodeID
	numbers       []NodeID
	intermediates []NodeID

	defs       map[string]symbolic.Expr
	inProgress map[string]bool
	userNames  map[string]symbolic.Expr

	continuous []NodeID
	endpoint   []NodeID
	integral   []NodeID
	sigma      NodeID
	lambdas    []NodeID

	order            int
	nextIntermediate int

	// Derivatives holds every function and derivative the NLP callbacks
	// evaluate.
	Derivatives Derivatives

	// NumDynamics etc. are the row counts of the stacked continuous and
	// endpoint functions.
	NumDynamics      int
	NumPath          int
	NumIntegrands    int
	NumStateEndpoint int
	NumEndpoint      int
}

func newGraph() *ExpressionGraph {
	return &ExpressionGraph{
		bySymbol:   map[string]NodeID{},
		byShape:    map[string]NodeID{},
		slots:      map[string]int{},
		defs:       map[string]symbolic.Expr{},
		inProgress: map[string]bool{},
		userNames:  map[string]symbolic.Expr{},
	}
}

// New builds the graph for one problem and computes all derivatives.
func New(ctx context.Context, in Inputs) (g *ExpressionGraph, err error) {
	ctx, span := telemetry.Start(ctx, "graph.New",
		attribute.Int("graph.continuous", len(in.Continuous)),
		attribute.Int("graph.endpoint", len(in.Endpoint)))
	defer func() { telemetry.End(span, err) }()
	logger := ctxlog.FromContext(ctx)

	g = newGraph()
	g.order = in.Order
	if g.order == 0 {
		g.order = 2
	}

	if err := g.registerVariables(in); err != nil {
		return nil, err
	}
	for _, v := range []symbolic.Expr{symbolic.N(0), symbolic.N(1), symbolic.N(2), symbolic.N(-1), symbolic.F(1, 2)} {
		if _, err := g.Intern(v); err != nil {
			return nil, err
		}
	}
	for _, c := range in.Constants {
		if _, dup := g.bySymbol[c.Name]; dup {
			return nil, fmt.Errorf("%w: constant %s", ErrDuplicateSymbol, c.Name)
		}
		g.addNode(&Node{
			Kind:          KindConstant,
			Symbol:        symbolic.S(c.Name),
			Value:         c.Value,
			Precomputable: true,
		})
		g.constants = append(g.constants, g.bySymbol[c.Name])
	}
	for _, d := range in.Auxiliary {
		if _, dup := g.bySymbol[d.Name]; dup {
			return nil, fmt.Errorf("%w: auxiliary %s", ErrDuplicateSymbol, d.Name)
		}
		if _, dup := g.defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: auxiliary %s", ErrDuplicateSymbol, d.Name)
		}
		g.defs[d.Name] = g.toInternal(d.Expr)
	}
	for _, d := range in.Auxiliary {
		if _, err := g.Intern(symbolic.S(d.Name)); err != nil {
			return nil, fmt.Errorf("auxiliary %s: %w", d.Name, err)
		}
	}
	logger.Debug("Expression graph initialised.",
		"variables", len(g.variables), "constants", len(g.constants), "auxiliary", len(in.Auxiliary))

	if err := g.buildDerivatives(ctx, in); err != nil {
		return nil, err
	}
	logger.Debug("Expression graph complete.", "nodes", len(g.nodes), "intermediates", len(g.intermediates))
	return g, nil
}

func (g *ExpressionGraph) registerVariables(in Inputs) error {
	register := func(v Variable) (NodeID, error) {
		if id, ok := g.bySymbol[v.Name]; ok {
			return id, nil
		}
		id := g.addNode(&Node{Kind: KindVariable, Symbol: symbolic.S(v.Name)})
		g.variables = append(g.variables, id)
		return id, nil
	}
	mapUser := func(v Variable) error {
		if v.User == "" || v.User == v.Name {
			return nil
		}
		if prev, ok := g.userNames[v.User]; ok && prev.String() != v.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, v.User)
		}
		g.userNames[v.User] = symbolic.S(v.Name)
		return nil
	}
	for _, v := range in.Continuous {
		id, err := register(v)
		if err != nil {
			return err
		}
		g.continuous = append(g.continuous, id)
		if err := mapUser(v); err != nil {
			return err
		}
	}
	for _, v := range in.Endpoint {
		id, err := register(v)
		if err != nil {
			return err
		}
		g.endpoint = append(g.endpoint, id)
		if err := mapUser(v); err != nil {
			return err
		}
	}
	for _, name := range in.Integral {
		id, ok := g.bySymbol[name]
		if !ok {
			return fmt.Errorf("%w: integral variable %s", ErrUnknownSymbol, name)
		}
		g.integral = append(g.integral, id)
	}
	return nil
}

// toInternal rewrites user-facing variable names into internal ones.
func (g *ExpressionGraph) toInternal(e symbolic.Expr) symbolic.Expr {
	if e == nil {
		return symbolic.N(0)
	}
	return symbolic.Subs(e, g.userNames)
}

// ToUser renames internal variables in e back to the names the problem
// author used.
func (g *ExpressionGraph) ToUser(e symbolic.Expr) symbolic.Expr {
	back := make(map[string]symbolic.Expr, len(g.userNames))
	for user, internal := range g.userNames {
		back[internal.String()] = symbolic.S(user)
	}
	return symbolic.Subs(e, back)
}

func (g *ExpressionGraph) addNode(n *Node) NodeID {
	id := NodeID(len(g.nodes))
	n.ID = id
	n.Key = n.Symbol.String()
	g.nodes = append(g.nodes, n)
	g.values = append(g.values, n.Value)
	g.bySymbol[n.Key] = id
	if _, isSym := n.Symbol.(*symbolic.Sym); isSym {
		g.slots[n.Key] = int(id)
	}
	return id
}

// ============================================================
// Accessors
// ============================================================

// Node returns the node with the given id.
func (g *ExpressionGraph) Node(id NodeID) *Node { return g.nodes[id] }

// Len is the arena size; evaluation environments have this length.
func (g *ExpressionGraph) Len() int { return len(g.nodes) }

// Lookup finds the node registered for a symbol name or literal.
func (g *ExpressionGraph) Lookup(key string) (NodeID, bool) {
	id, ok := g.bySymbol[key]
	return id, ok
}

func (g *ExpressionGraph) Variables() []NodeID     { return append([]NodeID(nil), g.variables...) }
func (g *ExpressionGraph) Constants() []NodeID     { return append([]NodeID(nil), g.constants...) }
func (g *ExpressionGraph) Numbers() []NodeID       { return append([]NodeID(nil), g.numbers...) }
func (g *ExpressionGraph) Intermediates() []NodeID { return append([]NodeID(nil), g.intermediates...) }

// ContinuousVariables returns the variable nodes continuous functions are
// differentiated against, in declaration order.
func (g *ExpressionGraph) ContinuousVariables() []NodeID {
	return append([]NodeID(nil), g.continuous...)
}

// EndpointVariables returns the variable nodes endpoint functions are
// differentiated against, in declaration order.
func (g *ExpressionGraph) EndpointVariables() []NodeID { return append([]NodeID(nil), g.endpoint...) }

// Sigma is the objective-scale multiplier of the Lagrangian.
func (g *ExpressionGraph) Sigma() NodeID { return g.sigma }

// Lambdas are the constraint multipliers, one per stacked constraint
// function: dynamics, path, integrands, then endpoint.
func (g *ExpressionGraph) Lambdas() []NodeID { return append([]NodeID(nil), g.lambdas...) }

// Order is the highest derivative order this graph holds.
func (g *ExpressionGraph) Order() int { return g.order }

// NewEnv returns an evaluation environment with constants, numbers and
// precomputable intermediates already filled in.
func (g *ExpressionGraph) NewEnv() []float64 { return append([]float64(nil), g.values...) }

// Reaches reports whether target is among the transitive dependencies of id.
func (g *ExpressionGraph) Reaches(id, target NodeID) bool {
	seen := map[NodeID]bool{}
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.nodes[cur].Dependencies...)
	}
	return false
}

// closure returns every node reachable from roots, roots included, sorted
// by id.
func (g *ExpressionGraph) closure(roots []NodeID) []NodeID {
	seen := map[NodeID]bool{}
	stack := append([]NodeID(nil), roots...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.nodes[cur].Dependencies...)
	}
	out := make([]NodeID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
