package graph

import (
	"fmt"

	"github.com/njchilds90/gocollo/symbolic"
)

// Intern returns the node for e, creating it and every node it depends on if
// needed. Identical sub-expressions always map to the same node.
func (g *ExpressionGraph) Intern(e symbolic.Expr) (NodeID, error) {
	switch v := e.(type) {
	case *symbolic.Num:
		if id, ok := g.bySymbol[v.String()]; ok {
			return id, nil
		}
		id := g.addNode(&Node{
			Kind:          KindNumber,
			Symbol:        v,
			Value:         v.Float64(),
			Precomputable: true,
		})
		g.numbers = append(g.numbers, id)
		return id, nil

	case *symbolic.Sym:
		if id, ok := g.bySymbol[v.Name()]; ok {
			return id, nil
		}
		if _, ok := g.defs[v.Name()]; ok {
			return g.internDefinition(v.Name())
		}
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, v.Name())
	}

	shape, deps, err := g.shape(e)
	if err != nil {
		return 0, err
	}
	key := shape.String()
	if id, ok := g.byShape[key]; ok {
		return id, nil
	}
	name := fmt.Sprintf("_i%d", g.nextIntermediate)
	g.nextIntermediate++
	id, err := g.addIntermediate(name, shape, deps)
	if err != nil {
		return 0, err
	}
	g.byShape[key] = id
	return id, nil
}

// shape interns the operands of a compound expression and rebuilds it over
// their node symbols. Literal operands stay inline.
func (g *ExpressionGraph) shape(e symbolic.Expr) (symbolic.Expr, []NodeID, error) {
	args := symbolic.Args(e)
	next := make([]symbolic.Expr, len(args))
	var deps []NodeID
	for i, a := range args {
		if n, ok := a.(*symbolic.Num); ok {
			next[i] = n
			continue
		}
		id, err := g.Intern(a)
		if err != nil {
			return nil, nil, err
		}
		next[i] = g.nodes[id].Symbol
		if !containsID(deps, id) {
			deps = append(deps, id)
		}
	}
	return symbolic.WithArgs(e, next), deps, nil
}

// internDefinition creates the node for a named auxiliary expression.
func (g *ExpressionGraph) internDefinition(name string) (NodeID, error) {
	if g.inProgress[name] {
		return 0, fmt.Errorf("%w: %s", ErrCyclicDependency, name)
	}
	g.inProgress[name] = true
	defer delete(g.inProgress, name)

	def := g.defs[name]
	var (
		expr symbolic.Expr
		deps []NodeID
	)
	switch v := def.(type) {
	case *symbolic.Num:
		id := g.addNode(&Node{
			Kind:          KindConstant,
			Symbol:        symbolic.S(name),
			Value:         v.Float64(),
			Precomputable: true,
		})
		g.constants = append(g.constants, id)
		return id, nil
	case *symbolic.Sym:
		id, err := g.Intern(v)
		if err != nil {
			return 0, err
		}
		expr, deps = g.nodes[id].Symbol, []NodeID{id}
	default:
		var err error
		expr, deps, err = g.shape(def)
		if err != nil {
			return 0, err
		}
		if id, ok := g.byShape[expr.String()]; ok {
			g.bySymbol[name] = id
			g.slots[name] = int(id)
			return id, nil
		}
	}
	id, err := g.addIntermediate(name, expr, deps)
	if err != nil {
		return 0, err
	}
	if symbolic.Args(def) != nil {
		g.byShape[expr.String()] = id
	}
	return id, nil
}

// addIntermediate registers a node defined by expr over deps. Intermediates
// that depend only on constants and numbers are evaluated immediately.
func (g *ExpressionGraph) addIntermediate(name string, expr symbolic.Expr, deps []NodeID) (NodeID, error) {
	tier := 0
	precomputable := true
	for _, d := range deps {
		dn := g.nodes[d]
		if dn.Tier >= tier {
			tier = dn.Tier + 1
		}
		precomputable = precomputable && dn.Precomputable
	}
	n := &Node{
		Kind:          KindIntermediate,
		Symbol:        symbolic.S(name),
		Expression:    expr,
		Tier:          tier,
		Dependencies:  deps,
		Precomputable: precomputable,
	}
	if pw, ok := expr.(*symbolic.Piecewise); ok {
		n.Payload = pw.Table()
	}
	var eval symbolic.Evaluator
	if precomputable {
		var err error
		if eval, err = symbolic.Compile(expr, g.slots); err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
	}
	id := g.addNode(n)
	g.intermediates = append(g.intermediates, id)
	if eval != nil {
		n.Value = eval(g.values)
		g.values[id] = n.Value
	}
	return id, nil
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
