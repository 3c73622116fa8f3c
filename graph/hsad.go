package graph

import "github.com/njchilds90/gocollo/symbolic"

// Function is a (possibly matrix-valued) function expressed over the root
// symbols the graph interned for each of its entries.
type Function struct {
	Name string

	// Expr holds one root symbol per entry in row-major order.
	Expr       []symbolic.Expr
	Rows, Cols int

	// Nodes are the root nodes, aligned with Expr.
	Nodes []NodeID

	// Precomputable lists every reachable node whose value does not depend
	// on any variable.
	Precomputable []NodeID

	// Tiers buckets the remaining reachable nodes by tier; Tiers[0] are
	// variables.
	Tiers [][]NodeID
}

// Len is the number of entries.
func (f Function) Len() int { return len(f.Expr) }

// At returns the root symbol of entry (i, j).
func (f Function) At(i, j int) symbolic.Expr { return f.Expr[i*f.Cols+j] }

// IsZero reports whether entry (i, j) is the literal zero.
func (f Function) IsZero(i, j int) bool { return symbolic.IsZero(f.At(i, j)) }

// Definition returns the symbolic formula of entry k with every dependent
// intermediate expanded back into variables, constants and literals.
func (g *ExpressionGraph) Definition(f Function, k int) symbolic.Expr {
	return g.expand(f.Nodes[k], map[NodeID]symbolic.Expr{})
}

func (g *ExpressionGraph) expand(id NodeID, memo map[NodeID]symbolic.Expr) symbolic.Expr {
	if e, ok := memo[id]; ok {
		return e
	}
	n := g.nodes[id]
	if n.Kind != KindIntermediate {
		memo[id] = n.Symbol
		return n.Symbol
	}
	repl := make(map[string]symbolic.Expr, len(n.Dependencies))
	for _, d := range n.Dependencies {
		repl[g.nodes[d].Key] = g.expand(d, memo)
	}
	e := symbolic.Subs(n.Expression, repl)
	memo[id] = e
	return e
}

// initialiseFunction interns every entry and classifies the reachable nodes.
func (g *ExpressionGraph) initialiseFunction(name string, exprs []symbolic.Expr, rows, cols int) (Function, error) {
	f := Function{
		Name:  name,
		Expr:  make([]symbolic.Expr, len(exprs)),
		Rows:  rows,
		Cols:  cols,
		Nodes: make([]NodeID, len(exprs)),
	}
	for i, e := range exprs {
		id, err := g.Intern(e)
		if err != nil {
			return Function{}, err
		}
		f.Expr[i] = g.nodes[id].Symbol
		f.Nodes[i] = id
	}

	maxTier := 0
	var dependent []NodeID
	for _, id := range g.closure(f.Nodes) {
		n := g.nodes[id]
		if n.Precomputable {
			f.Precomputable = append(f.Precomputable, id)
			continue
		}
		dependent = append(dependent, id)
		if n.Tier > maxTier {
			maxTier = n.Tier
		}
	}
	f.Tiers = make([][]NodeID, maxTier+1)
	for _, id := range dependent {
		t := g.nodes[id].Tier
		f.Tiers[t] = append(f.Tiers[t], id)
	}
	return f, nil
}

// partial is the direct derivative of node a with respect to node b, with
// every other node held fixed.
func (g *ExpressionGraph) partial(a, b NodeID) symbolic.Expr {
	n := g.nodes[a]
	switch n.Kind {
	case KindVariable:
		if a == b {
			return symbolic.N(1)
		}
		return symbolic.N(0)
	case KindIntermediate:
		if !n.dependsOn(b) {
			return symbolic.N(0)
		}
		return symbolic.Diff(n.Expression, g.nodes[b].Key)
	}
	return symbolic.N(0)
}

// partials returns the matrix of direct derivatives of each of outs with
// respect to each of ins.
func (g *ExpressionGraph) partials(outs, ins []NodeID) *symbolic.Matrix {
	m := symbolic.NewMatrix(len(outs), len(ins))
	col := make(map[NodeID]int, len(ins))
	for j, id := range ins {
		col[id] = j
	}
	for i, a := range outs {
		n := g.nodes[a]
		if n.Kind == KindVariable {
			if j, ok := col[a]; ok {
				m.Set(i, j, symbolic.N(1))
			}
			continue
		}
		for _, d := range n.Dependencies {
			if j, ok := col[d]; ok {
				m.Set(i, j, g.partial(a, d))
			}
		}
	}
	return m
}

// differentiate runs hSAD on f with respect to wrt. Row r of the result is
// the derivative of entry r of f.
func (g *ExpressionGraph) differentiate(f Function, wrt []NodeID) *symbolic.Matrix {
	tiers := [][]NodeID{wrt}
	for _, nodes := range f.Tiers[1:] {
		if len(nodes) > 0 {
			tiers = append(tiers, nodes)
		}
	}

	// df/de_i for every tier.
	dfde := make([]*symbolic.Matrix, len(tiers))
	for i, tier := range tiers {
		dfde[i] = g.partials(f.Nodes, tier)
	}

	// Δ_i = Σ_{j<i} (de_i/de_j)·Δ_j, Δ_0 = I.
	n0 := len(wrt)
	deltas := make([]*symbolic.Matrix, len(tiers))
	deltas[0] = symbolic.Identity(n0)
	for i := 1; i < len(tiers); i++ {
		delta := symbolic.NewMatrix(len(tiers[i]), n0)
		for j := 0; j < i; j++ {
			p := g.partials(tiers[i], tiers[j])
			if p.NonZero() == 0 {
				continue
			}
			delta = delta.MatAdd(p.MatMul(deltas[j]))
		}
		deltas[i] = delta
	}

	total := symbolic.NewMatrix(len(f.Nodes), n0)
	for i := range tiers {
		if dfde[i].NonZero() == 0 {
			continue
		}
		total = total.MatAdd(dfde[i].MatMul(deltas[i]))
	}
	return total
}
