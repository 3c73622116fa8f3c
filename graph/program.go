package graph

import (
	"fmt"

	"github.com/njchilds90/gocollo/symbolic"
)

type step struct {
	id   NodeID
	eval symbolic.Evaluator
}

// Program evaluates a Function numerically. It is compiled once and then run
// against environments from NewEnv whose variable slots the caller fills.
type Program struct {
	steps   []step
	outputs []NodeID
}

// Compile prepares f for repeated numeric evaluation.
func (g *ExpressionGraph) Compile(f Function) (*Program, error) {
	p := &Program{outputs: append([]NodeID(nil), f.Nodes...)}
	for t := 1; t < len(f.Tiers); t++ {
		for _, id := range f.Tiers[t] {
			n := g.nodes[id]
			if n.Kind != KindIntermediate {
				continue
			}
			eval, err := symbolic.Compile(n.Expression, g.slots)
			if err != nil {
				return nil, fmt.Errorf("%s: node %s: %w", f.Name, n.Key, err)
			}
			p.steps = append(p.steps, step{id: id, eval: eval})
		}
	}
	return p, nil
}

// Len is the number of outputs.
func (p *Program) Len() int { return len(p.outputs) }

// Eval computes every dependent intermediate in tier order, writing into
// env, and copies the outputs into out.
func (p *Program) Eval(env, out []float64) {
	for _, s := range p.steps {
		env[s.id] = s.eval(env)
	}
	for i, id := range p.outputs {
		out[i] = env[id]
	}
}
