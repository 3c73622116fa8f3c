package graph

import (
	"fmt"

	"github.com/njchilds90/gocollo/symbolic"
)

// NodeID indexes a node in the graph arena.
type NodeID int

// Kind classifies a node.
type Kind int

const (
	KindVariable Kind = iota
	KindConstant
	KindNumber
	KindIntermediate
)

func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "variable"
	case KindConstant:
		return "constant"
	case KindNumber:
		return "number"
	case KindIntermediate:
		return "intermediate"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is one interned symbol of the graph.
type Node struct {
	ID   NodeID
	Kind Kind

	// Symbol is a *symbolic.Sym for variables, constants and intermediates
	// and a *symbolic.Num for number literals. Key is its string form.
	Symbol symbolic.Expr
	Key    string

	// Expression defines an intermediate in terms of the symbols of its
	// dependencies. Literal operands stay inline. Nil for other kinds.
	Expression symbolic.Expr

	// Value holds the numeric value of constants, numbers and
	// precomputable intermediates.
	Value float64

	Tier          int
	Dependencies  []NodeID
	Precomputable bool

	// Payload is the piecewise table applied by this node, if any.
	Payload *symbolic.Table
}

func (n *Node) String() string {
	if n.Expression != nil {
		return fmt.Sprintf("%s[%s tier=%d] = %s", n.Key, n.Kind, n.Tier, n.Expression)
	}
	return fmt.Sprintf("%s[%s tier=%d]", n.Key, n.Kind, n.Tier)
}

func (n *Node) dependsOn(id NodeID) bool {
	for _, d := range n.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}
