// Package graph organises the symbolic equations of an optimal-control
// problem into an expression graph and differentiates it.
//
// Every distinct sub-expression is interned exactly once into an arena of
// nodes addressed by NodeID. Nodes are tiered by dependency depth, and the
// hybrid symbolic/algorithmic differentiation (hSAD) walks those tiers with
// delta matrices so that shared sub-expressions are differentiated once and
// reused, instead of re-expanding every substitution.
//
// A graph is built once by New and is read-only afterwards.
package graph
