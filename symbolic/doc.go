// Package symbolic provides the deterministic symbolic kernel the expression
// graph is built on.
//
// Design goals:
//   - Exact rational arithmetic for literals (math/big.Rat)
//   - Deterministic simplification and stable, canonical String output
//     (the string form doubles as the interning key of a graph node)
//   - Differentiation, substitution and free-symbol queries on small
//     expressions, plus compilation to float64 closures for evaluation
//   - Piecewise tables owned directly by the expressions that use them
package symbolic
