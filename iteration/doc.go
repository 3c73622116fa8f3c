// Package iteration discretises an expression graph against one mesh.
//
// An Iteration lays the decision vector out as
//
//	x = [Y (state-major) | U (control-major) | Q | t0 tF | S]
//
// and the constraint vector as defect | path | integral | boundary, declares
// the sparse Jacobian (and Lagrangian Hessian) patterns block by block, and
// exposes the pure numeric callbacks an NLP backend consumes. After a solve
// it builds a Solution holding per-segment polynomial reconstructions and
// the local discretisation error that drives mesh refinement.
//
// An Iteration is rebuilt whenever the mesh changes. The expression graph it
// reads is shared and never modified.
package iteration
