package graph

import "errors"

var (
	// ErrCyclicDependency is returned when an auxiliary definition refers
	// back to itself, directly or through other definitions.
	ErrCyclicDependency = errors.New("graph: cyclic dependency")

	// ErrUnknownSymbol is returned when an expression mentions a symbol that
	// is neither a variable, a constant nor an auxiliary definition.
	ErrUnknownSymbol = errors.New("graph: unknown symbol")

	// ErrIntegralDependency is returned when dynamics or integrands depend on
	// integral variables.
	ErrIntegralDependency = errors.New("graph: continuous function depends on an integral variable")

	// ErrVariableDomain is returned when a continuous function references an
	// endpoint-only variable or the other way round.
	ErrVariableDomain = errors.New("graph: variable outside function domain")

	// ErrDuplicateSymbol is returned when a name is declared twice.
	ErrDuplicateSymbol = errors.New("graph: duplicate symbol")
)
