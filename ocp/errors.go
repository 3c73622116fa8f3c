package ocp

import "errors"

var (
	// ErrNonConstantBound is returned when a bound does not reduce to a
	// number using the problem's constants.
	ErrNonConstantBound = errors.New("ocp: bound is not constant")

	// ErrReservedName is returned for names starting with an underscore or
	// equal to t0 or tF.
	ErrReservedName = errors.New("ocp: reserved name")

	// ErrDuplicateName is returned when two problem symbols share a name.
	ErrDuplicateName = errors.New("ocp: duplicate name")

	// ErrIncomplete is returned when a problem lacks states, an objective
	// or a state equation.
	ErrIncomplete = errors.New("ocp: incomplete problem")
)
