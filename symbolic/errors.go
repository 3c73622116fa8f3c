package symbolic

import "errors"

var (
	// ErrUnboundSymbol is returned by Compile when a free symbol has no slot.
	ErrUnboundSymbol = errors.New("symbolic: unbound symbol")

	// ErrUnknownFunction is returned by Compile for a function without a
	// numeric implementation.
	ErrUnknownFunction = errors.New("symbolic: unknown function")

	// ErrSegmentCount is returned when a piecewise table does not carry
	// exactly one coefficient row per knot interval.
	ErrSegmentCount = errors.New("symbolic: wrong piecewise segment count")

	// ErrPiecewiseContinuity is returned when neighbouring piecewise
	// segments disagree at a shared knot.
	ErrPiecewiseContinuity = errors.New("symbolic: piecewise function is not continuous")

	// ErrInvalidJSON is returned by FromJSON for malformed documents.
	ErrInvalidJSON = errors.New("symbolic: invalid expression JSON")

	// ErrKnots is returned when piecewise knots are not strictly increasing.
	ErrKnots = errors.New("symbolic: piecewise knots must be strictly increasing")
)
