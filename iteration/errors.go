package iteration

import "errors"

var (
	// ErrNotImplemented is returned for problem shapes the discretisation
	// does not support, such as path constraints on integral variables.
	ErrNotImplemented = errors.New("iteration: not implemented")

	// ErrDimension is returned when bounds or guesses disagree with the
	// problem's variable counts.
	ErrDimension = errors.New("iteration: dimension mismatch")

	// ErrGuess is returned for an initial guess that cannot be
	// interpolated onto the mesh.
	ErrGuess = errors.New("iteration: invalid initial guess")
)
