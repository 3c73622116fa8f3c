package nlp

import "errors"

var (
	// ErrUnsupportedBackend is returned by New for any backend name other
	// than the one this module implements.
	ErrUnsupportedBackend = errors.New("nlp: unsupported backend")

	// ErrDimension is returned when a problem's vectors disagree with its
	// declared sizes.
	ErrDimension = errors.New("nlp: dimension mismatch")

	// ErrBounds is returned for crossed bounds.
	ErrBounds = errors.New("nlp: inconsistent bounds")
)
