package mesh

import "errors"

var (
	// ErrSegmentCount is returned when segment boundaries and per-segment
	// point counts disagree, or the boundaries do not span [0, 1] in
	// increasing order.
	ErrSegmentCount = errors.New("mesh: inconsistent segment count")

	// ErrCollocationPoints is returned for a segment with fewer than two
	// collocation points.
	ErrCollocationPoints = errors.New("mesh: too few collocation points")
)
