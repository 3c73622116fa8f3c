package iteration

import "fmt"

// Slice is the half-open range [Start, Stop).
type Slice struct {
	Start, Stop int
}

// Len is Stop - Start.
func (s Slice) Len() int { return s.Stop - s.Start }

func (s Slice) String() string { return fmt.Sprintf("[%d, %d)", s.Start, s.Stop) }

// Dims are the problem's variable and function counts. Time is always the
// pair (t0, tF).
type Dims struct {
	States     int
	Controls   int
	Integrals  int
	Parameters int
}

// NumTime is the number of time variables.
const NumTime = 2

// Layout places the five variable blocks and four constraint blocks.
type Layout struct {
	Dims
	// N is the mesh node count.
	N int

	NumPath, NumBoundary int

	Y, U, Q, T, S                    Slice
	Defect, Path, Integral, Boundary Slice
}

func newLayout(d Dims, n, numPath, numBoundary int) Layout {
	l := Layout{Dims: d, N: n, NumPath: numPath, NumBoundary: numBoundary}
	next := func(size int, at *int) Slice {
		s := Slice{Start: *at, Stop: *at + size}
		*at = s.Stop
		return s
	}
	x := 0
	l.Y = next(d.States*n, &x)
	l.U = next(d.Controls*n, &x)
	l.Q = next(d.Integrals, &x)
	l.T = next(NumTime, &x)
	l.S = next(d.Parameters, &x)

	c := 0
	l.Defect = next(d.States*(n-1), &c)
	l.Path = next(numPath*n, &c)
	l.Integral = next(d.Integrals, &c)
	l.Boundary = next(numBoundary, &c)
	return l
}

// NumX is the decision-vector length.
func (l Layout) NumX() int { return l.S.Stop }

// NumC is the constraint-vector length.
func (l Layout) NumC() int { return l.Boundary.Stop }

// numContinuous is the length of the continuous variable list:
// y, u, q, t0, tF, s.
func (l Layout) numContinuous() int {
	return l.States + l.Controls + l.Integrals + NumTime + l.Parameters
}

// continuousColumn maps continuous variable v at node c onto x.
func (l Layout) continuousColumn(v, c int) int {
	if l.isGlobal(v) {
		return l.Q.Start + v - l.States - l.Controls
	}
	if v < l.States {
		return l.Y.Start + v*l.N + c
	}
	return l.U.Start + (v-l.States)*l.N + c
}

// endpointColumn maps endpoint variable e (y(t0), y(tF), q, t0, tF, s)
// onto x.
func (l Layout) endpointColumn(e int) int {
	switch {
	case e < l.States:
		return l.Y.Start + e*l.N
	case e < 2*l.States:
		return l.Y.Start + (e-l.States)*l.N + l.N - 1
	}
	return l.Q.Start + e - 2*l.States
}

// timeIndex returns the continuous and endpoint variable indices of t0
// (m = 0) or tF (m = 1).
func (l Layout) timeIndex(m int) (continuous, endpoint int) {
	return l.States + l.Controls + l.Integrals + m, 2*l.States + l.Integrals + m
}

// isGlobal reports whether continuous variable v is shared by every node.
func (l Layout) isGlobal(v int) bool { return v >= l.States+l.Controls }
