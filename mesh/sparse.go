package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sparse is a coordinate-format matrix. Entries are kept in the order they
// were added, which is row-major for every matrix this package builds.
type Sparse struct {
	rows, cols int
	I, J       []int
	V          []float64
}

// NewSparse returns an empty rows×cols matrix.
func NewSparse(rows, cols int) *Sparse {
	return &Sparse{rows: rows, cols: cols}
}

// Dims returns the shape.
func (s *Sparse) Dims() (int, int) { return s.rows, s.cols }

// NNZ is the number of stored entries.
func (s *Sparse) NNZ() int { return len(s.V) }

// Add appends v at (i, j). Duplicate coordinates are summed when used.
func (s *Sparse) Add(i, j int, v float64) {
	if i < 0 || i >= s.rows || j < 0 || j >= s.cols {
		panic(fmt.Sprintf("mesh: index (%d, %d) out of range %dx%d", i, j, s.rows, s.cols))
	}
	s.I = append(s.I, i)
	s.J = append(s.J, j)
	s.V = append(s.V, v)
}

// MulVec returns s·x.
func (s *Sparse) MulVec(x []float64) []float64 {
	out := make([]float64, s.rows)
	for k, v := range s.V {
		out[s.I[k]] += v * x[s.J[k]]
	}
	return out
}

// RowPattern returns, for each row, the columns holding a stored entry.
func (s *Sparse) RowPattern() [][]int {
	out := make([][]int, s.rows)
	for k := range s.V {
		out[s.I[k]] = append(out[s.I[k]], s.J[k])
	}
	return out
}

// Dense expands s into a gonum matrix.
func (s *Sparse) Dense() *mat.Dense {
	d := mat.NewDense(s.rows, s.cols, nil)
	for k, v := range s.V {
		d.Set(s.I[k], s.J[k], d.At(s.I[k], s.J[k])+v)
	}
	return d
}
