package symbolic

import (
	"fmt"
	"strings"
)

// ============================================================
// Matrix — symbolic matrix
// ============================================================

type Matrix struct {
	rows, cols int
	data       [][]Expr
}

func NewMatrix(rows, cols int) *Matrix {
	data := make([][]Expr, rows)
	zero := N(0)
	for i := range data {
		data[i] = make([]Expr, cols)
		for j := range data[i] {
			data[i][j] = zero
		}
	}
	return &Matrix{rows: rows, cols: cols, data: data}
}

func MatrixFromSlice(rows, cols int, entries []Expr) *Matrix {
	if len(entries) != rows*cols {
		panic(fmt.Sprintf("symbolic: MatrixFromSlice needs %d entries, got %d", rows*cols, len(entries)))
	}
	m := NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.data[i][j] = entries[i*cols+j]
		}
	}
	return m
}

// ColumnVector builds an n×1 matrix.
func ColumnVector(entries []Expr) *Matrix { return MatrixFromSlice(len(entries), 1, entries) }

// RowVector builds a 1×n matrix.
func RowVector(entries []Expr) *Matrix { return MatrixFromSlice(1, len(entries), entries) }

func (m *Matrix) checkBounds(row, col int) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("symbolic: matrix index out of range [%d,%d] for %dx%d", row, col, m.rows, m.cols))
	}
}

func (m *Matrix) Get(row, col int) Expr {
	m.checkBounds(row, col)
	return m.data[row][col]
}
func (m *Matrix) Set(row, col int, val Expr) {
	m.checkBounds(row, col)
	m.data[row][col] = val
}
func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// Entries returns the elements in row-major order.
func (m *Matrix) Entries() []Expr {
	out := make([]Expr, 0, m.rows*m.cols)
	for i := 0; i < m.rows; i++ {
		out = append(out, m.data[i]...)
	}
	return out
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []Expr {
	m.checkBounds(i, 0)
	return append([]Expr(nil), m.data[i]...)
}

func (m *Matrix) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < m.rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("[")
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(m.data[i][j].String())
		}
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}

func (m *Matrix) MatAdd(other *Matrix) *Matrix {
	if m.rows != other.rows || m.cols != other.cols {
		panic("symbolic: matrix dimension mismatch in MatAdd")
	}
	result := NewMatrix(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			a, b := m.data[i][j], other.data[i][j]
			switch {
			case IsZero(a):
				result.data[i][j] = b
			case IsZero(b):
				result.data[i][j] = a
			default:
				result.data[i][j] = AddOf(a, b)
			}
		}
	}
	return result
}

// MatMul skips structurally zero products, which dominate the sparse
// derivative matrices built during differentiation.
func (m *Matrix) MatMul(other *Matrix) *Matrix {
	if m.cols != other.rows {
		panic("symbolic: matrix dimension mismatch in MatMul")
	}
	result := NewMatrix(m.rows, other.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < other.cols; j++ {
			var terms []Expr
			for k := 0; k < m.cols; k++ {
				a, b := m.data[i][k], other.data[k][j]
				if IsZero(a) || IsZero(b) {
					continue
				}
				terms = append(terms, MulOf(a, b))
			}
			if len(terms) > 0 {
				result.data[i][j] = AddOf(terms...)
			}
		}
	}
	return result
}

func (m *Matrix) Scale(scalar Expr) *Matrix {
	result := NewMatrix(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			result.data[i][j] = MulOf(scalar, m.data[i][j])
		}
	}
	return result
}

func (m *Matrix) Transpose() *Matrix {
	result := NewMatrix(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			result.data[j][i] = m.data[i][j]
		}
	}
	return result
}

// LowerTriangular returns a copy with every strictly-upper entry set to 0.
func (m *Matrix) LowerTriangular() *Matrix {
	result := NewMatrix(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j <= i && j < m.cols; j++ {
			result.data[i][j] = m.data[i][j]
		}
	}
	return result
}

func (m *Matrix) ApplySub(varName string, value Expr) *Matrix {
	result := NewMatrix(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			result.data[i][j] = Sub(m.data[i][j], varName, value)
		}
	}
	return result
}

func (m *Matrix) ApplyDiff(varName string) *Matrix {
	result := NewMatrix(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			result.data[i][j] = Diff(m.data[i][j], varName)
		}
	}
	return result
}

// NonZero counts entries that are not the literal zero.
func (m *Matrix) NonZero() int {
	n := 0
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			if !IsZero(m.data[i][j]) {
				n++
			}
		}
	}
	return n
}

func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.data[i][i] = N(1)
	}
	return m
}
