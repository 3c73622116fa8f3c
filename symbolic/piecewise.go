package symbolic

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// ============================================================
// Piecewise — tabulated functions of one argument
// ============================================================

// PiecewiseKind selects how a Table is built and how its argument is mapped
// onto the knot range.
type PiecewiseKind int

const (
	LinearSegments PiecewiseKind = iota
	CyclicLinearSegments
	PolynomialTable
	CyclicPolynomialTable
)

func (k PiecewiseKind) String() string {
	switch k {
	case LinearSegments:
		return "linear"
	case CyclicLinearSegments:
		return "cyclic_linear"
	case PolynomialTable:
		return "polynomial"
	case CyclicPolynomialTable:
		return "cyclic_polynomial"
	}
	return fmt.Sprintf("PiecewiseKind(%d)", int(k))
}

// Cyclic reports whether arguments wrap around the knot range.
func (k PiecewiseKind) Cyclic() bool {
	return k == CyclicLinearSegments || k == CyclicPolynomialTable
}

// ContinuityTolerance is the absolute tolerance used when checking that
// adjacent segments meet and that cyclic tables wrap around.
const ContinuityTolerance = 1e-9

// Table is a piecewise polynomial. Segment i covers [Knots[i], Knots[i+1]]
// and Coeffs[i] holds its coefficients in ascending powers of (x - Knots[i]).
type Table struct {
	Name   string
	Kind   PiecewiseKind
	Knots  []float64
	Coeffs [][]float64

	derivOnce sync.Once
	deriv     *Table
}

// NewLinearTable interpolates the points (xs[i], ys[i]) linearly.
func NewLinearTable(name string, xs, ys []float64, cyclic bool) (*Table, error) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return nil, fmt.Errorf("%w: %d knots, %d values", ErrSegmentCount, len(xs), len(ys))
	}
	coeffs := make([][]float64, len(xs)-1)
	for i := range coeffs {
		h := xs[i+1] - xs[i]
		if h <= 0 {
			return nil, fmt.Errorf("%w: knot %d at %v does not follow %v", ErrKnots, i+1, xs[i+1], xs[i])
		}
		coeffs[i] = []float64{ys[i], (ys[i+1] - ys[i]) / h}
	}
	kind := LinearSegments
	if cyclic {
		kind = CyclicLinearSegments
	}
	return NewTable(name, kind, xs, coeffs)
}

// NewTable validates and returns a polynomial table.
func NewTable(name string, kind PiecewiseKind, knots []float64, coeffs [][]float64) (*Table, error) {
	t := &Table{
		Name:   name,
		Kind:   kind,
		Knots:  append([]float64(nil), knots...),
		Coeffs: make([][]float64, len(coeffs)),
	}
	for i, c := range coeffs {
		t.Coeffs[i] = append([]float64(nil), c...)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	if len(t.Knots) < 2 {
		return fmt.Errorf("%w: %s needs at least two knots", ErrKnots, t.Name)
	}
	if len(t.Coeffs) != len(t.Knots)-1 {
		return fmt.Errorf("%w: %s has %d knots but %d segments", ErrSegmentCount, t.Name, len(t.Knots), len(t.Coeffs))
	}
	for i := 1; i < len(t.Knots); i++ {
		if !(t.Knots[i] > t.Knots[i-1]) {
			return fmt.Errorf("%w: %s knot %d is not increasing", ErrKnots, t.Name, i)
		}
	}
	for i, c := range t.Coeffs {
		if len(c) == 0 {
			return fmt.Errorf("%w: %s segment %d has no coefficients", ErrSegmentCount, t.Name, i)
		}
	}
	for i := 0; i+1 < len(t.Coeffs); i++ {
		left := t.segmentAt(i, t.Knots[i+1])
		right := t.segmentAt(i+1, t.Knots[i+1])
		if math.Abs(left-right) > ContinuityTolerance {
			return fmt.Errorf("%w: %s jumps by %g at knot %d", ErrPiecewiseContinuity, t.Name, right-left, i+1)
		}
	}
	if t.Kind.Cyclic() {
		last := len(t.Coeffs) - 1
		end := t.segmentAt(last, t.Knots[last+1])
		start := t.segmentAt(0, t.Knots[0])
		if math.Abs(end-start) > ContinuityTolerance {
			return fmt.Errorf("%w: %s does not wrap around (%g vs %g)", ErrPiecewiseContinuity, t.Name, end, start)
		}
	}
	return nil
}

func (t *Table) segmentAt(i int, x float64) float64 {
	c := t.Coeffs[i]
	dx := x - t.Knots[i]
	v := 0.0
	for p := len(c) - 1; p >= 0; p-- {
		v = v*dx + c[p]
	}
	return v
}

// Period is the length of the knot range.
func (t *Table) Period() float64 { return t.Knots[len(t.Knots)-1] - t.Knots[0] }

// At evaluates the table. Non-cyclic tables extrapolate with their end
// segments; cyclic tables wrap x into the knot range first.
func (t *Table) At(x float64) float64 {
	lo := t.Knots[0]
	if t.Kind.Cyclic() {
		p := t.Period()
		x = lo + math.Mod(x-lo, p)
		if x < lo {
			x += p
		}
	}
	i := sort.SearchFloat64s(t.Knots, x) - 1
	if i < 0 {
		i = 0
	}
	if i > len(t.Coeffs)-1 {
		i = len(t.Coeffs) - 1
	}
	return t.segmentAt(i, x)
}

// Derivative returns the table of the first derivative. It is built once and
// skips continuity validation since derivatives of continuous tables may jump.
func (t *Table) Derivative() *Table {
	t.derivOnce.Do(func() {
		coeffs := make([][]float64, len(t.Coeffs))
		for i, c := range t.Coeffs {
			if len(c) <= 1 {
				coeffs[i] = []float64{0}
				continue
			}
			d := make([]float64, len(c)-1)
			for p := 1; p < len(c); p++ {
				d[p-1] = float64(p) * c[p]
			}
			coeffs[i] = d
		}
		t.deriv = &Table{Name: t.Name + "'", Kind: t.Kind, Knots: t.Knots, Coeffs: coeffs}
	})
	return t.deriv
}

// Piecewise applies a Table to an argument expression.
type Piecewise struct {
	table *Table
	arg   Expr
}

func PiecewiseOf(table *Table, arg Expr) Expr { return (&Piecewise{table: table, arg: arg}).Simplify() }

func (p *Piecewise) Table() *Table { return p.table }
func (p *Piecewise) Arg() Expr     { return p.arg }

func (p *Piecewise) Simplify() Expr {
	arg := p.arg.Simplify()
	if n, ok := arg.(*Num); ok {
		v := p.table.At(n.Float64())
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return NFloat(v)
		}
	}
	return &Piecewise{table: p.table, arg: arg}
}

// String uses square brackets so tables never collide with elementary
// functions of the same name.
func (p *Piecewise) String() string { return p.table.Name + "[" + p.arg.String() + "]" }

func (p *Piecewise) Sub(varName string, value Expr) Expr {
	return PiecewiseOf(p.table, p.arg.Sub(varName, value))
}

func (p *Piecewise) Diff(varName string) Expr {
	du := p.arg.Diff(varName)
	if IsZero(du) {
		return N(0)
	}
	return MulOf(PiecewiseOf(p.table.Derivative(), p.arg), du)
}

func (p *Piecewise) Eval() (*Num, bool) {
	n, ok := p.arg.Eval()
	if !ok {
		return nil, false
	}
	v := p.table.At(n.Float64())
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return NFloat(v), true
}

func (p *Piecewise) Equal(other Expr) bool {
	o, ok := other.(*Piecewise)
	return ok && p.table == o.table && p.arg.Equal(o.arg)
}

func (p *Piecewise) exprType() string { return "piecewise" }
func (p *Piecewise) toJSON() map[string]interface{} {
	return map[string]interface{}{
		"type":   "piecewise",
		"name":   p.table.Name,
		"kind":   p.table.Kind.String(),
		"knots":  p.table.Knots,
		"coeffs": p.table.Coeffs,
		"arg":    p.arg.toJSON(),
	}
}
