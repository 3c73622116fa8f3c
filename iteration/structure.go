package iteration

import (
	"fmt"

	"github.com/njchilds90/gocollo/graph"
	"github.com/njchilds90/gocollo/mesh"
)

// Block names the contiguous range of the nonzero arrays holding one
// (constraint block, variable block) pair.
type Block struct {
	Name string
	Slice
}

// Structure is the constraint Jacobian's sparsity pattern.
type Structure struct {
	Rows   []int
	Cols   []int
	Blocks []Block

	terms []term
}

// Len is the number of declared nonzeros.
func (s *Structure) Len() int { return len(s.Rows) }

// Block returns the range recorded under name.
func (s *Structure) Block(name string) (Slice, bool) {
	for _, b := range s.Blocks {
		if b.Name == name {
			return b.Slice, true
		}
	}
	return Slice{}, false
}

// term computes one Jacobian value from a filled evaluation.
type term func(e *evaluation) float64

type entry struct {
	col int
	val float64
}

// pattern is the per-row entry list of a mesh matrix.
func pattern(m *mesh.Sparse) [][]entry {
	rows, _ := m.Dims()
	out := make([][]entry, rows)
	for k := range m.V {
		out[m.I[k]] = append(out[m.I[k]], entry{col: m.J[k], val: m.V[k]})
	}
	return out
}

// dependency answers structural questions about the graph's derivatives.
type dependency struct {
	d *graph.Derivatives
}

// on reports whether continuous function k can depend on variable v.
func (p dependency) on(k, v int) bool { return !p.d.ContinuousJacobian.IsZero(k, v) }

// nonzero reports whether continuous function k is not identically zero.
func (p dependency) nonzero(k int) bool { return !p.d.Continuous.IsZero(k, 0) }

// stretch reports whether the time-normalisation depends on endpoint
// variable e.
func (p dependency) stretch(e int) bool { return !p.d.TimeNormalisationGradient.IsZero(0, e) }

// endpoint reports whether endpoint function j depends on endpoint
// variable e.
func (p dependency) endpoint(j, e int) bool { return !p.d.EndpointJacobian.IsZero(j, e) }

type structureBuilder struct {
	l   Layout
	dep dependency
	a   [][]entry
	d   map[[2]int]float64
	w   []float64
	s   *Structure
}

func (b *structureBuilder) add(row, col int, t term) {
	b.s.Rows = append(b.s.Rows, row)
	b.s.Cols = append(b.s.Cols, col)
	b.s.terms = append(b.s.terms, t)
}

// block records every entry added by fill under name.
func (b *structureBuilder) block(name string, fill func()) {
	start := len(b.s.Rows)
	fill()
	b.s.Blocks = append(b.s.Blocks, Block{Name: name, Slice: Slice{Start: start, Stop: len(b.s.Rows)}})
}

// buildStructure declares every structurally nonzero Jacobian entry, block
// by block, in a fixed order.
func buildStructure(l Layout, d *graph.Derivatives, m Mesh) (*Structure, error) {
	b := &structureBuilder{
		l:   l,
		dep: dependency{d: d},
		a:   pattern(m.Integration()),
		d:   map[[2]int]float64{},
		w:   m.Weights(),
		s:   &Structure{},
	}
	dm := m.Differentiation()
	for k := range dm.V {
		b.d[[2]int{dm.I[k], dm.J[k]}] += dm.V[k]
	}

	numDyn := l.States
	for j := 0; j < l.NumPath; j++ {
		for q := 0; q < l.Integrals; q++ {
			if b.dep.on(numDyn+j, l.States+l.Controls+q) {
				return nil, fmt.Errorf("%w: path constraint %d depends on integral variable %d", ErrNotImplemented, j, q)
			}
		}
	}

	b.block("defect_state", b.defectState)
	b.block("defect_control", func() { b.defectPointwise(l.States, l.Controls) })
	b.block("defect_time", b.defectTime)
	b.block("defect_parameter", func() { b.defectAggregate(l.States+l.Controls+l.Integrals+NumTime, l.Parameters) })

	b.block("path_state", func() { b.path(0, l.States) })
	b.block("path_control", func() { b.path(l.States, l.Controls) })
	b.block("path_time", func() { b.path(l.States+l.Controls+l.Integrals, NumTime) })
	b.block("path_parameter", func() { b.path(l.States+l.Controls+l.Integrals+NumTime, l.Parameters) })

	b.block("integral_state", func() { b.integralPointwise(0, l.States) })
	b.block("integral_control", func() { b.integralPointwise(l.States, l.Controls) })
	b.block("integral_integral", b.integralIntegral)
	b.block("integral_time", b.integralTime)
	b.block("integral_parameter", func() { b.integralAggregate(l.States+l.Controls+l.Integrals+NumTime, l.Parameters) })

	b.block("boundary_initial", func() { b.boundary(0, l.States) })
	b.block("boundary_final", func() { b.boundary(l.States, l.States) })
	b.block("boundary_qts", func() { b.boundary(2*l.States, l.Integrals+NumTime+l.Parameters) })
	return b.s, nil
}

// ============================================================
// Defect blocks: ζ_i = D·Y_i - s·A·F_i
// ============================================================

func (b *structureBuilder) defectRow(i, r int) int { return b.l.Defect.Start + i*(b.l.N-1) + r }

func (b *structureBuilder) defectState() {
	l := b.l
	for i := 0; i < l.States; i++ {
		for j := 0; j < l.States; j++ {
			depends := b.dep.on(i, j)
			if !depends && i != j {
				continue
			}
			for r, row := range b.a {
				for _, en := range row {
					// D·Y_i only differentiates with respect to y_i itself.
					dv, inD := 0.0, false
					if i == j {
						dv, inD = b.d[[2]int{r, en.col}]
					}
					if !depends && !inD {
						continue
					}
					b.add(b.defectRow(i, r), l.continuousColumn(j, en.col), func(e *evaluation) float64 {
						return dv - e.s*en.val*e.jac(en.col, i, j)
					})
				}
			}
		}
	}
}

// defectPointwise declares the A pattern for every dependent (state, v) pair
// with v in [first, first+count) pointwise variables.
func (b *structureBuilder) defectPointwise(first, count int) {
	l := b.l
	for i := 0; i < l.States; i++ {
		for v := first; v < first+count; v++ {
			if !b.dep.on(i, v) {
				continue
			}
			for r, row := range b.a {
				for _, en := range row {
					b.add(b.defectRow(i, r), l.continuousColumn(v, en.col), func(e *evaluation) float64 {
						return -e.s * en.val * e.jac(en.col, i, v)
					})
				}
			}
		}
	}
}

func (b *structureBuilder) defectTime() {
	l := b.l
	for i := 0; i < l.States; i++ {
		for m := 0; m < NumTime; m++ {
			v, ep := l.timeIndex(m)
			viaStretch := b.dep.stretch(ep) && b.dep.nonzero(i)
			if !viaStretch && !b.dep.on(i, v) {
				continue
			}
			for r, row := range b.a {
				b.add(b.defectRow(i, r), l.continuousColumn(v, 0), func(e *evaluation) float64 {
					af, aj := 0.0, 0.0
					for _, en := range row {
						af += en.val * e.f[en.col][i]
						aj += en.val * e.jac(en.col, i, v)
					}
					return -e.ds[m]*af - e.s*aj
				})
			}
		}
	}
}

// defectAggregate declares full columns for global variables the
// dynamics depend on directly.
func (b *structureBuilder) defectAggregate(first, count int) {
	l := b.l
	for i := 0; i < l.States; i++ {
		for v := first; v < first+count; v++ {
			if !b.dep.on(i, v) {
				continue
			}
			for r, row := range b.a {
				b.add(b.defectRow(i, r), l.continuousColumn(v, 0), func(e *evaluation) float64 {
					aj := 0.0
					for _, en := range row {
						aj += en.val * e.jac(en.col, i, v)
					}
					return -e.s * aj
				})
			}
		}
	}
}

// ============================================================
// Path blocks: γ_j(c) = g_j(x_c)
// ============================================================

func (b *structureBuilder) path(first, count int) {
	l := b.l
	for j := 0; j < l.NumPath; j++ {
		k := l.States + j
		for v := first; v < first+count; v++ {
			if !b.dep.on(k, v) {
				continue
			}
			for c := 0; c < l.N; c++ {
				b.add(l.Path.Start+j*l.N+c, l.continuousColumn(v, c), func(e *evaluation) float64 {
					return e.jac(c, k, v)
				})
			}
		}
	}
}

// ============================================================
// Integral blocks: ρ_i = q_i - s·W·G_i
// ============================================================

func (b *structureBuilder) integrand(i int) int { return b.l.States + b.l.NumPath + i }

func (b *structureBuilder) integralPointwise(first, count int) {
	l := b.l
	for i := 0; i < l.Integrals; i++ {
		k := b.integrand(i)
		for v := first; v < first+count; v++ {
			if !b.dep.on(k, v) {
				continue
			}
			for c, w := range b.w {
				b.add(l.Integral.Start+i, l.continuousColumn(v, c), func(e *evaluation) float64 {
					return -e.s * w * e.jac(c, k, v)
				})
			}
		}
	}
}

func (b *structureBuilder) integralIntegral() {
	l := b.l
	for i := 0; i < l.Integrals; i++ {
		b.add(l.Integral.Start+i, l.Q.Start+i, func(*evaluation) float64 { return 1 })
	}
}

func (b *structureBuilder) integralTime() {
	l := b.l
	for i := 0; i < l.Integrals; i++ {
		k := b.integrand(i)
		for m := 0; m < NumTime; m++ {
			v, ep := l.timeIndex(m)
			if !(b.dep.stretch(ep) && b.dep.nonzero(k)) && !b.dep.on(k, v) {
				continue
			}
			b.add(l.Integral.Start+i, l.continuousColumn(v, 0), func(e *evaluation) float64 {
				wg, wj := 0.0, 0.0
				for c, w := range b.w {
					wg += w * e.f[c][k]
					wj += w * e.jac(c, k, v)
				}
				return -e.ds[m]*wg - e.s*wj
			})
		}
	}
}

func (b *structureBuilder) integralAggregate(first, count int) {
	l := b.l
	for i := 0; i < l.Integrals; i++ {
		k := b.integrand(i)
		for v := first; v < first+count; v++ {
			if !b.dep.on(k, v) {
				continue
			}
			b.add(l.Integral.Start+i, l.continuousColumn(v, 0), func(e *evaluation) float64 {
				wj := 0.0
				for c, w := range b.w {
					wj += w * e.jac(c, k, v)
				}
				return -e.s * wj
			})
		}
	}
}

// ============================================================
// Boundary blocks: β_j = b_j(y(t0), y(tF), q, t, s)
// ============================================================

func (b *structureBuilder) boundary(first, count int) {
	l := b.l
	for j := 0; j < l.NumBoundary; j++ {
		for ep := first; ep < first+count; ep++ {
			if !b.dep.endpoint(j, ep) {
				continue
			}
			b.add(l.Boundary.Start+j, l.endpointColumn(ep), func(e *evaluation) float64 {
				return e.endJac[j*e.ne+ep]
			})
		}
	}
}
