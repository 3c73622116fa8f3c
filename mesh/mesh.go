// Package mesh implements the Lobatto collocation mesh the discretisation
// layer is built against: segment layout, the sparse integration and
// differentiation matrices relating node values to their integrals, and the
// quadrature weights over the whole horizon.
//
// Normalised time τ runs over [-1, 1]. Adjacent segments share their
// boundary node, so a mesh of K segments with n_k points each has
// N = Σ(n_k - 1) + 1 nodes.
package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// EquispacedTolerance is the absolute tolerance used when comparing segment
// widths.
const EquispacedTolerance = 1e-9

// Mesh is an immutable Lobatto mesh.
type Mesh struct {
	boundaries []float64
	points     []int
	starts     []int
	tau        []float64
	n          int

	a *Sparse
	d *Sparse
	w []float64
}

// New builds a mesh from normalised segment boundaries on [0, 1] and the
// number of collocation points in each segment.
func New(boundaries []float64, points []int) (*Mesh, error) {
	if len(boundaries) < 2 || len(points) != len(boundaries)-1 {
		return nil, fmt.Errorf("%w: %d boundaries for %d segments", ErrSegmentCount, len(boundaries), len(points))
	}
	if math.Abs(boundaries[0]) > EquispacedTolerance || math.Abs(boundaries[len(boundaries)-1]-1) > EquispacedTolerance {
		return nil, fmt.Errorf("%w: boundaries must span [0, 1]", ErrSegmentCount)
	}
	for k := 1; k < len(boundaries); k++ {
		if boundaries[k] <= boundaries[k-1] {
			return nil, fmt.Errorf("%w: boundaries not increasing at %d", ErrSegmentCount, k)
		}
	}
	for k, p := range points {
		if p < 2 {
			return nil, fmt.Errorf("%w: segment %d has %d", ErrCollocationPoints, k, p)
		}
	}

	m := &Mesh{
		boundaries: append([]float64(nil), boundaries...),
		points:     append([]int(nil), points...),
	}
	m.boundaries[0], m.boundaries[len(m.boundaries)-1] = 0, 1
	m.n = 1
	for _, p := range points {
		m.starts = append(m.starts, m.n-1)
		m.n += p - 1
	}
	if err := m.assemble(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewUniform builds a mesh of equal segments with the same point count.
func NewUniform(segments, points int) (*Mesh, error) {
	if segments < 1 {
		return nil, fmt.Errorf("%w: %d segments", ErrSegmentCount, segments)
	}
	b := make([]float64, segments+1)
	p := make([]int, segments)
	for k := range b {
		b[k] = float64(k) / float64(segments)
	}
	for k := range p {
		p[k] = points
	}
	return New(b, p)
}

func (m *Mesh) assemble() error {
	m.tau = make([]float64, m.n)
	m.w = make([]float64, m.n)
	m.a = NewSparse(m.n-1, m.n)
	m.d = NewSparse(m.n-1, m.n)

	cache := map[int]*lobatto{}
	for k, p := range m.points {
		lb, ok := cache[p]
		if !ok {
			var err error
			if lb, err = newLobatto(p); err != nil {
				return err
			}
			cache[p] = lb
		}
		lo, hi := 2*m.boundaries[k]-1, 2*m.boundaries[k+1]-1
		h := (hi - lo) / 2
		start := m.starts[k]
		for j, s := range lb.nodes {
			m.tau[start+j] = lo + (s+1)*h
			m.w[start+j] += h * lb.weights[j]
		}
		for j := 1; j < p; j++ {
			r := start + j - 1
			for l := 0; l < p; l++ {
				m.a.Add(r, start+l, h*lb.integrals[j][l])
			}
			m.d.Add(r, start, -1)
			m.d.Add(r, start+j, 1)
		}
	}
	m.tau[0], m.tau[m.n-1] = -1, 1
	return nil
}

// N is the total number of nodes.
func (m *Mesh) N() int { return m.n }

// Segments is the number of mesh segments.
func (m *Mesh) Segments() int { return len(m.points) }

// SegmentPoints returns the collocation-point count of each segment.
func (m *Mesh) SegmentPoints() []int { return append([]int(nil), m.points...) }

// Boundaries returns the normalised segment boundaries on [0, 1].
func (m *Mesh) Boundaries() []float64 { return append([]float64(nil), m.boundaries...) }

// IndexBoundaries returns the node index at which each segment starts,
// followed by the index of the last node.
func (m *Mesh) IndexBoundaries() []int { return append(append([]int(nil), m.starts...), m.n-1) }

// Tau returns the node positions in normalised time.
func (m *Mesh) Tau() []float64 { return append([]float64(nil), m.tau...) }

// Integration is the (N-1)×N matrix whose row for node j of a segment
// integrates the segment interpolant from the segment start to node j.
func (m *Mesh) Integration() *Sparse { return m.a }

// Differentiation is the (N-1)×N matrix pairing each integration row with
// the difference between node j and its segment start.
func (m *Mesh) Differentiation() *Sparse { return m.d }

// Weights are the quadrature weights over [-1, 1].
func (m *Mesh) Weights() []float64 { return append([]float64(nil), m.w...) }

// Time maps the nodes onto [t0, tF].
func (m *Mesh) Time(t0, tF float64) []float64 {
	out := make([]float64, m.n)
	for i, tau := range m.tau {
		out[i] = t0 + (tau+1)*(tF-t0)/2
	}
	return out
}

// Equispaced reports whether all segments have the same width and point
// count.
func (m *Mesh) Equispaced() bool {
	w0 := m.boundaries[1] - m.boundaries[0]
	for k := range m.points {
		if m.points[k] != m.points[0] {
			return false
		}
		if math.Abs(m.boundaries[k+1]-m.boundaries[k]-w0) > EquispacedTolerance {
			return false
		}
	}
	return true
}

// ============================================================
// Lobatto-Gauss-Legendre rules
// ============================================================

type lobatto struct {
	nodes   []float64
	weights []float64
	// integrals[j][l] = ∫_{-1}^{nodes[j]} L_l(s) ds
	integrals [][]float64
}

func newLobatto(n int) (*lobatto, error) {
	nodes, weights := lglNodes(n)

	// Column l of V⁻¹ holds the power-basis coefficients of L_l.
	v := mat.NewDense(n, n, nil)
	for i, s := range nodes {
		p := 1.0
		for k := 0; k < n; k++ {
			v.Set(i, k, p)
			p *= s
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(v); err != nil {
		return nil, fmt.Errorf("mesh: lagrange basis for %d points: %w", n, err)
	}

	lb := &lobatto{nodes: nodes, weights: weights, integrals: make([][]float64, n)}
	for j, s := range nodes {
		row := make([]float64, n)
		for l := 0; l < n; l++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				e := float64(k + 1)
				sum += inv.At(k, l) * (math.Pow(s, e) - math.Pow(-1, e)) / e
			}
			row[l] = sum
		}
		lb.integrals[j] = row
	}
	return lb, nil
}

// lglNodes returns the n Lobatto nodes in increasing order and their
// weights, by Newton iteration on the Legendre recurrence from the
// Chebyshev-Gauss-Lobatto points.
func lglNodes(n int) ([]float64, []float64) {
	deg := n - 1
	x := make([]float64, n)
	for i := range x {
		x[i] = -math.Cos(math.Pi * float64(i) / float64(deg))
	}
	pn := make([]float64, n)
	pm := make([]float64, n)
	for iter := 0; iter < 100; iter++ {
		maxStep := 0.0
		for i, xi := range x {
			p0, p1 := 1.0, xi
			for k := 2; k <= deg; k++ {
				p0, p1 = p1, (float64(2*k-1)*xi*p1-float64(k-1)*p0)/float64(k)
			}
			pm[i], pn[i] = p0, p1
			if i == 0 || i == deg {
				continue
			}
			step := (xi*pn[i] - pm[i]) / (float64(n) * pn[i])
			x[i] = xi - step
			if math.Abs(step) > maxStep {
				maxStep = math.Abs(step)
			}
		}
		if maxStep < 1e-15 {
			break
		}
	}
	w := make([]float64, n)
	for i, xi := range x {
		p0, p1 := 1.0, xi
		for k := 2; k <= deg; k++ {
			p0, p1 = p1, (float64(2*k-1)*xi*p1-float64(k-1)*p0)/float64(k)
		}
		w[i] = 2 / (float64(deg*n) * p1 * p1)
	}
	x[0], x[deg] = -1, 1
	return x, w
}
