package nlp_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/gocollo/nlp"
)

// dense adapts closures with a dense Jacobian to the callback contract.
type dense struct {
	n    int
	f    func(x []float64) float64
	g    func(x []float64) []float64
	c    func(x []float64) []float64
	jac  func(x []float64) [][]float64
	rows []int
	cols []int
}

func newDense(n, m int, f func([]float64) float64, g func([]float64) []float64, c func([]float64) []float64, jac func([]float64) [][]float64) *dense {
	d := &dense{n: n, f: f, g: g, c: c, jac: jac}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			d.rows = append(d.rows, i)
			d.cols = append(d.cols, j)
		}
	}
	return d
}

func (d *dense) Objective(x []float64) float64     { return d.f(x) }
func (d *dense) Gradient(x []float64) []float64    { return d.g(x) }
func (d *dense) Constraints(x []float64) []float64 { return d.c(x) }
func (d *dense) JacobianStructure() ([]int, []int) { return d.rows, d.cols }
func (d *dense) Jacobian(x []float64) []float64 {
	var out []float64
	for _, row := range d.jac(x) {
		out = append(out, row...)
	}
	return out
}

func solve(t *testing.T, p *nlp.Problem) *nlp.Result {
	t.Helper()
	s, err := nlp.New(nlp.BackendALM, nlp.DefaultOptions())
	require.NoError(t, err)
	res, err := s.Solve(context.Background(), p)
	require.NoError(t, err)
	return res
}

func TestALM_Equality(t *testing.T) {
	cb := newDense(2, 1,
		func(x []float64) float64 { return math.Pow(x[0]-1, 2) + math.Pow(x[1]-2, 2) },
		func(x []float64) []float64 { return []float64{2 * (x[0] - 1), 2 * (x[1] - 2)} },
		func(x []float64) []float64 { return []float64{x[0] + x[1]} },
		func([]float64) [][]float64 { return [][]float64{{1, 1}} },
	)
	res := solve(t, &nlp.Problem{
		N: 2, M: 1,
		XL: []float64{-10, -10}, XU: []float64{10, 10},
		CL: []float64{1}, CU: []float64{1},
		X0: []float64{0, 0}, Callbacks: cb,
	})
	require.True(t, res.Status.Success(), res.Status.Message)
	assert.InDelta(t, 0, res.X[0], 1e-6)
	assert.InDelta(t, 1, res.X[1], 1e-6)
	assert.InDelta(t, 2, res.Lambda[0], 1e-5)
	assert.LessOrEqual(t, res.Status.Violation, 1e-8)
}

func TestALM_InequalityAndBounds(t *testing.T) {
	cb := newDense(2, 1,
		func(x []float64) float64 { return -x[0] - x[1] },
		func([]float64) []float64 { return []float64{-1, -1} },
		func(x []float64) []float64 { return []float64{x[0]*x[0] + x[1]*x[1]} },
		func(x []float64) [][]float64 { return [][]float64{{2 * x[0], 2 * x[1]}} },
	)
	res := solve(t, &nlp.Problem{
		N: 2, M: 1,
		XL: []float64{-10, -10}, XU: []float64{10, 0.5},
		CL: []float64{math.Inf(-1)}, CU: []float64{2},
		X0: []float64{0, 0}, Callbacks: cb,
	})
	require.True(t, res.Status.Success(), res.Status.Message)
	assert.InDelta(t, math.Sqrt(1.75), res.X[0], 1e-6)
	assert.Equal(t, 0.5, res.X[1])
}

func TestALM_BoundsOnly(t *testing.T) {
	cb := newDense(1, 0,
		func(x []float64) float64 { return math.Pow(x[0]-3, 2) },
		func(x []float64) []float64 { return []float64{2 * (x[0] - 3)} },
		func([]float64) []float64 { return nil },
		func([]float64) [][]float64 { return nil },
	)
	res := solve(t, &nlp.Problem{
		N: 1, XL: []float64{0}, XU: []float64{2}, X0: []float64{1},
		CL: []float64{}, CU: []float64{}, Callbacks: cb,
	})
	require.True(t, res.Status.Success())
	assert.Equal(t, 2.0, res.X[0])
	assert.Equal(t, "solved", res.Status.Code.String())
}

func TestNew_UnsupportedBackend(t *testing.T) {
	_, err := nlp.New("ipopt", nlp.DefaultOptions())
	require.ErrorIs(t, err, nlp.ErrUnsupportedBackend)
}

func TestProblem_Validate(t *testing.T) {
	p := &nlp.Problem{N: 2, M: 0, XL: []float64{0}, XU: []float64{1, 1}, X0: []float64{0, 0}}
	require.ErrorIs(t, p.Validate(), nlp.ErrDimension)

	p = &nlp.Problem{N: 1, XL: []float64{2}, XU: []float64{1}, X0: []float64{0}, Callbacks: &dense{}}
	require.ErrorIs(t, p.Validate(), nlp.ErrBounds)
}

func TestStatusCode_String(t *testing.T) {
	assert.Equal(t, "infeasible", nlp.Infeasible.String())
	assert.Equal(t, "StatusCode(42)", nlp.StatusCode(42).String())
}
