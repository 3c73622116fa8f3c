package iteration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/internal/poly"
	"github.com/njchilds90/gocollo/internal/quad"
	"github.com/njchilds90/gocollo/internal/telemetry"
	"github.com/njchilds90/gocollo/nlp"
)

// Solution is the post-processed output of one solve. It is immutable.
type Solution struct {
	IterationID uuid.UUID
	Number      int
	X           []float64
	Lambda      []float64
	Status      nlp.Status

	state     [][]float64
	control   [][]float64
	integral  []float64
	parameter []float64
	t0, tF    float64
	time      []float64

	// StateDerivative[i][c] is the dynamics of state i at node c.
	StateDerivative [][]float64

	// Polynomials are indexed [variable][segment].
	StatePolys           [][]*poly.Poly
	StateDerivativePolys [][]*poly.Poly
	ControlPolys         [][]*poly.Poly

	// MeshError[i][k] is the integrated dynamics residual of state i over
	// segment k.
	MeshError [][]float64
}

func (s *Solution) State() [][]float64   { return s.state }
func (s *Solution) Control() [][]float64 { return s.control }
func (s *Solution) Integral() []float64  { return s.integral }
func (s *Solution) Parameter() []float64 { return s.parameter }
func (s *Solution) Time() []float64      { return s.time }
func (s *Solution) InitialTime() float64 { return s.t0 }
func (s *Solution) FinalTime() float64   { return s.tF }

// MaxMeshError is the largest entry of MeshError.
func (s *Solution) MaxMeshError() float64 {
	m := 0.0
	for _, row := range s.MeshError {
		for _, v := range row {
			m = math.Max(m, v)
		}
	}
	return m
}

func newSolution(ctx context.Context, it *Iteration, res *nlp.Result) (sol *Solution, err error) {
	ctx, span := telemetry.Start(ctx, "iteration.MeshError")
	defer func() { telemetry.End(span, err) }()

	l := it.Layout
	x := res.X
	sol = &Solution{
		IterationID: it.ID,
		Number:      it.Number,
		X:           append([]float64(nil), x...),
		Lambda:      append([]float64(nil), res.Lambda...),
		Status:      res.Status,
		state:       reshape(x[l.Y.Start:l.Y.Stop], l.States, l.N),
		control:     reshape(x[l.U.Start:l.U.Stop], l.Controls, l.N),
		integral:    append([]float64(nil), x[l.Q.Start:l.Q.Stop]...),
		parameter:   append([]float64(nil), x[l.S.Start:l.S.Stop]...),
		t0:          x[l.T.Start],
		tF:          x[l.T.Start+1],
	}
	sol.time = it.Mesh.Time(sol.t0, sol.tF)

	env := it.g.NewEnv()
	it.setEndpoint(env, x)
	f := it.nodeValues(env, x)
	sol.StateDerivative = make([][]float64, l.States)
	for i := range sol.StateDerivative {
		sol.StateDerivative[i] = make([]float64, l.N)
		for c := range f {
			sol.StateDerivative[i][c] = f[c][i]
		}
	}

	if err := sol.fit(it); err != nil {
		return nil, err
	}
	if err := sol.estimateError(ctx, it, env); err != nil {
		return nil, err
	}
	return sol, nil
}

func reshape(v []float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = append([]float64(nil), v[i*cols:(i+1)*cols]...)
	}
	return out
}

var unitWindow = [2]float64{0, 1}

// fit builds per-segment polynomials of degree n_k - 1 for the state
// derivative and control; the state polynomial integrates the derivative
// from the segment's first state value.
func (s *Solution) fit(it *Iteration) error {
	l := it.Layout
	bounds := it.Mesh.IndexBoundaries()
	points := it.Mesh.SegmentPoints()
	alloc := func(n int) [][]*poly.Poly {
		out := make([][]*poly.Poly, n)
		for i := range out {
			out[i] = make([]*poly.Poly, len(points))
		}
		return out
	}
	s.StatePolys, s.StateDerivativePolys, s.ControlPolys = alloc(l.States), alloc(l.States), alloc(l.Controls)

	for k, p := range points {
		lo, hi := bounds[k], bounds[k]+p
		ts := s.time[lo:hi]
		for i := 0; i < l.States; i++ {
			dp, err := poly.Fit(ts, s.StateDerivative[i][lo:hi], p-1, unitWindow)
			if err != nil {
				return fmt.Errorf("segment %d state %d: %w", k, i, err)
			}
			s.StateDerivativePolys[i][k] = dp
			s.StatePolys[i][k] = dp.Integ(s.state[i][lo])
		}
		for i := 0; i < l.Controls; i++ {
			up, err := poly.Fit(ts, s.control[i][lo:hi], p-1, unitWindow)
			if err != nil {
				return fmt.Errorf("segment %d control %d: %w", k, i, err)
			}
			s.ControlPolys[i][k] = up
		}
	}
	return nil
}

// estimateError integrates |dy_poly(t) - f(y_poly(t), u_poly(t), q, t, s)|
// over every segment by Romberg quadrature.
func (s *Solution) estimateError(ctx context.Context, it *Iteration, env []float64) error {
	l := it.Layout
	logger := ctxlog.FromContext(ctx)
	bounds := it.Mesh.IndexBoundaries()
	points := it.Mesh.SegmentPoints()
	rows := make([]float64, it.progs.continuous.Len())

	// q, t and s stay loaded in env from the node pass.
	s.MeshError = make([][]float64, l.States)
	for i := range s.MeshError {
		s.MeshError[i] = make([]float64, len(points))
	}
	for k, p := range points {
		ta, tb := s.time[bounds[k]], s.time[bounds[k]+p-1]
		for i := 0; i < l.States; i++ {
			residual := func(t float64) float64 {
				for j := 0; j < l.States; j++ {
					env[it.contIDs[j]] = s.StatePolys[j][k].Eval(t)
				}
				for j := 0; j < l.Controls; j++ {
					env[it.contIDs[l.States+j]] = s.ControlPolys[j][k].Eval(t)
				}
				it.progs.continuous.Eval(env, rows)
				return math.Abs(s.StateDerivativePolys[i][k].Eval(t) - rows[i])
			}
			v, err := quad.Romberg(residual, ta, tb, quad.DefaultSettings())
			if errors.Is(err, quad.ErrNotConverged) {
				logger.Warn("Romberg quadrature did not converge.", "segment", k, "state", i, "estimate", v)
			} else if err != nil {
				return err
			}
			s.MeshError[i][k] = v
		}
	}
	logger.Debug("Mesh error estimated.", "max", s.MaxMeshError())
	return nil
}
