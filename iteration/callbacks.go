package iteration

import (
	"time"

	"github.com/njchilds90/gocollo/graph"
	"github.com/njchilds90/gocollo/internal/telemetry"
)

// programs are the compiled numeric forms of the derivative record.
type programs struct {
	stretch, stretchGrad        *graph.Program
	objective, objectiveGrad    *graph.Program
	continuous, continuousJac   *graph.Program
	endpoint, endpointJac       *graph.Program
	objectiveHess, endpointHess *graph.Program
	defectHess, pathHess        *graph.Program
	integralHess                *graph.Program
}

func compilePrograms(g *graph.ExpressionGraph) (programs, error) {
	d := &g.Derivatives
	var p programs
	targets := []struct {
		dst **graph.Program
		f   graph.Function
	}{
		{&p.stretch, d.TimeNormalisation},
		{&p.stretchGrad, d.TimeNormalisationGradient},
		{&p.objective, d.Objective},
		{&p.objectiveGrad, d.ObjectiveGradient},
		{&p.continuous, d.Continuous},
		{&p.continuousJac, d.ContinuousJacobian},
		{&p.endpoint, d.Endpoint},
		{&p.endpointJac, d.EndpointJacobian},
	}
	if g.Order() >= 2 {
		targets = append(targets, []struct {
			dst **graph.Program
			f   graph.Function
		}{
			{&p.objectiveHess, d.ObjectiveHessian},
			{&p.endpointHess, d.EndpointHessian},
			{&p.defectHess, d.DefectHessian},
			{&p.pathHess, d.PathHessian},
			{&p.integralHess, d.IntegralHessian},
		}...)
	}
	for _, t := range targets {
		prog, err := g.Compile(t.f)
		if err != nil {
			return programs{}, err
		}
		*t.dst = prog
	}
	return p, nil
}

// evaluation caches everything the Jacobian terms read at one x.
type evaluation struct {
	s  float64
	ds [NumTime]float64
	// f[c][k] is continuous function k at node c.
	f [][]float64
	// jacv[c][k*nv+v] is ∂f_k/∂v at node c.
	jacv   [][]float64
	nv     int
	endJac []float64
	ne     int
}

func (e *evaluation) jac(c, k, v int) float64 { return e.jacv[c][k*e.nv+v] }

// setEndpoint loads the endpoint variables of x into env.
func (it *Iteration) setEndpoint(env, x []float64) {
	for e, id := range it.endIDs {
		env[id] = x[it.Layout.endpointColumn(e)]
	}
}

// setNode loads the continuous variables of x at node c into env.
func (it *Iteration) setNode(env, x []float64, c int) {
	for v, id := range it.contIDs {
		env[id] = x[it.Layout.continuousColumn(v, c)]
	}
}

func (it *Iteration) stretch(env []float64) float64 {
	out := make([]float64, 1)
	it.progs.stretch.Eval(env, out)
	return out[0]
}

// nodeValues evaluates the stacked continuous functions at every node.
func (it *Iteration) nodeValues(env, x []float64) [][]float64 {
	f := make([][]float64, it.Layout.N)
	for c := range f {
		it.setNode(env, x, c)
		f[c] = make([]float64, it.progs.continuous.Len())
		it.progs.continuous.Eval(env, f[c])
	}
	return f
}

// ============================================================
// nlp.Callbacks
// ============================================================

// Objective evaluates the objective at x.
func (it *Iteration) Objective(x []float64) float64 {
	defer telemetry.ObserveCallback("objective", time.Now())
	env := it.g.NewEnv()
	it.setEndpoint(env, x)
	out := make([]float64, 1)
	it.progs.objective.Eval(env, out)
	return out[0]
}

// Gradient evaluates the dense objective gradient at x.
func (it *Iteration) Gradient(x []float64) []float64 {
	defer telemetry.ObserveCallback("gradient", time.Now())
	env := it.g.NewEnv()
	it.setEndpoint(env, x)
	dj := make([]float64, it.progs.objectiveGrad.Len())
	it.progs.objectiveGrad.Eval(env, dj)
	grad := make([]float64, it.Layout.NumX())
	for e, v := range dj {
		grad[it.Layout.endpointColumn(e)] += v
	}
	return grad
}

// Constraints evaluates defect, path, integral and boundary constraints.
func (it *Iteration) Constraints(x []float64) []float64 {
	defer telemetry.ObserveCallback("constraints", time.Now())
	l := it.Layout
	env := it.g.NewEnv()
	it.setEndpoint(env, x)
	s := it.stretch(env)
	f := it.nodeValues(env, x)
	out := make([]float64, l.NumC())

	a, d := it.Mesh.Integration(), it.Mesh.Differentiation()
	fi := make([]float64, l.N)
	for i := 0; i < l.States; i++ {
		for c := range fi {
			fi[c] = f[c][i]
		}
		dy := d.MulVec(x[l.Y.Start+i*l.N : l.Y.Start+(i+1)*l.N])
		af := a.MulVec(fi)
		for r := range dy {
			out[l.Defect.Start+i*(l.N-1)+r] = dy[r] - s*af[r]
		}
	}
	for j := 0; j < l.NumPath; j++ {
		for c := 0; c < l.N; c++ {
			out[l.Path.Start+j*l.N+c] = f[c][l.States+j]
		}
	}
	w := it.Mesh.Weights()
	for i := 0; i < l.Integrals; i++ {
		wg := 0.0
		for c := range w {
			wg += w[c] * f[c][l.States+l.NumPath+i]
		}
		out[l.Integral.Start+i] = x[l.Q.Start+i] - s*wg
	}
	if l.NumBoundary > 0 {
		it.setEndpoint(env, x)
		it.progs.endpoint.Eval(env, out[l.Boundary.Start:l.Boundary.Stop])
	}
	return out
}

// Jacobian evaluates the constraint Jacobian aligned with
// JacobianStructure.
func (it *Iteration) Jacobian(x []float64) []float64 {
	defer telemetry.ObserveCallback("jacobian", time.Now())
	l := it.Layout
	env := it.g.NewEnv()
	it.setEndpoint(env, x)

	e := &evaluation{nv: l.numContinuous(), ne: len(it.endIDs)}
	e.s = it.stretch(env)
	dsdx := make([]float64, it.progs.stretchGrad.Len())
	it.progs.stretchGrad.Eval(env, dsdx)
	for m := 0; m < NumTime; m++ {
		_, ep := l.timeIndex(m)
		e.ds[m] = dsdx[ep]
	}
	e.endJac = make([]float64, it.progs.endpointJac.Len())
	it.progs.endpointJac.Eval(env, e.endJac)

	e.f = make([][]float64, l.N)
	e.jacv = make([][]float64, l.N)
	for c := 0; c < l.N; c++ {
		it.setNode(env, x, c)
		e.f[c] = make([]float64, it.progs.continuous.Len())
		it.progs.continuous.Eval(env, e.f[c])
		e.jacv[c] = make([]float64, it.progs.continuousJac.Len())
		it.progs.continuousJac.Eval(env, e.jacv[c])
	}

	out := make([]float64, it.structure.Len())
	for k, t := range it.structure.terms {
		out[k] = t(e)
	}
	return out
}

// JacobianStructure returns copies of the fixed nonzero coordinates.
func (it *Iteration) JacobianStructure() (rows, cols []int) {
	return append([]int(nil), it.structure.Rows...), append([]int(nil), it.structure.Cols...)
}
