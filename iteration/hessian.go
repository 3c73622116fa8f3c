package iteration

import (
	"time"

	"github.com/njchilds90/gocollo/graph"
	"github.com/njchilds90/gocollo/internal/telemetry"
)

// hessianStructure is the lower-triangular pattern of the Lagrangian
// Hessian. Node-local blocks are scattered once per mesh node.
type hessianStructure struct {
	rows, cols []int

	// cont lists the lower-triangle (a, b) pairs any continuous Lagrangian
	// can fill; contIdx[c][k] is where pair k lands for node c.
	cont    [][2]int
	contIdx [][]int

	end    [][2]int
	endIdx []int
}

func lowerPairs(n int, fs ...graph.Function) [][2]int {
	var out [][2]int
	for a := 0; a < n; a++ {
		for b := 0; b <= a; b++ {
			for _, f := range fs {
				if !f.IsZero(a, b) {
					out = append(out, [2]int{a, b})
					break
				}
			}
		}
	}
	return out
}

func buildHessianStructure(l Layout, d *graph.Derivatives, ne int) *hessianStructure {
	h := &hessianStructure{}
	index := map[[2]int]int{}
	place := func(ca, cb int) int {
		if cb > ca {
			ca, cb = cb, ca
		}
		key := [2]int{ca, cb}
		if k, ok := index[key]; ok {
			return k
		}
		index[key] = len(h.rows)
		h.rows = append(h.rows, ca)
		h.cols = append(h.cols, cb)
		return index[key]
	}

	nv := l.numContinuous()
	h.cont = lowerPairs(nv, d.DefectHessian, d.PathHessian, d.IntegralHessian)
	h.contIdx = make([][]int, l.N)
	for c := 0; c < l.N; c++ {
		h.contIdx[c] = make([]int, len(h.cont))
		for k, p := range h.cont {
			h.contIdx[c][k] = place(l.continuousColumn(p[0], c), l.continuousColumn(p[1], c))
		}
	}
	h.end = lowerPairs(ne, d.ObjectiveHessian, d.EndpointHessian)
	h.endIdx = make([]int, len(h.end))
	for k, p := range h.end {
		h.endIdx[k] = place(l.endpointColumn(p[0]), l.endpointColumn(p[1]))
	}
	return h
}

// HessianStructure returns the lower-triangular Lagrangian Hessian
// pattern. It is empty when the graph was built to first order only.
func (it *Iteration) HessianStructure() (rows, cols []int) {
	if it.hessian == nil {
		return nil, nil
	}
	return append([]int(nil), it.hessian.rows...), append([]int(nil), it.hessian.cols...)
}

// Hessian evaluates σ∇²J + Σ λ_i ∇²c_i at x, aligned with
// HessianStructure. lambda is ordered like Constraints.
func (it *Iteration) Hessian(x []float64, sigma float64, lambda []float64) []float64 {
	if it.hessian == nil {
		return nil
	}
	defer telemetry.ObserveCallback("hessian", time.Now())
	l := it.Layout
	h := it.hessian
	out := make([]float64, len(h.rows))
	env := it.g.NewEnv()
	it.setEndpoint(env, x)
	lam := it.g.Lambdas()

	// Aᵀλ per state: the defect multiplier each node's dynamics see.
	atl := make([][]float64, l.States)
	a := it.Mesh.Integration()
	for i := range atl {
		atl[i] = make([]float64, l.N)
		for k, v := range a.V {
			atl[i][a.J[k]] += v * lambda[l.Defect.Start+i*(l.N-1)+a.I[k]]
		}
	}
	w := it.Mesh.Weights()
	nv := l.numContinuous()
	buf := make([]float64, nv*nv)
	sum := make([]float64, len(h.cont))
	for c := 0; c < l.N; c++ {
		it.setNode(env, x, c)
		for i := 0; i < l.States; i++ {
			env[lam[i]] = -atl[i][c]
		}
		for j := 0; j < l.NumPath; j++ {
			env[lam[l.States+j]] = lambda[l.Path.Start+j*l.N+c]
		}
		for i := 0; i < l.Integrals; i++ {
			env[lam[l.States+l.NumPath+i]] = -lambda[l.Integral.Start+i] * w[c]
		}
		for k := range sum {
			sum[k] = 0
		}
		for _, p := range []*graph.Program{it.progs.defectHess, it.progs.pathHess, it.progs.integralHess} {
			p.Eval(env, buf)
			for k, pair := range h.cont {
				sum[k] += buf[pair[0]*nv+pair[1]]
			}
		}
		for k, v := range sum {
			out[h.contIdx[c][k]] += v
		}
	}

	it.setEndpoint(env, x)
	env[it.g.Sigma()] = sigma
	nCont := l.States + l.NumPath + l.Integrals
	for j := 0; j < l.NumBoundary; j++ {
		env[lam[nCont+j]] = lambda[l.Boundary.Start+j]
	}
	ne := len(it.endIDs)
	ebuf := make([]float64, ne*ne)
	for _, p := range []*graph.Program{it.progs.objectiveHess, it.progs.endpointHess} {
		p.Eval(env, ebuf)
		for k, pair := range h.end {
			out[h.endIdx[k]] += ebuf[pair[0]*ne+pair[1]]
		}
	}
	return out
}
