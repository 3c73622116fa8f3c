package iteration

import "math"

// CheckReport compares the analytic callbacks with central differences.
// Errors are max |fd - analytic| / (1 + |analytic|).
type CheckReport struct {
	GradientError float64
	JacobianError float64
	HessianError  float64

	// Undeclared counts finite-difference entries above the tolerance with
	// no place in the declared pattern.
	UndeclaredJacobian int
	UndeclaredHessian  int
}

// OK reports whether every error is within tol and nothing is undeclared.
func (r CheckReport) OK(tol float64) bool {
	return r.GradientError <= tol && r.JacobianError <= tol && r.HessianError <= tol &&
		r.UndeclaredJacobian == 0 && r.UndeclaredHessian == 0
}

const (
	checkStep      = 1e-6
	checkHessStep  = 1e-5
	checkThreshold = 1e-5
)

func relErr(fd, an float64) float64 { return math.Abs(fd-an) / (1 + math.Abs(an)) }

// densify sums sparse values into a rows×cols table keyed by coordinate.
func densify(rows, cols []int, vals []float64) map[[2]int]float64 {
	out := make(map[[2]int]float64, len(vals))
	for k, v := range vals {
		out[[2]int{rows[k], cols[k]}] += v
	}
	return out
}

// CheckDerivatives differentiates the callbacks numerically at x. lambda
// weights the constraints in the Hessian check and sigma the objective;
// the Hessian check is skipped for first-order graphs.
func (it *Iteration) CheckDerivatives(x []float64, sigma float64, lambda []float64) CheckReport {
	var rep CheckReport
	n := len(x)
	xp := append([]float64(nil), x...)
	shift := func(j int, h float64, f func([]float64) []float64) ([]float64, []float64) {
		xp[j] = x[j] + h
		hi := f(xp)
		xp[j] = x[j] - h
		lo := f(xp)
		xp[j] = x[j]
		return hi, lo
	}
	objective := func(v []float64) []float64 { return []float64{it.Objective(v)} }

	grad := it.Gradient(x)
	rows, cols := it.JacobianStructure()
	jac := densify(rows, cols, it.Jacobian(x))
	for j := 0; j < n; j++ {
		hi, lo := shift(j, checkStep, objective)
		rep.GradientError = math.Max(rep.GradientError, relErr((hi[0]-lo[0])/(2*checkStep), grad[j]))

		chi, clo := shift(j, checkStep, it.Constraints)
		for i := range chi {
			fd := (chi[i] - clo[i]) / (2 * checkStep)
			an, declared := jac[[2]int{i, j}]
			if !declared && math.Abs(fd) > checkThreshold {
				rep.UndeclaredJacobian++
			}
			rep.JacobianError = math.Max(rep.JacobianError, relErr(fd, an))
		}
	}

	if it.hessian == nil {
		return rep
	}
	lagrangianGrad := func(v []float64) []float64 {
		g := it.Gradient(v)
		for k := range g {
			g[k] *= sigma
		}
		for k, val := range it.Jacobian(v) {
			g[it.structure.Cols[k]] += lambda[it.structure.Rows[k]] * val
		}
		return g
	}
	hr, hc := it.HessianStructure()
	hess := densify(hr, hc, it.Hessian(x, sigma, lambda))
	for j := 0; j < n; j++ {
		hi, lo := shift(j, checkHessStep, lagrangianGrad)
		for i := j; i < n; i++ {
			fd := (hi[i] - lo[i]) / (2 * checkHessStep)
			an, declared := hess[[2]int{i, j}]
			if !declared && math.Abs(fd) > checkThreshold {
				rep.UndeclaredHessian++
			}
			rep.HessianError = math.Max(rep.HessianError, relErr(fd, an))
		}
	}
	return rep
}
