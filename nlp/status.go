package nlp

import "fmt"

// StatusCode classifies how a solve ended.
type StatusCode int

const (
	// Solved means both the constraint violation and the projected gradient
	// are within tolerance.
	Solved StatusCode = iota
	// MaxIterationsExceeded means the inner iteration budget ran out.
	MaxIterationsExceeded
	// Infeasible means the penalty reached its limit with constraints still
	// violated.
	Infeasible
	// SearchFailed means the line search could not decrease the merit
	// function.
	SearchFailed
	// NumericalError means a callback produced a non-finite value.
	NumericalError
)

func (c StatusCode) String() string {
	switch c {
	case Solved:
		return "solved"
	case MaxIterationsExceeded:
		return "max_iterations"
	case Infeasible:
		return "infeasible"
	case SearchFailed:
		return "search_failed"
	case NumericalError:
		return "numerical_error"
	}
	return fmt.Sprintf("StatusCode(%d)", int(c))
}

// Status is the solver's own record of the outcome.
type Status struct {
	Code       StatusCode
	Message    string
	Iterations int
	Objective  float64
	// Violation is the largest constraint bound violation at X.
	Violation float64
	// Optimality is the infinity norm of the projected Lagrangian gradient.
	Optimality float64
}

// Success reports whether the solve converged.
func (s Status) Success() bool { return s.Code == Solved }
