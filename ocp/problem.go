// Package ocp describes an optimal control problem and drives the mesh
// iterations that solve it.
package ocp

import (
	"math"

	"github.com/njchilds90/gocollo/symbolic"
)

// Bound is a closed interval whose ends may reference problem constants.
// A nil end is unbounded.
type Bound struct {
	Lower, Upper symbolic.Expr
}

// Between returns [lo, hi]; infinite ends become unbounded.
func Between(lo, hi float64) Bound {
	return Bound{Lower: finite(lo), Upper: finite(hi)}
}

// Fixed returns [v, v].
func Fixed(v float64) Bound { return Between(v, v) }

// Free is the unbounded interval.
func Free() Bound { return Bound{} }

func finite(v float64) symbolic.Expr {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return symbolic.NFloat(v)
}

// State is a state variable with its equation of motion dy/dt.
type State struct {
	Name     string
	Equation symbolic.Expr
	Bound    Bound
	// Initial and Final bound the state at t0 and tF; nil leaves the
	// endpoint within Bound.
	Initial, Final *Bound
	// Guess samples the state at Problem.GuessTime. Nil means a straight
	// line between the endpoint bound midpoints.
	Guess []float64
}

// Control is a control variable.
type Control struct {
	Name  string
	Bound Bound
	Guess []float64
}

// Integral is an integral variable constrained to equal the integral of
// Integrand over the horizon.
type Integral struct {
	Name      string
	Integrand symbolic.Expr
	Bound     Bound
	Guess     float64
}

// Parameter is a static decision variable.
type Parameter struct {
	Name  string
	Bound Bound
	Guess float64
}

// Constraint bounds an expression.
type Constraint struct {
	Expr  symbolic.Expr
	Bound Bound
}

// Auxiliary names an intermediate expression other expressions may use.
type Auxiliary struct {
	Name string
	Expr symbolic.Expr
}

// Problem is a single-phase optimal control problem. Continuous
// expressions use state, control, parameter and time names; endpoint
// expressions use <state>_t0 and <state>_tF together with integral,
// parameter and time names.
type Problem struct {
	Name string

	States     []State
	Controls   []Control
	Integrals  []Integral
	Parameters []Parameter

	// Path constraints hold at every mesh node.
	Path []Constraint
	// Endpoint constraints couple endpoint values.
	Endpoint []Constraint

	Objective symbolic.Expr

	Constants map[string]float64
	Auxiliary []Auxiliary

	InitialTime, FinalTime Bound
	// GuessTime holds at least the initial and final time guesses.
	GuessTime []float64
}

// User-facing time symbols.
const (
	InitialTimeName = "t0"
	FinalTimeName   = "tF"
)

// InitialName is the endpoint symbol of state name at t0.
func InitialName(name string) string { return name + "_" + InitialTimeName }

// FinalName is the endpoint symbol of state name at tF.
func FinalName(name string) string { return name + "_" + FinalTimeName }
