package symbolic

import (
	"fmt"
	"math"
)

// ============================================================
// Compilation to numeric closures
// ============================================================

// Evaluator computes an expression from a flat environment of symbol values.
type Evaluator func(env []float64) float64

// Compile turns e into a closure. slots maps every free symbol of e to its
// index in the environment slice passed at evaluation time.
func Compile(e Expr, slots map[string]int) (Evaluator, error) {
	switch v := e.(type) {
	case *Num:
		c := v.Float64()
		return func([]float64) float64 { return c }, nil

	case *Sym:
		i, ok := slots[v.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnboundSymbol, v.name)
		}
		return func(env []float64) float64 { return env[i] }, nil

	case *Add:
		terms, err := compileAll(v.terms, slots)
		if err != nil {
			return nil, err
		}
		return func(env []float64) float64 {
			s := 0.0
			for _, t := range terms {
				s += t(env)
			}
			return s
		}, nil

	case *Mul:
		factors, err := compileAll(v.factors, slots)
		if err != nil {
			return nil, err
		}
		return func(env []float64) float64 {
			p := 1.0
			for _, f := range factors {
				p *= f(env)
			}
			return p
		}, nil

	case *Pow:
		base, err := Compile(v.base, slots)
		if err != nil {
			return nil, err
		}
		if n, ok := v.exp.(*Num); ok {
			switch {
			case n.Equal(N(2)):
				return func(env []float64) float64 { b := base(env); return b * b }, nil
			case n.IsNegOne():
				return func(env []float64) float64 { return 1 / base(env) }, nil
			case n.Equal(F(1, 2)):
				return func(env []float64) float64 { return math.Sqrt(base(env)) }, nil
			}
			p := n.Float64()
			return func(env []float64) float64 { return math.Pow(base(env), p) }, nil
		}
		exp, err := Compile(v.exp, slots)
		if err != nil {
			return nil, err
		}
		return func(env []float64) float64 { return math.Pow(base(env), exp(env)) }, nil

	case *Func:
		def, ok := funcTable[v.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, v.name)
		}
		arg, err := Compile(v.arg, slots)
		if err != nil {
			return nil, err
		}
		f := def.eval
		return func(env []float64) float64 { return f(arg(env)) }, nil

	case *Piecewise:
		arg, err := Compile(v.arg, slots)
		if err != nil {
			return nil, err
		}
		t := v.table
		return func(env []float64) float64 { return t.At(arg(env)) }, nil
	}
	return nil, fmt.Errorf("symbolic: cannot compile %T", e)
}

func compileAll(es []Expr, slots map[string]int) ([]Evaluator, error) {
	out := make([]Evaluator, len(es))
	for i, e := range es {
		c, err := Compile(e, slots)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// EvalFloat evaluates e with the given symbol values. It is a convenience
// for tests and one-off evaluations; hot paths should use Compile.
func EvalFloat(e Expr, values map[string]float64) (float64, error) {
	slots := make(map[string]int, len(values))
	env := make([]float64, 0, len(values))
	for name, v := range values {
		slots[name] = len(env)
		env = append(env, v)
	}
	f, err := Compile(e, slots)
	if err != nil {
		return 0, err
	}
	return f(env), nil
}
