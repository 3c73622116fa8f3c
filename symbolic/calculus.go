package symbolic

import "sort"

// ============================================================
// Top-level convenience functions
// ============================================================

func Simplify(e Expr) Expr { return e.Simplify() }

func Sub(expr Expr, varName string, value Expr) Expr {
	return expr.Sub(varName, value).Simplify()
}

// Subs replaces several symbols at once. Replacements are applied
// simultaneously, so a value that mentions another key is left untouched.
func Subs(expr Expr, repl map[string]Expr) Expr {
	if len(repl) == 0 {
		return expr
	}
	return subsExpr(expr, repl).Simplify()
}

func subsExpr(e Expr, repl map[string]Expr) Expr {
	switch v := e.(type) {
	case *Sym:
		if r, ok := repl[v.name]; ok {
			return r
		}
		return v
	case *Num:
		return v
	}
	args := Args(e)
	if len(args) == 0 {
		return e
	}
	next := make([]Expr, len(args))
	for i, a := range args {
		next[i] = subsExpr(a, repl)
	}
	return WithArgs(e, next)
}

func Diff(expr Expr, varName string) Expr {
	return expr.Diff(varName).Simplify()
}

// ============================================================
// Structural access
// ============================================================

// Args returns the direct operands of a compound expression and nil for
// atoms.
func Args(e Expr) []Expr {
	switch v := e.(type) {
	case *Add:
		return v.terms
	case *Mul:
		return v.factors
	case *Pow:
		return []Expr{v.base, v.exp}
	case *Func:
		return []Expr{v.arg}
	case *Piecewise:
		return []Expr{v.arg}
	}
	return nil
}

// WithArgs rebuilds e with new operands. len(args) must equal len(Args(e)).
// The result is not simplified, so the operator shape is preserved.
func WithArgs(e Expr, args []Expr) Expr {
	switch v := e.(type) {
	case *Add:
		return &Add{terms: append([]Expr(nil), args...)}
	case *Mul:
		return &Mul{factors: append([]Expr(nil), args...)}
	case *Pow:
		return &Pow{base: args[0], exp: args[1]}
	case *Func:
		return &Func{name: v.name, arg: args[0]}
	case *Piecewise:
		return &Piecewise{table: v.table, arg: args[0]}
	}
	return e
}

// IsAtom reports whether e has no operands.
func IsAtom(e Expr) bool {
	switch e.(type) {
	case *Num, *Sym:
		return true
	}
	return false
}

// ============================================================
// Free Symbols
// ============================================================

func FreeSymbols(e Expr) map[string]struct{} {
	result := map[string]struct{}{}
	collectSymbols(e, result)
	return result
}

// SortedFreeSymbols returns the free symbol names in lexical order.
func SortedFreeSymbols(e Expr) []string {
	set := FreeSymbols(e)
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// DependsOn reports whether varName appears free in e.
func DependsOn(e Expr, varName string) bool {
	_, ok := FreeSymbols(e)[varName]
	return ok
}

func collectSymbols(e Expr, out map[string]struct{}) {
	if s, ok := e.(*Sym); ok {
		out[s.name] = struct{}{}
		return
	}
	for _, a := range Args(e) {
		collectSymbols(a, out)
	}
}

// ============================================================
// Partial Derivatives
// ============================================================

// Gradient returns the gradient of expr as a slice of partial derivatives.
func Gradient(expr Expr, varNames []string) []Expr {
	result := make([]Expr, len(varNames))
	for i, v := range varNames {
		result[i] = Diff(expr, v)
	}
	return result
}

// Jacobian returns the m×n Jacobian matrix.
func Jacobian(exprs []Expr, varNames []string) *Matrix {
	mat := NewMatrix(len(exprs), len(varNames))
	for i, e := range exprs {
		for j, v := range varNames {
			mat.Set(i, j, Diff(e, v))
		}
	}
	return mat
}

// Hessian returns the n×n matrix of second partial derivatives.
func Hessian(expr Expr, varNames []string) *Matrix {
	n := len(varNames)
	mat := NewMatrix(n, n)
	grad := Gradient(expr, varNames)
	for i := range varNames {
		for j, vj := range varNames {
			mat.Set(i, j, Diff(grad[i], vj))
		}
	}
	return mat
}
