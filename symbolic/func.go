package symbolic

import (
	"fmt"
	"math"
	"sort"
)

// ============================================================
// Func — named function applications
// ============================================================

type Func struct {
	name string
	arg  Expr
}

// funcDef describes one elementary function: its numeric kernel and the
// derivative of the outer function evaluated at the argument.
type funcDef struct {
	eval  func(float64) float64
	deriv func(arg Expr) Expr
}

var funcTable map[string]funcDef

func init() {
	zero := func(Expr) Expr { return N(0) }
	funcTable = map[string]funcDef{
		"sin": {math.Sin, func(a Expr) Expr { return CosOf(a) }},
		"cos": {math.Cos, func(a Expr) Expr { return Neg(SinOf(a)) }},
		"tan": {math.Tan, func(a Expr) Expr { return AddOf(N(1), Square(TanOf(a))) }},
		"exp": {math.Exp, func(a Expr) Expr { return ExpOf(a) }},
		"ln":  {math.Log, func(a Expr) Expr { return PowOf(a, N(-1)) }},
		"abs": {math.Abs, func(a Expr) Expr { return SignOf(a) }},
		"asin": {math.Asin, func(a Expr) Expr {
			return PowOf(SubOf(N(1), Square(a)), F(-1, 2))
		}},
		"acos": {math.Acos, func(a Expr) Expr {
			return Neg(PowOf(SubOf(N(1), Square(a)), F(-1, 2)))
		}},
		"atan":  {math.Atan, func(a Expr) Expr { return PowOf(AddOf(N(1), Square(a)), N(-1)) }},
		"sinh":  {math.Sinh, func(a Expr) Expr { return CoshOf(a) }},
		"cosh":  {math.Cosh, func(a Expr) Expr { return SinhOf(a) }},
		"tanh":  {math.Tanh, func(a Expr) Expr { return SubOf(N(1), Square(TanhOf(a))) }},
		"floor": {math.Floor, zero},
		"ceil":  {math.Ceil, zero},
		"sign":  {sign, zero},
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func funcOf(name string, arg Expr) *Func { return &Func{name: name, arg: arg} }

// FuncOf applies the named elementary function to arg.
func FuncOf(name string, arg Expr) (Expr, error) {
	if _, ok := funcTable[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	return funcOf(name, arg).Simplify(), nil
}

// FuncNames lists the supported elementary functions in sorted order.
func FuncNames() []string {
	names := make([]string, 0, len(funcTable))
	for n := range funcTable {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func SinOf(arg Expr) Expr   { return funcOf("sin", arg).Simplify() }
func CosOf(arg Expr) Expr   { return funcOf("cos", arg).Simplify() }
func TanOf(arg Expr) Expr   { return funcOf("tan", arg).Simplify() }
func ExpOf(arg Expr) Expr   { return funcOf("exp", arg).Simplify() }
func LnOf(arg Expr) Expr    { return funcOf("ln", arg).Simplify() }
func AbsOf(arg Expr) Expr   { return funcOf("abs", arg).Simplify() }
func AsinOf(arg Expr) Expr  { return funcOf("asin", arg).Simplify() }
func AcosOf(arg Expr) Expr  { return funcOf("acos", arg).Simplify() }
func AtanOf(arg Expr) Expr  { return funcOf("atan", arg).Simplify() }
func SinhOf(arg Expr) Expr  { return funcOf("sinh", arg).Simplify() }
func CoshOf(arg Expr) Expr  { return funcOf("cosh", arg).Simplify() }
func TanhOf(arg Expr) Expr  { return funcOf("tanh", arg).Simplify() }
func FloorOf(arg Expr) Expr { return funcOf("floor", arg).Simplify() }
func CeilOf(arg Expr) Expr  { return funcOf("ceil", arg).Simplify() }
func SignOf(arg Expr) Expr  { return funcOf("sign", arg).Simplify() }

func (f *Func) Simplify() Expr {
	arg := f.arg.Simplify()
	if n, ok := arg.(*Num); ok {
		switch {
		case n.IsZero() && (f.name == "sin" || f.name == "tan" || f.name == "sinh" ||
			f.name == "tanh" || f.name == "asin" || f.name == "atan" || f.name == "abs" || f.name == "sign"):
			return N(0)
		case n.IsZero() && (f.name == "cos" || f.name == "cosh" || f.name == "exp"):
			return N(1)
		case n.IsOne() && f.name == "ln":
			return N(0)
		}
		if def, ok := funcTable[f.name]; ok {
			v := def.eval(n.Float64())
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				return NFloat(v)
			}
		}
		return &Func{name: f.name, arg: arg}
	}
	switch f.name {
	case "ln":
		if inner, ok := arg.(*Func); ok && inner.name == "exp" {
			return inner.arg
		}
	case "exp":
		if inner, ok := arg.(*Func); ok && inner.name == "ln" {
			return inner.arg
		}
	case "abs":
		if m, ok := arg.(*Mul); ok && len(m.factors) >= 2 {
			if coeff, ok2 := m.factors[0].(*Num); ok2 && coeff.IsNegOne() {
				return AbsOf(MulOf(m.factors[1:]...))
			}
		}
	}
	return &Func{name: f.name, arg: arg}
}

func (f *Func) String() string { return f.name + "(" + f.arg.String() + ")" }

func (f *Func) Sub(varName string, value Expr) Expr {
	return funcOf(f.name, f.arg.Sub(varName, value)).Simplify()
}

func (f *Func) Diff(varName string) Expr {
	du := f.arg.Diff(varName)
	if IsZero(du) {
		return N(0)
	}
	def, ok := funcTable[f.name]
	if !ok {
		return MulOf(funcOf("D["+f.name+"]", f.arg), du)
	}
	return MulOf(def.deriv(f.arg), du)
}

func (f *Func) Eval() (*Num, bool) {
	n, ok := f.arg.Eval()
	if !ok {
		return nil, false
	}
	def, ok := funcTable[f.name]
	if !ok {
		return nil, false
	}
	v := def.eval(n.Float64())
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return NFloat(v), true
}

func (f *Func) Equal(other Expr) bool {
	o, ok := other.(*Func)
	return ok && f.name == o.name && f.arg.Equal(o.arg)
}

func (f *Func) exprType() string { return "func" }
func (f *Func) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "func", "name": f.name, "arg": f.arg.toJSON()}
}
func (f *Func) FuncName() string { return f.name }
func (f *Func) Arg() Expr        { return f.arg }
