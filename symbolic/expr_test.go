package symbolic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/gocollo/symbolic"
)

var (
	x = symbolic.S("x")
	y = symbolic.S("y")
)

// ============================================================
// Num / Sym
// ============================================================

func TestNum_String(t *testing.T) {
	assert.Equal(t, "42", symbolic.N(42).String())
	assert.Equal(t, "1/3", symbolic.F(1, 3).String())
	assert.Equal(t, "1/2", symbolic.F(2, 4).String())
}

func TestNum_DiffIsZero(t *testing.T) {
	assert.True(t, symbolic.IsZero(symbolic.N(5).Diff("x")))
}

func TestNFloat_PanicsOnInf(t *testing.T) {
	assert.Panics(t, func() { symbolic.NFloat(1.0 / zero()) })
}

func zero() float64 { return 0 }

func TestSym_SubAndDiff(t *testing.T) {
	assert.Equal(t, "3", x.Sub("x", symbolic.N(3)).String())
	assert.Equal(t, "x", x.Sub("y", symbolic.N(3)).String())
	assert.Equal(t, "1", x.Diff("x").String())
	assert.Equal(t, "0", x.Diff("y").String())
}

// ============================================================
// Add / Mul / Pow
// ============================================================

func TestAdd_Canonical(t *testing.T) {
	assert.Equal(t, "x + y", symbolic.AddOf(y, x).String())
	assert.Equal(t, symbolic.AddOf(x, y).String(), symbolic.AddOf(y, x).String())
}

func TestAdd_CollapseToZero(t *testing.T) {
	assert.Equal(t, "0", symbolic.AddOf(x, symbolic.Neg(x)).String())
}

func TestAdd_LikeTerms(t *testing.T) {
	assert.Equal(t, "2*x", symbolic.AddOf(x, x).String())
	assert.Equal(t, "x", symbolic.AddOf(symbolic.MulOf(symbolic.N(3), x), symbolic.MulOf(symbolic.N(-2), x)).String())
}

func TestAdd_LiteralLast(t *testing.T) {
	assert.Equal(t, "y + 2", symbolic.Sub(symbolic.AddOf(x, y), "x", symbolic.N(2)).String())
}

func TestMul_ZeroAndOne(t *testing.T) {
	assert.Equal(t, "0", symbolic.MulOf(x, symbolic.N(0)).String())
	assert.Equal(t, "x", symbolic.MulOf(x, symbolic.N(1)).String())
}

func TestMul_CollectsPowers(t *testing.T) {
	assert.Equal(t, "x^2", symbolic.MulOf(x, x).String())
	assert.Equal(t, "1", symbolic.MulOf(x, symbolic.PowOf(x, symbolic.N(-1))).String())
	assert.Equal(t, "x", symbolic.MulOf(symbolic.SqrtOf(x), symbolic.SqrtOf(x)).String())
}

func TestMul_ParenthesisesSums(t *testing.T) {
	assert.Equal(t, "2*(x + y)", symbolic.MulOf(symbolic.N(2), symbolic.AddOf(x, y)).String())
}

func TestMul_ProductRule(t *testing.T) {
	d := symbolic.Diff(symbolic.MulOf(x, symbolic.SinOf(x)), "x")
	assert.Equal(t, "cos(x)*x + sin(x)", d.String())
}

func TestPow_ZeroAndOneExponent(t *testing.T) {
	assert.Equal(t, "1", symbolic.PowOf(x, symbolic.N(0)).String())
	assert.Equal(t, "x", symbolic.PowOf(x, symbolic.N(1)).String())
	assert.Equal(t, "8", symbolic.PowOf(symbolic.N(2), symbolic.N(3)).String())
	assert.Equal(t, "1/4", symbolic.PowOf(symbolic.N(2), symbolic.N(-2)).String())
}

func TestPow_PowerRule(t *testing.T) {
	assert.Equal(t, "3*x^2", symbolic.Diff(symbolic.PowOf(x, symbolic.N(3)), "x").String())
}

func TestPow_StringsAreUnambiguous(t *testing.T) {
	a := symbolic.PowOf(symbolic.PowOf(x, symbolic.N(2)), symbolic.F(1, 2))
	b := symbolic.PowOf(x, symbolic.PowOf(symbolic.N(2), symbolic.F(1, 2)))
	assert.Equal(t, "(x^2)^(1/2)", a.String())
	assert.Equal(t, "x^(2^(1/2))", b.String())
	assert.Equal(t, "x^(-1)", symbolic.PowOf(x, symbolic.N(-1)).String())
}

// ============================================================
// Func
// ============================================================

func TestFunc_Derivatives(t *testing.T) {
	assert.Equal(t, "cos(x)", symbolic.Diff(symbolic.SinOf(x), "x").String())
	assert.Equal(t, "-1*sin(x)", symbolic.Diff(symbolic.CosOf(x), "x").String())
	assert.Equal(t, "exp(x)", symbolic.Diff(symbolic.ExpOf(x), "x").String())
	assert.Equal(t, "x^(-1)", symbolic.Diff(symbolic.LnOf(x), "x").String())
	assert.Equal(t, "sign(x)", symbolic.Diff(symbolic.AbsOf(x), "x").String())
	assert.Equal(t, "0", symbolic.Diff(symbolic.FloorOf(x), "x").String())
}

func TestFunc_FoldsLiterals(t *testing.T) {
	assert.Equal(t, "0", symbolic.SinOf(symbolic.N(0)).String())
	assert.Equal(t, "1", symbolic.ExpOf(symbolic.N(0)).String())
	assert.Equal(t, "x", symbolic.LnOf(symbolic.ExpOf(x)).String())
}

func TestFuncOf_Unknown(t *testing.T) {
	_, err := symbolic.FuncOf("erf", x)
	require.ErrorIs(t, err, symbolic.ErrUnknownFunction)
}

// ============================================================
// Substitution, free symbols, derivatives
// ============================================================

func TestSubs_Simultaneous(t *testing.T) {
	e := symbolic.SubOf(x, y)
	swapped := symbolic.Subs(e, map[string]symbolic.Expr{"x": y, "y": x})
	assert.Equal(t, symbolic.SubOf(y, x).String(), swapped.String())
}

func TestFreeSymbols(t *testing.T) {
	e := symbolic.AddOf(symbolic.MulOf(x, symbolic.SinOf(y)), symbolic.N(3))
	assert.Equal(t, []string{"x", "y"}, symbolic.SortedFreeSymbols(e))
	assert.True(t, symbolic.DependsOn(e, "y"))
	assert.False(t, symbolic.DependsOn(e, "z"))
	assert.Empty(t, symbolic.FreeSymbols(symbolic.N(4)))
}

func TestArgsWithArgs(t *testing.T) {
	e := symbolic.MulOf(x, symbolic.CosOf(y))
	args := symbolic.Args(e)
	require.Len(t, args, 2)
	rebuilt := symbolic.WithArgs(e, []symbolic.Expr{symbolic.S("a"), symbolic.S("b")})
	assert.Equal(t, "a*b", rebuilt.String())
	assert.Nil(t, symbolic.Args(x))
}

func TestGradient_Product(t *testing.T) {
	g := symbolic.Gradient(symbolic.MulOf(x, y), []string{"x", "y"})
	require.Len(t, g, 2)
	assert.True(t, g[0].Equal(y))
	assert.True(t, g[1].Equal(x))
}

func TestHessian(t *testing.T) {
	h := symbolic.Hessian(symbolic.MulOf(symbolic.Square(x), y), []string{"x", "y"})
	assert.Equal(t, "[[2*y, 2*x], [2*x, 0]]", h.String())
	assert.Equal(t, "[[2*y, 0], [2*x, 0]]", h.LowerTriangular().String())
}

func TestMatrix_MatMulSkipsZeros(t *testing.T) {
	a := symbolic.MatrixFromSlice(2, 2, []symbolic.Expr{x, symbolic.N(0), symbolic.N(0), y})
	p := a.MatMul(symbolic.Identity(2))
	assert.Equal(t, "[[x, 0], [0, y]]", p.String())
	assert.Equal(t, 2, p.NonZero())
	assert.Equal(t, "[[x, 0], [0, y]]", p.MatAdd(symbolic.NewMatrix(2, 2)).String())
}

func TestDeterminism(t *testing.T) {
	build := func() string {
		return symbolic.AddOf(
			symbolic.MulOf(y, symbolic.SinOf(x)),
			symbolic.PowOf(symbolic.AddOf(y, x), symbolic.N(2)),
			symbolic.N(-1),
		).String()
	}
	first := build()
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, build())
	}
}
