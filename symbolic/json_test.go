package symbolic_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/gocollo/symbolic"
)

func TestToJSON_Num(t *testing.T) {
	doc, err := symbolic.ToJSON(symbolic.F(3, 4))
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	assert.Equal(t, "num", m["type"])
	assert.Equal(t, "3/4", m["value"])
}

func TestParseJSON_RoundTrip(t *testing.T) {
	exprs := []symbolic.Expr{
		symbolic.AddOf(x, symbolic.MulOf(symbolic.N(3), y)),
		symbolic.PowOf(symbolic.AddOf(x, y), symbolic.F(1, 2)),
		symbolic.MulOf(symbolic.SinOf(x), symbolic.ExpOf(symbolic.Neg(y))),
	}
	for _, e := range exprs {
		doc, err := symbolic.ToJSON(e)
		require.NoError(t, err)
		back, err := symbolic.ParseJSON(doc)
		require.NoError(t, err)
		assert.True(t, e.Equal(back), "%s != %s", e, back)
	}
}

func TestParseJSON_Piecewise(t *testing.T) {
	tab, err := symbolic.NewLinearTable("drag", []float64{0, 1, 2}, []float64{1, 2, 4}, false)
	require.NoError(t, err)
	e := symbolic.PiecewiseOf(tab, x)
	doc, err := symbolic.ToJSON(e)
	require.NoError(t, err)

	back, err := symbolic.ParseJSON(doc)
	require.NoError(t, err)
	assert.Equal(t, e.String(), back.String())
	v, err := symbolic.EvalFloat(back, map[string]float64{"x": 1.5})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-12)
}

func TestParseJSON_Errors(t *testing.T) {
	for _, doc := range []string{
		`not json`,
		`{"name":"x"}`,
		`{"type":"func","name":"erf","arg":{"type":"sym","name":"x"}}`,
		`{"type":"pow","base":{"type":"sym","name":"x"}}`,
		`{"type":"nope"}`,
	} {
		_, err := symbolic.ParseJSON(doc)
		assert.Error(t, err, doc)
	}
}

func TestCompile_MatchesEval(t *testing.T) {
	e := symbolic.AddOf(
		symbolic.MulOf(x, symbolic.CosOf(y)),
		symbolic.Quo(symbolic.Square(x), symbolic.AddOf(y, symbolic.N(2))),
		symbolic.SqrtOf(symbolic.AddOf(x, symbolic.N(1))),
	)
	f, err := symbolic.Compile(e, map[string]int{"x": 0, "y": 1})
	require.NoError(t, err)
	xv, yv := 0.7, -0.3
	want := xv*math.Cos(yv) + xv*xv/(yv+2) + math.Sqrt(xv+1)
	assert.InDelta(t, want, f([]float64{xv, yv}), 1e-12)

	exact, ok := symbolic.Subs(symbolic.MulOf(x, y), map[string]symbolic.Expr{
		"x": symbolic.F(1, 2), "y": symbolic.N(4),
	}).Eval()
	require.True(t, ok)
	assert.Equal(t, "2", exact.String())
}

func TestCompile_UnboundSymbol(t *testing.T) {
	_, err := symbolic.Compile(symbolic.AddOf(x, y), map[string]int{"x": 0})
	require.ErrorIs(t, err, symbolic.ErrUnboundSymbol)
}

func TestMatrixJSON(t *testing.T) {
	m := symbolic.MatrixJSON(symbolic.Identity(2))
	require.Len(t, m, 2)
	assert.Equal(t, "num", m[1][1]["type"])
	assert.Equal(t, "1", m[1][1]["value"])
}
