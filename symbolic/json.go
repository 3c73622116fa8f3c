package symbolic

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// ============================================================
// JSON Serialization
// ============================================================

func ToJSON(e Expr) (string, error) {
	b, err := json.Marshal(e.toJSON())
	return string(b), err
}

// EncodeJSON returns the JSON object form of e, for embedding in larger
// documents.
func EncodeJSON(e Expr) map[string]interface{} { return e.toJSON() }

// MatrixJSON encodes a matrix as rows of expression objects.
func MatrixJSON(m *Matrix) [][]map[string]interface{} {
	out := make([][]map[string]interface{}, m.rows)
	for i := range out {
		out[i] = make([]map[string]interface{}, m.cols)
		for j := range out[i] {
			out[i][j] = m.data[i][j].toJSON()
		}
	}
	return out
}

// ParseJSON decodes a document produced by ToJSON.
func ParseJSON(doc string) (Expr, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return FromJSON(data)
}

func FromJSON(data map[string]interface{}) (Expr, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: expression must be an object", ErrInvalidJSON)
	}
	typ, ok := data["type"].(string)
	if !ok || typ == "" {
		return nil, fmt.Errorf("%w: field 'type' must be a non-empty string", ErrInvalidJSON)
	}
	bad := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidJSON, typ, fmt.Sprintf(format, args...))
	}

	subObj := func(field string) (Expr, error) {
		m, ok := data[field].(map[string]interface{})
		if !ok {
			return nil, bad("%q must be an object", field)
		}
		e, err := FromJSON(m)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", typ, field, err)
		}
		return e, nil
	}

	subObjArray := func(field string) ([]Expr, error) {
		raw, ok := data[field].([]interface{})
		if !ok {
			return nil, bad("%q must be an array", field)
		}
		out := make([]Expr, len(raw))
		for i, it := range raw {
			m, ok := it.(map[string]interface{})
			if !ok {
				return nil, bad("%q[%d] must be an object", field, i)
			}
			e, err := FromJSON(m)
			if err != nil {
				return nil, fmt.Errorf("%s: %s[%d]: %w", typ, field, i, err)
			}
			out[i] = e
		}
		return out, nil
	}

	subString := func(field string) (string, error) {
		s, ok := data[field].(string)
		if !ok || s == "" {
			return "", bad("%q must be a non-empty string", field)
		}
		return s, nil
	}

	switch typ {
	case "num":
		val, err := subString("value")
		if err != nil {
			return nil, err
		}
		r := new(big.Rat)
		if _, ok := r.SetString(val); !ok {
			return nil, bad("invalid value %s", val)
		}
		return &Num{val: r}, nil

	case "sym":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		return S(name), nil

	case "add":
		terms, err := subObjArray("terms")
		if err != nil {
			return nil, err
		}
		return AddOf(terms...), nil

	case "mul":
		factors, err := subObjArray("factors")
		if err != nil {
			return nil, err
		}
		return MulOf(factors...), nil

	case "pow":
		base, err := subObj("base")
		if err != nil {
			return nil, err
		}
		exp, err := subObj("exp")
		if err != nil {
			return nil, err
		}
		return PowOf(base, exp), nil

	case "func":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		arg, err := subObj("arg")
		if err != nil {
			return nil, err
		}
		return FuncOf(name, arg)

	case "piecewise":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		kindName, err := subString("kind")
		if err != nil {
			return nil, err
		}
		kind, ok := parseKind(kindName)
		if !ok {
			return nil, bad("unknown kind %q", kindName)
		}
		knots, err := floatList(data["knots"])
		if err != nil {
			return nil, bad("knots: %v", err)
		}
		rawCoeffs, ok := data["coeffs"].([]interface{})
		if !ok {
			return nil, bad("%q must be an array", "coeffs")
		}
		coeffs := make([][]float64, len(rawCoeffs))
		for i, rc := range rawCoeffs {
			if coeffs[i], err = floatList(rc); err != nil {
				return nil, bad("coeffs[%d]: %v", i, err)
			}
		}
		arg, err := subObj("arg")
		if err != nil {
			return nil, err
		}
		table, err := NewTable(name, kind, knots, coeffs)
		if err != nil {
			return nil, err
		}
		return PiecewiseOf(table, arg), nil
	}
	return nil, fmt.Errorf("%w: unknown expression type %s", ErrInvalidJSON, typ)
}

func parseKind(name string) (PiecewiseKind, bool) {
	for _, k := range []PiecewiseKind{LinearSegments, CyclicLinearSegments, PolynomialTable, CyclicPolynomialTable} {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

func floatList(v interface{}) ([]float64, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of numbers")
	}
	out := make([]float64, len(raw))
	for i, it := range raw {
		f, ok := it.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = f
	}
	return out, nil
}
