// Package telemetry turns the per-frame annotation lines of drone subtitle logs
// into typed tables and reduces them into per-flight summaries.
package telemetry

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies which field of a Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is a single cell: an integer, a float, a string or null.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

// NullValue returns a null cell.
func NullValue() Value { return Value{Kind: KindNull} }

// IntValue returns an integer cell.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue returns a float cell.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StringValue returns a string cell.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports whether both values have the same kind and content. NaN equals NaN.
func (v Value) Equal(o Value) bool {
	return v.Kind == o.Kind && v.Int == o.Int && v.Str == o.Str && sameFloat(v.Float, o.Float)
}

// AsFloat returns the numeric value of an int or float cell.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// String renders the value the way it appears in exports. Null renders empty.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return FormatFloat(v.Float)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	case KindFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.Float, 'g', -1, 64)), nil
	case KindString:
		return []byte(strconv.Quote(v.Str)), nil
	default:
		return []byte("null"), nil
	}
}

// FormatFloat renders f with the shortest round-trip precision, keeping a
// trailing ".0" on integral values so floats stay distinguishable from ints.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// FormatPlainFloat renders finite f in positional notation, never with an
// exponent, keeping a trailing ".0" on integral values.
func FormatPlainFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return FormatFloat(f)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// plainString is String with floats in positional notation.
func (v Value) plainString() string {
	if v.Kind == KindFloat {
		return FormatPlainFloat(v.Float)
	}
	return v.String()
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}
