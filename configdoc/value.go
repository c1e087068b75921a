// Package configdoc extracts typed declarations such as
// `var uCount = 36;` from a bundle's configuration document.
package configdoc

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindRaw Kind = iota
	KindString
	KindNumber
	KindBool
	KindEmptyObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindEmptyObject:
		return "empty_object"
	default:
		return "raw"
	}
}

// Value is one coerced declaration value.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func EmptyObject() Value     { return Value{Kind: KindEmptyObject} }
func Raw(s string) Value     { return Value{Kind: KindRaw, Str: s} }

// Coerce applies the coercion rules in order: quoted string, boolean,
// number, empty object, raw text.
func Coerce(raw string) Value {
	text := strings.TrimSpace(raw)

	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' || first == '\'') && first == last {
			return String(text[1 : len(text)-1])
		}
	}

	switch text {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "{}":
		return EmptyObject()
	}

	if n, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return Number(n)
	}

	return Raw(text)
}

// Interface returns the plain Go value: string, int64 or float64, bool or an
// empty map.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindString, KindRaw:
		return v.Str
	case KindNumber:
		if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1<<53 {
			return int64(v.Num)
		}
		return v.Num
	case KindBool:
		return v.Bool
	case KindEmptyObject:
		return map[string]interface{}{}
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Map is the set of declarations found in one document.
type Map map[string]Value

// Native converts the map for JSON responses and persistence.
func (m Map) Native() map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}
