// Package value models free-form metadata as a closed set of types.
//
// Reference metadata arrives as arbitrary YAML/JSON-shaped data. Instead of
// passing map[string]any around, it is converted once at the boundary into
// a sealed Value so the rest of the code can switch on concrete types
// without losing structure (lists stay ordered, mappings stay keyed).
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Value is a sealed interface. Only Null, String, Int, Float, Bool, List
// and Map implement it.
type Value interface {
	value()
}

// Null represents an explicit null (YAML `~`, JSON `null`).
type Null struct{}

// String is a string scalar.
type String string

// Int is an integer scalar.
type Int int64

// Float is a floating point scalar.
type Float float64

// Bool is a boolean scalar.
type Bool bool

// List is an ordered sequence of values.
type List []Value

// Map is a string-keyed mapping of values.
type Map map[string]Value

func (Null) value()   {}
func (String) value() {}
func (Int) value()    {}
func (Float) value()  {}
func (Bool) value()   {}
func (List) value()   {}
func (Map) value()    {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalYAML implements yaml.Marshaler for Null.
func (Null) MarshalYAML() (any, error) {
	return nil, nil
}

// MarshalJSON implements json.Marshaler for Float. Whole numbers keep a
// decimal point so they decode back as Float rather than Int.
func (f Float) MarshalJSON() ([]byte, error) {
	x := float64(f)
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return json.Marshal(x)
	}
	return []byte(floatText(x)), nil
}

// MarshalYAML implements yaml.Marshaler for Float, tagging the scalar so
// whole numbers are not read back as Int.
func (f Float) MarshalYAML() (any, error) {
	x := float64(f)
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return x, nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: floatText(x)}, nil
}

func floatText(x float64) string {
	s := strconv.FormatFloat(x, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// FromAny converts decoded YAML/JSON data (or plain Go values) into a Value.
// Unsupported types return an error naming the offending type.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(x), nil
	case int8:
		return Int(x), nil
	case int16:
		return Int(x), nil
	case int32:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(x), nil
	case uint8:
		return Int(x), nil
	case uint16:
		return Int(x), nil
	case uint32:
		return Int(x), nil
	case uint64:
		return Int(x), nil
	case float32:
		return Float(x), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return Int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("value: invalid number %q: %w", x, err)
		}
		return Float(f), nil
	case time.Time:
		return String(x.UTC().Format(time.RFC3339Nano)), nil
	case []string:
		out := make(List, len(x))
		for i, s := range x {
			out[i] = String(s)
		}
		return out, nil
	case []any:
		out := make(List, len(x))
		for i, item := range x {
			conv, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("value: index %d: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		return MapFromAny(x)
	case map[any]any:
		out := make(Map, len(x))
		for k, item := range x {
			conv, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("value: key %v: %w", k, err)
			}
			out[fmt.Sprint(k)] = conv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value: unsupported type %T", v)
	}
}

// MapFromAny converts a generic string-keyed mapping into a Map.
// A nil input yields an empty, non-nil Map.
func MapFromAny(m map[string]any) (Map, error) {
	out := make(Map, len(m))
	for k, item := range m {
		conv, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("value: key %q: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

// ToAny converts a Value back into plain Go data (map[string]any, []any,
// string, int64, float64, bool, nil).
func ToAny(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case Bool:
		return bool(x)
	case List:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = ToAny(item)
		}
		return out
	case Map:
		return x.ToAny()
	default:
		return nil
	}
}

// ToAny converts the mapping back into plain Go data.
func (m Map) ToAny() map[string]any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[k] = ToAny(item)
	}
	return out
}

// SortedKeys returns the keys in lexical order for deterministic iteration.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the mapping.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, item := range m {
		out[k] = clone(item)
	}
	return out
}

func clone(v Value) Value {
	switch x := v.(type) {
	case List:
		out := make(List, len(x))
		for i, item := range x {
			out[i] = clone(item)
		}
		return out
	case Map:
		return x.Clone()
	default:
		return v
	}
}

// UnmarshalJSON decodes a JSON object, keeping integers distinct from floats.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	conv, err := MapFromAny(raw)
	if err != nil {
		return err
	}
	*m = conv
	return nil
}

// UnmarshalYAML decodes a YAML mapping node.
func (m *Map) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	conv, err := MapFromAny(raw)
	if err != nil {
		return err
	}
	*m = conv
	return nil
}
