package feature

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind is the declared type of a feature value.
type Kind string

const (
	KindFloat Kind = "float"
	KindBool  Kind = "bool"
	KindEnum  Kind = "enum"
	KindHex   Kind = "hex"
)

// Value is a typed feature value: a float, a boolean, or a short string
// (enumerated label or fixed-length hex digest).
type Value struct {
	kind Kind
	f    float64
	b    bool
	s    string
}

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Enum returns an enumerated string value.
func Enum(s string) Value { return Value{kind: KindEnum, s: s} }

// Hex returns a hex string value.
func Hex(s string) Value { return Value{kind: KindHex, s: s} }

// Kind returns the value's kind. The zero Value has an empty kind.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric view of the value. Booleans map to 0/1,
// strings to 0.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindBool:
		if v.b {
			return 1
		}
	}
	return 0
}

// Bool returns the boolean view of the value. Floats are true when > 0.
func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindFloat:
		return v.f > 0
	}
	return false
}

// Str returns the string view of the value.
func (v Value) Str() string {
	switch v.kind {
	case KindEnum, KindHex:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	}
	return ""
}

// Interface returns the value as a plain Go value (float64, bool or string).
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindEnum, KindHex:
		return v.s
	}
	return nil
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%s)", v.kind, v.Str())
}

// MarshalJSON encodes the bare value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// FromAny converts a decoded JSON/YAML scalar into a Value of the given kind.
func FromAny(kind Kind, raw any) (Value, error) {
	switch kind {
	case KindFloat:
		switch n := raw.(type) {
		case float64:
			return Float(n), nil
		case float32:
			return Float(float64(n)), nil
		case int:
			return Float(float64(n)), nil
		case int64:
			return Float(float64(n)), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return Value{}, err
			}
			return Float(f), nil
		}
	case KindBool:
		if b, ok := raw.(bool); ok {
			return Bool(b), nil
		}
	case KindEnum:
		if s, ok := raw.(string); ok {
			return Enum(s), nil
		}
	case KindHex:
		if s, ok := raw.(string); ok {
			return Hex(s), nil
		}
	}
	return Value{}, fmt.Errorf("cannot convert %T to %s", raw, kind)
}
