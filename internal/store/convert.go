package store

import (
	"fmt"
	"strconv"

	schema "github.com/hanpama/entityql/internal/schema"
	value "github.com/hanpama/entityql/internal/value"
)

// ValueType is the store type of an attribute, derived from the declared
// field type. It decides how an attribute orders.
type ValueType string

const (
	ValueTypeBoolean    ValueType = "Boolean"
	ValueTypeBigInt     ValueType = "BigInt"
	ValueTypeBytes      ValueType = "Bytes"
	ValueTypeBigDecimal ValueType = "BigDecimal"
	ValueTypeID         ValueType = "ID"
	ValueTypeInt        ValueType = "Int"
	ValueTypeString     ValueType = "String"
)

// ParseValueType maps a named scalar to its value type.
func ParseValueType(name string) (ValueType, bool) {
	switch vt := ValueType(name); vt {
	case ValueTypeBoolean, ValueTypeBigInt, ValueTypeBytes, ValueTypeBigDecimal,
		ValueTypeID, ValueTypeInt, ValueTypeString:
		return vt, true
	}
	return "", false
}

// ValueTypeOf returns the value type of a field type. Non-null wrappers are
// ignored; list types and any other named type have none.
func ValueTypeOf(t *schema.TypeRef) (ValueType, bool) {
	for t != nil && t.Kind == schema.TypeRefKindNonNull {
		t = t.OfType
	}
	if t == nil || t.Kind != schema.TypeRefKindNamed {
		return "", false
	}
	return ParseValueType(t.Named)
}

// ValueParseError reports a string literal that does not parse as the
// declared scalar.
type ValueParseError struct {
	Type    string
	Literal string
	Err     error
}

func (e *ValueParseError) Error() string {
	return fmt.Sprintf("failed to parse value %q as %s: %v", e.Literal, e.Type, e.Err)
}

func (e *ValueParseError) Unwrap() error { return e.Err }

// AttributeTypeError reports a query value that cannot be stored in an
// attribute of the given type.
type AttributeTypeError struct {
	Value string
	Type  string
}

func (e *AttributeTypeError) Error() string {
	return fmt.Sprintf("value %s cannot be stored as %s", e.Value, e.Type)
}

// FromQueryValue converts a query-language value into the store domain,
// guided by the declared type of the attribute it is compared with.
func FromQueryValue(v value.Value, t *schema.TypeRef) (Value, error) {
	if t != nil && t.Kind == schema.TypeRefKindNonNull {
		return FromQueryValue(v, t.OfType)
	}
	switch x := v.(type) {
	case nil, value.Null:
		return Null{}, nil
	case value.List:
		if t == nil || (t.Kind != schema.TypeRefKindList && t.Kind != schema.TypeRefKindNamed) {
			break
		}
		elem := t
		if t.Kind == schema.TypeRefKindList {
			elem = t.OfType
		}
		out := make(List, len(x))
		for i, item := range x {
			c, err := FromQueryValue(item, elem)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case value.Enum:
		return String(x), nil
	case value.String:
		if t == nil || t.Kind != schema.TypeRefKindNamed {
			break
		}
		return parseNamed(string(x), t.Named)
	case value.Int:
		return Int(x), nil
	case value.Float:
		d, err := ParseBigDecimal(strconv.FormatFloat(float64(x), 'g', -1, 64))
		if err != nil {
			return nil, &ValueParseError{Type: string(ValueTypeBigDecimal), Literal: x.String(), Err: err}
		}
		return d, nil
	case value.Boolean:
		return Bool(x), nil
	}
	return nil, &AttributeTypeError{Value: v.String(), Type: t.String()}
}

func parseNamed(s, named string) (Value, error) {
	var (
		out Value
		err error
	)
	switch ValueType(named) {
	case ValueTypeBytes:
		out, err = ParseBytes(s)
	case ValueTypeBigInt:
		out, err = ParseBigInt(s)
	case ValueTypeBigDecimal:
		out, err = ParseBigDecimal(s)
	default:
		return String(s), nil
	}
	if err != nil {
		return nil, &ValueParseError{Type: named, Literal: s, Err: err}
	}
	return out, nil
}

// ToQueryValue converts a store value back into a query-language value.
// Scalars without a query-language counterpart become strings.
func ToQueryValue(v Value) value.Value {
	switch x := v.(type) {
	case nil, Null:
		return value.Null{}
	case String:
		return value.String(x)
	case Int:
		return value.Int(x)
	case Bool:
		return value.Boolean(x)
	case List:
		out := make(value.List, len(x))
		for i, item := range x {
			out[i] = ToQueryValue(item)
		}
		return out
	}
	return value.String(v.String())
}
