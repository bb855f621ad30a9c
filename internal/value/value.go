// Package value defines the query-language value domain: argument values
// after variable substitution and the response values produced by resolvers.
//
// Enum values are kept distinct from strings so that arguments such as
// orderBy and orderDirection can tell a symbolic name from a literal.
package value

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBoolean
	KindEnum
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBoolean:
		return "Boolean"
	case KindEnum:
		return "Enum"
	case KindList:
		return "List"
	case KindObject:
		return "Object"
	}
	return "Unknown"
}

// Value is a query-language value. A nil Value means "absent", which is
// different from Null.
type Value interface {
	Kind() Kind
	// String renders the value as a GraphQL literal.
	String() string
}

type (
	Null    struct{}
	Int     int64
	Float   float64
	String  string
	Boolean bool
	Enum    string
	List    []Value
	// Object is an ordered set of entries; keys keep insertion order.
	Object []Entry
)

// Entry is one key of an Object.
type Entry struct {
	Key   string
	Value Value
}

func (Null) Kind() Kind    { return KindNull }
func (Int) Kind() Kind     { return KindInt }
func (Float) Kind() Kind   { return KindFloat }
func (String) Kind() Kind  { return KindString }
func (Boolean) Kind() Kind { return KindBoolean }
func (Enum) Kind() Kind    { return KindEnum }
func (List) Kind() Kind    { return KindList }
func (Object) Kind() Kind  { return KindObject }

func (Null) String() string      { return "null" }
func (v Int) String() string     { return strconv.FormatInt(int64(v), 10) }
func (v Float) String() string   { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v String) String() string  { return strconv.Quote(string(v)) }
func (v Boolean) String() string { return strconv.FormatBool(bool(v)) }
func (v Enum) String() string    { return string(v) }

func (v List) String() string {
	parts := make([]string, len(v))
	for i, item := range v {
		parts[i] = render(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (v Object) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Key + ": " + render(e.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func render(v Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}

// IsNull reports whether v is absent or Null.
func IsNull(v Value) bool {
	return v == nil || v.Kind() == KindNull
}

// Get returns the value stored under key.
func (v Object) Get(key string) (Value, bool) {
	for _, e := range v {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set returns v with key bound to val, replacing an existing entry in place.
func (v Object) Set(key string, val Value) Object {
	for i, e := range v {
		if e.Key == key {
			v[i].Value = val
			return v
		}
	}
	return append(v, Entry{Key: key, Value: val})
}

// Keys returns the keys of v in order.
func (v Object) Keys() []string {
	keys := make([]string, len(v))
	for i, e := range v {
		keys[i] = e.Key
	}
	return keys
}

// TypeName returns the __typename entry of v, if it is a string.
func (v Object) TypeName() (string, bool) {
	tn, ok := v.Get(TypeNameKey)
	if !ok {
		return "", false
	}
	s, ok := tn.(String)
	return string(s), ok
}

// TypeNameKey is the reserved key naming the concrete type of an object value.
const TypeNameKey = "__typename"

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// MarshalJSON encodes the object keeping key order.
func (v Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		b, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the list; absent elements encode as null.
func (v List) MarshalJSON() ([]byte, error) {
	items := make([]any, len(v))
	for i, item := range v {
		if item != nil {
			items[i] = item
		}
	}
	return json.Marshal(items)
}
