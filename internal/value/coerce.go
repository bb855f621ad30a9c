package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	language "github.com/hanpama/entityql/internal/language"
	schema "github.com/hanpama/entityql/internal/schema"
)

// FromAST converts a literal or variable reference. Variables missing from
// vars become Null.
func FromAST(v *language.Value, vars map[string]Value) Value {
	if v == nil {
		return Null{}
	}
	switch v.Kind {
	case language.Variable:
		if val, ok := vars[v.Raw]; ok && val != nil {
			return val
		}
		return Null{}
	case language.IntValue:
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return Int(n)
		}
		if f, err := strconv.ParseFloat(v.Raw, 64); err == nil {
			return Float(f)
		}
		return String(v.Raw)
	case language.FloatValue:
		if f, err := strconv.ParseFloat(v.Raw, 64); err == nil {
			return Float(f)
		}
		return String(v.Raw)
	case language.StringValue, language.BlockValue:
		return String(v.Raw)
	case language.BooleanValue:
		return Boolean(v.Raw == "true")
	case language.NullValue:
		return Null{}
	case language.EnumValue:
		return Enum(v.Raw)
	case language.ListValue:
		out := make(List, 0, len(v.Children))
		for _, child := range v.Children {
			out = append(out, FromAST(child.Value, vars))
		}
		return out
	case language.ObjectValue:
		out := make(Object, 0, len(v.Children))
		for _, child := range v.Children {
			out = append(out, Entry{Key: child.Name, Value: FromAST(child.Value, vars)})
		}
		return out
	}
	return Null{}
}

// FromJSON coerces a JSON-decoded variable value to the declared input type.
// Enum-typed inputs become Enum values; input object keys are sorted since
// JSON objects carry no order.
func FromJSON(v any, t *schema.TypeRef, s *schema.Schema) (Value, error) {
	if t == nil {
		return FromGo(v), nil
	}
	if t.IsNonNull() {
		if v == nil {
			return nil, fmt.Errorf("expected non-null value of type %s", t)
		}
		return FromJSON(v, t.OfType, s)
	}
	if v == nil {
		return Null{}, nil
	}
	if t.Kind == schema.TypeRefKindList {
		items, ok := v.([]any)
		if !ok {
			// Input coercion wraps a single item into a list.
			item, err := FromJSON(v, t.OfType, s)
			if err != nil {
				return nil, err
			}
			return List{item}, nil
		}
		out := make(List, len(items))
		for i, item := range items {
			c, err := FromJSON(item, t.OfType, s)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}

	named := s.Type(t.Named)
	if named == nil {
		return FromGo(v), nil
	}
	switch named.Kind {
	case schema.TypeKindEnum:
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected enum %s, got %T", named.Name, v)
		}
		for _, ev := range named.EnumValues {
			if ev.Name == name {
				return Enum(name), nil
			}
		}
		return nil, fmt.Errorf("value %q is not a member of enum %s", name, named.Name)
	case schema.TypeKindInputObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected input object %s, got %T", named.Name, v)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Object, 0, len(keys))
		for _, k := range keys {
			field := named.InputField(k)
			if field == nil {
				return nil, fmt.Errorf("field %q is not defined on %s", k, named.Name)
			}
			c, err := FromJSON(m[k], field.Type, s)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", named.Name, k, err)
			}
			out = append(out, Entry{Key: k, Value: c})
		}
		return out, nil
	case schema.TypeKindScalar:
		return scalarFromJSON(v, named.Name)
	}
	return FromGo(v), nil
}

func scalarFromJSON(v any, scalar string) (Value, error) {
	switch scalar {
	case "Int":
		n, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("expected Int, got %v", v)
		}
		return Int(n), nil
	case "Float":
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected Float, got %v", v)
		}
		return Float(f), nil
	case "Boolean":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected Boolean, got %v", v)
		}
		return Boolean(b), nil
	case "String":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected String, got %v", v)
		}
		return String(s), nil
	case "ID":
		if s, ok := v.(string); ok {
			return String(s), nil
		}
		if n, ok := asInt(v); ok {
			return String(strconv.FormatInt(n, 10)), nil
		}
		return nil, fmt.Errorf("expected ID, got %v", v)
	}
	return FromGo(v), nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt64 && n <= math.MaxInt64 {
			return int64(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

// FromGo converts plain Go values (as produced by encoding/json or YAML
// decoding) without type information. Map keys are sorted.
func FromGo(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null{}
	case Value:
		return x
	case bool:
		return Boolean(x)
	case string:
		return String(x)
	case int:
		return Int(x)
	case int32:
		return Int(x)
	case int64:
		return Int(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Int(int64(x))
		}
		return Float(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i)
		}
		f, _ := x.Float64()
		return Float(f)
	case []any:
		out := make(List, len(x))
		for i, item := range x {
			out[i] = FromGo(item)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Object, 0, len(keys))
		for _, k := range keys {
			out = append(out, Entry{Key: k, Value: FromGo(x[k])})
		}
		return out
	}
	return String(fmt.Sprint(v))
}

// ToGo converts v into plain Go values. Objects become maps.
func ToGo(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Boolean:
		return bool(x)
	case Enum:
		return string(x)
	case List:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = ToGo(item)
		}
		return out
	case Object:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = ToGo(e.Value)
		}
		return out
	}
	return nil
}
