// Package introspection answers the __schema and __type root fields.
//
// Schema elements are rendered as objects one level deep: a __Type value
// refers to other types by name only and is expanded when a selection
// reaches it.
package introspection

import (
	"context"
	"sort"

	language "github.com/hanpama/entityql/internal/language"
	query "github.com/hanpama/entityql/internal/query"
	resolver "github.com/hanpama/entityql/internal/resolver"
	schema "github.com/hanpama/entityql/internal/schema"
	value "github.com/hanpama/entityql/internal/value"
)

// Resolver resolves introspection fields of one schema.
type Resolver struct {
	resolver.Defaults
	schema *schema.Schema
}

func New(sch *schema.Schema) *Resolver { return &Resolver{schema: sch} }

// Cacheable is false: introspection is answered from memory.
func (r *Resolver) Cacheable() bool { return false }

// QueryPermit admits every request; introspection does not touch the store.
func (r *Resolver) QueryPermit(context.Context) (*resolver.Permit, error) { return nil, nil }

func (r *Resolver) Prefetch(*resolver.ExecutionContext, language.SelectionSet) (value.Value, []error) {
	return nil, nil
}

func (r *Resolver) ResolveObject(ec *resolver.ExecutionContext, prefetched value.Value, field *language.Field, fieldDef *schema.Field, objectType *schema.Type, args query.Arguments) (value.Value, error) {
	if prefetched != nil {
		return r.expand(prefetched), nil
	}
	switch fieldDef.Name {
	case "__schema":
		return r.schemaValue(), nil
	case "__type":
		name, _ := args["name"].(value.String)
		if t := r.schema.Type(string(name)); t != nil {
			return r.typeValue(t), nil
		}
	}
	return value.Null{}, nil
}

// ResolveObjects expands the listed types and drops deprecated elements
// unless includeDeprecated is set.
func (r *Resolver) ResolveObjects(ec *resolver.ExecutionContext, prefetched value.Value, field *language.Field, fieldDef *schema.Field, objectType *schema.Type, args query.Arguments) (value.Value, error) {
	items, ok := prefetched.(value.List)
	if !ok {
		return value.Null{}, nil
	}
	includeDeprecated := args["includeDeprecated"] == value.Boolean(true)
	out := make(value.List, 0, len(items))
	for _, item := range items {
		if !includeDeprecated && isDeprecated(item) {
			continue
		}
		out = append(out, r.expand(item))
	}
	return out, nil
}

func isDeprecated(v value.Value) bool {
	obj, ok := v.(value.Object)
	if !ok {
		return false
	}
	d, _ := obj.Get("isDeprecated")
	return d == value.Boolean(true)
}

// expand replaces a named type reference with the full type.
func (r *Resolver) expand(v value.Value) value.Value {
	obj, ok := v.(value.Object)
	if !ok {
		return v
	}
	if tn, _ := obj.TypeName(); tn != "__Type" {
		return v
	}
	if _, full := obj.Get("fields"); full {
		return v
	}
	name, ok := obj.Get("name")
	if !ok {
		return v
	}
	s, ok := name.(value.String)
	if !ok {
		return v
	}
	if t := r.schema.Type(string(s)); t != nil {
		return r.typeValue(t)
	}
	return v
}

func (r *Resolver) schemaValue() value.Object {
	names := make([]string, 0, len(r.schema.Types))
	for name := range r.schema.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	types := make(value.List, len(names))
	for i, name := range names {
		types[i] = typeRef(r.schema.Types[name])
	}

	dirNames := make([]string, 0, len(r.schema.Directives))
	for name := range r.schema.Directives {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)
	directives := make(value.List, len(dirNames))
	for i, name := range dirNames {
		directives[i] = r.directiveValue(r.schema.Directives[name])
	}

	return value.Object{
		{Key: value.TypeNameKey, Value: value.String("__Schema")},
		{Key: "description", Value: optional(r.schema.Description)},
		{Key: "types", Value: types},
		{Key: "queryType", Value: r.namedRef(r.schema.QueryType)},
		{Key: "mutationType", Value: r.namedRef(r.schema.MutationType)},
		{Key: "subscriptionType", Value: r.namedRef(r.schema.SubscriptionType)},
		{Key: "directives", Value: directives},
	}
}

func (r *Resolver) namedRef(name string) value.Value {
	if t := r.schema.Type(name); t != nil {
		return typeRef(t)
	}
	return value.Null{}
}

// typeRef names a type without describing it.
func typeRef(t *schema.Type) value.Object {
	return value.Object{
		{Key: value.TypeNameKey, Value: value.String("__Type")},
		{Key: "kind", Value: value.Enum(t.Kind)},
		{Key: "name", Value: value.String(t.Name)},
	}
}

func (r *Resolver) wrappedRef(tr *schema.TypeRef) value.Value {
	switch tr.Kind {
	case schema.TypeRefKindNonNull, schema.TypeRefKindList:
		return value.Object{
			{Key: value.TypeNameKey, Value: value.String("__Type")},
			{Key: "kind", Value: value.Enum(tr.Kind)},
			{Key: "name", Value: value.Null{}},
			{Key: "ofType", Value: r.wrappedRef(tr.OfType)},
		}
	}
	return r.namedRef(tr.Named)
}

func (r *Resolver) typeValue(t *schema.Type) value.Object {
	out := typeRef(t)
	out = append(out,
		value.Entry{Key: "description", Value: optional(t.Description)},
		value.Entry{Key: "specifiedByURL", Value: value.Null{}},
		value.Entry{Key: "fields", Value: value.Null{}},
		value.Entry{Key: "interfaces", Value: value.Null{}},
		value.Entry{Key: "possibleTypes", Value: value.Null{}},
		value.Entry{Key: "enumValues", Value: value.Null{}},
		value.Entry{Key: "inputFields", Value: value.Null{}},
		value.Entry{Key: "ofType", Value: value.Null{}},
		value.Entry{Key: "isOneOf", Value: value.Null{}},
	)

	switch t.Kind {
	case schema.TypeKindScalar:
		if t.SpecifiedByURL != nil {
			out = out.Set("specifiedByURL", value.String(*t.SpecifiedByURL))
		}
	case schema.TypeKindObject, schema.TypeKindInterface:
		fields := make(value.List, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = r.fieldValue(f)
		}
		out = out.Set("fields", fields)
		interfaces := value.List{}
		for _, name := range t.Interfaces {
			if ref := r.namedRef(name); !value.IsNull(ref) {
				interfaces = append(interfaces, ref)
			}
		}
		out = out.Set("interfaces", interfaces)
		if t.Kind == schema.TypeKindInterface {
			possible := value.List{}
			for _, impl := range r.schema.Implementers(t.Name) {
				possible = append(possible, typeRef(impl))
			}
			out = out.Set("possibleTypes", possible)
		}
	case schema.TypeKindUnion:
		possible := value.List{}
		for _, name := range t.PossibleTypes {
			if ref := r.namedRef(name); !value.IsNull(ref) {
				possible = append(possible, ref)
			}
		}
		out = out.Set("possibleTypes", possible)
	case schema.TypeKindEnum:
		values := make(value.List, len(t.EnumValues))
		for i, ev := range t.EnumValues {
			values[i] = value.Object{
				{Key: value.TypeNameKey, Value: value.String("__EnumValue")},
				{Key: "name", Value: value.String(ev.Name)},
				{Key: "description", Value: optional(ev.Description)},
				{Key: "isDeprecated", Value: value.Boolean(ev.IsDeprecated)},
				{Key: "deprecationReason", Value: deprecationReason(ev.IsDeprecated, ev.DeprecationReason)},
			}
		}
		out = out.Set("enumValues", values)
	case schema.TypeKindInputObject:
		out = out.Set("inputFields", r.inputValues(t.InputFields))
		out = out.Set("isOneOf", value.Boolean(t.OneOf))
	}
	return out
}

func (r *Resolver) fieldValue(f *schema.Field) value.Object {
	return value.Object{
		{Key: value.TypeNameKey, Value: value.String("__Field")},
		{Key: "name", Value: value.String(f.Name)},
		{Key: "description", Value: optional(f.Description)},
		{Key: "args", Value: r.inputValues(f.Arguments)},
		{Key: "type", Value: r.wrappedRef(f.Type)},
		{Key: "isDeprecated", Value: value.Boolean(f.IsDeprecated)},
		{Key: "deprecationReason", Value: deprecationReason(f.IsDeprecated, f.DeprecationReason)},
	}
}

func (r *Resolver) inputValues(in []*schema.InputValue) value.List {
	out := make(value.List, len(in))
	for i, a := range in {
		def := value.Value(value.Null{})
		if a.DefaultValue != nil {
			def = value.String(a.DefaultValue.String())
		}
		out[i] = value.Object{
			{Key: value.TypeNameKey, Value: value.String("__InputValue")},
			{Key: "name", Value: value.String(a.Name)},
			{Key: "description", Value: optional(a.Description)},
			{Key: "type", Value: r.wrappedRef(a.Type)},
			{Key: "defaultValue", Value: def},
			{Key: "isDeprecated", Value: value.Boolean(a.IsDeprecated)},
			{Key: "deprecationReason", Value: deprecationReason(a.IsDeprecated, a.DeprecationReason)},
		}
	}
	return out
}

func (r *Resolver) directiveValue(d *schema.Directive) value.Object {
	locations := make(value.List, len(d.Locations))
	for i, loc := range d.Locations {
		locations[i] = value.Enum(loc)
	}
	return value.Object{
		{Key: value.TypeNameKey, Value: value.String("__Directive")},
		{Key: "name", Value: value.String(d.Name)},
		{Key: "description", Value: optional(d.Description)},
		{Key: "isRepeatable", Value: value.Boolean(d.IsRepeatable)},
		{Key: "locations", Value: locations},
		{Key: "args", Value: r.inputValues(d.Arguments)},
	}
}

func optional(s string) value.Value {
	if s == "" {
		return value.Null{}
	}
	return value.String(s)
}

func deprecationReason(deprecated bool, reason string) value.Value {
	if !deprecated {
		return value.Null{}
	}
	return value.String(reason)
}
