// Package resolver defines the contract an execution engine resolves fields
// through, together with the per-request ExecutionContext and the shared
// admission limiter. Concrete strategies (the store-backed resolver here,
// introspection elsewhere) implement Resolver; the engine never depends on a
// concrete strategy.
package resolver

import (
	"context"

	language "github.com/hanpama/entityql/internal/language"
	query "github.com/hanpama/entityql/internal/query"
	schema "github.com/hanpama/entityql/internal/schema"
	value "github.com/hanpama/entityql/internal/value"
)

// Resolver resolves the fields of one operation.
//
// General contract
//   - The engine calls QueryPermit once per request before anything else and
//     releases the permit when the request finishes, on every exit path.
//   - Prefetch is then called once with the root selection set. A non-nil
//     value is the whole root object; nested values it produced are passed
//     back to ResolveObjects/ResolveObject as the prefetched argument, and the
//     resolver must trust them instead of fetching again.
//   - Object-typed fields go through ResolveObjects (list types) or
//     ResolveObject. Leaf fields go through the enum/scalar methods with the
//     value found on the parent object, which may be nil.
//   - Errors returned by resolve methods are reported in the response with the
//     field's path. A *Defect is different: it means a guarantee upstream was
//     broken, and the engine aborts the whole request with it.
//
// Abstract types
//   - Values of interface and union fields are objects carrying a
//     "__typename" entry naming a concrete object type of the schema.
//     ResolveAbstractType maps such a value to that type.
//
// Subscriptions
//   - ResolveFieldStream opens a stream that yields one unit whenever the
//     result of the subscription field may have changed. The stream ends when
//     ctx is done.
//
// Embed Defaults to get the passthrough leaf behaviour, __typename based
// abstract type resolution, no subscription support and a no-op PostProcess.
type Resolver interface {
	// Cacheable reports whether results of this resolver may be memoized.
	Cacheable() bool

	// QueryPermit blocks until the request may run. It fails only when ctx is
	// done first.
	QueryPermit(ctx context.Context) (*Permit, error)

	// Prefetch resolves the selection set in bulk. It returns (nil, nil) when
	// the resolver has no bulk path. Independent failures are all returned.
	Prefetch(ec *ExecutionContext, selectionSet language.SelectionSet) (value.Value, []error)

	// ResolveObjects resolves a field of list-of-object type. objectType is
	// the named object or interface type of the field.
	ResolveObjects(ec *ExecutionContext, prefetched value.Value, field *language.Field, fieldDef *schema.Field, objectType *schema.Type, args query.Arguments) (value.Value, error)

	// ResolveObject resolves a field of object type.
	ResolveObject(ec *ExecutionContext, prefetched value.Value, field *language.Field, fieldDef *schema.Field, objectType *schema.Type, args query.Arguments) (value.Value, error)

	ResolveEnumValue(field *language.Field, enumType *schema.Type, v value.Value) (value.Value, error)
	ResolveScalarValue(parent *schema.Type, field *language.Field, scalarType *schema.Type, v value.Value, args query.Arguments) (value.Value, error)
	ResolveEnumValues(field *language.Field, enumType *schema.Type, v value.Value) (value.Value, []error)
	ResolveScalarValues(field *language.Field, scalarType *schema.Type, v value.Value) (value.Value, []error)

	// ResolveAbstractType returns the concrete object type of v. Any error is
	// a *Defect.
	ResolveAbstractType(s *schema.Schema, abstractType *schema.Type, v value.Value) (*schema.Type, error)

	ResolveFieldStream(ctx context.Context, s *schema.Schema, objectType *schema.Type, field *language.Field) (<-chan struct{}, error)

	// PostProcess may amend a completed top-level result.
	PostProcess(result *Result) error
}

// Defaults implements the optional parts of Resolver.
type Defaults struct{}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}

func (Defaults) ResolveEnumValue(_ *language.Field, _ *schema.Type, v value.Value) (value.Value, error) {
	return orNull(v), nil
}

func (Defaults) ResolveScalarValue(_ *schema.Type, _ *language.Field, _ *schema.Type, v value.Value, _ query.Arguments) (value.Value, error) {
	return orNull(v), nil
}

func (Defaults) ResolveEnumValues(_ *language.Field, _ *schema.Type, v value.Value) (value.Value, []error) {
	return orNull(v), nil
}

func (Defaults) ResolveScalarValues(_ *language.Field, _ *schema.Type, v value.Value) (value.Value, []error) {
	return orNull(v), nil
}

func (Defaults) ResolveAbstractType(s *schema.Schema, abstractType *schema.Type, v value.Value) (*schema.Type, error) {
	obj, ok := v.(value.Object)
	if !ok {
		return nil, Defectf("value of abstract type %s must be an object, got %s", abstractType.Name, kindOf(v))
	}
	name, ok := obj.TypeName()
	if !ok {
		return nil, Defectf("value of abstract type %s has no string %s", abstractType.Name, value.TypeNameKey)
	}
	t := s.Type(name)
	if t == nil {
		return nil, Defectf("%s %q of abstract type %s is not a type of the schema", value.TypeNameKey, name, abstractType.Name)
	}
	if t.Kind != schema.TypeKindObject {
		return nil, Defectf("%s %q of abstract type %s is a %s, not an object type", value.TypeNameKey, name, abstractType.Name, t.Kind)
	}
	return t, nil
}

func (Defaults) ResolveFieldStream(context.Context, *schema.Schema, *schema.Type, *language.Field) (<-chan struct{}, error) {
	return nil, query.NotSupported("Resolving field streams is not supported by this resolver")
}

func (Defaults) PostProcess(*Result) error { return nil }

func kindOf(v value.Value) string {
	if v == nil {
		return "nothing"
	}
	return v.Kind().String()
}
