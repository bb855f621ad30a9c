package execution

import (
	"errors"
	"fmt"

	resolver "github.com/hanpama/entityql/internal/resolver"
	schema "github.com/hanpama/entityql/internal/schema"
	value "github.com/hanpama/entityql/internal/value"
)

// Meta fields of the query root. They are not part of the loaded schema.
var (
	schemaMetaField = &schema.Field{
		Name: "__schema",
		Type: schema.NonNullType(schema.NamedType("__Schema")),
	}
	typeMetaField = &schema.Field{
		Name: "__type",
		Type: schema.NamedType("__Type"),
		Arguments: []*schema.InputValue{
			{Name: "name", Type: schema.NonNullType(schema.NamedType("String"))},
		},
	}
)

// executionState tracks field errors and the first defect of one request.
//
// Completion functions return nil when a non-null position resolved to null.
// The error is already recorded by then; the nearest nullable position turns
// nil into Null.
type executionState struct {
	ec       *resolver.ExecutionContext
	executor *Executor
	errors   []*resolver.Error
	defect   error
}

func (st *executionState) addError(err error, path resolver.Path) {
	st.errors = append(st.errors, resolver.NewError(err, path))
}

// fail records a defect. Nothing is resolved once one is recorded.
func (st *executionState) fail(err error) {
	if st.defect != nil {
		return
	}
	var d *resolver.Defect
	if !errors.As(err, &d) {
		d = resolver.Defectf("%v", err)
	}
	st.defect = d
}

func (st *executionState) executeRoot(root *schema.Type, rootValue value.Object) value.Value {
	groups := st.ec.CollectFields(root, st.ec.Operation.SelectionSet)
	return st.executeSelectionSet(nil, root, groups, rootValue, nil)
}

// executeSelectionSet resolves groups on objectType. r is nil at the root,
// where each field picks its own resolver.
func (st *executionState) executeSelectionSet(
	r resolver.Resolver,
	objectType *schema.Type,
	groups []resolver.FieldGroup,
	parent value.Object,
	path resolver.Path,
) value.Value {
	out := make(value.Object, 0, len(groups))
	for _, g := range groups {
		if st.defect != nil {
			return nil
		}
		field := g.Field()
		fieldPath := path.Append(g.ResponseKey)
		if field.Name == value.TypeNameKey {
			out = append(out, value.Entry{Key: g.ResponseKey, Value: value.String(objectType.Name)})
			continue
		}

		fr := r
		if fr == nil {
			fr = st.executor.resolverFor(field.Name)
		}
		def, err := st.fieldDef(objectType, field.Name, r == nil)
		if err != nil {
			st.addError(err, fieldPath)
			out = append(out, value.Entry{Key: g.ResponseKey, Value: value.Null{}})
			continue
		}
		v := st.executeField(fr, def, g, parent, fieldPath)
		if v == nil {
			return nil
		}
		out = append(out, value.Entry{Key: g.ResponseKey, Value: v})
	}
	return out
}

func (st *executionState) fieldDef(objectType *schema.Type, name string, root bool) (*schema.Field, error) {
	if root && objectType == st.ec.Schema.GetQueryType() {
		switch name {
		case schemaMetaField.Name, typeMetaField.Name:
			if st.executor.introspection == nil {
				return nil, errors.New("introspection is not available")
			}
			if name == schemaMetaField.Name {
				return schemaMetaField, nil
			}
			return typeMetaField, nil
		}
	}
	if def := objectType.Field(name); def != nil {
		return def, nil
	}
	return nil, fmt.Errorf("Cannot query field %q on type %q", name, objectType.Name)
}

// lookup finds what the parent holds for a field: a prefetched value under
// the response key, or an attribute under the field name.
func lookup(parent value.Object, responseKey, name string) value.Value {
	if v, ok := parent.Get(resolver.PrefetchKey(responseKey)); ok {
		return v
	}
	v, _ := parent.Get(name)
	return v
}

func (st *executionState) executeField(
	r resolver.Resolver,
	def *schema.Field,
	g resolver.FieldGroup,
	parent value.Object,
	path resolver.Path,
) value.Value {
	field := g.Field()
	args, err := st.ec.ArgumentValues(def, field)
	if err != nil {
		return st.fieldError(def, err, path)
	}
	fieldType := st.ec.Schema.TypeOfField(def)
	if fieldType == nil {
		st.fail(resolver.Defectf("field %q has unknown type %s", def.Name, def.Type))
		return nil
	}

	prefetched := lookup(parent, g.ResponseKey, field.Name)
	list := def.Type.IsList()
	var v value.Value
	switch {
	case !fieldType.IsLeaf():
		if list {
			v, err = r.ResolveObjects(st.ec, prefetched, field, def, fieldType, args)
		} else {
			v, err = r.ResolveObject(st.ec, prefetched, field, def, fieldType, args)
		}
	case fieldType.Kind == schema.TypeKindEnum:
		if list {
			var errs []error
			v, errs = r.ResolveEnumValues(field, fieldType, prefetched)
			err = errors.Join(errs...)
		} else {
			v, err = r.ResolveEnumValue(field, fieldType, prefetched)
		}
	default:
		if list {
			var errs []error
			v, errs = r.ResolveScalarValues(field, fieldType, prefetched)
			err = errors.Join(errs...)
		} else {
			var parentType *schema.Type
			if tn, ok := parent.TypeName(); ok {
				parentType = st.ec.Schema.Type(tn)
			}
			v, err = r.ResolveScalarValue(parentType, field, fieldType, prefetched, args)
		}
	}
	if err != nil {
		return st.fieldError(def, err, path)
	}
	return st.completeValue(r, def.Type, g, v, path)
}

// fieldError reports a resolver failure. The field becomes null without a
// second error for a non-null violation.
func (st *executionState) fieldError(def *schema.Field, err error, path resolver.Path) value.Value {
	var d *resolver.Defect
	if errors.As(err, &d) {
		st.fail(d)
		return nil
	}
	st.addError(err, path)
	if def.Type.IsNonNull() {
		return nil
	}
	return value.Null{}
}

func (st *executionState) completeValue(r resolver.Resolver, t *schema.TypeRef, g resolver.FieldGroup, v value.Value, path resolver.Path) value.Value {
	if t.IsNonNull() {
		c := st.completeNullable(r, t.OfType, g, v, path)
		if c == nil {
			return nil
		}
		if value.IsNull(c) {
			st.addError(fmt.Errorf("Cannot return null for non-nullable field %q", g.Field().Name), path)
			return nil
		}
		return c
	}
	c := st.completeNullable(r, t, g, v, path)
	if c == nil {
		return value.Null{}
	}
	return c
}

func (st *executionState) completeNullable(r resolver.Resolver, t *schema.TypeRef, g resolver.FieldGroup, v value.Value, path resolver.Path) value.Value {
	if st.defect != nil {
		return nil
	}
	if value.IsNull(v) {
		return value.Null{}
	}
	if t.Kind == schema.TypeRefKindList {
		items, ok := v.(value.List)
		if !ok {
			st.addError(fmt.Errorf("expected a list for field %q, got %s", g.Field().Name, v.Kind()), path)
			return nil
		}
		out := make(value.List, len(items))
		for i, item := range items {
			c := st.completeValue(r, t.OfType, g, item, path.Append(i))
			if c == nil {
				return nil
			}
			out[i] = c
		}
		return out
	}

	named := st.ec.Schema.Type(t.Named)
	if named == nil {
		st.fail(resolver.Defectf("unknown type %s", t.Named))
		return nil
	}
	switch {
	case named.IsLeaf():
		return v
	case named.IsAbstract():
		concrete, err := r.ResolveAbstractType(st.ec.Schema, named, v)
		if err != nil {
			st.fail(err)
			return nil
		}
		return st.completeObject(r, concrete, g, v, path)
	default:
		return st.completeObject(r, named, g, v, path)
	}
}

func (st *executionState) completeObject(r resolver.Resolver, objectType *schema.Type, g resolver.FieldGroup, v value.Value, path resolver.Path) value.Value {
	obj, ok := v.(value.Object)
	if !ok {
		st.fail(resolver.Defectf("field %q resolved to %s where an object of type %s was expected", g.Field().Name, v.Kind(), objectType.Name))
		return nil
	}
	groups := st.ec.CollectFields(objectType, g.SelectionSet())
	return st.executeSelectionSet(r, objectType, groups, obj, path)
}
