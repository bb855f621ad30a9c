package resolver

import (
	"context"
	"sort"
	"time"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	language "github.com/hanpama/entityql/internal/language"
	query "github.com/hanpama/entityql/internal/query"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
	value "github.com/hanpama/entityql/internal/value"
	"github.com/rs/zerolog"
)

// ChangeSource delivers a signal whenever an entity matching one of the
// filters changes. The channel is closed when ctx is done.
type ChangeSource interface {
	Subscribe(ctx context.Context, filters []store.SubscriptionFilter) (<-chan struct{}, error)
}

// StoreResolver resolves entity fields against a Store. The whole entity
// tree of a request is fetched by Prefetch: one query per root field and one
// batched query per nested entity field.
type StoreResolver struct {
	Defaults

	store   store.Store
	permits *Permits
	changes ChangeSource
	logger  zerolog.Logger
}

type StoreOption func(*StoreResolver)

// WithChangeSource enables subscriptions.
func WithChangeSource(c ChangeSource) StoreOption {
	return func(r *StoreResolver) { r.changes = c }
}

func WithLogger(l zerolog.Logger) StoreOption {
	return func(r *StoreResolver) { r.logger = l }
}

func NewStoreResolver(st store.Store, permits *Permits, opts ...StoreOption) *StoreResolver {
	r := &StoreResolver{store: st, permits: permits, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *StoreResolver) Cacheable() bool { return true }

func (r *StoreResolver) QueryPermit(ctx context.Context) (*Permit, error) {
	return r.permits.Acquire(ctx)
}

// PrefetchKey is the key a prefetched child value is stored under on its
// parent object. It cannot collide with an attribute name.
func PrefetchKey(responseKey string) string { return "prefetch:" + responseKey }

func (r *StoreResolver) Prefetch(ec *ExecutionContext, set language.SelectionSet) (value.Value, []error) {
	root := ec.RootType()
	if root == nil {
		return nil, nil
	}
	var (
		out     value.Object
		errs    []error
		fetched bool
	)
	for _, g := range ec.CollectFields(root, set) {
		def := root.Field(g.Field().Name)
		if def == nil {
			continue
		}
		target := ec.Schema.TypeOfField(def)
		if !isEntityType(target) {
			continue
		}
		fetched = true
		v, ferrs := r.prefetchRoot(ec, def, target, g)
		if len(ferrs) > 0 {
			errs = append(errs, ferrs...)
			continue
		}
		out = append(out, value.Entry{Key: PrefetchKey(g.ResponseKey), Value: v})
	}
	if !fetched {
		return nil, nil
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func (r *StoreResolver) prefetchRoot(ec *ExecutionContext, def *schema.Field, target *schema.Type, g FieldGroup) (value.Value, []error) {
	args, err := ec.ArgumentValues(def, g.Field())
	if err != nil {
		return nil, []error{err}
	}
	list := def.Type.IsList()
	if !list {
		args = singular(args)
	}
	q, err := r.build(ec, target, args, r.columns(ec, target, g))
	if err != nil {
		return nil, []error{err}
	}
	entities, err := r.find(ec, q)
	if err != nil {
		return nil, []error{err}
	}
	objects := entityObjects(entities)
	if errs := r.prefetchChildren(ec, objects, g.SelectionSet()); len(errs) > 0 {
		return nil, errs
	}
	if list {
		return objectList(objects), nil
	}
	if len(objects) == 0 {
		return value.Null{}, nil
	}
	return objects[0], nil
}

// singular turns the arguments of a single-entity field into a lookup by id.
func singular(args query.Arguments) query.Arguments {
	id, ok := args["id"]
	if !ok {
		return args
	}
	out := make(query.Arguments, len(args)+2)
	for k, v := range args {
		if k != "id" {
			out[k] = v
		}
	}
	where, _ := out[query.ArgWhere].(value.Object)
	out[query.ArgWhere] = append(append(value.Object(nil), where...), value.Entry{Key: "id", Value: id})
	out[query.ArgFirst] = value.Int(1)
	return out
}

// prefetchChildren fetches the entity fields selected on objects and stores
// each result on its parent under PrefetchKey.
func (r *StoreResolver) prefetchChildren(ec *ExecutionContext, objects []value.Object, set language.SelectionSet) []error {
	if len(objects) == 0 || len(set) == 0 {
		return nil
	}
	var (
		order  []string
		byType = map[string][]int{}
	)
	for i, obj := range objects {
		name, _ := obj.TypeName()
		if _, ok := byType[name]; !ok {
			order = append(order, name)
		}
		byType[name] = append(byType[name], i)
	}

	var errs []error
	for _, name := range order {
		t := ec.Schema.Type(name)
		if t == nil {
			continue
		}
		idxs := byType[name]
		for _, g := range ec.CollectFields(t, set) {
			def := t.Field(g.Field().Name)
			if def == nil {
				continue
			}
			target := ec.Schema.TypeOfField(def)
			if !isEntityType(target) {
				continue
			}
			parents := make([]value.Object, len(idxs))
			for j, i := range idxs {
				parents[j] = objects[i]
			}
			errs = append(errs, r.prefetchField(ec, def, target, g, parents)...)
			for j, i := range idxs {
				objects[i] = parents[j]
			}
		}
	}
	return errs
}

// prefetchField resolves one nested entity field for all parents with a
// single query and distributes the results. The pagination window applies
// per parent.
func (r *StoreResolver) prefetchField(ec *ExecutionContext, def *schema.Field, target *schema.Type, g FieldGroup, parents []value.Object) []error {
	args, err := ec.ArgumentValues(def, g.Field())
	if err != nil {
		return []error{err}
	}
	list := def.Type.IsList()
	key := PrefetchKey(g.ResponseKey)

	if derived, ok := def.DerivedFrom(); ok {
		attr := target.Field(derived)
		if attr == nil {
			return []error{Defectf("field %s derives from %s.%s, which does not exist", def.Name, target.Name, derived)}
		}
		if attr.Type.IsList() {
			return r.prefetchContained(ec, target, attr, args, g, parents, key, list)
		}
		ids := make([]value.Value, 0, len(parents))
		for _, p := range parents {
			if id, ok := p.Get("id"); ok && !value.IsNull(id) {
				ids = append(ids, id)
			}
		}
		children, window, errs := r.fetchReferenced(ec, target, attr, args, g, ids, derived)
		if errs != nil {
			return errs
		}
		for i, p := range parents {
			id, _ := p.Get("id")
			var matched []value.Object
			for _, c := range children {
				if v, ok := c.Get(derived); ok && refKey(v) == refKey(id) {
					matched = append(matched, c)
				}
			}
			parents[i] = p.Set(key, shape(matched, window, list))
		}
		return nil
	}

	refs := make([][]value.Value, len(parents))
	var ids []value.Value
	for i, p := range parents {
		v, _ := p.Get(def.Name)
		refs[i] = references(v)
		ids = append(ids, refs[i]...)
	}
	idField := target.Field("id")
	if idField == nil {
		return []error{Defectf("entity type %s has no id field", target.Name)}
	}
	children, window, errs := r.fetchReferenced(ec, target, idField, args, g, ids, "")
	if errs != nil {
		return errs
	}
	byID := make(map[string]value.Object, len(children))
	for _, c := range children {
		id, _ := c.Get("id")
		byID[refKey(id)] = c
	}
	sorted := args[query.ArgOrderBy] != nil && !value.IsNull(args[query.ArgOrderBy])
	for i, p := range parents {
		var matched []value.Object
		if sorted {
			want := make(map[string]bool, len(refs[i]))
			for _, ref := range refs[i] {
				want[refKey(ref)] = true
			}
			for _, c := range children {
				id, _ := c.Get("id")
				if want[refKey(id)] {
					matched = append(matched, c)
				}
			}
		} else {
			for _, ref := range refs[i] {
				if c, ok := byID[refKey(ref)]; ok {
					matched = append(matched, c)
				}
			}
		}
		parents[i] = p.Set(key, shape(matched, window, list))
	}
	return nil
}

// fetchReferenced queries target for entities whose attr is one of ids,
// together with their own nested entity fields.
func (r *StoreResolver) fetchReferenced(ec *ExecutionContext, target *schema.Type, attr *schema.Field, args query.Arguments, g FieldGroup, ids []value.Value, extra string) ([]value.Object, store.EntityRange, []error) {
	if len(ids) == 0 {
		return nil, store.EntityRange{}, nil
	}
	var extras []string
	if extra != "" {
		extras = append(extras, extra)
	}
	q, err := r.build(ec, target, args, r.columns(ec, target, g, extras...))
	if err != nil {
		return nil, store.EntityRange{}, []error{err}
	}
	sv, err := store.FromQueryValue(dedup(ids), schema.ListType(attr.Type))
	if err != nil {
		return nil, store.EntityRange{}, []error{err}
	}
	list, _ := sv.(store.List)
	ref := store.In(attr.Name, list)
	if q.Filter != nil {
		ref = store.And(*q.Filter, ref)
	}
	window := q.Range
	q = q.WithFilter(ref).WithRange(store.EntityRange{})

	entities, err := r.find(ec, q)
	if err != nil {
		return nil, window, []error{err}
	}
	children := entityObjects(entities)
	if errs := r.prefetchChildren(ec, children, g.SelectionSet()); len(errs) > 0 {
		return nil, window, errs
	}
	return children, window, nil
}

// prefetchContained resolves a field derived from a list attribute: each
// parent runs its own query for children whose list contains the parent.
func (r *StoreResolver) prefetchContained(ec *ExecutionContext, target *schema.Type, attr *schema.Field, args query.Arguments, g FieldGroup, parents []value.Object, key string, list bool) []error {
	var errs []error
	for i, p := range parents {
		id, ok := p.Get("id")
		if !ok || value.IsNull(id) {
			parents[i] = p.Set(key, shape(nil, store.EntityRange{}, list))
			continue
		}
		q, err := r.build(ec, target, args, r.columns(ec, target, g, attr.Name))
		if err != nil {
			return []error{err}
		}
		sv, err := store.FromQueryValue(value.List{id}, attr.Type)
		if err != nil {
			return []error{err}
		}
		contains := store.Compare(store.OpContains, attr.Name, sv)
		if q.Filter != nil {
			contains = store.And(*q.Filter, contains)
		}
		entities, err := r.find(ec, q.WithFilter(contains))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		children := entityObjects(entities)
		if cerrs := r.prefetchChildren(ec, children, g.SelectionSet()); len(cerrs) > 0 {
			errs = append(errs, cerrs...)
			continue
		}
		parents[i] = p.Set(key, shape(children, store.EntityRange{}, list))
	}
	return errs
}

// columns selects the attributes the sub-selection of g reads on each
// concrete type, plus id and extra.
func (r *StoreResolver) columns(ec *ExecutionContext, target *schema.Type, g FieldGroup, extra ...string) query.ColumnNames {
	cols := query.ColumnNames{}
	for _, t := range concreteTypes(ec.Schema, target) {
		names := append([]string{"id"}, extra...)
		for _, sub := range ec.CollectFields(t, g.SelectionSet()) {
			def := t.Field(sub.Field().Name)
			if def == nil {
				continue
			}
			if _, derived := def.DerivedFrom(); derived {
				continue
			}
			names = append(names, def.Name)
		}
		cols[query.ConditionFor(t)] = store.SelectAttributes(names...)
	}
	return cols
}

func (r *StoreResolver) build(ec *ExecutionContext, target *schema.Type, args query.Arguments, cols query.ColumnNames) (store.EntityQuery, error) {
	q, err := query.BuildQuery(ec.Schema, target, ec.Block, args, ec.Limits, cols)
	eventbus.Publish(ec.Context, events.QueryBuilt{
		SubgraphID:  string(q.SubgraphID),
		EntityTypes: entityTypes(q),
		Err:         err,
	})
	if err != nil {
		r.logger.Debug().Err(err).Str("type", target.Name).Msg("entity query rejected")
	}
	return q, err
}

func (r *StoreResolver) find(ec *ExecutionContext, q store.EntityQuery) ([]store.Entity, error) {
	types := entityTypes(q)
	eventbus.Publish(ec.Context, events.StoreQueryStart{SubgraphID: string(q.SubgraphID), EntityTypes: types})
	start := time.Now()
	entities, err := r.store.FindEntities(ec.Context, q)
	eventbus.Publish(ec.Context, events.StoreQueryFinish{
		SubgraphID:  string(q.SubgraphID),
		EntityTypes: types,
		Entities:    len(entities),
		Err:         err,
		Duration:    time.Since(start),
	})
	if err != nil {
		r.logger.Error().Err(err).Str("subgraph", string(q.SubgraphID)).Strs("types", types).Msg("store query failed")
		return nil, err
	}
	return entities, nil
}

func (r *StoreResolver) ResolveObjects(ec *ExecutionContext, prefetched value.Value, field *language.Field, fieldDef *schema.Field, objectType *schema.Type, args query.Arguments) (value.Value, error) {
	switch prefetched.(type) {
	case value.List, value.Null:
		return prefetched, nil
	case nil:
		return r.resolveUnfetched(ec, field, fieldDef, objectType, args, true)
	}
	return nil, Defectf("prefetched value of list field %s is a %s", field.Name, kindOf(prefetched))
}

func (r *StoreResolver) ResolveObject(ec *ExecutionContext, prefetched value.Value, field *language.Field, fieldDef *schema.Field, objectType *schema.Type, args query.Arguments) (value.Value, error) {
	switch prefetched.(type) {
	case value.Object, value.Null:
		return prefetched, nil
	case nil:
		return r.resolveUnfetched(ec, field, fieldDef, objectType, args, false)
	}
	return nil, Defectf("prefetched value of field %s is a %s", field.Name, kindOf(prefetched))
}

// resolveUnfetched runs a root entity field that Prefetch did not cover.
// Fields of non-entity types without a value resolve to null.
func (r *StoreResolver) resolveUnfetched(ec *ExecutionContext, field *language.Field, fieldDef *schema.Field, objectType *schema.Type, args query.Arguments, list bool) (value.Value, error) {
	if !isEntityType(objectType) {
		return value.Null{}, nil
	}
	if !ec.IsRootField(fieldDef) {
		return nil, Defectf("field %s of type %s was not prefetched", field.Name, objectType.Name)
	}
	if !list {
		args = singular(args)
	}
	g := FieldGroup{ResponseKey: field.Name, Fields: []*language.Field{field}}
	q, err := r.build(ec, objectType, args, r.columns(ec, objectType, g))
	if err != nil {
		return nil, err
	}
	entities, err := r.find(ec, q)
	if err != nil {
		return nil, err
	}
	objects := entityObjects(entities)
	if errs := r.prefetchChildren(ec, objects, field.SelectionSet); len(errs) > 0 {
		return nil, errs[0]
	}
	if list {
		return objectList(objects), nil
	}
	if len(objects) == 0 {
		return value.Null{}, nil
	}
	return objects[0], nil
}

func (r *StoreResolver) ResolveFieldStream(ctx context.Context, s *schema.Schema, objectType *schema.Type, field *language.Field) (<-chan struct{}, error) {
	if r.changes == nil {
		return r.Defaults.ResolveFieldStream(ctx, s, objectType, field)
	}
	filters := query.CollectEntitiesFromQueryField(s, objectType, field)
	r.logger.Debug().Str("field", field.Name).Int("entities", len(filters)).Msg("watching entity changes")
	return r.changes.Subscribe(ctx, filters)
}

func isEntityType(t *schema.Type) bool {
	return t != nil && (t.Kind == schema.TypeKindObject || t.Kind == schema.TypeKindInterface) && t.IsEntity()
}

func concreteTypes(s *schema.Schema, t *schema.Type) []*schema.Type {
	if t.Kind == schema.TypeKindInterface {
		return s.Implementers(t.Name)
	}
	return []*schema.Type{t}
}

func entityTypes(q store.EntityQuery) []string {
	out := make([]string, len(q.Collection))
	for i, c := range q.Collection {
		out[i] = c.EntityType
	}
	return out
}

func entityObjects(entities []store.Entity) []value.Object {
	out := make([]value.Object, len(entities))
	for i, e := range entities {
		keys := make([]string, 0, len(e.Attributes))
		for k := range e.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(value.Object, 0, len(keys)+1)
		obj = append(obj, value.Entry{Key: value.TypeNameKey, Value: value.String(e.Type)})
		for _, k := range keys {
			obj = append(obj, value.Entry{Key: k, Value: store.ToQueryValue(e.Attributes[k])})
		}
		out[i] = obj
	}
	return out
}

func objectList(objects []value.Object) value.List {
	out := make(value.List, len(objects))
	for i, o := range objects {
		out[i] = o
	}
	return out
}

// shape applies the window to matched children and returns them as the
// value of a list or single field.
func shape(matched []value.Object, window store.EntityRange, list bool) value.Value {
	if !list {
		if len(matched) == 0 {
			return value.Null{}
		}
		return matched[0]
	}
	skip := int(window.Skip)
	if skip > len(matched) {
		skip = len(matched)
	}
	matched = matched[skip:]
	if window.First != nil && int(*window.First) < len(matched) {
		matched = matched[:*window.First]
	}
	return objectList(matched)
}

// references returns the entity ids a reference attribute holds.
func references(v value.Value) []value.Value {
	switch x := v.(type) {
	case value.List:
		out := make([]value.Value, 0, len(x))
		for _, item := range x {
			if !value.IsNull(item) {
				out = append(out, item)
			}
		}
		return out
	case nil, value.Null:
		return nil
	}
	return []value.Value{v}
}

func dedup(ids []value.Value) value.List {
	seen := make(map[string]bool, len(ids))
	out := make(value.List, 0, len(ids))
	for _, id := range ids {
		k := refKey(id)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, id)
	}
	return out
}

func refKey(v value.Value) string {
	if s, ok := v.(value.String); ok {
		return string(s)
	}
	if v == nil {
		return ""
	}
	return v.String()
}
