// Package query compiles the arguments of an entity field into a store
// EntityQuery and works out which entity types a subscription watches.
//
// Compilation is pure: it reads the schema and the argument map and returns
// either a complete query or the first error encountered.
package query

import (
	language "github.com/hanpama/entityql/internal/language"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
)

// Limits bound the pagination window a client may request.
type Limits struct {
	MaxFirst uint32
	MaxSkip  uint32
}

// ObjectCondition identifies a concrete object type when choosing which
// attributes a caller allows for it.
type ObjectCondition string

// ConditionFor returns the condition of an object type.
func ConditionFor(t *schema.Type) ObjectCondition { return ObjectCondition(t.Name) }

// ColumnNames holds the attribute selection for each concrete type. Types
// without an entry select all attributes.
type ColumnNames map[ObjectCondition]store.AttributeNames

// take removes and returns the selection for t.
func (c ColumnNames) take(t *schema.Type) store.AttributeNames {
	cond := ConditionFor(t)
	names, ok := c[cond]
	if !ok {
		return store.AllAttributes()
	}
	delete(c, cond)
	return names
}

// BuildQuery compiles the arguments of a field returning entity (an object
// or interface type) into an EntityQuery. Interface targets read every
// implementing object type in declaration order. Entries of columns are
// consumed as their types are processed.
func BuildQuery(s *schema.Schema, entity *schema.Type, block store.BlockNumber, args Arguments, limits Limits, columns ColumnNames) (store.EntityQuery, error) {
	if columns == nil {
		columns = ColumnNames{}
	}
	var collection store.EntityCollection
	switch entity.Kind {
	case schema.TypeKindObject:
		collection = store.EntityCollection{{EntityType: entity.Name, Attributes: columns.take(entity)}}
	case schema.TypeKindInterface:
		for _, impl := range s.Implementers(entity.Name) {
			collection = append(collection, store.EntityAttributes{EntityType: impl.Name, Attributes: columns.take(impl)})
		}
	default:
		return store.EntityQuery{}, NotSupported("Querying entities of " + string(entity.Kind) + " type " + entity.Name + " is not supported")
	}

	id, err := ParseSubgraphID(entity)
	if err != nil {
		return store.EntityQuery{}, err
	}
	rng, err := BuildRange(args, limits.MaxFirst, limits.MaxSkip)
	if err != nil {
		return store.EntityQuery{}, err
	}
	q := store.NewEntityQuery(id, block, collection).WithRange(rng)

	filter, err := BuildFilter(entity, args)
	if err != nil {
		return store.EntityQuery{}, err
	}
	if filter != nil {
		q = q.WithFilter(*filter)
	}

	orderBy, err := BuildOrderBy(entity, args)
	if err != nil {
		return store.EntityQuery{}, err
	}
	if orderBy != nil {
		switch BuildOrderDirection(args) {
		case store.OrderDescending:
			q = q.WithOrder(store.Descending(orderBy.Attribute, orderBy.ValueType))
		default:
			q = q.WithOrder(store.Ascending(orderBy.Attribute, orderBy.ValueType))
		}
	}
	return q, nil
}

// ParseSubgraphID reads the deployment a type belongs to from its
// @subgraphId(id: "...") directive.
func ParseSubgraphID(t *schema.Type) (store.DeploymentHash, error) {
	lit := t.Directive(schema.SubgraphIDDirective).Argument(schema.SubgraphIDArgument)
	if lit == nil || (lit.Kind != language.StringValue && lit.Kind != language.BlockValue) {
		return "", subgraphDeploymentIDError(t.Name)
	}
	id, err := store.NewDeploymentHash(lit.Raw)
	if err != nil {
		return "", subgraphDeploymentIDError(t.Name)
	}
	return id, nil
}
