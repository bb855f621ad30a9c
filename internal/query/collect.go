package query

import (
	"sort"

	language "github.com/hanpama/entityql/internal/language"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
)

type pendingField struct {
	parent *schema.Type
	field  *language.Field
}

// CollectEntitiesFromQueryField returns the entity types whose changes
// affect the result of field, selected on objectType. The traversal follows
// nested selections through entity types only. Entity types without a valid
// subgraph id are left out. The result is sorted.
func CollectEntitiesFromQueryField(s *schema.Schema, objectType *schema.Type, field *language.Field) []store.SubscriptionFilter {
	seen := make(map[store.SubscriptionFilter]struct{})
	queue := []pendingField{{parent: objectType, field: field}}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		def := next.parent.Field(next.field.Name)
		if def == nil {
			continue
		}
		t := s.TypeOfField(def)
		if t == nil || t.Kind != schema.TypeKindObject || !t.IsEntity() {
			continue
		}
		if id, err := ParseSubgraphID(t); err == nil {
			seen[store.SubscriptionFilter{SubgraphID: id, EntityType: t.Name}] = struct{}{}
		}
		for _, sel := range next.field.SelectionSet {
			if sub, ok := sel.(*language.Field); ok {
				queue = append(queue, pendingField{parent: t, field: sub})
			}
		}
	}

	out := make([]store.SubscriptionFilter, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubgraphID != out[j].SubgraphID {
			return out[i].SubgraphID < out[j].SubgraphID
		}
		return out[i].EntityType < out[j].EntityType
	})
	return out
}
