package query

import (
	store "github.com/hanpama/entityql/internal/store"
	value "github.com/hanpama/entityql/internal/value"
)

// ArgumentsOf derives field arguments that compile back into the filter,
// order and range of q. A fulltext filter comes back as an equality in
// where, since the query alone cannot tell the two apart.
func ArgumentsOf(q store.EntityQuery) Arguments {
	args := Arguments{}
	if q.Range.First != nil {
		args[ArgFirst] = value.Int(*q.Range.First)
	}
	args[ArgSkip] = value.Int(q.Range.Skip)

	if q.Filter != nil {
		args[ArgWhere] = whereOf(*q.Filter)
	}
	if q.Order.Direction != store.OrderDefault {
		args[ArgOrderBy] = value.Enum(q.Order.Attribute)
		args[ArgOrderDirection] = value.Enum(q.Order.Direction)
	}
	return args
}

func whereOf(f store.EntityFilter) value.Object {
	filters := []store.EntityFilter{f}
	if f.Op == store.OpAnd {
		filters = f.Filters
	}
	where := make(value.Object, 0, len(filters))
	for _, p := range filters {
		key := p.Attribute + filterSuffix(p.Op)
		var v value.Value
		switch p.Op {
		case store.OpIn, store.OpNotIn:
			v = store.ToQueryValue(store.List(p.Values))
		default:
			v = store.ToQueryValue(p.Value)
		}
		where = append(where, value.Entry{Key: key, Value: v})
	}
	return where
}
