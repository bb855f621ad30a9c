package query

import (
	"fmt"
	"strings"

	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
	value "github.com/hanpama/entityql/internal/value"
)

// Arguments are the resolved arguments of one field, keyed by name. A missing
// key means the argument was not supplied.
type Arguments map[string]value.Value

// Argument names understood by the compiler.
const (
	ArgFirst          = "first"
	ArgSkip           = "skip"
	ArgWhere          = "where"
	ArgText           = "text"
	ArgOrderBy        = "orderBy"
	ArgOrderDirection = "orderDirection"
)

// DefaultFirst is the page size used when first is absent or null.
const DefaultFirst uint32 = 100

// BuildRange reads first and skip. Both must be Int or null; any other kind
// has been ruled out by argument validation and panics.
func BuildRange(args Arguments, maxFirst, maxSkip uint32) (store.EntityRange, error) {
	first := DefaultFirst
	switch v := args[ArgFirst].(type) {
	case nil, value.Null:
	case value.Int:
		if v <= 0 || int64(v) > int64(maxFirst) {
			return store.EntityRange{}, rangeArgumentsError(ArgFirst, maxFirst, int64(v))
		}
		first = uint32(v)
	default:
		panic(fmt.Sprintf("argument %q must be an Int, got %s", ArgFirst, v.Kind()))
	}

	var skip uint32
	switch v := args[ArgSkip].(type) {
	case nil, value.Null:
	case value.Int:
		if v < 0 || int64(v) > int64(maxSkip) {
			return store.EntityRange{}, rangeArgumentsError(ArgSkip, maxSkip, int64(v))
		}
		skip = uint32(v)
	default:
		panic(fmt.Sprintf("argument %q must be an Int, got %s", ArgSkip, v.Kind()))
	}
	return store.FirstN(first, skip), nil
}

// BuildFilter reads where, falling back to text when where is absent. It
// returns nil when there is nothing to filter on.
func BuildFilter(entity *schema.Type, args Arguments) (*store.EntityFilter, error) {
	switch where := args[ArgWhere].(type) {
	case value.Object:
		return buildFilterFromObject(entity, where)
	case value.Null:
		return nil, nil
	case nil:
		switch text := args[ArgText].(type) {
		case value.Object:
			key, term, err := fulltextTerm(text)
			if err != nil {
				return nil, err
			}
			f := store.Equal(key, store.String(term))
			return &f, nil
		case nil:
			return nil, nil
		}
	}
	return nil, &Error{Kind: KindInvalidFilter}
}

// fulltextTerm returns the single search key and term of a text argument.
func fulltextTerm(text value.Object) (string, string, error) {
	if len(text) != 1 {
		return "", "", &Error{Kind: KindFulltextQueryRequiresFilter}
	}
	term, ok := text[0].Value.(value.String)
	if !ok {
		return "", "", &Error{Kind: KindFulltextQueryRequiresFilter}
	}
	return text[0].Key, string(term), nil
}

func buildFilterFromObject(entity *schema.Type, where value.Object) (*store.EntityFilter, error) {
	filters := make([]store.EntityFilter, 0, len(where))
	for _, e := range where {
		f, err := buildPredicate(entity, e.Key, e.Value)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	and := store.And(filters...)
	return &and, nil
}

func buildPredicate(entity *schema.Type, key string, raw value.Value) (store.EntityFilter, error) {
	name, op := ParseFilterKey(key)
	field := entity.Field(name)
	if field == nil {
		return store.EntityFilter{}, entityFieldError(entity.Name, name)
	}
	v, err := store.FromQueryValue(raw, field.Type)
	if err != nil {
		return store.EntityFilter{}, err
	}
	switch op {
	case store.OpIn, store.OpNotIn:
		values, err := listValues(v, filterSuffix(op))
		if err != nil {
			return store.EntityFilter{}, err
		}
		return store.EntityFilter{Op: op, Attribute: name, Values: values}, nil
	}
	return store.Compare(op, name, v), nil
}

// filterSuffixes maps where-key suffixes to operators. Longer suffixes that
// end in a shorter one come first.
var filterSuffixes = []struct {
	suffix string
	op     store.FilterOp
}{
	{"_not", store.OpNot},
	{"_gt", store.OpGreaterThan},
	{"_lt", store.OpLessThan},
	{"_gte", store.OpGreaterOrEqual},
	{"_lte", store.OpLessOrEqual},
	{"_not_in", store.OpNotIn},
	{"_in", store.OpIn},
	{"_not_contains", store.OpNotContains},
	{"_contains", store.OpContains},
	{"_not_starts_with", store.OpNotStartsWith},
	{"_starts_with", store.OpStartsWith},
	{"_not_ends_with", store.OpNotEndsWith},
	{"_ends_with", store.OpEndsWith},
}

// ParseFilterKey splits a where key into the attribute name and operator.
// A key without a known suffix compares for equality.
func ParseFilterKey(key string) (string, store.FilterOp) {
	for _, s := range filterSuffixes {
		if strings.HasSuffix(key, s.suffix) {
			return strings.TrimSuffix(key, s.suffix), s.op
		}
	}
	return key, store.OpEqual
}

func filterSuffix(op store.FilterOp) string {
	for _, s := range filterSuffixes {
		if s.op == op {
			return s.suffix
		}
	}
	return ""
}

// listValues checks that v is a list whose elements all share the kind of
// the first one.
func listValues(v store.Value, filter string) ([]store.Value, error) {
	list, ok := v.(store.List)
	if !ok {
		return nil, listFilterError(filter)
	}
	if len(list) == 0 {
		return []store.Value{}, nil
	}
	kind := list[0].Kind()
	for _, item := range list[1:] {
		if item.Kind() != kind {
			return nil, listTypesError(filter, list[0].String(), item.String())
		}
	}
	return []store.Value(list), nil
}

// OrderField is the attribute results are sorted by.
type OrderField struct {
	Attribute string
	ValueType store.ValueType
}

// BuildOrderBy reads orderBy, falling back to a fulltext order from text
// when orderBy is absent or not an enum value. It returns nil when results
// need no explicit order.
func BuildOrderBy(entity *schema.Type, args Arguments) (*OrderField, error) {
	if name, ok := args[ArgOrderBy].(value.Enum); ok {
		field := entity.Field(string(name))
		if field == nil {
			return nil, entityFieldError(entity.Name, string(name))
		}
		vt, ok := store.ValueTypeOf(field.Type)
		if !ok {
			return nil, orderByNotSupportedError(entity.Name, string(name))
		}
		return &OrderField{Attribute: string(name), ValueType: vt}, nil
	}
	switch text := args[ArgText].(type) {
	case value.Object:
		key, _, err := fulltextTerm(text)
		if err != nil {
			return nil, err
		}
		return &OrderField{Attribute: key, ValueType: store.ValueTypeString}, nil
	case nil:
		return nil, nil
	}
	return nil, &Error{Kind: KindInvalidFilter}
}

// BuildOrderDirection reads orderDirection. Only the enum values asc and
// desc are recognized; anything else, including absence, is ascending.
func BuildOrderDirection(args Arguments) store.OrderDirection {
	if dir, ok := args[ArgOrderDirection].(value.Enum); ok && dir == "desc" {
		return store.OrderDescending
	}
	return store.OrderAscending
}
