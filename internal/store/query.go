package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// BlockNumber is a chain block height.
type BlockNumber int32

// BlockNumberMax asks for the latest indexed state.
const BlockNumberMax BlockNumber = math.MaxInt32

// DeploymentHash identifies a subgraph deployment.
type DeploymentHash string

// ErrInvalidDeploymentHash is returned for malformed deployment identifiers.
var ErrInvalidDeploymentHash = errors.New("invalid deployment hash")

const (
	maxDeploymentHashLength = 46
	reservedDeploymentName  = "subgraphs"
)

// NewDeploymentHash validates s: it must be 1 to 46 ASCII letters, digits or
// underscores, and must not be the reserved name "subgraphs".
func NewDeploymentHash(s string) (DeploymentHash, error) {
	if s == "" || len(s) > maxDeploymentHashLength || s == reservedDeploymentName {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeploymentHash, s)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidDeploymentHash, s)
		}
	}
	return DeploymentHash(s), nil
}

// AttributeNames restricts the attributes returned for an entity type. The
// zero value selects all attributes.
type AttributeNames struct {
	selected bool
	names    []string
}

// AllAttributes selects every attribute.
func AllAttributes() AttributeNames { return AttributeNames{} }

// SelectAttributes selects exactly the given attributes.
func SelectAttributes(names ...string) AttributeNames {
	set := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			set = append(set, n)
		}
	}
	sort.Strings(set)
	return AttributeNames{selected: true, names: set}
}

func (a AttributeNames) IsAll() bool     { return !a.selected }
func (a AttributeNames) Names() []string { return append([]string(nil), a.names...) }

// Contains reports whether the attribute is selected.
func (a AttributeNames) Contains(name string) bool {
	if !a.selected {
		return true
	}
	i := sort.SearchStrings(a.names, name)
	return i < len(a.names) && a.names[i] == name
}

func (a AttributeNames) Equal(o AttributeNames) bool {
	if a.selected != o.selected || len(a.names) != len(o.names) {
		return false
	}
	for i := range a.names {
		if a.names[i] != o.names[i] {
			return false
		}
	}
	return true
}

func (a AttributeNames) MarshalJSON() ([]byte, error) {
	if !a.selected {
		return json.Marshal("*")
	}
	return json.Marshal(a.names)
}

// EntityAttributes pairs a concrete entity type with its attribute selection.
type EntityAttributes struct {
	EntityType string         `json:"entityType"`
	Attributes AttributeNames `json:"attributes"`
}

// EntityCollection lists the concrete entity types a query reads, in the
// order results are merged.
type EntityCollection []EntityAttributes

// FilterOp names an EntityFilter predicate.
type FilterOp string

const (
	OpAnd            FilterOp = "and"
	OpEqual          FilterOp = "equal"
	OpNot            FilterOp = "not"
	OpGreaterThan    FilterOp = "greaterThan"
	OpLessThan       FilterOp = "lessThan"
	OpGreaterOrEqual FilterOp = "greaterOrEqual"
	OpLessOrEqual    FilterOp = "lessOrEqual"
	OpIn             FilterOp = "in"
	OpNotIn          FilterOp = "notIn"
	OpContains       FilterOp = "contains"
	OpNotContains    FilterOp = "notContains"
	OpStartsWith     FilterOp = "startsWith"
	OpNotStartsWith  FilterOp = "notStartsWith"
	OpEndsWith       FilterOp = "endsWith"
	OpNotEndsWith    FilterOp = "notEndsWith"
)

// EntityFilter is a predicate tree over entity attributes. And uses Filters;
// In and NotIn use Values; every other operator compares Attribute with Value.
type EntityFilter struct {
	Op        FilterOp       `json:"op"`
	Attribute string         `json:"attribute,omitempty"`
	Value     Value          `json:"value,omitempty"`
	Values    []Value        `json:"values,omitempty"`
	Filters   []EntityFilter `json:"filters,omitempty"`
}

func And(filters ...EntityFilter) EntityFilter {
	return EntityFilter{Op: OpAnd, Filters: filters}
}

// Compare builds a single attribute predicate.
func Compare(op FilterOp, attribute string, v Value) EntityFilter {
	return EntityFilter{Op: op, Attribute: attribute, Value: v}
}

func Equal(attribute string, v Value) EntityFilter { return Compare(OpEqual, attribute, v) }

func In(attribute string, values []Value) EntityFilter {
	return EntityFilter{Op: OpIn, Attribute: attribute, Values: values}
}

func NotIn(attribute string, values []Value) EntityFilter {
	return EntityFilter{Op: OpNotIn, Attribute: attribute, Values: values}
}

// OrderDirection is the direction of an EntityOrder.
type OrderDirection string

const (
	OrderDefault    OrderDirection = "default"
	OrderAscending  OrderDirection = "asc"
	OrderDescending OrderDirection = "desc"
)

// EntityOrder sorts results by one attribute. With OrderDefault the store
// picks its own order and Attribute is empty.
type EntityOrder struct {
	Direction OrderDirection `json:"direction"`
	Attribute string         `json:"attribute,omitempty"`
	ValueType ValueType      `json:"valueType,omitempty"`
}

func DefaultOrder() EntityOrder { return EntityOrder{Direction: OrderDefault} }

func Ascending(attribute string, vt ValueType) EntityOrder {
	return EntityOrder{Direction: OrderAscending, Attribute: attribute, ValueType: vt}
}

func Descending(attribute string, vt ValueType) EntityOrder {
	return EntityOrder{Direction: OrderDescending, Attribute: attribute, ValueType: vt}
}

// EntityRange is the pagination window. A nil First means unbounded.
type EntityRange struct {
	First *uint32 `json:"first,omitempty"`
	Skip  uint32  `json:"skip"`
}

// FirstN returns a range of n entities starting at skip.
func FirstN(n, skip uint32) EntityRange {
	return EntityRange{First: &n, Skip: skip}
}

// EntityQuery is one compiled read against the store.
type EntityQuery struct {
	SubgraphID DeploymentHash   `json:"subgraphId"`
	Block      BlockNumber      `json:"block"`
	Collection EntityCollection `json:"collection"`
	Filter     *EntityFilter    `json:"filter,omitempty"`
	Order      EntityOrder      `json:"order"`
	Range      EntityRange      `json:"range"`
}

// NewEntityQuery returns a query over collection with the default order and
// an unbounded range.
func NewEntityQuery(id DeploymentHash, block BlockNumber, collection EntityCollection) EntityQuery {
	return EntityQuery{
		SubgraphID: id,
		Block:      block,
		Collection: collection,
		Order:      DefaultOrder(),
	}
}

func (q EntityQuery) WithRange(r EntityRange) EntityQuery {
	q.Range = r
	return q
}

func (q EntityQuery) WithFilter(f EntityFilter) EntityQuery {
	q.Filter = &f
	return q
}

func (q EntityQuery) WithOrder(o EntityOrder) EntityQuery {
	q.Order = o
	return q
}
