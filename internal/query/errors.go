package query

import (
	"fmt"
	"strings"
)

// Kind classifies a reportable query error.
type Kind int

const (
	KindRangeArguments Kind = iota + 1
	KindInvalidFilter
	KindFulltextQueryRequiresFilter
	KindEntityField
	KindListTypes
	KindListFilter
	KindOrderByNotSupported
	KindSubgraphDeploymentID
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindRangeArguments:
		return "RangeArguments"
	case KindInvalidFilter:
		return "InvalidFilter"
	case KindFulltextQueryRequiresFilter:
		return "FulltextQueryRequiresFilter"
	case KindEntityField:
		return "EntityField"
	case KindListTypes:
		return "ListTypes"
	case KindListFilter:
		return "ListFilter"
	case KindOrderByNotSupported:
		return "OrderByNotSupported"
	case KindSubgraphDeploymentID:
		return "SubgraphDeploymentId"
	case KindNotSupported:
		return "NotSupported"
	}
	return "Unknown"
}

// Error is a query error reported back to the client. Only the fields of its
// kind are set.
type Error struct {
	Kind Kind

	Argument string // RangeArguments
	Bound    uint32 // RangeArguments
	Got      int64  // RangeArguments

	Type  string // EntityField, OrderByNotSupported, SubgraphDeploymentId
	Field string // EntityField, OrderByNotSupported

	Filter   string   // ListTypes, ListFilter
	Literals []string // ListTypes

	Message string // NotSupported
}

// Sentinels for errors.Is; they match any Error of the same kind.
var (
	ErrRangeArguments              = &Error{Kind: KindRangeArguments}
	ErrInvalidFilter               = &Error{Kind: KindInvalidFilter}
	ErrFulltextQueryRequiresFilter = &Error{Kind: KindFulltextQueryRequiresFilter}
	ErrEntityField                 = &Error{Kind: KindEntityField}
	ErrListTypes                   = &Error{Kind: KindListTypes}
	ErrListFilter                  = &Error{Kind: KindListFilter}
	ErrOrderByNotSupported         = &Error{Kind: KindOrderByNotSupported}
	ErrSubgraphDeploymentID        = &Error{Kind: KindSubgraphDeploymentID}
	ErrNotSupported                = &Error{Kind: KindNotSupported}
)

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRangeArguments:
		return fmt.Sprintf("The `%s` argument must be between 0 and %d, but is %d", e.Argument, e.Bound, e.Got)
	case KindInvalidFilter:
		return "Filter must be an object"
	case KindFulltextQueryRequiresFilter:
		return "Fulltext search queries require exactly one search term"
	case KindEntityField:
		return fmt.Sprintf("Entity `%s` has no attribute `%s`", e.Type, e.Field)
	case KindListTypes:
		return fmt.Sprintf("Values passed to filter `%s` must be of the same type but are of different types: %s",
			e.Filter, strings.Join(e.Literals, ", "))
	case KindListFilter:
		return fmt.Sprintf("Non-list value passed to `%s` filter", e.Filter)
	case KindOrderByNotSupported:
		return fmt.Sprintf("Ordering by `%s` is not supported for type `%s`", e.Field, e.Type)
	case KindSubgraphDeploymentID:
		return fmt.Sprintf("Failed to get subgraph ID from type: `%s`", e.Type)
	case KindNotSupported:
		return e.Message
	}
	return "query error"
}

func rangeArgumentsError(argument string, bound uint32, got int64) *Error {
	return &Error{Kind: KindRangeArguments, Argument: argument, Bound: bound, Got: got}
}

func entityFieldError(typ, field string) *Error {
	return &Error{Kind: KindEntityField, Type: typ, Field: field}
}

func listTypesError(filter string, literals ...string) *Error {
	return &Error{Kind: KindListTypes, Filter: filter, Literals: literals}
}

func listFilterError(filter string) *Error {
	return &Error{Kind: KindListFilter, Filter: filter}
}

func orderByNotSupportedError(typ, field string) *Error {
	return &Error{Kind: KindOrderByNotSupported, Type: typ, Field: field}
}

func subgraphDeploymentIDError(typ string) *Error {
	return &Error{Kind: KindSubgraphDeploymentID, Type: typ}
}

// NotSupported reports a capability a resolver does not provide.
func NotSupported(message string) *Error {
	return &Error{Kind: KindNotSupported, Message: message}
}
