package resolver

import (
	"context"
	"fmt"

	language "github.com/hanpama/entityql/internal/language"
	query "github.com/hanpama/entityql/internal/query"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
	value "github.com/hanpama/entityql/internal/value"
	"github.com/rs/zerolog"
)

// ExecutionContext is the state of one request shared between the engine and
// the resolvers it calls.
type ExecutionContext struct {
	Context   context.Context
	Schema    *schema.Schema
	Document  *language.QueryDocument
	Operation *language.OperationDefinition
	Variables map[string]value.Value
	Block     store.BlockNumber
	Limits    query.Limits
	Logger    zerolog.Logger
}

// RootType returns the schema type the operation starts from.
func (ec *ExecutionContext) RootType() *schema.Type {
	if ec.Operation == nil {
		return nil
	}
	switch ec.Operation.Operation {
	case language.Mutation:
		return ec.Schema.GetMutationType()
	case language.Subscription:
		return ec.Schema.GetSubscriptionType()
	default:
		return ec.Schema.GetQueryType()
	}
}

// IsRootField reports whether def is a field of the operation's root type.
func (ec *ExecutionContext) IsRootField(def *schema.Field) bool {
	root := ec.RootType()
	return root != nil && def != nil && root.Field(def.Name) == def
}

// FieldGroup is the set of fields sharing one response key.
type FieldGroup struct {
	ResponseKey string
	Fields      []*language.Field
}

// Field returns the first field of the group; all of them share name and
// arguments in a valid document.
func (g FieldGroup) Field() *language.Field { return g.Fields[0] }

// SelectionSet merges the sub-selections of every field in the group.
func (g FieldGroup) SelectionSet() language.SelectionSet {
	if len(g.Fields) == 1 {
		return g.Fields[0].SelectionSet
	}
	var out language.SelectionSet
	for _, f := range g.Fields {
		out = append(out, f.SelectionSet...)
	}
	return out
}

// CollectFields groups the fields of set that apply to objectType by
// response key, in document order, honouring @skip, @include and fragment
// type conditions.
func (ec *ExecutionContext) CollectFields(objectType *schema.Type, set language.SelectionSet) []FieldGroup {
	c := fieldCollector{ec: ec, index: map[string]int{}, visited: map[string]bool{}}
	c.collect(objectType, set)
	return c.groups
}

type fieldCollector struct {
	ec      *ExecutionContext
	groups  []FieldGroup
	index   map[string]int
	visited map[string]bool
}

func (c *fieldCollector) collect(objectType *schema.Type, set language.SelectionSet) {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *language.Field:
			if !c.ec.included(sel.Directives) {
				continue
			}
			key := sel.Alias
			if key == "" {
				key = sel.Name
			}
			if i, ok := c.index[key]; ok {
				c.groups[i].Fields = append(c.groups[i].Fields, sel)
				continue
			}
			c.index[key] = len(c.groups)
			c.groups = append(c.groups, FieldGroup{ResponseKey: key, Fields: []*language.Field{sel}})

		case *language.InlineFragment:
			if !c.ec.included(sel.Directives) || !c.ec.applies(sel.TypeCondition, objectType) {
				continue
			}
			c.collect(objectType, sel.SelectionSet)

		case *language.FragmentSpread:
			if !c.ec.included(sel.Directives) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			def := c.ec.fragment(sel.Name)
			if def == nil || !c.ec.applies(def.TypeCondition, objectType) || !c.ec.included(def.Directives) {
				continue
			}
			c.collect(objectType, def.SelectionSet)
		}
	}
}

func (ec *ExecutionContext) fragment(name string) *language.FragmentDefinition {
	if ec.Document == nil {
		return nil
	}
	return ec.Document.Fragments.ForName(name)
}

// applies reports whether a fragment with the given type condition applies
// to objects of objectType.
func (ec *ExecutionContext) applies(condition string, objectType *schema.Type) bool {
	if condition == "" || condition == objectType.Name {
		return true
	}
	return ec.Schema.IsPossibleType(ec.Schema.Type(condition), objectType)
}

func (ec *ExecutionContext) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && ec.directiveFlag(d) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !ec.directiveFlag(d) {
		return false
	}
	return true
}

func (ec *ExecutionContext) directiveFlag(d *language.Directive) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	b, ok := value.FromAST(arg.Value, ec.Variables).(value.Boolean)
	return ok && bool(b)
}

// ArgumentValues coerces the arguments of field against def. Defaults apply
// to arguments that are not given, including variables the request did not
// provide.
func (ec *ExecutionContext) ArgumentValues(def *schema.Field, field *language.Field) (query.Arguments, error) {
	args := make(query.Arguments, len(def.Arguments))
	for _, argDef := range def.Arguments {
		var v value.Value
		if arg := field.Arguments.ForName(argDef.Name); arg != nil && ec.provided(arg.Value) {
			v = value.FromAST(arg.Value, ec.Variables)
		} else if argDef.DefaultValue != nil {
			v = value.FromAST(argDef.DefaultValue, nil)
		} else if argDef.Type.IsNonNull() {
			return nil, fmt.Errorf("argument %q of required type %s was not provided", argDef.Name, argDef.Type)
		} else {
			continue
		}
		if value.IsNull(v) && argDef.Type.IsNonNull() {
			return nil, fmt.Errorf("argument %q of type %s cannot be null", argDef.Name, argDef.Type)
		}
		args[argDef.Name] = v
	}
	return args, nil
}

func (ec *ExecutionContext) provided(v *language.Value) bool {
	if v == nil || v.Kind != language.Variable {
		return true
	}
	_, ok := ec.Variables[v.Raw]
	return ok
}
