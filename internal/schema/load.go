package schema

import (
	"fmt"
	"strings"

	language "github.com/hanpama/entityql/internal/language"
)

// BuildFromSDL parses and validates an SDL string and returns the
// corresponding Schema.
func BuildFromSDL(sdl string) (*Schema, error) {
	return BuildFromSources(&language.Source{Name: "schema.graphql", Input: sdl})
}

// BuildFromSources parses and validates SDL sources and returns the
// corresponding Schema. Indexing directives (@entity, @subgraphId,
// @derivedFrom) and the BigInt/BigDecimal/Bytes scalars are declared
// automatically unless a source declares them itself.
func BuildFromSources(sources ...*language.Source) (*Schema, error) {
	// Parse once without validation to learn declaration order and which
	// indexing definitions the sources already provide.
	declared := map[string]bool{}
	var objectOrder []string
	for _, src := range sources {
		doc, err := language.ParseSchema(src.Name, src.Input)
		if err != nil {
			return nil, err
		}
		for _, d := range doc.Directives {
			declared[d.Name] = true
		}
		for _, def := range doc.Definitions {
			declared[def.Name] = true
			if def.Kind == language.Object {
				objectOrder = append(objectOrder, def.Name)
			}
		}
	}

	var extra []string
	for _, def := range indexingDefinitions {
		if !declared[def.name] {
			extra = append(extra, def.sdl)
		}
	}
	all := make([]*language.Source, 0, len(sources)+1)
	if len(extra) > 0 {
		all = append(all, &language.Source{Name: "indexing.graphql", Input: strings.Join(extra, "\n"), BuiltIn: true})
	}
	all = append(all, sources...)

	doc, err := language.LoadSchema(all...)
	if err != nil {
		return nil, err
	}
	return BuildFromDocument(doc, objectOrder)
}

// BuildFromDocument converts a validated gqlparser schema. objectOrder lists
// object type names in declaration order; it fixes the order of each
// interface's implementers.
func BuildFromDocument(doc *language.Schema, objectOrder []string) (*Schema, error) {
	s := NewSchema("")
	s.document = doc
	if doc.Query != nil {
		s.SetQueryType(doc.Query.Name)
	}
	if doc.Mutation != nil {
		s.SetMutationType(doc.Mutation.Name)
	}
	if doc.Subscription != nil {
		s.SetSubscriptionType(doc.Subscription.Name)
	}

	for _, def := range doc.Types {
		t, err := buildDefinition(def)
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}
	for _, dir := range doc.Directives {
		s.AddDirective(buildDirective(dir))
	}

	seen := make(map[string]bool, len(objectOrder))
	for _, name := range objectOrder {
		if seen[name] {
			continue
		}
		seen[name] = true
		def := doc.Types[name]
		if def == nil || def.Kind != language.Object {
			continue
		}
		for _, iface := range def.Interfaces {
			s.AddImplementer(iface, name)
		}
	}
	return s, nil
}

func buildDefinition(def *language.Definition) (*Type, error) {
	var kind TypeKind
	switch def.Kind {
	case language.Object:
		kind = TypeKindObject
	case language.Interface:
		kind = TypeKindInterface
	case language.Union:
		kind = TypeKindUnion
	case language.Scalar:
		kind = TypeKindScalar
	case language.Enum:
		kind = TypeKindEnum
	case language.InputObject:
		kind = TypeKindInputObject
	default:
		return nil, fmt.Errorf("unsupported definition kind %q for %s", def.Kind, def.Name)
	}
	t := NewType(def.Name, kind, def.Description)
	t.BuiltIn = def.BuiltIn

	for _, name := range def.Interfaces {
		t.AddInterface(name)
	}
	for _, name := range def.Types {
		t.AddPossibleType(name)
	}
	for _, d := range def.Directives {
		t.AddDirective(buildDirectiveUse(d))
	}

	switch kind {
	case TypeKindObject, TypeKindInterface:
		for _, fd := range def.Fields {
			// __schema/__type/__typename are synthesized by the executor.
			if strings.HasPrefix(fd.Name, "__") {
				continue
			}
			t.AddField(buildField(fd))
		}
	case TypeKindInputObject:
		for _, fd := range def.Fields {
			in := NewInputValue(fd.Name, fd.Description, buildTypeRef(fd.Type)).SetDefault(fd.DefaultValue)
			if reason, ok := deprecation(fd.Directives); ok {
				in.Deprecate(reason)
			}
			t.AddInputField(in)
		}
		t.SetOneOf(def.Directives.ForName("oneOf") != nil)
	case TypeKindEnum:
		for _, ev := range def.EnumValues {
			e := NewEnumValue(ev.Name, ev.Description)
			if reason, ok := deprecation(ev.Directives); ok {
				e.Deprecate(reason)
			}
			t.AddEnumValue(e)
		}
	case TypeKindScalar:
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				t.SetSpecifiedByURL(arg.Value.Raw)
			}
		}
	}
	return t, nil
}

func buildField(def *language.FieldDefinition) *Field {
	f := NewField(def.Name, def.Description, buildTypeRef(def.Type))
	for _, arg := range def.Arguments {
		in := NewInputValue(arg.Name, arg.Description, buildTypeRef(arg.Type)).SetDefault(arg.DefaultValue)
		if reason, ok := deprecation(arg.Directives); ok {
			in.Deprecate(reason)
		}
		f.AddArgument(in)
	}
	for _, d := range def.Directives {
		f.Directives = append(f.Directives, buildDirectiveUse(d))
	}
	if reason, ok := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	return f
}

func buildDirective(def *language.DirectiveDefinition) *Directive {
	d := NewDirective(def.Name, def.Description).SetRepeatable(def.IsRepeatable)
	for _, loc := range def.Locations {
		d.AddLocation(string(loc))
	}
	for _, arg := range def.Arguments {
		d.AddArgument(NewInputValue(arg.Name, arg.Description, buildTypeRef(arg.Type)).SetDefault(arg.DefaultValue))
	}
	return d
}

func buildDirectiveUse(d *language.Directive) *DirectiveUse {
	use := NewDirectiveUse(d.Name)
	for _, arg := range d.Arguments {
		use.Arguments = append(use.Arguments, &ArgumentUse{Name: arg.Name, Value: arg.Value})
	}
	return use
}

func buildTypeRef(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(buildTypeRef(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return NamedType(t.NamedType)
	}
	return ListType(buildTypeRef(t.Elem))
}

const defaultDeprecationReason = "No longer supported"

func deprecation(directives language.DirectiveList) (string, bool) {
	d := directives.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return defaultDeprecationReason, true
}
