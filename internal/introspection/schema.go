package introspection

import (
	"strings"

	language "github.com/hanpama/entityql/internal/language"
	schema "github.com/hanpama/entityql/internal/schema"
)

// Extend returns a copy of sch that defines the introspection types. Schemas
// loaded from SDL already carry them; hand-assembled schemas usually do not.
// Types already present are kept.
func Extend(sch *schema.Schema) *schema.Schema {
	extended := *sch
	extended.Types = make(map[string]*schema.Type, len(sch.Types)+8)
	for name, t := range sch.Types {
		extended.Types[name] = t
	}
	for _, t := range introspectionTypes() {
		if _, ok := extended.Types[t.Name]; !ok {
			extended.AddType(t)
		}
	}
	return &extended
}

// ref parses a type reference written as in SDL, such as "[__Type!]!".
func ref(s string) *schema.TypeRef {
	switch {
	case strings.HasSuffix(s, "!"):
		return schema.NonNullType(ref(s[:len(s)-1]))
	case strings.HasPrefix(s, "["):
		return schema.ListType(ref(s[1 : len(s)-1]))
	}
	return schema.NamedType(s)
}

func object(name, description string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, description)
	t.BuiltIn = true
	for _, f := range fields {
		t.AddField(f)
	}
	return t
}

func enum(name string, values ...string) *schema.Type {
	t := schema.NewType(name, schema.TypeKindEnum, "")
	t.BuiltIn = true
	for _, v := range values {
		t.AddEnumValue(schema.NewEnumValue(v, ""))
	}
	return t
}

func field(name, typ string) *schema.Field { return schema.NewField(name, "", ref(typ)) }

// deprecatedFilter adds the includeDeprecated argument lists take.
func deprecatedFilter(f *schema.Field) *schema.Field {
	return f.AddArgument(schema.NewInputValue("includeDeprecated", "", ref("Boolean")).
		SetDefault(&language.Value{Kind: language.BooleanValue, Raw: "false"}))
}

func introspectionTypes() []*schema.Type {
	return []*schema.Type{
		object("__Schema", "A GraphQL Schema defines the capabilities of a GraphQL server.",
			field("description", "String"),
			field("types", "[__Type!]!"),
			field("queryType", "__Type!"),
			field("mutationType", "__Type"),
			field("subscriptionType", "__Type"),
			field("directives", "[__Directive!]!"),
		),
		object("__Type", "The fundamental unit of any GraphQL Schema is the type.",
			field("kind", "__TypeKind!"),
			field("name", "String"),
			field("description", "String"),
			field("specifiedByURL", "String"),
			deprecatedFilter(field("fields", "[__Field!]")),
			field("interfaces", "[__Type!]"),
			field("possibleTypes", "[__Type!]"),
			deprecatedFilter(field("enumValues", "[__EnumValue!]")),
			deprecatedFilter(field("inputFields", "[__InputValue!]")),
			field("ofType", "__Type"),
			field("isOneOf", "Boolean"),
		),
		object("__Field", "",
			field("name", "String!"),
			field("description", "String"),
			deprecatedFilter(field("args", "[__InputValue!]!")),
			field("type", "__Type!"),
			field("isDeprecated", "Boolean!"),
			field("deprecationReason", "String"),
		),
		object("__InputValue", "",
			field("name", "String!"),
			field("description", "String"),
			field("type", "__Type!"),
			field("defaultValue", "String"),
			field("isDeprecated", "Boolean!"),
			field("deprecationReason", "String"),
		),
		object("__EnumValue", "",
			field("name", "String!"),
			field("description", "String"),
			field("isDeprecated", "Boolean!"),
			field("deprecationReason", "String"),
		),
		object("__Directive", "",
			field("name", "String!"),
			field("description", "String"),
			field("isRepeatable", "Boolean!"),
			field("locations", "[__DirectiveLocation!]!"),
			deprecatedFilter(field("args", "[__InputValue!]!")),
		),
		enum("__TypeKind", "SCALAR", "OBJECT", "INTERFACE", "UNION", "ENUM", "INPUT_OBJECT", "LIST", "NON_NULL"),
		enum("__DirectiveLocation",
			"QUERY", "MUTATION", "SUBSCRIPTION", "FIELD", "FRAGMENT_DEFINITION", "FRAGMENT_SPREAD",
			"INLINE_FRAGMENT", "VARIABLE_DEFINITION", "SCHEMA", "SCALAR", "OBJECT", "FIELD_DEFINITION",
			"ARGUMENT_DEFINITION", "INTERFACE", "UNION", "ENUM", "ENUM_VALUE", "INPUT_OBJECT",
			"INPUT_FIELD_DEFINITION"),
	}
}
