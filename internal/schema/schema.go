package schema

import (
	language "github.com/hanpama/entityql/internal/language"
)

// Directive names the indexing layer attaches to entity types.
const (
	EntityDirective     = "entity"
	SubgraphIDDirective = "subgraphId"
	SubgraphIDArgument  = "id"

	DerivedFromDirective = "derivedFrom"
	DerivedFromArgument  = "field"
)

// Schema represents the complete GraphQL schema
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type // All named types keyed by name
	Directives       map[string]*Directive
	Description      string

	// implementers maps an interface name to its implementing object type
	// names in the order the object types were declared.
	implementers map[string][]string
	document     *language.Schema
}

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (may be nil if absent)
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// GetSubscriptionType returns the root subscription type (may be nil if absent)
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

// Document returns the validated gqlparser schema this Schema was built from,
// or nil when it was assembled by hand.
func (s *Schema) Document() *language.Schema { return s.document }

// Type returns the named type, or nil.
func (s *Schema) Type(name string) *Type { return s.Types[name] }

// TypeOfField returns the definition of the innermost named type of f.
func (s *Schema) TypeOfField(f *Field) *Type {
	if f == nil || f.Type == nil {
		return nil
	}
	return s.Types[f.Type.GetNamedType()]
}

// Implementers returns the object types implementing the interface, in
// declaration order. Types added by hand through AddImplementer keep the
// order in which they were added.
func (s *Schema) Implementers(iface string) []*Type {
	names := s.implementers[iface]
	out := make([]*Type, 0, len(names))
	for _, name := range names {
		if t := s.Types[name]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

// IsPossibleType reports whether object is a possible runtime type of the
// abstract type.
func (s *Schema) IsPossibleType(abstract *Type, object *Type) bool {
	if abstract == nil || object == nil {
		return false
	}
	if abstract.Name == object.Name {
		return true
	}
	switch abstract.Kind {
	case TypeKindInterface:
		for _, name := range s.implementers[abstract.Name] {
			if name == object.Name {
				return true
			}
		}
	case TypeKindUnion:
		for _, name := range abstract.PossibleTypes {
			if name == object.Name {
				return true
			}
		}
	}
	return false
}

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name           string
	Kind           TypeKind
	Description    string
	Fields         []*Field        // For OBJECT and INTERFACE
	Interfaces     []string        // For OBJECT and INTERFACE (implemented/extended)
	PossibleTypes  []string        // For INTERFACE and UNION
	EnumValues     []*EnumValue    // For ENUM
	InputFields    []*InputValue   // For INPUT_OBJECT
	Directives     []*DirectiveUse // Directives applied to the definition
	SpecifiedByURL *string
	OneOf          bool
	BuiltIn        bool
}

// Field returns the field with the given name, or nil.
func (t *Type) Field(name string) *Field {
	if t == nil {
		return nil
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// InputField returns the input field with the given name, or nil.
func (t *Type) InputField(name string) *InputValue {
	if t == nil {
		return nil
	}
	for _, f := range t.InputFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Directive returns the first applied directive with the given name, or nil.
func (t *Type) Directive(name string) *DirectiveUse {
	if t == nil {
		return nil
	}
	for _, d := range t.Directives {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// IsEntity reports whether the type is marked as an indexed entity.
func (t *Type) IsEntity() bool { return t.Directive(EntityDirective) != nil }

// IsAbstract reports whether the type is an interface or a union.
func (t *Type) IsAbstract() bool {
	return t != nil && (t.Kind == TypeKindInterface || t.Kind == TypeKindUnion)
}

// IsLeaf reports whether the type is a scalar or an enum.
func (t *Type) IsLeaf() bool {
	return t != nil && (t.Kind == TypeKindScalar || t.Kind == TypeKindEnum)
}

// Field represents a field on an object or interface
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	Directives        []*DirectiveUse
	IsDeprecated      bool
	DeprecationReason string
}

// Argument returns the argument definition with the given name, or nil.
func (f *Field) Argument(name string) *InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Directive returns the directive applied to the field with the given name, or nil.
func (f *Field) Directive(name string) *DirectiveUse {
	for _, d := range f.Directives {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// DerivedFrom returns the attribute named by @derivedFrom, if the field is
// derived.
func (f *Field) DerivedFrom() (string, bool) {
	v := f.Directive(DerivedFromDirective).Argument(DerivedFromArgument)
	if v == nil || (v.Kind != language.StringValue && v.Kind != language.BlockValue) {
		return "", false
	}
	return v.Raw, true
}

// DirectiveUse is a directive applied to a definition, with its literal arguments.
type DirectiveUse struct {
	Name      string
	Arguments []*ArgumentUse
}

// ArgumentUse is a literal argument of an applied directive.
type ArgumentUse struct {
	Name  string
	Value *language.Value
}

// Argument returns the literal value of the named argument, or nil.
func (d *DirectiveUse) Argument(name string) *language.Value {
	if d == nil {
		return nil
	}
	for _, a := range d.Arguments {
		if a.Name == name {
			return a.Value
		}
	}
	return nil
}

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// Helper functions for TypeRef
func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

func (t *TypeRef) IsList() bool {
	if t.Kind == TypeRefKindList {
		return true
	}
	if t.Kind == TypeRefKindNonNull && t.OfType != nil {
		return t.OfType.Kind == TypeRefKindList
	}
	return false
}

func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}

func (t *TypeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindNonNull:
		return t.OfType.String() + "!"
	case TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	default:
		return t.Named
	}
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      *language.Value
	IsDeprecated      bool
	DeprecationReason string
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
