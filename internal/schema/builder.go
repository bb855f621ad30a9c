package schema

import (
	language "github.com/hanpama/entityql/internal/language"
)

// NewSchema returns an empty schema holding the built-in scalars.
func NewSchema(description string) *Schema {
	s := &Schema{
		Types:        make(map[string]*Type),
		Directives:   make(map[string]*Directive),
		Description:  description,
		implementers: make(map[string][]string),
	}
	s.AddType(stringType).
		AddType(intType).
		AddType(floatType).
		AddType(booleanType).
		AddType(idType)
	return s
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }

func (s *Schema) AddType(t *Type) *Schema {
	s.Types[t.Name] = t
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	s.Directives[d.Name] = d
	return s
}

// AddImplementer records object as an implementer of iface. Implementers
// are returned in the order they were recorded.
func (s *Schema) AddImplementer(iface, object string) *Schema {
	if s.implementers == nil {
		s.implementers = make(map[string][]string)
	}
	for _, name := range s.implementers[iface] {
		if name == object {
			return s
		}
	}
	s.implementers[iface] = append(s.implementers[iface], object)
	if t := s.Types[iface]; t != nil {
		t.AddPossibleType(object)
	}
	return s
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type            { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInterface(name string) *Type     { t.Interfaces = append(t.Interfaces, name); return t }
func (t *Type) AddEnumValue(v *EnumValue) *Type    { t.EnumValues = append(t.EnumValues, v); return t }
func (t *Type) AddInputField(v *InputValue) *Type  { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) AddDirective(d *DirectiveUse) *Type { t.Directives = append(t.Directives, d); return t }
func (t *Type) SetOneOf(oneOf bool) *Type          { t.OneOf = oneOf; return t }
func (t *Type) SetSpecifiedByURL(url string) *Type { t.SpecifiedByURL = &url; return t }
func (t *Type) AddPossibleType(name string) *Type {
	for _, n := range t.PossibleTypes {
		if n == name {
			return t
		}
	}
	t.PossibleTypes = append(t.PossibleTypes, name)
	return t
}

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) AddArgument(a *InputValue) *Field { f.Arguments = append(f.Arguments, a); return f }

func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated = true
	f.DeprecationReason = reason
	return f
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(def *language.Value) *InputValue { v.DefaultValue = def; return v }

func (v *InputValue) Deprecate(reason string) *InputValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (v *EnumValue) Deprecate(reason string) *EnumValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewDirective(name, description string) *Directive {
	return &Directive{Name: name, Description: description}
}

func (d *Directive) SetRepeatable(r bool) *Directive      { d.IsRepeatable = r; return d }
func (d *Directive) AddArgument(a *InputValue) *Directive { d.Arguments = append(d.Arguments, a); return d }
func (d *Directive) AddLocation(loc string) *Directive    { d.Locations = append(d.Locations, loc); return d }

// NewDirectiveUse returns an applied directive with the given literal arguments.
func NewDirectiveUse(name string, args ...*ArgumentUse) *DirectiveUse {
	return &DirectiveUse{Name: name, Arguments: args}
}

// StringArgument returns a directive argument holding a string literal.
func StringArgument(name, value string) *ArgumentUse {
	return &ArgumentUse{Name: name, Value: &language.Value{Kind: language.StringValue, Raw: value}}
}

// SubgraphID returns the directive use tying a type to a subgraph deployment.
func SubgraphID(id string) *DirectiveUse {
	return NewDirectiveUse(SubgraphIDDirective, StringArgument(SubgraphIDArgument, id))
}
