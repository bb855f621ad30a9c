package schema

var stringType = &Type{
	Name:        "String",
	Kind:        TypeKindScalar,
	Description: "The `String` scalar type represents textual data, represented as UTF-8 character sequences.",
	BuiltIn:     true,
}

var intType = &Type{
	Name:        "Int",
	Kind:        TypeKindScalar,
	Description: "The `Int` scalar type represents non-fractional signed whole numeric values.",
	BuiltIn:     true,
}

var floatType = &Type{
	Name:        "Float",
	Kind:        TypeKindScalar,
	Description: "The `Float` scalar type represents signed double-precision fractional values.",
	BuiltIn:     true,
}

var booleanType = &Type{
	Name:        "Boolean",
	Kind:        TypeKindScalar,
	Description: "The `Boolean` scalar type represents `true` or `false`.",
	BuiltIn:     true,
}

var idType = &Type{
	Name:        "ID",
	Kind:        TypeKindScalar,
	Description: "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching.",
	BuiltIn:     true,
}

// Definitions every indexed schema may rely on. Each one is added to the
// loaded SDL unless the SDL declares a definition with the same name.
var indexingDefinitions = []struct {
	name string
	sdl  string
}{
	{name: "entity", sdl: "directive @entity on OBJECT | INTERFACE"},
	{name: "subgraphId", sdl: "directive @subgraphId(id: String) on OBJECT | INTERFACE"},
	{name: "derivedFrom", sdl: "directive @derivedFrom(field: String!) on FIELD_DEFINITION"},
	{name: "BigInt", sdl: "scalar BigInt"},
	{name: "BigDecimal", sdl: "scalar BigDecimal"},
	{name: "Bytes", sdl: "scalar Bytes"},
}
