package schema

// TypenameFieldName is the meta field every composite type answers.
const TypenameFieldName = "__typename"

// TypenameField is the synthetic definition of __typename.
var TypenameField = &Field{
	Name:        TypenameFieldName,
	Description: "The name of the current Object type at runtime.",
	Type:        NonNullType(NamedType("String")),
}
