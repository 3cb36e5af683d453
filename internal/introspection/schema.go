package introspection

import (
	schema "github.com/hanpama/lazygraph/internal/schema"
)

// extend returns a copy of original with the introspection types added and
// __schema and __type on its query type. original is not modified.
func extend(original *schema.Schema) *schema.Schema {
	extended := schema.NewSchema(original.Description)
	extended.QueryType = original.QueryType
	extended.MutationType = original.MutationType
	extended.SubscriptionType = original.SubscriptionType
	for _, typ := range original.Types {
		extended.AddType(typ)
	}

	extended.AddType(schemaType()).
		AddType(typeType()).
		AddType(fieldType()).
		AddType(inputValueType()).
		AddType(enumValueType()).
		AddType(directiveType()).
		AddType(enumType("__TypeKind",
			"SCALAR", "OBJECT", "INTERFACE", "UNION", "ENUM", "INPUT_OBJECT", "LIST", "NON_NULL")).
		AddType(enumType("__DirectiveLocation",
			"QUERY", "MUTATION", "SUBSCRIPTION", "FIELD", "FRAGMENT_DEFINITION",
			"FRAGMENT_SPREAD", "INLINE_FRAGMENT", "VARIABLE_DEFINITION", "SCHEMA",
			"SCALAR", "OBJECT", "FIELD_DEFINITION", "ARGUMENT_DEFINITION", "INTERFACE",
			"UNION", "ENUM", "ENUM_VALUE", "INPUT_OBJECT", "INPUT_FIELD_DEFINITION"))

	if queryType := original.GetQueryType(); queryType != nil {
		q := schema.NewType(queryType.Name, queryType.Kind, queryType.Description)
		q.Interfaces = queryType.Interfaces
		q.Fields = append(q.Fields, queryType.Fields...)
		q.AddField(described(schema.NewField("__schema", schema.NonNullType(schema.NamedType("__Schema"))),
			"Access the current type schema of this server."))
		q.AddField(described(schema.NewField("__type", schema.NamedType("__Type")),
			"Request the type information of a single type.").
			AddArgument(schema.NewInputValue("name", schema.NonNullType(schema.NamedType("String")))))
		extended.AddType(q)
	}
	return extended
}

func described(f *schema.Field, description string) *schema.Field {
	f.Description = description
	return f
}

func named(name string) *schema.TypeRef { return schema.NamedType(name) }

func nonNull(name string) *schema.TypeRef { return schema.NonNullType(schema.NamedType(name)) }

// listOf returns [name!] and [name!]! when required.
func listOf(name string, required bool) *schema.TypeRef {
	l := schema.ListType(nonNull(name))
	if required {
		return schema.NonNullType(l)
	}
	return l
}

func withIncludeDeprecated(f *schema.Field) *schema.Field {
	return f.AddArgument(schema.NewInputValue("includeDeprecated", named("Boolean")).SetDefault(false))
}

func schemaType() *schema.Type {
	t := schema.NewType("__Schema", schema.TypeKindObject,
		"A GraphQL Schema defines the capabilities of a GraphQL server.")
	t.AddField(described(schema.NewField("description", named("String")), "A description of the schema."))
	t.AddField(described(schema.NewField("types", listOf("__Type", true)), "A list of all types supported by this server."))
	t.AddField(described(schema.NewField("queryType", nonNull("__Type")), "The type that query operations will be rooted at."))
	t.AddField(described(schema.NewField("mutationType", named("__Type")),
		"If this server supports mutation, the type that mutation operations will be rooted at."))
	t.AddField(described(schema.NewField("subscriptionType", named("__Type")),
		"If this server support subscription, the type that subscription operations will be rooted at."))
	t.AddField(described(schema.NewField("directives", listOf("__Directive", true)), "A list of all directives supported by this server."))
	return t
}

func typeType() *schema.Type {
	t := schema.NewType("__Type", schema.TypeKindObject,
		"The fundamental unit of any GraphQL Schema is the type.")
	t.AddField(schema.NewField("kind", nonNull("__TypeKind")))
	t.AddField(schema.NewField("name", named("String")))
	t.AddField(schema.NewField("description", named("String")))
	t.AddField(schema.NewField("specifiedByURL", named("String")))
	t.AddField(withIncludeDeprecated(schema.NewField("fields", listOf("__Field", false))))
	t.AddField(schema.NewField("interfaces", listOf("__Type", false)))
	t.AddField(schema.NewField("possibleTypes", listOf("__Type", false)))
	t.AddField(withIncludeDeprecated(schema.NewField("enumValues", listOf("__EnumValue", false))))
	t.AddField(withIncludeDeprecated(schema.NewField("inputFields", listOf("__InputValue", false))))
	t.AddField(schema.NewField("ofType", named("__Type")))
	t.AddField(schema.NewField("isOneOf", named("Boolean")))
	return t
}

func fieldType() *schema.Type {
	t := schema.NewType("__Field", schema.TypeKindObject, "")
	t.AddField(schema.NewField("name", nonNull("String")))
	t.AddField(schema.NewField("description", named("String")))
	t.AddField(withIncludeDeprecated(schema.NewField("args", listOf("__InputValue", true))))
	t.AddField(schema.NewField("type", nonNull("__Type")))
	t.AddField(schema.NewField("isDeprecated", nonNull("Boolean")))
	t.AddField(schema.NewField("deprecationReason", named("String")))
	return t
}

func inputValueType() *schema.Type {
	t := schema.NewType("__InputValue", schema.TypeKindObject, "")
	t.AddField(schema.NewField("name", nonNull("String")))
	t.AddField(schema.NewField("description", named("String")))
	t.AddField(schema.NewField("type", nonNull("__Type")))
	t.AddField(schema.NewField("defaultValue", named("String")))
	t.AddField(schema.NewField("isDeprecated", nonNull("Boolean")))
	t.AddField(schema.NewField("deprecationReason", named("String")))
	return t
}

func enumValueType() *schema.Type {
	t := schema.NewType("__EnumValue", schema.TypeKindObject, "")
	t.AddField(schema.NewField("name", nonNull("String")))
	t.AddField(schema.NewField("description", named("String")))
	t.AddField(schema.NewField("isDeprecated", nonNull("Boolean")))
	t.AddField(schema.NewField("deprecationReason", named("String")))
	return t
}

func directiveType() *schema.Type {
	t := schema.NewType("__Directive", schema.TypeKindObject, "")
	t.AddField(schema.NewField("name", nonNull("String")))
	t.AddField(schema.NewField("description", named("String")))
	t.AddField(schema.NewField("isRepeatable", nonNull("Boolean")))
	t.AddField(schema.NewField("locations", listOf("__DirectiveLocation", true)))
	t.AddField(withIncludeDeprecated(schema.NewField("args", listOf("__InputValue", true))))
	return t
}

func enumType(name string, values ...string) *schema.Type {
	t := schema.NewType(name, schema.TypeKindEnum, "")
	for _, v := range values {
		t.AddEnumValue(v)
	}
	return t
}
