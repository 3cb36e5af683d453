package schema

// Schema is the field metadata the executor, lookahead and analyzers read.
// It is built once (see BuildFromSDL) and treated as read-only afterwards.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type // All named types keyed by name
	Description      string
}

// NewSchema returns an empty schema.
func NewSchema(description string) *Schema {
	return &Schema{Types: make(map[string]*Type), Description: description}
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }

// AddType registers t, replacing any type with the same name.
func (s *Schema) AddType(t *Type) *Schema {
	if s.Types == nil {
		s.Types = make(map[string]*Type)
	}
	s.Types[t.Name] = t
	return s
}

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (may be nil if absent)
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// GetSubscriptionType returns the root subscription type (may be nil if absent)
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

// LookupField returns the definition of field on the named type. The
// __typename meta field resolves on every composite type.
func (s *Schema) LookupField(typeName, field string) *Field {
	if field == TypenameFieldName {
		return TypenameField
	}
	t := s.Types[typeName]
	if t == nil {
		return nil
	}
	return t.Field(field)
}

// TypeApplies reports whether a fragment with the given type condition
// applies to values of objectType.
func (s *Schema) TypeApplies(objectType *Type, condition string) bool {
	if condition == "" || objectType == nil || condition == objectType.Name {
		return true
	}
	cond := s.Types[condition]
	if cond == nil {
		return false
	}
	switch cond.Kind {
	case TypeKindInterface, TypeKindUnion:
		return cond.HasPossibleType(objectType.Name)
	}
	return false
}

// Overlaps reports whether a value could be of both a and b: they share at
// least one possible object type.
func (s *Schema) Overlaps(a, b *Type) bool {
	if a == nil || b == nil || a == b {
		return true
	}
	for _, name := range possibleTypeNames(a) {
		for _, other := range possibleTypeNames(b) {
			if name == other {
				return true
			}
		}
	}
	return false
}

func possibleTypeNames(t *Type) []string {
	if t.IsAbstract() {
		return t.PossibleTypes
	}
	return []string{t.Name}
}

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name          string
	Kind          TypeKind
	Description   string
	Fields        []*Field      // For OBJECT and INTERFACE
	Interfaces    []string      // For OBJECT and INTERFACE (implemented/extended)
	PossibleTypes []string      // For INTERFACE and UNION
	EnumValues    []string      // For ENUM
	InputFields   []*InputValue // For INPUT_OBJECT
}

// NewType returns a named type of the given kind.
func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type        { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInterface(name string) *Type { t.Interfaces = append(t.Interfaces, name); return t }
func (t *Type) AddPossibleType(name string) *Type {
	t.PossibleTypes = append(t.PossibleTypes, name)
	return t
}
func (t *Type) AddEnumValue(name string) *Type    { t.EnumValues = append(t.EnumValues, name); return t }
func (t *Type) AddInputField(v *InputValue) *Type { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) IsAbstract() bool                  { return t.Kind == TypeKindInterface || t.Kind == TypeKindUnion }
func (t *Type) IsComposite() bool                 { return t.Kind == TypeKindObject || t.IsAbstract() }

// Field returns the field named name, or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasPossibleType reports whether name is a member of this union or an
// implementation of this interface.
func (t *Type) HasPossibleType(name string) bool {
	for _, p := range t.PossibleTypes {
		if p == name {
			return true
		}
	}
	return false
}

// Field represents a field on an object or interface
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	IsDeprecated      bool
	DeprecationReason string
	// Extras lists the extra values the field resolver asks the executor to
	// inject, e.g. ExtraLookahead.
	Extras []string
	// Complexity is the static cost used by complexity analyzers; zero means 1.
	Complexity int
}

// ExtraLookahead asks the executor to pass a lookahead for the field's
// selections to its resolver.
const ExtraLookahead = "lookahead"

// NewField returns a field of the given type.
func NewField(name string, typ *TypeRef) *Field {
	return &Field{Name: name, Type: typ}
}

func (f *Field) AddArgument(v *InputValue) *Field { f.Arguments = append(f.Arguments, v); return f }
func (f *Field) WithExtras(extras ...string) *Field {
	f.Extras = append(f.Extras, extras...)
	return f
}
func (f *Field) WithComplexity(n int) *Field { f.Complexity = n; return f }

// Argument returns the argument definition named name, or nil.
func (f *Field) Argument(name string) *InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// WantsExtra reports whether the resolver declared extra.
func (f *Field) WantsExtra(extra string) bool {
	for _, e := range f.Extras {
		if e == extra {
			return true
		}
	}
	return false
}

// NewFieldMap is kept for building types literally in tests.
func NewFieldMap(fields ...*Field) []*Field { return fields }

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

func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNonNull || t.Kind == TypeRefKindList {
		return t.OfType
	}
	return t
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
	switch t.Kind {
	case TypeRefKindNonNull:
		return t.OfType.String() + "!"
	case TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	}
	return t.Named
}

type InputValue struct {
	Name         string
	Description  string
	Type         *TypeRef
	DefaultValue any
}

// NewInputValue returns an argument or input field definition.
func NewInputValue(name string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue { v.DefaultValue = value; return v }

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// IsNonNull reports whether the type is wrapped with Non-Null.
func IsNonNull(t *TypeRef) bool { return t != nil && t.IsNonNull() }

// IsList reports whether the type is (or is wrapped by) a list type.
func IsList(t *TypeRef) bool { return t != nil && t.IsList() }

// Unwrap removes one layer of Non-Null or List wrapping and returns the inner type.
func Unwrap(t *TypeRef) *TypeRef { return t.Unwrap() }

// GetNamedType returns the innermost named type for the given reference.
func GetNamedType(t *TypeRef) string { return t.GetNamedType() }
