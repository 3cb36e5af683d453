package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// directivesSDL declares the executor hints BuildFromSDL understands. It is
// loaded alongside every SDL source.
const directivesSDL = `
"Injects a lookahead over the field's selections into its resolver."
directive @lookahead on FIELD_DEFINITION
"Static cost of the field for complexity analysis."
directive @complexity(value: Int!) on FIELD_DEFINITION
`

// BuildFromSDL parses and validates an SDL document and returns the
// corresponding Schema.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := gqlparser.LoadSchema(
		&ast.Source{Name: "lazygraph.graphql", Input: directivesSDL, BuiltIn: true},
		&ast.Source{Name: "schema.graphql", Input: sdl},
	)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return BuildFromAST(doc), nil
}

// BuildFromAST converts a validated gqlparser schema. Introspection types and
// meta fields are left out.
func BuildFromAST(doc *ast.Schema) *Schema {
	s := NewSchema(doc.Description)
	if doc.Query != nil {
		s.SetQueryType(doc.Query.Name)
	}
	if doc.Mutation != nil {
		s.SetMutationType(doc.Mutation.Name)
	}
	if doc.Subscription != nil {
		s.SetSubscriptionType(doc.Subscription.Name)
	}

	names := make([]string, 0, len(doc.Types))
	for name := range doc.Types {
		if strings.HasPrefix(name, "__") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := doc.Types[name]
		switch def.Kind {
		case ast.Object:
			s.AddType(buildComposite(def, TypeKindObject))
		case ast.Interface:
			t := buildComposite(def, TypeKindInterface)
			for _, impl := range doc.PossibleTypes[name] {
				t.AddPossibleType(impl.Name)
			}
			s.AddType(t)
		case ast.Union:
			t := NewType(def.Name, TypeKindUnion, def.Description)
			for _, member := range def.Types {
				t.AddPossibleType(member)
			}
			s.AddType(t)
		case ast.Enum:
			t := NewType(def.Name, TypeKindEnum, def.Description)
			for _, v := range def.EnumValues {
				t.AddEnumValue(v.Name)
			}
			s.AddType(t)
		case ast.InputObject:
			t := NewType(def.Name, TypeKindInputObject, def.Description)
			for _, f := range def.Fields {
				t.AddInputField(buildInputValue(f.Name, f.Description, f.Type, f.DefaultValue))
			}
			s.AddType(t)
		case ast.Scalar:
			s.AddType(NewType(def.Name, TypeKindScalar, def.Description))
		}
	}
	return s
}

func buildComposite(def *ast.Definition, kind TypeKind) *Type {
	t := NewType(def.Name, kind, def.Description)
	for _, name := range def.Interfaces {
		t.AddInterface(name)
	}
	for _, fd := range def.Fields {
		if strings.HasPrefix(fd.Name, "__") {
			continue
		}
		t.AddField(buildField(fd))
	}
	return t
}

func buildField(fd *ast.FieldDefinition) *Field {
	f := NewField(fd.Name, buildTypeRef(fd.Type))
	f.Description = fd.Description
	for _, arg := range fd.Arguments {
		f.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue))
	}
	if dep := fd.Directives.ForName("deprecated"); dep != nil {
		f.IsDeprecated = true
		if reason := dep.Arguments.ForName("reason"); reason != nil && reason.Value != nil {
			f.DeprecationReason = reason.Value.Raw
		}
	}
	if fd.Directives.ForName("lookahead") != nil {
		f.WithExtras(ExtraLookahead)
	}
	if c := fd.Directives.ForName("complexity"); c != nil {
		if arg := c.Arguments.ForName("value"); arg != nil && arg.Value != nil {
			if v, err := arg.Value.Value(nil); err == nil {
				if n, ok := v.(int64); ok {
					f.WithComplexity(int(n))
				}
			}
		}
	}
	return f
}

func buildInputValue(name, description string, typ *ast.Type, def *ast.Value) *InputValue {
	in := NewInputValue(name, buildTypeRef(typ))
	in.Description = description
	if def != nil {
		if v, err := def.Value(nil); err == nil {
			in.SetDefault(normalizeLiteral(v))
		}
	}
	return in
}

func buildTypeRef(t *ast.Type) *TypeRef {
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

// normalizeLiteral maps gqlparser literal values onto the Go types the
// executor coerces to (int rather than int64).
func normalizeLiteral(v any) any {
	switch x := v.(type) {
	case int64:
		return int(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeLiteral(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalizeLiteral(item)
		}
		return out
	}
	return v
}
