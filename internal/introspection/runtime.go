// Package introspection answers __schema and __type by wrapping a Runtime.
package introspection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	executor "github.com/hanpama/lazygraph/internal/executor"
	schema "github.com/hanpama/lazygraph/internal/schema"
)

// Wrap returns a Runtime answering introspection fields over sch, and the
// schema extended with the introspection types to execute against.
// Everything else is passed to base.
func Wrap(base executor.Runtime, sch *schema.Schema) (executor.Runtime, *schema.Schema) {
	extended := extend(sch)
	return &runtime{base: base, schema: sch, queryType: extended.QueryType}, extended
}

type runtime struct {
	base      executor.Runtime
	schema    *schema.Schema // the schema described to clients
	queryType string
}

// enumValue and directive describe what schema.Schema keeps as plain names.
type enumValue struct{ name string }

type directive struct {
	name        string
	description string
	locations   []string
	args        []*schema.InputValue
}

// directives lists the directives the executor understands.
var directives = []*directive{
	{
		name:        "deprecated",
		description: "Marks an element of a GraphQL schema as no longer supported.",
		locations:   []string{"ARGUMENT_DEFINITION", "ENUM_VALUE", "FIELD_DEFINITION", "INPUT_FIELD_DEFINITION"},
		args:        []*schema.InputValue{schema.NewInputValue("reason", named("String")).SetDefault("No longer supported")},
	},
	{
		name:        "include",
		description: "Directs the executor to include this field or fragment only when the `if` argument is true.",
		locations:   []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
		args:        []*schema.InputValue{schema.NewInputValue("if", nonNull("Boolean"))},
	},
	{
		name:        "skip",
		description: "Directs the executor to skip this field or fragment when the `if` argument is true.",
		locations:   []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
		args:        []*schema.InputValue{schema.NewInputValue("if", nonNull("Boolean"))},
	},
}

func (r *runtime) ResolveField(ctx context.Context, info executor.ResolveInfo) (any, error) {
	field := info.Field.Name
	switch src := info.Source.(type) {
	case *schema.Schema:
		if v, ok := r.resolveSchemaField(field); ok {
			return v, nil
		}
	case *schema.Type:
		if v, ok := r.resolveTypeField(src, field, info.Args); ok {
			return v, nil
		}
	case *schema.TypeRef:
		if v, ok := r.resolveTypeRefField(src, field, info.Args); ok {
			return v, nil
		}
	case *schema.Field:
		if v, ok := resolveFieldField(src, field); ok {
			return v, nil
		}
	case *schema.InputValue:
		if v, ok := r.resolveInputValueField(src, field); ok {
			return v, nil
		}
	case enumValue:
		if v, ok := resolveEnumValueField(src, field); ok {
			return v, nil
		}
	case *directive:
		if v, ok := resolveDirectiveField(src, field); ok {
			return v, nil
		}
	}

	if info.ObjectType.Name == r.queryType {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := info.Args["name"].(string)
			if t := r.schema.Types[name]; t != nil {
				return t, nil
			}
			return nil, nil
		}
	}
	return r.base.ResolveField(ctx, info)
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	if strings.HasPrefix(typ, "__") {
		return value, nil
	}
	switch v := value.(type) {
	case string, bool:
		return v, nil
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func (r *runtime) resolveSchemaField(field string) (any, bool) {
	sch := r.schema
	switch field {
	case "description":
		return optional(sch.Description), true
	case "types":
		out := make([]*schema.Type, 0, len(sch.Types))
		for _, t := range sch.Types {
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, true
	case "queryType":
		return sch.GetQueryType(), true
	case "mutationType":
		return sch.GetMutationType(), true
	case "subscriptionType":
		return sch.GetSubscriptionType(), true
	case "directives":
		return directives, true
	}
	return nil, false
}

func (r *runtime) resolveTypeField(t *schema.Type, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return optional(t.Description), true
	case "specifiedByURL", "ofType":
		return nil, true
	case "isOneOf":
		if t.Kind == schema.TypeKindInputObject {
			return false, true
		}
		return nil, true
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		includeDeprecated := boolArg(args, "includeDeprecated")
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if strings.HasPrefix(f.Name, "__") || (f.IsDeprecated && !includeDeprecated) {
				continue
			}
			out = append(out, f)
		}
		return out, true
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		return r.types(t.Interfaces), true
	case "possibleTypes":
		if !t.IsAbstract() {
			return nil, true
		}
		return r.types(t.PossibleTypes), true
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, true
		}
		out := make([]enumValue, len(t.EnumValues))
		for i, v := range t.EnumValues {
			out[i] = enumValue{name: v}
		}
		return out, true
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return t.InputFields, true
	}
	return nil, false
}

// resolveTypeRefField answers __Type fields for a field or argument type.
// Named references describe the type they name.
func (r *runtime) resolveTypeRefField(tr *schema.TypeRef, field string, args map[string]any) (any, bool) {
	switch tr.Kind {
	case schema.TypeRefKindNonNull, schema.TypeRefKindList:
		switch field {
		case "kind":
			return string(tr.Kind), true
		case "ofType":
			return tr.OfType, true
		}
		return nil, true
	}
	if def := r.schema.Types[tr.Named]; def != nil {
		return r.resolveTypeField(def, field, args)
	}
	return nil, true
}

func (r *runtime) types(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if def := r.schema.Types[name]; def != nil {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveFieldField(f *schema.Field, field string) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return optional(f.Description), true
	case "args":
		if f.Arguments == nil {
			return []*schema.InputValue{}, true
		}
		return f.Arguments, true
	case "type":
		return f.Type, true
	case "isDeprecated":
		return f.IsDeprecated, true
	case "deprecationReason":
		if f.IsDeprecated {
			return f.DeprecationReason, true
		}
		return nil, true
	}
	return nil, false
}

func (r *runtime) resolveInputValueField(a *schema.InputValue, field string) (any, bool) {
	switch field {
	case "name":
		return a.Name, true
	case "description":
		return optional(a.Description), true
	case "type":
		return a.Type, true
	case "defaultValue":
		if a.DefaultValue == nil {
			return nil, true
		}
		t := r.schema.Types[schema.GetNamedType(a.Type)]
		return defaultLiteral(a.DefaultValue, t != nil && t.Kind == schema.TypeKindEnum), true
	case "isDeprecated":
		return false, true
	case "deprecationReason":
		return nil, true
	}
	return nil, false
}

func resolveEnumValueField(ev enumValue, field string) (any, bool) {
	switch field {
	case "name":
		return ev.name, true
	case "description", "deprecationReason":
		return nil, true
	case "isDeprecated":
		return false, true
	}
	return nil, false
}

func resolveDirectiveField(d *directive, field string) (any, bool) {
	switch field {
	case "name":
		return d.name, true
	case "description":
		return optional(d.description), true
	case "isRepeatable":
		return false, true
	case "locations":
		return d.locations, true
	case "args":
		return d.args, true
	}
	return nil, false
}

// defaultLiteral renders a default value as GraphQL source. Strings of an
// enum typed value are written bare.
func defaultLiteral(v any, enum bool) string {
	switch x := v.(type) {
	case string:
		if enum {
			return x
		}
		return fmt.Sprintf("%q", x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = defaultLiteral(item, enum)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + defaultLiteral(x[k], false)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}
