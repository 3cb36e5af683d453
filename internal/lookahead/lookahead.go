// Package lookahead answers questions about a field's future selections
// without running resolvers: which child fields are requested, under which
// aliases, with which arguments and on which concrete types.
//
// Fragment spreads and inline fragments are expanded, @skip and @include are
// evaluated at every node and arguments are compared after coercion. A
// lookahead for something that is not selected is the Null lookahead, whose
// methods all answer "nothing here", so calls can be chained without checks.
package lookahead

import (
	"github.com/google/go-cmp/cmp"

	directive "github.com/hanpama/lazygraph/internal/directive"
	language "github.com/hanpama/lazygraph/internal/language"
	schema "github.com/hanpama/lazygraph/internal/schema"
	values "github.com/hanpama/lazygraph/internal/values"
)

// Context is the per-query state lookaheads read from.
type Context struct {
	Schema    *schema.Schema
	Document  *language.QueryDocument
	Variables map[string]any
}

// Lookahead describes the selections of one field, or of an operation root.
type Lookahead struct {
	ctx          *Context
	fields       []*language.Field
	root         *language.OperationDefinition
	field        *schema.Field
	ownerType    *schema.Type
	selectedType *schema.Type
}

// Null is the lookahead for selections that are not part of the query.
var Null = &Lookahead{}

// New returns a lookahead over the AST nodes requesting fieldDef on
// ownerType. The nodes are the ones merged under one response key.
func New(ctx *Context, fields []*language.Field, fieldDef *schema.Field, ownerType *schema.Type) *Lookahead {
	if ctx == nil || len(fields) == 0 || fieldDef == nil {
		return Null
	}
	return &Lookahead{
		ctx:          ctx,
		fields:       fields,
		field:        fieldDef,
		ownerType:    ownerType,
		selectedType: ctx.Schema.Types[schema.GetNamedType(fieldDef.Type)],
	}
}

// NewRoot returns a lookahead over an operation's root selections.
func NewRoot(ctx *Context, operation *language.OperationDefinition) *Lookahead {
	if ctx == nil || operation == nil {
		return Null
	}
	var rootType *schema.Type
	switch operation.Operation {
	case language.Query:
		rootType = ctx.Schema.GetQueryType()
	case language.Mutation:
		rootType = ctx.Schema.GetMutationType()
	case language.Subscription:
		rootType = ctx.Schema.GetSubscriptionType()
	}
	if rootType == nil {
		return Null
	}
	return &Lookahead{ctx: ctx, root: operation, selectedType: rootType}
}

// Selected reports whether this lookahead stands for something in the query.
func (l *Lookahead) Selected() bool {
	return l != nil && l.ctx != nil
}

// Name returns the field's declared name; empty for roots and Null.
func (l *Lookahead) Name() string {
	if l == nil || l.field == nil {
		return ""
	}
	return l.field.Name
}

// Field returns the schema definition of the field.
func (l *Lookahead) Field() *schema.Field {
	if l == nil {
		return nil
	}
	return l.field
}

// OwnerType returns the type the field was looked up on.
func (l *Lookahead) OwnerType() *schema.Type {
	if l == nil {
		return nil
	}
	return l.ownerType
}

// SelectedType returns the type child selections are resolved against.
func (l *Lookahead) SelectedType() *schema.Type {
	if l == nil {
		return nil
	}
	return l.selectedType
}

// Fields returns the matched AST nodes.
func (l *Lookahead) Fields() []*language.Field {
	if l == nil {
		return nil
	}
	return l.fields
}

// Arguments returns the field's coerced argument values. Arguments that fail
// to coerce make the whole result empty rather than failing the caller.
func (l *Lookahead) Arguments() map[string]any {
	if !l.Selected() || l.field == nil {
		return map[string]any{}
	}
	args, err := values.CoerceArguments(l.ctx.Schema, l.field, l.fields[0].Arguments, l.ctx.Variables)
	if err != nil {
		return map[string]any{}
	}
	return args
}

type options struct {
	arguments map[string]any
	onType    string
}

// Option narrows a selection query.
type Option func(*options)

// WithArguments only matches selections whose coerced arguments include
// every given key with an equal value. Other arguments are ignored.
func WithArguments(args map[string]any) Option {
	return func(o *options) { o.arguments = args }
}

// OnType looks the field up on the named type instead of the field's own
// return type, for selections made under a type condition.
func OnType(typeName string) Option {
	return func(o *options) { o.onType = typeName }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Selects reports whether a child field named name is selected.
func (l *Lookahead) Selects(name string, opts ...Option) bool {
	return l.Selection(name, opts...).Selected()
}

// SelectsAlias reports whether a child field is selected under alias.
func (l *Lookahead) SelectsAlias(alias string, opts ...Option) bool {
	return l.AliasSelection(alias, opts...).Selected()
}

// Selection returns the lookahead for the child field named name, or Null.
func (l *Lookahead) Selection(name string, opts ...Option) *Lookahead {
	return l.selection(opts, func(f *language.Field) bool { return f.Name == name })
}

// AliasSelection returns the lookahead for the child field requested under
// alias, or Null. Unaliased fields never match.
func (l *Lookahead) AliasSelection(alias string, opts ...Option) *Lookahead {
	return l.selection(opts, func(f *language.Field) bool { return f.Alias == alias && f.Alias != f.Name })
}

func (l *Lookahead) selection(opts []Option, match func(*language.Field) bool) *Lookahead {
	if !l.Selected() {
		return Null
	}
	o := buildOptions(opts)
	scope := l.selectedType
	if o.onType != "" {
		scope = l.ctx.Schema.Types[o.onType]
	}
	if scope == nil {
		return Null
	}

	var (
		matched   []*language.Field
		fieldDef  *schema.Field
		ownerType *schema.Type
	)
	l.walk(scope, func(f *language.Field, on *schema.Type) {
		if !match(f) {
			return
		}
		def := l.ctx.Schema.LookupField(on.Name, f.Name)
		if def == nil && on != scope {
			def = l.ctx.Schema.LookupField(scope.Name, f.Name)
		}
		if def == nil || (fieldDef != nil && def.Name != fieldDef.Name) {
			return
		}
		if !l.argumentsMatch(o.arguments, def, f) {
			return
		}
		if fieldDef == nil {
			fieldDef, ownerType = def, on
		}
		matched = append(matched, f)
	})
	if len(matched) == 0 {
		return Null
	}
	if o.onType != "" {
		ownerType = scope
	}
	return New(l.ctx, matched, fieldDef, ownerType)
}

// Selections returns one lookahead per response key among the immediate
// children. Selections made under a type condition are grouped by that
// type, so the same response key may appear once per type.
func (l *Lookahead) Selections(opts ...Option) []*Lookahead {
	if !l.Selected() || l.selectedType == nil {
		return nil
	}
	o := buildOptions(opts)

	type group struct {
		on     *schema.Type
		keys   []string
		fields map[string][]*language.Field
	}
	var groups []*group
	byType := make(map[string]*group)
	groupFor := func(t *schema.Type) *group {
		g, ok := byType[t.Name]
		if !ok {
			g = &group{on: t, fields: make(map[string][]*language.Field)}
			byType[t.Name] = g
			groups = append(groups, g)
		}
		return g
	}
	groupFor(l.selectedType)

	l.walk(l.selectedType, func(f *language.Field, on *schema.Type) {
		g := groupFor(on)
		key := responseKey(f)
		if existing, ok := g.fields[key]; ok {
			g.fields[key] = append(existing, f)
			return
		}
		if len(o.arguments) > 0 {
			def := l.ctx.Schema.LookupField(on.Name, f.Name)
			if def == nil || !l.argumentsMatch(o.arguments, def, f) {
				return
			}
		}
		g.keys = append(g.keys, key)
		g.fields[key] = []*language.Field{f}
	})

	var out []*Lookahead
	for _, g := range groups {
		for _, key := range g.keys {
			fields := g.fields[key]
			def := l.ctx.Schema.LookupField(g.on.Name, fields[0].Name)
			if def == nil {
				continue
			}
			out = append(out, New(l.ctx, fields, def, g.on))
		}
	}
	return out
}

// walk visits every included child field of this lookahead together with the
// type it was selected on. Fragments whose type condition cannot overlap the
// type in scope are not entered.
func (l *Lookahead) walk(scope *schema.Type, visit func(*language.Field, *schema.Type)) {
	active := make(map[string]bool)
	var walkSet func(set language.SelectionSet, on *schema.Type)
	enter := func(condition string, set language.SelectionSet, on *schema.Type) {
		next := on
		if condition != "" {
			next = l.ctx.Schema.Types[condition]
			if next == nil || !l.ctx.Schema.Overlaps(on, next) {
				return
			}
		}
		walkSet(set, next)
	}
	walkSet = func(set language.SelectionSet, on *schema.Type) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *language.Field:
				if directive.Included(s.Directives, l.ctx.Variables) {
					visit(s, on)
				}
			case *language.InlineFragment:
				if directive.Included(s.Directives, l.ctx.Variables) {
					enter(s.TypeCondition, s.SelectionSet, on)
				}
			case *language.FragmentSpread:
				if !directive.Included(s.Directives, l.ctx.Variables) || active[s.Name] {
					continue
				}
				def := l.ctx.Document.Fragments.ForName(s.Name)
				if def == nil {
					continue
				}
				active[s.Name] = true
				enter(def.TypeCondition, def.SelectionSet, on)
				delete(active, s.Name)
			}
		}
	}

	if l.root != nil {
		walkSet(l.root.SelectionSet, scope)
		return
	}
	for _, f := range l.fields {
		walkSet(f.SelectionSet, scope)
	}
}

func (l *Lookahead) argumentsMatch(want map[string]any, def *schema.Field, f *language.Field) bool {
	if len(want) == 0 {
		return true
	}
	got, _ := values.CoerceArguments(l.ctx.Schema, def, f.Arguments, l.ctx.Variables)
	for k, v := range want {
		actual, ok := got[k]
		if !ok || !cmp.Equal(v, actual) {
			return false
		}
	}
	return true
}

// responseKey returns the key a field is written under. The parser fills
// Alias with the field name when no alias is given.
func responseKey(f *language.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}
