// Package analysis holds the static analyzers run over a whole multiplex
// before any query executes.
package analysis

import (
	"context"
	"fmt"

	directive "github.com/hanpama/lazygraph/internal/directive"
	language "github.com/hanpama/lazygraph/internal/language"
	schema "github.com/hanpama/lazygraph/internal/schema"
)

// Query is what analyzers see of one query in a multiplex.
type Query struct {
	Schema    *schema.Schema
	Document  *language.QueryDocument
	Operation *language.OperationDefinition
	Variables map[string]any
}

// Analyzer inspects every query of a multiplex as one unit. The returned
// slice holds the errors for each query, indexed like queries; a query with
// errors is not executed.
type Analyzer interface {
	Analyze(ctx context.Context, queries []*Query) [][]error
}

// Error is an analysis failure reported to the client with a code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// MaxDepth rejects queries nesting fields deeper than Limit. Zero disables
// the check.
type MaxDepth struct {
	Limit int
}

func (a MaxDepth) Analyze(_ context.Context, queries []*Query) [][]error {
	out := make([][]error, len(queries))
	if a.Limit <= 0 {
		return out
	}
	for i, q := range queries {
		if d := Depth(q); d > a.Limit {
			out[i] = append(out[i], errorf("MaxDepthExceeded",
				"The query exceeds the maximum depth of %d. Actual depth is %d.", a.Limit, d))
		}
	}
	return out
}

// MaxComplexity rejects queries whose complexity exceeds Limit. Zero
// disables the check.
type MaxComplexity struct {
	Limit int
}

func (a MaxComplexity) Analyze(_ context.Context, queries []*Query) [][]error {
	out := make([][]error, len(queries))
	if a.Limit <= 0 {
		return out
	}
	for i, q := range queries {
		if c := Complexity(q); c > a.Limit {
			out[i] = append(out[i], errorf("MaxComplexityExceeded",
				"The query exceeds the maximum complexity of %d. Actual complexity is %d.", a.Limit, c))
		}
	}
	return out
}

// MultiplexComplexity bounds the summed complexity of all queries in a
// multiplex. Queries are admitted in order; the first query pushing the sum
// over Limit and every query after it are rejected.
type MultiplexComplexity struct {
	Limit int
}

func (a MultiplexComplexity) Analyze(_ context.Context, queries []*Query) [][]error {
	out := make([][]error, len(queries))
	if a.Limit <= 0 {
		return out
	}
	total := 0
	exceeded := false
	for i, q := range queries {
		total += Complexity(q)
		if exceeded || total > a.Limit {
			exceeded = true
			out[i] = append(out[i], errorf("MultiplexComplexityExceeded",
				"The multiplex exceeds the maximum complexity of %d. Complexity is %d.", a.Limit, total))
		}
	}
	return out
}

// Depth returns the deepest field nesting of the query's operation. Root
// fields are at depth 1; fragments do not add depth.
func Depth(q *Query) int {
	w := newWalker(q)
	var depth func(set language.SelectionSet) int
	depth = func(set language.SelectionSet) int {
		max := 0
		w.fields(set, nil, func(f *language.Field, _ *schema.Type) {
			if d := 1 + depth(f.SelectionSet); d > max {
				max = d
			}
		})
		return max
	}
	return depth(q.Operation.SelectionSet)
}

// Complexity sums the cost of every selected field. A field costs its
// declared complexity, or 1.
func Complexity(q *Query) int {
	w := newWalker(q)
	var cost func(set language.SelectionSet, on *schema.Type) int
	cost = func(set language.SelectionSet, on *schema.Type) int {
		total := 0
		w.fields(set, on, func(f *language.Field, owner *schema.Type) {
			own := 1
			var next *schema.Type
			if owner != nil {
				if def := q.Schema.LookupField(owner.Name, f.Name); def != nil {
					if def.Complexity > 0 {
						own = def.Complexity
					}
					next = q.Schema.Types[schema.GetNamedType(def.Type)]
				}
			}
			total += own + cost(f.SelectionSet, next)
		})
		return total
	}
	return cost(q.Operation.SelectionSet, rootType(q))
}

func rootType(q *Query) *schema.Type {
	switch q.Operation.Operation {
	case language.Mutation:
		return q.Schema.GetMutationType()
	case language.Subscription:
		return q.Schema.GetSubscriptionType()
	}
	return q.Schema.GetQueryType()
}

type walker struct {
	q      *Query
	active map[string]bool
}

func newWalker(q *Query) *walker {
	return &walker{q: q, active: make(map[string]bool)}
}

// fields visits the included fields of set with the type they are selected
// on. Fragment spreads already being expanded are not entered again.
func (w *walker) fields(set language.SelectionSet, on *schema.Type, visit func(*language.Field, *schema.Type)) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			if directive.Included(s.Directives, w.q.Variables) {
				visit(s, on)
			}
		case *language.InlineFragment:
			if directive.Included(s.Directives, w.q.Variables) {
				w.fields(s.SelectionSet, w.narrow(on, s.TypeCondition), visit)
			}
		case *language.FragmentSpread:
			if !directive.Included(s.Directives, w.q.Variables) || w.active[s.Name] {
				continue
			}
			def := w.q.Document.Fragments.ForName(s.Name)
			if def == nil {
				continue
			}
			w.active[s.Name] = true
			w.fields(def.SelectionSet, w.narrow(on, def.TypeCondition), visit)
			delete(w.active, s.Name)
		}
	}
}

func (w *walker) narrow(on *schema.Type, condition string) *schema.Type {
	if condition == "" || w.q.Schema == nil {
		return on
	}
	if t := w.q.Schema.Types[condition]; t != nil {
		return t
	}
	return on
}
