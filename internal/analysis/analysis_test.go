package analysis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	analysis "github.com/hanpama/lazygraph/internal/analysis"
	language "github.com/hanpama/lazygraph/internal/language"
	schema "github.com/hanpama/lazygraph/internal/schema"
)

const sdl = `
type Query {
  author(id: ID!): Author
  authors: [Author!]! @complexity(value: 10)
}
type Author {
  name: String!
  books: [Book!]!
}
type Book {
  title: String!
  author: Author!
}
`

func queryOf(t *testing.T, source string, vars map[string]any) *analysis.Query {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	doc, err := language.ParseQuery(source)
	require.NoError(t, err)
	op := language.OperationByName(doc, "")
	require.NotNil(t, op)
	return &analysis.Query{Schema: sch, Document: doc, Operation: op, Variables: vars}
}

func TestDepth(t *testing.T) {
	cases := []struct {
		name  string
		query string
		vars  map[string]any
		want  int
	}{
		{"flat", `{ author(id: 1) { name } }`, nil, 2},
		{"nested", `{ author(id: 1) { books { author { name } } } }`, nil, 4},
		{"fragments add no depth", `{ author(id: 1) { ...F } } fragment F on Author { books { title } }`, nil, 3},
		{"skipped branch", `query($s: Boolean!) { author(id: 1) { name books @skip(if: $s) { title } } }`, map[string]any{"s": true}, 2},
		{"cyclic fragments", `{ author(id: 1) { ...A } } fragment A on Author { books { ...B } } fragment B on Book { author { ...A } }`, nil, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, analysis.Depth(queryOf(t, tc.query, tc.vars)))
		})
	}
}

func TestComplexity(t *testing.T) {
	require.Equal(t, 2, analysis.Complexity(queryOf(t, `{ author(id: 1) { name } }`, nil)))
	// declared complexity replaces the default cost of 1
	require.Equal(t, 12, analysis.Complexity(queryOf(t, `{ authors { name books } }`, nil)))
	require.Equal(t, 4, analysis.Complexity(queryOf(t, `{ author(id: 1) { ... on Author { name books { title } } } }`, nil)))
}

func TestAnalyzers(t *testing.T) {
	ctx := context.Background()
	small := queryOf(t, `{ author(id: 1) { name } }`, nil)
	large := queryOf(t, `{ authors { name books { title } } }`, nil)
	queries := []*analysis.Query{small, large, small}

	depth := analysis.MaxDepth{Limit: 2}.Analyze(ctx, queries)
	require.Empty(t, depth[0])
	require.Len(t, depth[1], 1)
	require.ErrorContains(t, depth[1][0], "maximum depth of 2. Actual depth is 3")

	complexity := analysis.MaxComplexity{Limit: 5}.Analyze(ctx, queries)
	require.Empty(t, complexity[0])
	require.Len(t, complexity[1], 1)
	require.Empty(t, complexity[2])

	// 2 + 13 exceeds 14: the second query and everything after it is rejected
	multiplex := analysis.MultiplexComplexity{Limit: 14}.Analyze(ctx, queries)
	require.Empty(t, multiplex[0])
	require.Len(t, multiplex[1], 1)
	require.Len(t, multiplex[2], 1)
	var aerr *analysis.Error
	require.ErrorAs(t, multiplex[1][0], &aerr)
	require.Equal(t, "MultiplexComplexityExceeded", aerr.Code)

	require.Empty(t, analysis.MaxDepth{}.Analyze(ctx, queries)[1])
}
