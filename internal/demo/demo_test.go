package demo

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/lazygraph/internal/executor"
	subscriptions "github.com/hanpama/lazygraph/internal/subscriptions"
)

func newExecutor(t *testing.T, lib *Library) *executor.Executor {
	t.Helper()
	exec, err := NewExecutor(lib, nil, nil)
	require.NoError(t, err)
	return exec
}

func run(t *testing.T, exec *executor.Executor, queries ...string) []*executor.ExecutionResult {
	t.Helper()
	reqs := make([]executor.QueryRequest, len(queries))
	for i, q := range queries {
		reqs[i] = executor.QueryRequest{Query: q}
	}
	results, err := exec.RunAll(context.Background(), reqs)
	require.NoError(t, err)
	return results
}

func TestAuthorsLoadInOneBatch(t *testing.T) {
	lib := NewLibrary()
	res := run(t, newExecutor(t, lib), `{ books { title author { name } } }`)[0]
	require.Empty(t, res.Errors)

	want := map[string]any{"books": []any{
		map[string]any{"title": "A Wizard of Earthsea", "author": map[string]any{"name": "Ursula K. Le Guin"}},
		map[string]any{"title": "The Dispossessed", "author": map[string]any{"name": "Ursula K. Le Guin"}},
		map[string]any{"title": "SPQR", "author": map[string]any{"name": "Mary Beard"}},
		map[string]any{"title": "Invisible Cities", "author": map[string]any{"name": "Italo Calvino"}},
	}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"1", "2", "3"}}, lib.Fetches(authorLoader)); diff != "" {
		t.Fatalf("author fetches mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiplexSharesFetches(t *testing.T) {
	lib := NewLibrary()
	results := run(t, newExecutor(t, lib),
		`{ book(id: "1") { title author { name books { title } } } }`,
		`{ book(id: "3") { title author { name } } }`,
	)
	want := []any{
		map[string]any{"book": map[string]any{
			"title": "A Wizard of Earthsea",
			"author": map[string]any{
				"name":  "Ursula K. Le Guin",
				"books": []any{map[string]any{"title": "A Wizard of Earthsea"}, map[string]any{"title": "The Dispossessed"}},
			},
		}},
		map[string]any{"book": map[string]any{"title": "SPQR", "author": map[string]any{"name": "Mary Beard"}}},
	}
	got := []any{results[0].Data, results[1].Data}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"1", "3"}}, lib.Fetches(bookLoader)); diff != "" {
		t.Fatalf("book fetches mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"1", "2"}}, lib.Fetches(authorLoader)); diff != "" {
		t.Fatalf("author fetches mismatch (-want +got):\n%s", diff)
	}
}

func TestNotFoundIsRescued(t *testing.T) {
	res := run(t, newExecutor(t, NewLibrary()), `{ book(id: "99") { title } known: book(id: "2") { title } }`)[0]
	want := map[string]any{"book": nil, "known": map[string]any{"title": "The Dispossessed"}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	wantErrs := []executor.GraphQLError{{
		Message:    "book 99 not found",
		Path:       executor.Path{"book"},
		Extensions: map[string]any{"code": "NOT_FOUND"},
	}}
	if diff := cmp.Diff(wantErrs, res.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestShelfLoadsBooksOnlyWhenSelected(t *testing.T) {
	lib := NewLibrary()
	exec := newExecutor(t, lib)

	res := run(t, exec, `{ shelf { count } }`)[0]
	require.Equal(t, map[string]any{"shelf": map[string]any{"count": 4}}, res.Data)
	require.Empty(t, lib.Fetches("demo.shelf"))

	res = run(t, exec, `{ shelf { count books @include(if: false) { id } } }`)[0]
	require.Empty(t, res.Errors)
	require.Empty(t, lib.Fetches("demo.shelf"))

	res = run(t, exec, `{ shelf { books { id } } }`)[0]
	require.Empty(t, res.Errors)
	require.Len(t, lib.Fetches("demo.shelf"), 1)
}

func TestSearchResolvesUnionMembers(t *testing.T) {
	res := run(t, newExecutor(t, NewLibrary()), `{
		search(term: "in") {
			__typename
			... on Book { title }
			... on Author { name }
		}
	}`)[0]
	require.Empty(t, res.Errors)
	want := map[string]any{"search": []any{
		map[string]any{"__typename": "Book", "title": "Invisible Cities"},
		map[string]any{"__typename": "Author", "name": "Ursula K. Le Guin"},
		map[string]any{"__typename": "Author", "name": "Italo Calvino"},
	}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestIntrospection(t *testing.T) {
	res := run(t, newExecutor(t, NewLibrary()), `{ __type(name: "Genre") { kind enumValues { name } } }`)[0]
	require.Empty(t, res.Errors)
	want := map[string]any{"__type": map[string]any{
		"kind":       "ENUM",
		"enumValues": []any{map[string]any{"name": "FICTION"}, map[string]any{"name": "HISTORY"}, map[string]any{"name": "SCIENCE"}},
	}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestAddBookUpdatesSubscriptions(t *testing.T) {
	lib := NewLibrary()
	reg := subscriptions.NewRegistry()
	var updates []subscriptions.Update
	exec, err := NewExecutor(lib, reg, func(u subscriptions.Update) { updates = append(updates, u) })
	require.NoError(t, err)

	subs := run(t, exec,
		`subscription { bookAdded(genre: FICTION) { title author { name } } }`,
		`subscription { bookAdded(genre: HISTORY) { title } }`,
	)
	require.Equal(t, map[string]any{"bookAdded": nil}, subs[0].Data)
	fictionID, _ := subs[0].Extensions["subscriptionId"].(string)
	require.NotEmpty(t, fictionID)
	require.Equal(t, 2, reg.Len())

	res := run(t, exec, `mutation { addBook(title: "The Lathe of Heaven", authorId: "1", genre: FICTION) { id } }`)[0]
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"addBook": map[string]any{"id": "5"}}, res.Data)

	require.Len(t, updates, 1)
	require.Equal(t, fictionID, updates[0].ID)
	want := map[string]any{"bookAdded": map[string]any{
		"title":  "The Lathe of Heaven",
		"author": map[string]any{"name": "Ursula K. Le Guin"},
	}}
	if diff := cmp.Diff(want, updates[0].Result.Data); diff != "" {
		t.Fatalf("update mismatch (-want +got):\n%s", diff)
	}
}

func TestAddBookUnknownAuthor(t *testing.T) {
	res := run(t, newExecutor(t, NewLibrary()), `mutation { addBook(title: "X", authorId: "9", genre: SCIENCE) { id } }`)[0]
	require.Nil(t, res.Data)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "author 9 not found", res.Errors[0].Message)
	require.Equal(t, "NOT_FOUND", res.Errors[0].Extensions["code"])
}
