package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/lazygraph/internal/executor"
	rescue "github.com/hanpama/lazygraph/internal/rescue"
)

func TestExecute_ExecutionErrorNullsField(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.a": executor.NewMockErrorResolver(executor.NewExecutionError("bad a").WithExtension("code", "BAD")),
		"Query.b": executor.NewMockErrorResolver(executor.NewExecutionError("bad b: %w", errors.New("cause"))),
	})
	rt.SetLazy("Query.b")
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `{ a b }`), "", nil, nil)
	want := &executor.ExecutionResult{
		Data: map[string]any{"a": nil, "b": nil},
		Errors: []executor.GraphQLError{
			{Message: "bad a", Path: executor.Path{"a"}, Extensions: map[string]any{"code": "BAD"}},
			{Message: "bad b: cause", Path: executor.Path{"b"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_NonNullPropagation(t *testing.T) {
	tests := []struct {
		name  string
		query string
		lazy  []string
		want  *executor.ExecutionResult
	}{
		{
			name:  "field nulls parent object",
			query: `{ book(id: 1) { id title } }`,
			want: &executor.ExecutionResult{
				Data: map[string]any{"book": nil},
				Errors: []executor.GraphQLError{{
					Message: "Cannot return null for non-nullable field book.title",
					Path:    executor.Path{"book", "title"},
				}},
			},
		},
		{
			name:  "deferred field nulls parent object",
			query: `{ book(id: 1) { id title } }`,
			lazy:  []string{"Book.title"},
			want: &executor.ExecutionResult{
				Data: map[string]any{"book": nil},
				Errors: []executor.GraphQLError{{
					Message: "Cannot return null for non-nullable field book.title",
					Path:    executor.Path{"book", "title"},
				}},
			},
		},
		{
			name:  "item nulls list",
			query: `{ books { title } }`,
			want: &executor.ExecutionResult{
				Data: map[string]any{"books": nil},
				Errors: []executor.GraphQLError{{
					Message: "Cannot return null for non-nullable field books.[1].title",
					Path:    executor.Path{"books", 1, "title"},
				}},
			},
		},
		{
			name:  "deferred item nulls list",
			query: `{ books { title } }`,
			lazy:  []string{"Query.books", "Book.title"},
			want: &executor.ExecutionResult{
				Data: map[string]any{"books": nil},
				Errors: []executor.GraphQLError{{
					Message: "Cannot return null for non-nullable field books.[1].title",
					Path:    executor.Path{"books", 1, "title"},
				}},
			},
		},
		{
			name:  "non-null root nulls data",
			query: `mutation { inc }`,
			want: &executor.ExecutionResult{
				Errors: []executor.GraphQLError{{
					Message: "Cannot return null for non-nullable field inc",
					Path:    executor.Path{"inc"},
				}},
			},
		},
		{
			name:  "deferred non-null root nulls data",
			query: `mutation { inc }`,
			lazy:  []string{"Mutation.inc"},
			want: &executor.ExecutionResult{
				Errors: []executor.GraphQLError{{
					Message: "Cannot return null for non-nullable field inc",
					Path:    executor.Path{"inc"},
				}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := executor.NewMockRuntime(map[string]executor.MockResolver{
				"Query.book":   executor.NewMockValueResolver(map[string]any{"id": "1"}),
				"Query.books":  executor.NewMockValueResolver([]any{map[string]any{"title": "x"}, map[string]any{}}),
				"Book.id":      executor.NewMockSourceResolver("id"),
				"Book.title":   executor.NewMockSourceResolver("title"),
				"Mutation.inc": executor.NewMockValueResolver(nil),
			})
			rt.SetLazy(tt.lazy...)
			exec := executor.NewExecutor(rt, mustLibrarySchema(t))

			got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, tt.query), "", nil, nil)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExecute_UnknownFieldIsOmitted(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.a": executor.NewMockValueResolver("A"),
	})
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `{ a nope }`), "", nil, nil)
	want := &executor.ExecutionResult{
		Data: map[string]any{"a": "A"},
		Errors: []executor.GraphQLError{{
			Message: "Cannot query field 'nope' on type 'Query'",
			Path:    executor.Path{"nope"},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

var (
	notFound    = rescue.NewClass("NotFound", nil)
	missingBook = rescue.NewClass("MissingBook", notFound)
)

func TestExecute_RescueHandlers(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.a": executor.NewMockErrorResolver(rescue.Errorf(missingBook, "no a")),
		"Query.b": executor.NewMockErrorResolver(rescue.Errorf(notFound, "no b")),
	})
	rt.SetLazy("Query.b")
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	var infos []rescue.Info
	exec.RescueFrom(notFound, func(ctx context.Context, err error, info rescue.Info) (any, error) {
		infos = append(infos, info)
		return "fallback " + err.Error(), nil
	})

	doc := mustParseQuery(t, `{ a b }`)
	got := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	want := &executor.ExecutionResult{
		Data: map[string]any{"a": "fallback no a", "b": "fallback no b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	wantInfos := []rescue.Info{
		{Path: []any{"a"}, FieldName: "a", TypeName: "Query"},
		{Path: []any{"b"}, FieldName: "b", TypeName: "Query"},
	}
	if diff := cmp.Diff(wantInfos, infos); diff != "" {
		t.Fatalf("rescue info mismatch (-want +got):\n%s", diff)
	}

	// a child executor's handler wins for its class; the parent still
	// handles everything else
	child := exec.Extend()
	child.RescueFrom(missingBook, func(ctx context.Context, err error, info rescue.Info) (any, error) {
		return nil, executor.NewExecutionError("missing %s", info.FieldName).WithExtension("code", "NOT_FOUND")
	})
	got = child.ExecuteRequest(context.Background(), doc, "", nil, nil)
	want = &executor.ExecutionResult{
		Data: map[string]any{"a": nil, "b": "fallback no b"},
		Errors: []executor.GraphQLError{{
			Message:    "missing a",
			Path:       executor.Path{"a"},
			Extensions: map[string]any{"code": "NOT_FOUND"},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	// the parent is unaffected by its child
	got = exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Equal(t, "fallback no a", got.Data.(map[string]any)["a"])
}

func TestExecute_RescueStandardErrorCatchesPlainErrors(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.a": executor.NewMockErrorResolver(errors.New("plain")),
	})
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))
	exec.RescueFrom(rescue.StandardError, func(ctx context.Context, err error, info rescue.Info) (any, error) {
		return nil, errors.New("hidden")
	})

	got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `{ a }`), "", nil, nil)
	want := &executor.ExecutionResult{
		Data:   map[string]any{"a": nil},
		Errors: []executor.GraphQLError{{Message: "hidden", Path: executor.Path{"a"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}
