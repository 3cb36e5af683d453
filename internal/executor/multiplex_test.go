package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	analysis "github.com/hanpama/lazygraph/internal/analysis"
	dataloader "github.com/hanpama/lazygraph/internal/dataloader"
	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	events "github.com/hanpama/lazygraph/internal/events"
	executor "github.com/hanpama/lazygraph/internal/executor"
)

func bookLoaderResolver(batches *[][]string) executor.MockResolver {
	fetch := func(ctx context.Context, keys []string) ([]map[string]any, error) {
		*batches = append(*batches, append([]string(nil), keys...))
		out := make([]map[string]any, len(keys))
		for i, k := range keys {
			out[i] = map[string]any{"id": k, "title": "Book " + k}
		}
		return out, nil
	}
	return func(ctx context.Context, info executor.ResolveInfo) (any, error) {
		return dataloader.Source(ctx, info.Dataloader, "books", fetch).Load(info.Args["id"].(string)), nil
	}
}

func TestRunAll_CoalescesLoadsAcrossQueries(t *testing.T) {
	var batches [][]string
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.book": bookLoaderResolver(&batches),
		"Book.title": executor.NewMockSourceResolver("title"),
	})
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	results, err := exec.RunAll(context.Background(), []executor.QueryRequest{
		{Query: `{ book(id: 1) { title } }`},
		{Query: `query($id: ID!) { book(id: $id) { title } }`, Variables: map[string]any{"id": "2"}},
		{Query: `{ again: book(id: 1) { title } }`},
	})
	require.NoError(t, err)

	want := []*executor.ExecutionResult{
		{Data: map[string]any{"book": map[string]any{"title": "Book 1"}}},
		{Data: map[string]any{"book": map[string]any{"title": "Book 2"}}},
		{Data: map[string]any{"again": map[string]any{"title": "Book 1"}}},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"1", "2"}}, batches); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAll_LoadersAreScopedToOneMultiplex(t *testing.T) {
	var batches [][]string
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.book": bookLoaderResolver(&batches),
		"Book.title": executor.NewMockSourceResolver("title"),
	})
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	for range 2 {
		_, err := exec.RunAll(context.Background(), []executor.QueryRequest{{Query: `{ book(id: 1) { title } }`}})
		require.NoError(t, err)
	}
	if diff := cmp.Diff([][]string{{"1"}, {"1"}}, batches); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAll_EagerFailureIsIsolated(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.a":    executor.NewMockValueResolver("A"),
		"Query.b":    executor.NewMockValueResolver("B"),
		"Query.boom": executor.NewMockErrorResolver(errors.New("kaboom")),
	})
	rt.SetLazy("Query.b")
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	results, err := exec.RunAll(context.Background(), []executor.QueryRequest{
		{Query: `{ b boom }`},
		{Query: `{ a b }`},
	})
	require.NoError(t, err)

	want := []*executor.ExecutionResult{
		{Errors: []executor.GraphQLError{{Message: "resolve boom: kaboom"}}},
		{Data: map[string]any{"a": "A", "b": "B"}},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}

	// the failed query's deferred field is never forced
	lazyCalls := 0
	for _, c := range rt.GetCalls() {
		if c.Kind == executor.CallKindLazy {
			lazyCalls++
		}
	}
	require.Equal(t, 1, lazyCalls)
}

func TestRunAll_ResolvingFailureAbortsMultiplex(t *testing.T) {
	deep := errors.New("deep")
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.a": executor.NewMockValueResolver("A"),
		"Query.b": executor.NewMockErrorResolver(deep),
	})
	rt.SetLazy("Query.b")
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	results, err := exec.RunAll(context.Background(), []executor.QueryRequest{
		{Query: `{ a }`},
		{Query: `{ b }`},
	})
	require.ErrorIs(t, err, deep)
	require.EqualError(t, err, "resolve b: deep")

	want := []*executor.ExecutionResult{{}, {}}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}

	// ExecuteRequest reports the abort as the only error
	got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `{ b }`), "", nil, nil)
	if diff := cmp.Diff(&executor.ExecutionResult{Errors: []executor.GraphQLError{{Message: "resolve b: deep"}}}, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAll_MutationResolveFailureAborts(t *testing.T) {
	boom := errors.New("write failed")
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.a":      executor.NewMockValueResolver("A"),
		"Mutation.inc": executor.NewMockErrorResolver(boom),
	})
	rt.SetLazy("Mutation.inc")
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	results, err := exec.RunAll(context.Background(), []executor.QueryRequest{
		{Query: `mutation { inc }`},
		{Query: `{ a }`},
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []*executor.ExecutionResult{{}, {}}, results)
}

func TestRunAll_RejectedQueriesDoNotRun(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.a":    executor.NewMockValueResolver("A"),
		"Query.book": executor.NewMockValueResolver(map[string]any{"title": "T"}),
		"Book.title": executor.NewMockSourceResolver("title"),
	})
	exec := executor.NewExecutor(rt, mustLibrarySchema(t), executor.WithAnalyzers(analysis.MaxDepth{Limit: 1}))

	results, err := exec.RunAll(context.Background(), []executor.QueryRequest{
		{Query: `{ a }`},
		{Query: `{ book(id: 1) { title } }`},
		{Query: `query A { a }`, OperationName: "B"},
		{Query: `query($id: ID!) { book(id: $id) { title } }`},
	})
	require.NoError(t, err)

	want := []*executor.ExecutionResult{
		{Data: map[string]any{"a": "A"}},
		{Errors: []executor.GraphQLError{{
			Message:    "The query exceeds the maximum depth of 1. Actual depth is 2.",
			Extensions: map[string]any{"code": "MaxDepthExceeded"},
		}}},
		{Errors: []executor.GraphQLError{{Message: "operation not found"}}},
		{Errors: []executor.GraphQLError{{Message: "variable $id of required type ID! was not provided"}}},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	// only the first query reached a resolver
	require.Len(t, rt.GetCalls(), 1)
}

func TestRunAll_ParseError(t *testing.T) {
	exec := executor.NewExecutor(executor.NewMockRuntime(nil), mustLibrarySchema(t))
	results, err := exec.RunAll(context.Background(), []executor.QueryRequest{{Query: `{ a`}})
	require.NoError(t, err)
	require.Nil(t, results[0].Data)
	require.Len(t, results[0].Errors, 1)
	require.NotEmpty(t, results[0].Errors[0].Message)
}

type recordingSubscriptions struct {
	reqs   []executor.QueryRequest
	events [][]executor.SubscriptionEvent
}

func (s *recordingSubscriptions) Write(ctx context.Context, req executor.QueryRequest, evs []executor.SubscriptionEvent) (string, error) {
	s.reqs = append(s.reqs, req)
	s.events = append(s.events, evs)
	return "sub-1", nil
}

func TestRunAll_SubscriptionEventsAreHandedOff(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Subscription.bookAdded": func(ctx context.Context, info executor.ResolveInfo) (any, error) {
			return info.Source, nil
		},
		"Book.title": executor.NewMockSourceResolver("title"),
	})
	subs := &recordingSubscriptions{}
	exec := executor.NewExecutor(rt, mustLibrarySchema(t), executor.WithSubscriptions(subs))

	query := `subscription($g: Genre) { added: bookAdded(genre: $g) { title } }`
	results, err := exec.RunAll(context.Background(), []executor.QueryRequest{
		{Query: query, Variables: map[string]any{"g": "FICTION"}},
	})
	require.NoError(t, err)

	want := &executor.ExecutionResult{
		Data:       map[string]any{"added": nil},
		Extensions: map[string]any{"subscriptionId": "sub-1"},
	}
	if diff := cmp.Diff(want, results[0]); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	wantEvents := [][]executor.SubscriptionEvent{{
		{Topic: "bookAdded", Field: "added", Arguments: map[string]any{"genre": "FICTION"}},
	}}
	if diff := cmp.Diff(wantEvents, subs.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, subs.reqs[0].Document)

	// a re-execution for an existing subscription is not handed off again
	results, err = exec.RunAll(context.Background(), []executor.QueryRequest{{
		Query:          query,
		Variables:      map[string]any{"g": "FICTION"},
		RootValue:      map[string]any{"title": "Dune"},
		SubscriptionID: "sub-1",
	}})
	require.NoError(t, err)
	want = &executor.ExecutionResult{
		Data: map[string]any{"added": map[string]any{"title": "Dune"}},
	}
	if diff := cmp.Diff(want, results[0]); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, subs.events, 1)
}

func TestRunAll_PublishesEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	var (
		starts   []events.MultiplexStart
		finishes []events.MultiplexFinish
		queries  []events.QueryFinish
		depths   []int
	)
	defer eventbus.Subscribe(func(ctx context.Context, e events.MultiplexStart) { starts = append(starts, e) })()
	defer eventbus.Subscribe(func(ctx context.Context, e events.MultiplexFinish) { finishes = append(finishes, e) })()
	defer eventbus.Subscribe(func(ctx context.Context, e events.QueryFinish) { queries = append(queries, e) })()
	defer eventbus.Subscribe(func(ctx context.Context, e events.DepthResolved) { depths = append(depths, e.Depth) })()

	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.b":     executor.NewMockValueResolver(nil),
		"Query.shelf": executor.NewMockValueResolver(map[string]any{}),
		"Shelf.name":  executor.NewMockValueResolver("top"),
	})
	rt.SetLazy("Query.b", "Query.shelf", "Shelf.name")
	exec := executor.NewExecutor(rt, mustLibrarySchema(t))

	_, err := exec.RunAll(context.Background(), []executor.QueryRequest{
		{Query: `query One { b }`},
		{Query: `{ shelf { name } }`},
	})
	require.NoError(t, err)

	require.Len(t, starts, 1)
	require.Equal(t, 2, starts[0].Queries)
	require.Len(t, finishes, 1)
	require.Equal(t, starts[0].ID, finishes[0].ID)
	require.Equal(t, "done", finishes[0].Phase)
	require.NoError(t, finishes[0].Err)

	require.Len(t, queries, 2)
	require.Equal(t, "One", queries[0].OperationName)
	require.Equal(t, "query", queries[1].OperationType)
	require.Equal(t, []int{1, 2}, depths)
}
