package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	dataloader "github.com/hanpama/lazygraph/internal/dataloader"
	executor "github.com/hanpama/lazygraph/internal/executor"
	reqid "github.com/hanpama/lazygraph/internal/reqid"
	schema "github.com/hanpama/lazygraph/internal/schema"
)

func newTestHandler(t *testing.T, rt executor.Runtime, opts ...Option) *Handler {
	t.Helper()
	sdl := `type Query { hello: String, echo(id: ID!): String }`
	sch, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return New(executor.NewExecutor(rt, sch), opts...)
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestForwardedHeaders(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var captured metadata.MD
	rt.SetResolver("Query", "hello", func(ctx context.Context, info executor.ResolveInfo) (any, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt, WithMetadataHeaders("X-Test"))

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test", "abc")
	req.Header.Set("X-Other", "nope")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if captured == nil || captured.Get("x-test")[0] != "abc" || len(captured.Get("x-other")) > 0 {
		t.Fatalf("metadata not propagated correctly: %v", captured)
	}
}

func TestForwardedHeadersDefaultEmpty(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var captured metadata.MD
	rt.SetResolver("Query", "hello", func(ctx context.Context, info executor.ResolveInfo) (any, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt)

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test", "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if len(captured.Get("x-test")) > 0 {
		t.Fatalf("header should not be forwarded by default: %v", captured)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	h := newTestHandler(t, rt, WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestMaxBodyBytes(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	h := newTestHandler(t, rt, WithMaxBodyBytes(10))

	w := post(t, h, `{"query":"1234567890"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var capturedMD metadata.MD
	var capturedID string
	rt.SetResolver("Query", "hello", func(ctx context.Context, info executor.ResolveInfo) (any, error) {
		capturedMD, _ = metadata.FromOutgoingContext(ctx)
		capturedID, _ = reqid.FromContext(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt)

	w := post(t, h, `{"query":"{ hello }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if capturedID == "" {
		t.Fatalf("missing request id in context")
	}
	if got := capturedMD.Get(RequestIDMetadataKey); len(got) == 0 || got[0] != capturedID {
		t.Fatalf("metadata mismatch: %v id %s", capturedMD, capturedID)
	}
	require.Equal(t, capturedID, w.Header().Get(reqid.Header))

	// an incoming id is kept
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set(reqid.Header, "edge-1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "edge-1", capturedID)
	require.Equal(t, "edge-1", w.Header().Get(reqid.Header))
}

func TestBatchRunsAsOneMultiplex(t *testing.T) {
	var batches [][]string
	fetch := func(ctx context.Context, keys []string) ([]string, error) {
		batches = append(batches, append([]string(nil), keys...))
		out := make([]string, len(keys))
		for i, k := range keys {
			out[i] = "echo " + k
		}
		return out, nil
	}
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.echo": func(ctx context.Context, info executor.ResolveInfo) (any, error) {
			return dataloader.Source(ctx, info.Dataloader, "echo", fetch).Load(info.Args["id"].(string)), nil
		},
	})
	h := newTestHandler(t, rt)

	w := post(t, h, `[
		{"query":"{ echo(id: 1) }"},
		{"query":"query($id: ID!) { echo(id: $id) }","variables":{"id":2}},
		{"query":"{ nope"}
	]`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode(t, w).([]any)
	require.Len(t, got, 3)
	want := []any{
		map[string]any{"data": map[string]any{"echo": "echo 1"}},
		map[string]any{"data": map[string]any{"echo": "echo 2"}},
	}
	if diff := cmp.Diff(want, got[:2]); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	third := got[2].(map[string]any)
	require.Nil(t, third["data"])
	require.NotEmpty(t, third["errors"])

	if diff := cmp.Diff([][]string{{"1", "2"}}, batches); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchLimitAndValidation(t *testing.T) {
	h := newTestHandler(t, executor.NewMockRuntime(nil), WithMaxBatch(1))

	w := post(t, h, `[{"query":"{ hello }"},{"query":"{ hello }"}]`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, `[]`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, `{"query":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest("POST", "/", strings.NewReader(`query`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestAbortedMultiplexIs500(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockErrorResolver(context.DeadlineExceeded),
	})
	rt.SetLazy("Query.hello")
	h := newTestHandler(t, rt)

	w := post(t, h, `{"query":"{ hello }"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	want := map[string]any{
		"data":   nil,
		"errors": []any{map[string]any{"message": "resolve hello: context deadline exceeded"}},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestGetAndGraphiQL(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	h := newTestHandler(t, rt)

	req := httptest.NewRequest("GET", "/?query=%7B%20hello%20%7D", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"data": map[string]any{"hello": "world"}}, decode(t, w))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept", "text/html")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "GraphiQL")

	req = httptest.NewRequest("DELETE", "/", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestErrorsCarryPath(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockErrorResolver(executor.NewExecutionError("nope").WithExtension("code", "DENIED")),
	})
	h := newTestHandler(t, rt)

	w := post(t, h, `{"query":"{ greeting: hello }"}`)
	want := map[string]any{
		"data": map[string]any{"greeting": nil},
		"errors": []any{map[string]any{
			"message":    "nope",
			"path":       []any{"greeting"},
			"extensions": map[string]any{"code": "DENIED"},
		}},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}
