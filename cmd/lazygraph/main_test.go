package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeQuery(t *testing.T, dir, name, query string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(query), 0o644))
	return path
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"help", "serve"}, &out, &out))
	require.Contains(t, out.String(), "-server.addr")

	out.Reset()
	require.NoError(t, run([]string{"help"}, &out, &out))
	require.Contains(t, out.String(), "COMMANDS:")

	require.Error(t, run([]string{"help", "nope"}, &out, &out))
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"frobnicate"}, &stdout, &stderr)
	require.EqualError(t, err, `unknown command "frobnicate"`)
	require.Contains(t, stderr.String(), "USAGE:")

	err = run(nil, &stdout, &stderr)
	require.EqualError(t, err, "missing command")
}

func TestRunExecutesFilesAsOneMultiplex(t *testing.T) {
	dir := t.TempDir()
	first := writeQuery(t, dir, "first.graphql", `{ book(id: "1") { title author { name } } }`)
	second := writeQuery(t, dir, "second.graphql", `{ book(id: "404") { title } }`)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"run", "-log.level", "error", first, second}, &stdout, &stderr))

	var got []any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	want := []any{
		map[string]any{"data": map[string]any{"book": map[string]any{
			"title":  "A Wizard of Earthsea",
			"author": map[string]any{"name": "Ursula K. Le Guin"},
		}}},
		map[string]any{
			"data": map[string]any{"book": nil},
			"errors": []any{map[string]any{
				"message":    "book 404 not found",
				"path":       []any{"book"},
				"extensions": map[string]any{"code": "NOT_FOUND"},
			}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAppliesAnalyzers(t *testing.T) {
	dir := t.TempDir()
	deep := writeQuery(t, dir, "deep.graphql", `{ books { author { books { title } } } }`)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"run", "-log.level", "error", "-execution.max-depth", "2", deep}, &stdout, &stderr))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	require.Len(t, got, 1)
	require.Nil(t, got[0]["data"])
	errs := got[0]["errors"].([]any)
	require.Equal(t, "MaxDepthExceeded", errs[0].(map[string]any)["extensions"].(map[string]any)["code"])
}

func TestRunRequiresFiles(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"run"}, &stdout, &stderr)
	require.EqualError(t, err, "no query files given")

	err = run([]string{"run", filepath.Join(t.TempDir(), "missing.graphql")}, &stdout, &stderr)
	require.ErrorContains(t, err, "read query")
}

func TestRunRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "lazygraph.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("execution:\n  concurrency: 0\n"), 0o644))
	q := writeQuery(t, dir, "q.graphql", `{ books { id } }`)

	var stdout, stderr bytes.Buffer
	err := run([]string{"run", "-config", cfg, q}, &stdout, &stderr)
	require.ErrorContains(t, err, "execution.concurrency")
}
