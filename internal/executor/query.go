package executor

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	language "github.com/hanpama/lazygraph/internal/language"
	lookahead "github.com/hanpama/lazygraph/internal/lookahead"
	schema "github.com/hanpama/lazygraph/internal/schema"
)

type Path []PathElement

type PathElement = any

// query is one query of a multiplex: its document, its response tree and
// its error list. Nothing in a query is touched by its siblings.
type query struct {
	index     int
	req       QueryRequest
	schema    *schema.Schema
	document  *language.QueryDocument
	operation *language.OperationDefinition
	rootType  *schema.Type
	variables map[string]any
	lookahead *lookahead.Context

	// noOperation is set when preparation or analysis rejected the query.
	noOperation bool
	events      []SubscriptionEvent

	mu       sync.Mutex
	data     map[string]any
	dataNull bool
	failed   bool
	errors   []GraphQLError
	// paths whose value is Non-Null
	nonNull map[string]struct{}
	// prefixes of paths that have been nullified (tombstoned)
	nullified map[string]struct{}
}

func newQuery(index int, req QueryRequest, sch *schema.Schema) *query {
	return &query{
		index:     index,
		req:       req,
		schema:    sch,
		data:      make(map[string]any),
		nonNull:   make(map[string]struct{}),
		nullified: make(map[string]struct{}),
	}
}

func (q *query) operationName() string {
	if q.operation != nil && q.operation.Name != "" {
		return q.operation.Name
	}
	return q.req.OperationName
}

func (q *query) operationType() string {
	if q.operation == nil {
		return ""
	}
	return string(q.operation.Operation)
}

func (q *query) addError(e GraphQLError) {
	q.mu.Lock()
	q.errors = append(q.errors, e)
	q.mu.Unlock()
}

// reject marks the query as not executable.
func (q *query) reject(errs ...GraphQLError) {
	q.mu.Lock()
	q.noOperation = true
	q.errors = append(q.errors, errs...)
	q.mu.Unlock()
}

// fail records a fatal error escaping the query's eager phase. The query
// keeps no data and its deferred values are dropped.
func (q *query) fail(err error) {
	q.mu.Lock()
	q.failed = true
	q.data = nil
	q.errors = append(q.errors, GraphQLError{Message: err.Error()})
	q.mu.Unlock()
}

func (q *query) isFailed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failed
}

// hasErrorAtPath reports whether an error with the given path already exists.
func (q *query) hasErrorAtPath(path Path) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, err := range q.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}

func (q *query) markNonNull(path Path) {
	q.mu.Lock()
	q.nonNull[pathToString(path)] = struct{}{}
	q.mu.Unlock()
}

func (q *query) markNullified(path Path) {
	q.mu.Lock()
	q.markNullifiedLocked(path)
	q.mu.Unlock()
}

func (q *query) markNullifiedLocked(path Path) {
	if key := pathToString(path); key != "" {
		q.nullified[key] = struct{}{}
	}
}

func (q *query) hasNullifiedPrefixLocked(p Path) bool {
	return q.nullifiedWithinLocked(p, len(p))
}

// nullifiedWithinLocked reports whether one of the first n prefixes of p
// has been nullified.
func (q *query) nullifiedWithinLocked(p Path, n int) bool {
	if len(q.nullified) == 0 {
		return false
	}
	for i := 1; i <= n; i++ {
		if _, ok := q.nullified[pathToString(p[:i])]; ok {
			return true
		}
	}
	return false
}

func (q *query) writable(path Path) bool {
	return !q.failed && !q.dataNull && !q.hasNullifiedPrefixLocked(path)
}

// write stores v at path unless the path was nullified. The null of a
// nullified position itself is still written.
func (q *query) write(path Path, v any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failed || q.dataNull {
		return
	}
	n := len(path)
	if v == nil {
		n--
	}
	if !q.nullifiedWithinLocked(path, n) {
		setValueAtPath(q.data, path, v)
	}
}

// omit removes the key at path; list items become null.
func (q *query) omit(path Path) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.writable(path) || len(path) == 0 {
		return
	}
	parent, ok := valueAtPath(q.data, path[:len(path)-1])
	if !ok {
		return
	}
	switch last := path[len(path)-1].(type) {
	case string:
		if m, ok := parent.(map[string]any); ok {
			delete(m, last)
		}
	case int:
		if s, ok := parent.([]any); ok && last < len(s) {
			s[last] = nil
		}
	}
}

// nullAt sets the nearest nullable position at or above path to null. When
// every ancestor is Non-Null the whole data becomes null.
func (q *query) nullAt(path Path) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.writable(path) {
		return
	}
	p := path
	for len(p) > 0 {
		if _, ok := q.nonNull[pathToString(p)]; !ok {
			break
		}
		p = p[:len(p)-1]
	}
	if len(p) == 0 {
		q.dataNull = true
		return
	}
	setValueAtPath(q.data, p, nil)
	q.markNullifiedLocked(p)
}

func (q *query) result() *ExecutionResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	res := &ExecutionResult{Errors: q.errors}
	if !q.noOperation && !q.failed && !q.dataNull {
		res.Data = q.data
	}
	return res
}

func (q *query) errorList() []error {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]error, len(q.errors))
	for i, e := range q.errors {
		out[i] = e
	}
	return out
}

func pathToString(path Path) string {
	var b strings.Builder
	for i, elem := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		switch v := elem.(type) {
		case string:
			b.WriteString(v)
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		}
	}
	return b.String()
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

// valueAtPath walks the response tree. Missing containers are reported, not
// created: a deferred value is only written after its parent.
func valueAtPath(root map[string]any, path Path) (any, bool) {
	var current any = root
	for _, elem := range path {
		switch e := elem.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			next, exists := m[e]
			if !exists {
				return nil, false
			}
			current = next
		case int:
			s, ok := current.([]any)
			if !ok || e >= len(s) {
				return nil, false
			}
			current = s[e]
		default:
			return nil, false
		}
	}
	return current, true
}

// setValueAtPath sets the value at a path in the response tree.
func setValueAtPath(root map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	parent, ok := valueAtPath(root, path[:len(path)-1])
	if !ok {
		return
	}
	switch fe := path[len(path)-1].(type) {
	case string:
		if m, ok := parent.(map[string]any); ok {
			m[fe] = value
		}
	case int:
		if s, ok := parent.([]any); ok && fe < len(s) {
			s[fe] = value
		}
	}
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
