package executor

import (
	"context"
	"fmt"
	"sync"

	lazy "github.com/hanpama/lazygraph/internal/lazy"
	schema "github.com/hanpama/lazygraph/internal/schema"
)

// MockResolver resolves a single field in tests.
type MockResolver func(ctx context.Context, info ResolveInfo) (any, error)

// Call kinds recorded by MockRuntime.
const (
	CallKindEager = "eager"
	CallKindLazy  = "lazy"
)

// NewMockValueResolver returns a MockResolver that always returns the provided value.
func NewMockValueResolver(val any) MockResolver {
	return func(ctx context.Context, info ResolveInfo) (any, error) {
		return val, nil
	}
}

// NewMockErrorResolver returns a MockResolver that always returns the provided error.
func NewMockErrorResolver(err error) MockResolver {
	return func(ctx context.Context, info ResolveInfo) (any, error) {
		return nil, err
	}
}

// NewMockSourceResolver returns a MockResolver reading key from a map source.
func NewMockSourceResolver(key string) MockResolver {
	return func(ctx context.Context, info ResolveInfo) (any, error) {
		if m, ok := info.Source.(map[string]any); ok {
			return m[key], nil
		}
		return nil, nil
	}
}

// Call represents a single resolver invocation record. Lazy calls are the
// forcing of a deferred field and carry the depth batch they ran in.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int // >0 for lazy calls forced in the same depth batch, 0 for eager
}

// MockRuntime implements Runtime with a single resolver registry and a single call log.
type MockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	lazy      map[string]bool
	calls     []Call
	batchSeq  int
	lastDepth int

	typeResolver func(value any) (string, error)
	serializer   func(val any, t schema.TypeRef) (any, error)
}

// NewMockRuntime creates a MockRuntime with the provided resolvers.
// The resolvers map keys are of the form "ObjectType.Field".
func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{
		resolvers: make(map[string]MockResolver),
		lazy:      make(map[string]bool),
		lastDepth: -1,
		typeResolver: func(value any) (string, error) {
			if m, ok := value.(map[string]any); ok {
				if typename, ok := m["__typename"].(string); ok {
					return typename, nil
				}
			}
			return "", fmt.Errorf("cannot resolve type")
		},
		serializer: func(val any, t schema.TypeRef) (any, error) {
			return val, nil
		},
	}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

// SetResolver registers or updates a resolver for the given object type and field.
func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers[objectType+"."+field] = resolver
}

// SetLazy makes the listed "ObjectType.Field" keys deferred: their resolver
// runs when the executor forces the field, not when it reaches it.
func (m *MockRuntime) SetLazy(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.lazy[k] = true
	}
}

func SetTypeResolver(r Runtime, f func(value any) (string, error)) {
	if mr, ok := r.(*MockRuntime); ok {
		mr.mu.Lock()
		mr.typeResolver = f
		mr.mu.Unlock()
	}
}

func SetSerializer(r Runtime, f func(val any, t schema.TypeRef) (any, error)) {
	if mr, ok := r.(*MockRuntime); ok {
		mr.mu.Lock()
		mr.serializer = f
		mr.mu.Unlock()
	}
}

// ResolveField implements Runtime.ResolveField.
func (m *MockRuntime) ResolveField(ctx context.Context, info ResolveInfo) (any, error) {
	key := info.ObjectType.Name + "." + info.Field.Name

	m.mu.Lock()
	r := m.resolvers[key]
	deferred := m.lazy[key]
	m.mu.Unlock()

	call := func(kind string, batchID int) (any, error) {
		m.mu.Lock()
		m.calls = append(m.calls, Call{
			Kind:       kind,
			ObjectType: info.ObjectType.Name,
			Field:      info.Field.Name,
			Source:     info.Source,
			Args:       info.Args,
			BatchID:    batchID,
		})
		m.mu.Unlock()
		if r == nil {
			return nil, nil
		}
		return r(ctx, info)
	}

	if !deferred {
		return call(CallKindEager, 0)
	}
	depth := len(info.Path)
	return lazy.New(func() (any, error) {
		return call(CallKindLazy, m.batchFor(depth))
	}), nil
}

// batchFor numbers depth batches in the order they are forced.
func (m *MockRuntime) batchFor(depth int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if depth != m.lastDepth {
		m.batchSeq++
		m.lastDepth = depth
	}
	return m.batchSeq
}

// ResolveType implements Runtime.ResolveType
func (m *MockRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if m.typeResolver == nil {
		return "", fmt.Errorf("type resolver not configured")
	}
	return m.typeResolver(value)
}

// SerializeLeafValue implements Runtime.SerializeLeafValue
func (m *MockRuntime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	if m.serializer == nil {
		return value, nil
	}
	return m.serializer(value, *schema.NamedType(scalarOrEnumTypeName))
}

// GetCalls returns a copy of the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls and counters (resolvers remain).
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.batchSeq = 0
	m.lastDepth = -1
}
