package dataloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	events "github.com/hanpama/lazygraph/internal/events"
	lazy "github.com/hanpama/lazygraph/internal/lazy"
)

// FetchFunc loads values for keys. It must return one value per key, in key
// order.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// Loader batches and caches loads by key. Keys requested before the first of
// them is forced are fetched in one call.
type Loader[K comparable, V any] struct {
	name  string
	ctx   context.Context
	fetch FetchFunc[K, V]

	mu      sync.Mutex
	current *batch[K, V]
	cache   map[K]*lazy.Lazy
}

type batch[K comparable, V any] struct {
	once   sync.Once
	keys   []K
	values map[K]V
	err    error
}

// NewLoader creates a standalone loader. Loaders meant to coalesce across a
// multiplex are obtained with Source instead.
func NewLoader[K comparable, V any](ctx context.Context, name string, fetch FetchFunc[K, V]) *Loader[K, V] {
	return &Loader[K, V]{name: name, ctx: ctx, fetch: fetch, cache: make(map[K]*lazy.Lazy)}
}

// Source returns the loader registered on d under name, creating it on first
// use. Every caller on the same Dataloader shares one loader per name.
func Source[K comparable, V any](ctx context.Context, d *Dataloader, name string, fetch FetchFunc[K, V]) *Loader[K, V] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.sources[name]; ok {
		if l, ok := existing.(*Loader[K, V]); ok {
			return l
		}
		panic(fmt.Sprintf("dataloader: source %q registered with a different key or value type", name))
	}
	l := NewLoader(ctx, name, fetch)
	d.sources[name] = l
	return l
}

// Load returns a deferred value for key.
func (l *Loader[K, V]) Load(key K) *lazy.Lazy {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.cache[key]; ok {
		return v
	}
	if l.current == nil {
		l.current = &batch[K, V]{}
	}
	b := l.current
	b.keys = append(b.keys, key)
	v := lazy.New(func() (any, error) {
		l.dispatch(b)
		if b.err != nil {
			return nil, b.err
		}
		return b.values[key], nil
	})
	l.cache[key] = v
	return v
}

// LoadMany returns a deferred list holding the value of each key.
func (l *Loader[K, V]) LoadMany(keys []K) *lazy.Lazy {
	items := make([]any, len(keys))
	for i, k := range keys {
		items[i] = l.Load(k)
	}
	return lazy.All(items)
}

// Prime stores a known value for key unless key was already requested.
func (l *Loader[K, V]) Prime(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[key]; !ok {
		l.cache[key] = lazy.Resolved(value)
	}
}

func (l *Loader[K, V]) dispatch(b *batch[K, V]) {
	b.once.Do(func() {
		l.mu.Lock()
		if l.current == b {
			l.current = nil
		}
		keys := b.keys
		l.mu.Unlock()

		start := time.Now()
		values, err := l.fetch(l.ctx, keys)
		if err == nil && len(values) != len(keys) {
			err = fmt.Errorf("dataloader %s: fetch returned %d values for %d keys", l.name, len(values), len(keys))
		}
		eventbus.Publish(l.ctx, events.LoaderBatch{
			Loader:   l.name,
			Keys:     len(keys),
			Err:      err,
			Duration: time.Since(start),
		})
		if err != nil {
			b.err = err
			return
		}
		b.values = make(map[K]V, len(keys))
		for i, k := range keys {
			b.values[k] = values[i]
		}
	})
}
