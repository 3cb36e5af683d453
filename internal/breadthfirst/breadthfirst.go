// Package breadthfirst resolves deferred values one response depth at a
// time, so that batched loads triggered at the same depth coalesce before
// execution goes deeper.
package breadthfirst

import (
	"context"
	"sort"
	"sync"
	"time"

	dataloader "github.com/hanpama/lazygraph/internal/dataloader"
	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	events "github.com/hanpama/lazygraph/internal/events"
	lazy "github.com/hanpama/lazygraph/internal/lazy"
)

// Buckets maps response depth to the deferred values found at that depth.
// Within one Resolve pass depth only grows: while depth N is being resolved,
// values added at N or shallower are placed at N+1.
type Buckets struct {
	mu      sync.Mutex
	buckets map[int][]*lazy.Lazy
	floor   int // lowest depth accepting additions
}

func NewBuckets() *Buckets {
	return &Buckets{buckets: make(map[int][]*lazy.Lazy)}
}

// Add queues l at depth and returns the depth it was placed at.
func (b *Buckets) Add(depth int, l *lazy.Lazy) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if depth < b.floor {
		depth = b.floor
	}
	b.buckets[depth] = append(b.buckets[depth], l)
	return depth
}

// Len returns the number of queued values across all depths.
func (b *Buckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ls := range b.buckets {
		n += len(ls)
	}
	return n
}

// Depths returns the depths holding queued values in ascending order.
func (b *Buckets) Depths() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	depths := make([]int, 0, len(b.buckets))
	for d, ls := range b.buckets {
		if len(ls) > 0 {
			depths = append(depths, d)
		}
	}
	sort.Ints(depths)
	return depths
}

// take removes the shallowest non-empty bucket and raises the floor past it.
func (b *Buckets) take() (int, []*lazy.Lazy, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	min, found := 0, false
	for d, ls := range b.buckets {
		if len(ls) == 0 {
			delete(b.buckets, d)
			continue
		}
		if !found || d < min {
			min, found = d, true
		}
	}
	if !found {
		// drained: the next pass may start shallow again
		b.floor = 0
		return 0, nil, false
	}
	ls := b.buckets[min]
	delete(b.buckets, min)
	b.floor = min + 1
	return min, ls, true
}

// Resolve forces every queued value, shallowest depth first, scheduling one
// job per value on dl and running dl to quiescence before moving deeper.
// The first error aborts resolution and is returned.
func Resolve(ctx context.Context, b *Buckets, dl *dataloader.Dataloader) error {
	for {
		depth, ls, ok := b.take()
		if !ok {
			return nil
		}
		start := time.Now()
		for _, l := range ls {
			dl.Append(func(context.Context) error {
				_, err := l.Value()
				return err
			})
		}
		if err := dl.Run(ctx); err != nil {
			return err
		}
		eventbus.Publish(ctx, events.DepthResolved{
			Depth:    depth,
			Lazies:   len(ls),
			Duration: time.Since(start),
		})
	}
}
