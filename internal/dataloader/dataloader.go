// Package dataloader provides the job queue that deferred field values are
// forced on, and batched loaders that coalesce keys across everything
// sharing one queue.
package dataloader

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Job is a unit of work run by a Dataloader.
type Job func(ctx context.Context) error

// Dataloader runs appended jobs to quiescence. Jobs may append further jobs
// while running. One Dataloader is shared by every query of a multiplex.
type Dataloader struct {
	mu      sync.Mutex
	queue   []Job
	limit   int
	sources map[string]any
}

type Option func(*Dataloader)

// WithConcurrency bounds the number of jobs running at once. Values below
// one mean one.
func WithConcurrency(n int) Option {
	return func(d *Dataloader) {
		if n < 1 {
			n = 1
		}
		d.limit = n
	}
}

func New(opts ...Option) *Dataloader {
	d := &Dataloader{limit: 1, sources: make(map[string]any)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Append queues job for the next Run pass.
func (d *Dataloader) Append(job Job) {
	d.mu.Lock()
	d.queue = append(d.queue, job)
	d.mu.Unlock()
}

// Pending reports the number of queued jobs.
func (d *Dataloader) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run drains the queue, including jobs appended by running jobs, and returns
// the first error. Remaining jobs are dropped on error.
func (d *Dataloader) Run(ctx context.Context) error {
	for {
		d.mu.Lock()
		jobs := d.queue
		d.queue = nil
		d.mu.Unlock()
		if len(jobs) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.limit)
		for _, job := range jobs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return job(gctx)
			})
		}
		if err := g.Wait(); err != nil {
			d.mu.Lock()
			d.queue = nil
			d.mu.Unlock()
			return err
		}
	}
}
