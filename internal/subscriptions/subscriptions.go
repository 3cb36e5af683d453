// Package subscriptions keeps the subscriptions an executor hands off and
// re-executes them when one of their topics is triggered.
package subscriptions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	events "github.com/hanpama/lazygraph/internal/events"
	executor "github.com/hanpama/lazygraph/internal/executor"
)

// Subscription is a subscription operation as it was first executed.
type Subscription struct {
	ID      string
	Request executor.QueryRequest
	Events  []executor.SubscriptionEvent
}

// Update is the result of re-executing one subscription.
type Update struct {
	ID     string
	Result *executor.ExecutionResult
}

// Registry is an in-memory executor.Subscriptions.
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	byTopic map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		subs:    make(map[string]*Subscription),
		byTopic: make(map[string]map[string]struct{}),
	}
}

var _ executor.Subscriptions = (*Registry)(nil)

// Write stores a new subscription and returns its id.
func (r *Registry) Write(ctx context.Context, req executor.QueryRequest, evs []executor.SubscriptionEvent) (string, error) {
	if len(evs) == 0 {
		return "", fmt.Errorf("subscription has no root fields")
	}
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[id] = &Subscription{ID: id, Request: req, Events: evs}
	for _, ev := range evs {
		ids := r.byTopic[ev.Topic]
		if ids == nil {
			ids = make(map[string]struct{})
			r.byTopic[ev.Topic] = ids
		}
		ids[id] = struct{}{}
	}
	return id, nil
}

// Get returns the subscription with id.
func (r *Registry) Get(id string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	return s, ok
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Unsubscribe removes the subscription and reports whether it existed.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return false
	}
	delete(r.subs, id)
	for _, ev := range s.Events {
		if ids := r.byTopic[ev.Topic]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.byTopic, ev.Topic)
			}
		}
	}
	return true
}

// Matching returns the subscriptions listening on topic whose arguments
// equal args, ordered by id.
func (r *Registry) Matching(topic string, args map[string]any) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Subscription
	for id := range r.byTopic[topic] {
		s := r.subs[id]
		for _, ev := range s.Events {
			if ev.Topic == topic && cmp.Equal(ev.Arguments, args, cmpopts.EquateEmpty()) {
				out = append(out, s)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Trigger re-executes every subscription matching topic and args as one
// multiplex, with payload as the root value.
func (r *Registry) Trigger(ctx context.Context, exec *executor.Executor, topic string, args map[string]any, payload any) ([]Update, error) {
	subs := r.Matching(topic, args)
	if len(subs) == 0 {
		return nil, nil
	}
	reqs := make([]executor.QueryRequest, len(subs))
	for i, s := range subs {
		req := s.Request
		req.RootValue = payload
		req.SubscriptionID = s.ID
		reqs[i] = req
	}
	results, err := exec.RunAll(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", topic, err)
	}
	updates := make([]Update, len(subs))
	for i, s := range subs {
		updates[i] = Update{ID: s.ID, Result: results[i]}
		eventbus.Publish(ctx, events.SubscriptionUpdate{ID: s.ID, Topic: topic, Errors: len(results[i].Errors)})
	}
	return updates, nil
}
