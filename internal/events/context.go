package events

import "context"

type multiplexKey struct{}

// WithMultiplexID returns a copy of ctx carrying the id of the multiplex
// it executes in. Events published during the multiplex use it to find
// their multiplex.
func WithMultiplexID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, multiplexKey{}, id)
}

// MultiplexIDFrom returns the multiplex id stored in ctx.
func MultiplexIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(multiplexKey{}).(string)
	return id, ok
}
