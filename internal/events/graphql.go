package events

import "time"

// MultiplexStart is emitted before a multiplex begins analysis.
type MultiplexStart struct {
	ID      string
	Queries int
}

// MultiplexFinish is emitted after a multiplex has assembled its results or
// aborted. Err is set on abort and Phase names the phase it aborted in.
type MultiplexFinish struct {
	ID       string
	Queries  int
	Errors   int
	Phase    string
	Err      error
	Duration time.Duration
}

// QueryStart is emitted before executing one query of a multiplex.
type QueryStart struct {
	MultiplexID   string
	Index         int
	OperationName string
	OperationType string
}

// QueryFinish is emitted once a query's result is assembled.
type QueryFinish struct {
	MultiplexID   string
	Index         int
	OperationName string
	OperationType string
	Errors        []error
	Skipped       bool
}

// DepthResolved is emitted after one depth of deferred values is resolved.
type DepthResolved struct {
	Depth    int
	Lazies   int
	Duration time.Duration
}

// LoaderBatch is emitted after a batched loader fetched its keys.
type LoaderBatch struct {
	Loader   string
	Keys     int
	Err      error
	Duration time.Duration
}

// SubscriptionUpdate is emitted when a subscription is re-executed for a
// triggered event.
type SubscriptionUpdate struct {
	ID     string
	Topic  string
	Errors int
}
