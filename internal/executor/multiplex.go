package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	analysis "github.com/hanpama/lazygraph/internal/analysis"
	breadthfirst "github.com/hanpama/lazygraph/internal/breadthfirst"
	dataloader "github.com/hanpama/lazygraph/internal/dataloader"
	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	events "github.com/hanpama/lazygraph/internal/events"
	language "github.com/hanpama/lazygraph/internal/language"
	lookahead "github.com/hanpama/lazygraph/internal/lookahead"
	rescue "github.com/hanpama/lazygraph/internal/rescue"
	schema "github.com/hanpama/lazygraph/internal/schema"
	values "github.com/hanpama/lazygraph/internal/values"
)

// Phase is a step of a multiplex run.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseAnalyzed
	PhaseExecuting
	PhaseResolving
	PhaseAssembling
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseAnalyzed:
		return "analyzed"
	case PhaseExecuting:
		return "executing"
	case PhaseResolving:
		return "resolving"
	case PhaseAssembling:
		return "assembling"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// QueryRequest is one query of a multiplex.
type QueryRequest struct {
	// Query is the query source, parsed when Document is nil.
	Query         string
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	RootValue     any
	// SubscriptionID marks the re-execution of an existing subscription. Its
	// events are not handed to Subscriptions again.
	SubscriptionID string
}

// SubscriptionEvent is one root field of a subscription operation.
type SubscriptionEvent struct {
	Topic     string
	Field     string
	Arguments map[string]any
}

// Subscriptions receives the events of executed subscription operations and
// returns the id the subscription is known by.
type Subscriptions interface {
	Write(ctx context.Context, req QueryRequest, events []SubscriptionEvent) (string, error)
}

type Executor struct {
	runtime       Runtime
	schema        *schema.Schema
	rescue        *rescue.Registry
	analyzers     []analysis.Analyzer
	subscriptions Subscriptions
	concurrency   int
}

type Option func(*Executor)

// WithRescue replaces the executor's rescue registry.
func WithRescue(r *rescue.Registry) Option {
	return func(e *Executor) { e.rescue = r }
}

// WithAnalyzers adds analyzers run over every multiplex before execution.
func WithAnalyzers(analyzers ...analysis.Analyzer) Option {
	return func(e *Executor) { e.analyzers = append(e.analyzers, analyzers...) }
}

func WithSubscriptions(s Subscriptions) Option {
	return func(e *Executor) { e.subscriptions = s }
}

// WithConcurrency sets how many deferred values may be forced at once.
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = n }
}

func NewExecutor(runtime Runtime, schema *schema.Schema, opts ...Option) *Executor {
	e := &Executor{runtime: runtime, schema: schema, rescue: rescue.NewRegistry(nil), concurrency: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extend returns an executor inheriting e's configuration. Its rescue
// registry is a child of e's: handlers registered on it take precedence for
// the same class and e's handlers still apply.
func (e *Executor) Extend(opts ...Option) *Executor {
	child := &Executor{
		runtime:       e.runtime,
		schema:        e.schema,
		rescue:        e.rescue.Extend(),
		analyzers:     slices.Clone(e.analyzers),
		subscriptions: e.subscriptions,
		concurrency:   e.concurrency,
	}
	for _, opt := range opts {
		opt(child)
	}
	return child
}

func (e *Executor) Schema() *schema.Schema { return e.schema }

// RescueFrom registers handler for errors of class.
func (e *Executor) RescueFrom(class *rescue.Class, handler rescue.Handler) {
	e.rescue.Register(class, handler)
}

// ExecuteRequest runs a single query as a multiplex of one.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	results, err := e.RunAll(ctx, []QueryRequest{{
		Document:      document,
		OperationName: operationName,
		Variables:     variableValues,
		RootValue:     initialValue,
	}})
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}
	return results[0]
}

// RunAll executes requests as one multiplex. Deferred values of every query
// share one set of depth buckets and one dataloader, so loads from different
// queries coalesce.
//
// A fatal error in a query's eager phase is recorded on that query only. A
// fatal error while resolving deferred values aborts the whole multiplex:
// every query gets an empty result and the error is returned.
func (e *Executor) RunAll(ctx context.Context, requests []QueryRequest) ([]*ExecutionResult, error) {
	id := uuid.NewString()
	ctx = events.WithMultiplexID(ctx, id)
	m := &multiplex{
		id:      id,
		exec:    e,
		ctx:     ctx,
		buckets: breadthfirst.NewBuckets(),
		loader:  dataloader.New(dataloader.WithConcurrency(e.concurrency)),
		queries: make([]*query, len(requests)),
	}
	start := time.Now()
	eventbus.Publish(ctx, events.MultiplexStart{ID: m.id, Queries: len(requests)})

	results, err := m.run(requests)

	errCount := 0
	for _, r := range results {
		errCount += len(r.Errors)
	}
	eventbus.Publish(ctx, events.MultiplexFinish{
		ID:       m.id,
		Queries:  len(requests),
		Errors:   errCount,
		Phase:    m.phase.String(),
		Err:      err,
		Duration: time.Since(start),
	})
	return results, err
}

// multiplex is the state shared by the queries of one RunAll call.
type multiplex struct {
	id      string
	exec    *Executor
	ctx     context.Context
	phase   Phase
	buckets *breadthfirst.Buckets
	loader  *dataloader.Dataloader
	queries []*query
}

// abortError carries a resolving failure out of a query's eager phase; it
// is not isolated to that query.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

func (m *multiplex) run(requests []QueryRequest) ([]*ExecutionResult, error) {
	for i, req := range requests {
		m.queries[i] = m.prepare(i, req)
	}
	m.analyze()
	m.phase = PhaseAnalyzed

	m.phase = PhaseExecuting
	for _, q := range m.queries {
		if q.noOperation {
			continue
		}
		if err := m.execute(q); err != nil {
			var abort *abortError
			if errors.As(err, &abort) {
				return m.abort(abort.err)
			}
			q.fail(err)
		}
	}

	m.phase = PhaseResolving
	if err := m.resolve(); err != nil {
		return m.abort(err)
	}

	m.phase = PhaseAssembling
	results := make([]*ExecutionResult, len(m.queries))
	for i, q := range m.queries {
		results[i] = m.assemble(q)
	}
	m.phase = PhaseDone
	return results, nil
}

// prepare parses the request, selects its operation and coerces its
// variables. Failures reject the query.
func (m *multiplex) prepare(index int, req QueryRequest) *query {
	sch := m.exec.schema
	q := newQuery(index, req, sch)

	doc := req.Document
	if doc == nil {
		parsed, err := language.ParseQuery(req.Query)
		if err != nil {
			q.reject(requestErrors(err)...)
			return q
		}
		doc = parsed
	}
	q.document = doc

	operation := language.OperationByName(doc, req.OperationName)
	if operation == nil {
		q.reject(GraphQLError{Message: "operation not found"})
		return q
	}
	q.operation = operation

	switch operation.Operation {
	case language.Query:
		q.rootType = sch.GetQueryType()
	case language.Mutation:
		q.rootType = sch.GetMutationType()
	case language.Subscription:
		q.rootType = sch.GetSubscriptionType()
	default:
		q.reject(GraphQLError{Message: fmt.Sprintf("unsupported operation type: %s", operation.Operation)})
		return q
	}
	if q.rootType == nil {
		q.reject(GraphQLError{Message: fmt.Sprintf("root type not found for %s operation", operation.Operation)})
		return q
	}

	variables, err := values.CoerceVariables(sch, operation, req.Variables)
	if err != nil {
		q.reject(GraphQLError{Message: err.Error()})
		return q
	}
	q.variables = variables
	q.lookahead = &lookahead.Context{Schema: sch, Document: doc, Variables: variables}
	return q
}

// requestErrors converts parse errors into response errors.
func requestErrors(err error) []GraphQLError {
	var list language.ErrorList
	if errors.As(err, &list) {
		out := make([]GraphQLError, 0, len(list))
		for _, e := range list {
			out = append(out, GraphQLError{Message: e.Message})
		}
		return out
	}
	var single *language.Error
	if errors.As(err, &single) {
		return []GraphQLError{{Message: single.Message}}
	}
	return []GraphQLError{{Message: err.Error()}}
}

// analyze runs every analyzer over the queries that survived preparation.
func (m *multiplex) analyze() {
	var (
		prepared []*query
		input    []*analysis.Query
	)
	for _, q := range m.queries {
		if q.noOperation {
			continue
		}
		prepared = append(prepared, q)
		input = append(input, &analysis.Query{
			Schema:    q.schema,
			Document:  q.document,
			Operation: q.operation,
			Variables: q.variables,
		})
	}
	if len(input) == 0 {
		return
	}
	for _, a := range m.exec.analyzers {
		results := a.Analyze(m.ctx, input)
		for i, errs := range results {
			if i >= len(prepared) || len(errs) == 0 {
				continue
			}
			out := make([]GraphQLError, len(errs))
			for j, err := range errs {
				out[j] = GraphQLError{Message: err.Error()}
				var aerr *analysis.Error
				if errors.As(err, &aerr) {
					out[j].Extensions = map[string]any{"code": aerr.Code}
				}
			}
			prepared[i].reject(out...)
		}
	}
}

// execute runs a query's eager phase.
func (m *multiplex) execute(q *query) error {
	eventbus.Publish(m.ctx, events.QueryStart{
		MultiplexID:   m.id,
		Index:         q.index,
		OperationName: q.operationName(),
		OperationType: q.operationType(),
	})
	s := &executionState{m: m, q: q, context: m.ctx}
	fields := collectFields(q, q.rootType, q.operation.SelectionSet)

	switch q.operation.Operation {
	case language.Mutation:
		return s.executeRootFieldsSerially(fields)
	case language.Subscription:
		q.events = m.subscriptionEvents(q, fields)
	}
	return s.executeRootFields(fields)
}

func (m *multiplex) subscriptionEvents(q *query, fields *collectedFieldMap) []SubscriptionEvent {
	var out []SubscriptionEvent
	for _, cf := range fields.orderedFields() {
		field := cf.Fields[0]
		fieldDef := q.rootType.Field(field.Name)
		if fieldDef == nil {
			continue
		}
		args, _ := values.CoerceArguments(q.schema, fieldDef, field.Arguments, q.variables)
		out = append(out, SubscriptionEvent{Topic: field.Name, Field: cf.ResponseName, Arguments: args})
	}
	return out
}

// resolve forces everything queued on the shared buckets.
func (m *multiplex) resolve() error {
	return breadthfirst.Resolve(m.ctx, m.buckets, m.loader)
}

// abort marks every query executed with an empty result.
func (m *multiplex) abort(err error) ([]*ExecutionResult, error) {
	results := make([]*ExecutionResult, len(m.queries))
	for i, q := range m.queries {
		q.mu.Lock()
		q.failed = true
		q.data = nil
		q.mu.Unlock()
		results[i] = &ExecutionResult{}
		eventbus.Publish(m.ctx, events.QueryFinish{
			MultiplexID:   m.id,
			Index:         q.index,
			OperationName: q.operationName(),
			OperationType: q.operationType(),
			Skipped:       true,
		})
	}
	return results, err
}

// assemble reads back a query's response tree and hands the events of a
// new subscription to the Subscriptions collaborator.
func (m *multiplex) assemble(q *query) *ExecutionResult {
	var subscriptionID string
	if m.handsOffEvents(q) {
		req := q.req
		req.Document = q.document
		id, err := m.exec.subscriptions.Write(m.ctx, req, q.events)
		if err != nil {
			q.addError(GraphQLError{Message: err.Error()})
		}
		subscriptionID = id
	}
	res := q.result()
	if subscriptionID != "" {
		res.Extensions = map[string]any{"subscriptionId": subscriptionID}
	}
	m.finish(q)
	return res
}

func (m *multiplex) handsOffEvents(q *query) bool {
	return m.exec.subscriptions != nil &&
		!q.noOperation && !q.isFailed() &&
		q.operation.Operation == language.Subscription &&
		q.req.SubscriptionID == ""
}

func (m *multiplex) finish(q *query) {
	eventbus.Publish(m.ctx, events.QueryFinish{
		MultiplexID:   m.id,
		Index:         q.index,
		OperationName: q.operationName(),
		OperationType: q.operationType(),
		Errors:        q.errorList(),
		Skipped:       q.noOperation,
	})
}
