// Package otel turns engine events into OpenTelemetry spans.
package otel

import (
	"context"
	"fmt"
	"sync"
	"time"

	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	events "github.com/hanpama/lazygraph/internal/events"
	reqid "github.com/hanpama/lazygraph/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName names the tracer spans are created with.
const TracerName = "lazygraph"

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Register(tp)
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Register subscribes span recording on the global bus using tp.
func Register(tp trace.TracerProvider) (unsubscribe func()) {
	s := &subscriber{tracer: tp.Tracer(TracerName)}
	return s.register()
}

type subscriber struct {
	tracer         trace.Tracer
	httpSpans      sync.Map // rid -> trace.Span
	multiplexSpans sync.Map // multiplex id -> trace.Span
	querySpans     sync.Map // queryKey -> trace.Span
}

type queryKey struct {
	multiplex string
	index     int
}

// parent returns ctx with the innermost open span known for it.
func (s *subscriber) parent(ctx context.Context) context.Context {
	if id, ok := events.MultiplexIDFrom(ctx); ok {
		if v, ok := s.multiplexSpans.Load(id); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	if rid, ok := reqid.FromContext(ctx); ok {
		if v, ok := s.httpSpans.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

// record creates a span for work that already finished.
func (s *subscriber) record(ctx context.Context, name string, d time.Duration, err error, attrs ...attribute.KeyValue) {
	end := time.Now()
	_, span := s.tracer.Start(s.parent(ctx), name,
		trace.WithTimestamp(end.Add(-d)),
		trace.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(trace.WithTimestamp(end))
}

func (s *subscriber) register() func() {
	var unsubscribers []func()
	on := func(unsubscribe func()) { unsubscribers = append(unsubscribers, unsubscribe) }

	on(eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		span.End()
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.MultiplexStart) {
		_, span := s.tracer.Start(s.parent(ctx), "graphql.multiplex")
		span.SetAttributes(
			attribute.String("graphql.multiplex.id", e.ID),
			attribute.Int("graphql.multiplex.queries", e.Queries),
		)
		s.multiplexSpans.Store(e.ID, span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.MultiplexFinish) {
		v, ok := s.multiplexSpans.LoadAndDelete(e.ID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("graphql.error_count", e.Errors),
			attribute.String("graphql.multiplex.phase", e.Phase),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.QueryStart) {
		_, span := s.tracer.Start(s.parent(ctx), "graphql.operation")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
			attribute.Int("graphql.query.index", e.Index),
		)
		s.querySpans.Store(queryKey{e.MultiplexID, e.Index}, span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.QueryFinish) {
		v, ok := s.querySpans.LoadAndDelete(queryKey{e.MultiplexID, e.Index})
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("graphql.error_count", len(e.Errors)),
			attribute.Bool("graphql.query.skipped", e.Skipped),
		)
		span.End()
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.DepthResolved) {
		s.record(ctx, "graphql.depth", e.Duration, nil,
			attribute.Int("graphql.depth", e.Depth),
			attribute.Int("graphql.depth.lazies", e.Lazies),
		)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.LoaderBatch) {
		s.record(ctx, "dataloader.batch", e.Duration, e.Err,
			attribute.String("dataloader.name", e.Loader),
			attribute.Int("dataloader.keys", e.Keys),
		)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionUpdate) {
		s.record(ctx, "graphql.subscription.update", 0, nil,
			attribute.String("graphql.subscription.id", e.ID),
			attribute.String("graphql.subscription.topic", e.Topic),
			attribute.Int("graphql.error_count", e.Errors),
		)
	}))

	return func() {
		for _, u := range unsubscribers {
			u()
		}
	}
}
