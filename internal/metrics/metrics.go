// Package metrics exports engine events as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	events "github.com/hanpama/lazygraph/internal/events"
)

// Metrics holds the collectors fed by bus events.
type Metrics struct {
	multiplexTotal    *prometheus.CounterVec
	multiplexDuration prometheus.Histogram
	queryTotal        *prometheus.CounterVec
	depthLazies       prometheus.Histogram
	batchKeys         *prometheus.HistogramVec
	batchErrors       *prometheus.CounterVec
	subscriptionTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		multiplexTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lazygraph_multiplex_total",
			Help: "Multiplexes run, by outcome",
		}, []string{"result"}),
		multiplexDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lazygraph_multiplex_duration_seconds",
			Help:    "Multiplex duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}),
		queryTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lazygraph_query_total",
			Help: "Queries run, by operation type and outcome",
		}, []string{"type", "result"}),
		depthLazies: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lazygraph_depth_lazies",
			Help:    "Deferred values resolved per depth",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 500},
		}),
		batchKeys: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lazygraph_loader_batch_keys",
			Help:    "Keys per loader batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 500},
		}, []string{"loader"}),
		batchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lazygraph_loader_batch_errors_total",
			Help: "Failed loader batches",
		}, []string{"loader"}),
		subscriptionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lazygraph_subscription_updates_total",
			Help: "Subscription re-executions, by topic",
		}, []string{"topic"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lazygraph_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Register feeds m from the global bus.
func (m *Metrics) Register() (unsubscribe func()) {
	unsubscribers := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.MultiplexFinish) {
			result := "ok"
			if e.Err != nil {
				result = "aborted"
			}
			m.multiplexTotal.WithLabelValues(result).Inc()
			m.multiplexDuration.Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.QueryFinish) {
			result := "ok"
			switch {
			case e.Skipped:
				result = "skipped"
			case len(e.Errors) > 0:
				result = "error"
			}
			m.queryTotal.WithLabelValues(e.OperationType, result).Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.DepthResolved) {
			m.depthLazies.Observe(float64(e.Lazies))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.LoaderBatch) {
			m.batchKeys.WithLabelValues(e.Loader).Observe(float64(e.Keys))
			if e.Err != nil {
				m.batchErrors.WithLabelValues(e.Loader).Inc()
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionUpdate) {
			m.subscriptionTotal.WithLabelValues(e.Topic).Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			m.httpDuration.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Observe(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, u := range unsubscribers {
			u()
		}
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
