// Package logging writes engine events as structured log records.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	events "github.com/hanpama/lazygraph/internal/events"
	reqid "github.com/hanpama/lazygraph/internal/reqid"
)

// New returns a logger writing to out at level ("debug", "info", ...) in
// format "json" or "text".
func New(out io.Writer, level, format string) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(out)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// Register subscribes logger to the global bus.
func Register(logger log.FieldLogger) (unsubscribe func()) {
	with := func(ctx context.Context) log.FieldLogger {
		l := logger
		if rid, ok := reqid.FromContext(ctx); ok {
			l = l.WithField("request_id", rid)
		}
		if id, ok := events.MultiplexIDFrom(ctx); ok {
			l = l.WithField("multiplex", id)
		}
		return l
	}

	unsubscribers := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			with(ctx).WithFields(log.Fields{
				"method":   e.Request.Method,
				"path":     e.Request.URL.Path,
				"status":   e.Status,
				"duration": e.Duration,
			}).Info("http request")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.MultiplexFinish) {
			l := with(ctx).WithFields(log.Fields{
				"queries":  e.Queries,
				"errors":   e.Errors,
				"phase":    e.Phase,
				"duration": e.Duration,
			})
			if e.Err != nil {
				l.WithError(e.Err).Error("multiplex aborted")
				return
			}
			l.Info("multiplex finished")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.QueryFinish) {
			l := with(ctx).WithFields(log.Fields{
				"index":     e.Index,
				"operation": e.OperationName,
				"type":      e.OperationType,
				"errors":    len(e.Errors),
			})
			if e.Skipped {
				l.Debug("query not executed")
				return
			}
			l.Debug("query finished")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.LoaderBatch) {
			l := with(ctx).WithFields(log.Fields{
				"loader":   e.Loader,
				"keys":     e.Keys,
				"duration": e.Duration,
			})
			if e.Err != nil {
				l.WithError(e.Err).Warn("batch failed")
				return
			}
			l.Debug("batch loaded")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionUpdate) {
			with(ctx).WithFields(log.Fields{
				"subscription": e.ID,
				"topic":        e.Topic,
				"errors":       e.Errors,
			}).Debug("subscription updated")
		}),
	}
	return func() {
		for _, u := range unsubscribers {
			u()
		}
	}
}
