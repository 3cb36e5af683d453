package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	analysis "github.com/hanpama/lazygraph/internal/analysis"
	config "github.com/hanpama/lazygraph/internal/config"
	demo "github.com/hanpama/lazygraph/internal/demo"
	eventbus "github.com/hanpama/lazygraph/internal/eventbus"
	executor "github.com/hanpama/lazygraph/internal/executor"
	logging "github.com/hanpama/lazygraph/internal/logging"
	metrics "github.com/hanpama/lazygraph/internal/metrics"
	otel "github.com/hanpama/lazygraph/internal/otel"
	server "github.com/hanpama/lazygraph/internal/server"
	subscriptions "github.com/hanpama/lazygraph/internal/subscriptions"
)

const rootUsage = `lazygraph: GraphQL multiplex executor over an in-memory library

USAGE:
  lazygraph <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL endpoint
  run              Execute query files as one multiplex and print the results
  help             Show help for any command
`

const commonFlags = `  -config <file>                       YAML config file; flags override it
  -execution.concurrency N             Deferred values forced at once (default: 4)
  -execution.max-depth N               Reject queries nested deeper, 0 disables
  -execution.max-complexity N          Reject queries costing more, 0 disables
  -execution.multiplex-complexity N    Bound the summed cost of a batch, 0 disables
  -log.level <level>                   debug, info, warn or error (default: info)
  -log.format <format>                 text or json (default: text)
  -otel.endpoint <addr>                OTLP collector endpoint
  -otel.service <name>                 OpenTelemetry service name (default: lazygraph)
`

const serveUsage = `serve FLAGS:
  -server.addr <addr>                  HTTP listen address (default: :8080)
  -server.pretty                       Pretty-print JSON responses
  -server.timeout <duration>           Per-request timeout, e.g. 10s (default: 10s)
  -server.graphiql <bool>              Serve GraphiQL to browsers (default: true)
  -server.metadata-header <name>       Forward HTTP header to resolvers. Repeatable
  -server.max-batch N                  Max queries in one batch request (default: 32)
  -metrics.enabled <bool>              Expose Prometheus metrics (default: true)
  -metrics.path <path>                 Metrics path (default: /metrics)
` + commonFlags

const runUsage = `run [flags] <query file>...
  Each file holds one query document. All files run as one multiplex.
  -server.pretty                       Pretty-print the JSON results
` + commonFlags

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("lazygraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "run":
		return cmdRun(cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "run":
		fmt.Fprint(stdout, runUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// setup installs a fresh event bus with the logging subscriber and starts
// tracing. The returned function undoes both.
func setup(cfg config.Config, logOut io.Writer) (*log.Logger, func(), error) {
	logger, err := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	eventbus.Use(eventbus.New())
	unsubscribe := logging.Register(logger)

	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		unsubscribe()
		return nil, nil, fmt.Errorf("otel setup: %w", err)
	}
	return logger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.WithError(err).Warn("otel shutdown")
		}
		unsubscribe()
	}, nil
}

// newExecutor builds the demo executor with the configured analyzers.
func newExecutor(cfg config.Config, lib *demo.Library, reg *subscriptions.Registry, deliver func(subscriptions.Update)) (*executor.Executor, error) {
	return demo.NewExecutor(lib, reg, deliver,
		executor.WithConcurrency(cfg.Execution.Concurrency),
		executor.WithAnalyzers(
			analysis.MaxDepth{Limit: cfg.Execution.MaxDepth},
			analysis.MaxComplexity{Limit: cfg.Execution.MaxComplexity},
			analysis.MultiplexComplexity{Limit: cfg.Execution.MultiplexComplexity},
		),
	)
}

func cmdServe(args []string, stderr io.Writer) error {
	cfg, _, err := config.Parse("serve", args)
	if err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	logger, teardown, err := setup(cfg, stderr)
	if err != nil {
		return err
	}
	defer teardown()

	reg := subscriptions.NewRegistry()
	exec, err := newExecutor(cfg, demo.NewLibrary(), reg, func(u subscriptions.Update) {
		data, _ := json.Marshal(u.Result)
		logger.WithField("subscription", u.ID).Infof("subscription update %s", data)
	})
	if err != nil {
		return fmt.Errorf("build executor: %w", err)
	}

	sopts := []server.Option{
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithMaxBatch(cfg.Server.MaxBatch),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if cfg.Server.Timeout > 0 {
		sopts = append(sopts, server.WithTimeout(cfg.Server.Timeout))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", server.New(exec, sopts...))
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		defer metrics.New(promReg).Register()()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(promReg))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", cfg.Server.Addr).Info("GraphQL server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cmdRun(args []string, stdout, stderr io.Writer) error {
	cfg, files, err := config.Parse("run", args)
	if err != nil {
		fmt.Fprint(stderr, runUsage)
		return err
	}
	if len(files) == 0 {
		fmt.Fprint(stderr, runUsage)
		return fmt.Errorf("no query files given")
	}
	_, teardown, err := setup(cfg, stderr)
	if err != nil {
		return err
	}
	defer teardown()

	reqs := make([]executor.QueryRequest, len(files))
	for i, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read query: %w", err)
		}
		reqs[i] = executor.QueryRequest{Query: string(src)}
	}

	exec, err := newExecutor(cfg, demo.NewLibrary(), nil, nil)
	if err != nil {
		return fmt.Errorf("build executor: %w", err)
	}
	results, err := exec.RunAll(context.Background(), reqs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if cfg.Server.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(results)
}
