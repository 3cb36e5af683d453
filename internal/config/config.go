// Package config loads lazygraph settings from an optional YAML file and
// command line flags. Flags override the file, the file overrides defaults.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Execution Execution `yaml:"execution"`
	Otel      Otel      `yaml:"otel"`
	Log       Log       `yaml:"log"`
	Metrics   Metrics   `yaml:"metrics"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	Pretty          bool          `yaml:"pretty"`
	Timeout         time.Duration `yaml:"timeout"`
	GraphiQL        bool          `yaml:"graphiql"`
	MetadataHeaders []string      `yaml:"metadata_headers"`
	MaxBatch        int           `yaml:"max_batch"`
}

type Execution struct {
	// Concurrency bounds how many deferred values are forced at once.
	Concurrency         int `yaml:"concurrency"`
	MaxDepth            int `yaml:"max_depth"`
	MaxComplexity       int `yaml:"max_complexity"`
	MultiplexComplexity int `yaml:"multiplex_complexity"`
}

type Otel struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Server: Server{
			Addr:     ":8080",
			Timeout:  10 * time.Second,
			GraphiQL: true,
			MaxBatch: 32,
		},
		Execution: Execution{Concurrency: 4},
		Otel:      Otel{Service: "lazygraph"},
		Log:       Log{Level: "info", Format: "text"},
		Metrics:   Metrics{Enabled: true, Path: "/metrics"},
	}
}

// LoadFile reads path over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.Execution.Concurrency < 1 {
		return fmt.Errorf("execution.concurrency must be at least 1, got %d", c.Execution.Concurrency)
	}
	if c.Server.MaxBatch < 1 {
		return fmt.Errorf("server.max_batch must be at least 1, got %d", c.Server.MaxBatch)
	}
	return nil
}

type stringListFlag struct{ list *[]string }

func (s stringListFlag) String() string {
	if s.list == nil {
		return ""
	}
	return fmt.Sprint(*s.list)
}

func (s stringListFlag) Set(v string) error {
	*s.list = append(*s.list, v)
	return nil
}

// Bind registers one flag per setting on fs, defaulting to cfg's values.
func Bind(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Server.Addr, "server.addr", cfg.Server.Addr, "HTTP listen address")
	fs.BoolVar(&cfg.Server.Pretty, "server.pretty", cfg.Server.Pretty, "Pretty-print JSON responses")
	fs.DurationVar(&cfg.Server.Timeout, "server.timeout", cfg.Server.Timeout, "Per-request timeout")
	fs.BoolVar(&cfg.Server.GraphiQL, "server.graphiql", cfg.Server.GraphiQL, "Serve GraphiQL on GET")
	fs.Var(stringListFlag{&cfg.Server.MetadataHeaders}, "server.metadata-header", "Forward HTTP header to resolvers as metadata")
	fs.IntVar(&cfg.Server.MaxBatch, "server.max-batch", cfg.Server.MaxBatch, "Max queries in one batch request")
	fs.IntVar(&cfg.Execution.Concurrency, "execution.concurrency", cfg.Execution.Concurrency, "Deferred values forced at once")
	fs.IntVar(&cfg.Execution.MaxDepth, "execution.max-depth", cfg.Execution.MaxDepth, "Max query depth, 0 disables")
	fs.IntVar(&cfg.Execution.MaxComplexity, "execution.max-complexity", cfg.Execution.MaxComplexity, "Max query complexity, 0 disables")
	fs.IntVar(&cfg.Execution.MultiplexComplexity, "execution.multiplex-complexity", cfg.Execution.MultiplexComplexity, "Max summed complexity of a batch, 0 disables")
	fs.StringVar(&cfg.Otel.Endpoint, "otel.endpoint", cfg.Otel.Endpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.Otel.Service, "otel.service", cfg.Otel.Service, "OpenTelemetry service name")
	fs.StringVar(&cfg.Log.Level, "log.level", cfg.Log.Level, "Log level")
	fs.StringVar(&cfg.Log.Format, "log.format", cfg.Log.Format, "Log format: text or json")
	fs.BoolVar(&cfg.Metrics.Enabled, "metrics.enabled", cfg.Metrics.Enabled, "Expose Prometheus metrics")
	fs.StringVar(&cfg.Metrics.Path, "metrics.path", cfg.Metrics.Path, "Metrics path")
}

// Parse resolves the configuration for a command: -config names an
// optional YAML file, every other flag overrides it. Positional arguments
// are returned.
func Parse(name string, args []string) (Config, []string, error) {
	// first pass only finds -config
	var path string
	probe := flag.NewFlagSet(name, flag.ContinueOnError)
	probe.SetOutput(new(bytes.Buffer))
	probe.StringVar(&path, "config", "", "")
	scratch := Default()
	Bind(probe, &scratch)
	if err := probe.Parse(args); err != nil {
		return Config{}, nil, err
	}

	cfg := Default()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return Config{}, nil, err
		}
		cfg = loaded
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.String("config", path, "YAML config file")
	Bind(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}
