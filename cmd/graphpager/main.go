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
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hanpama/graphpager/internal/config"
	"github.com/hanpama/graphpager/internal/eventbus"
	"github.com/hanpama/graphpager/internal/logging"
	"github.com/hanpama/graphpager/internal/metrics"
	"github.com/hanpama/graphpager/internal/otel"
	"github.com/hanpama/graphpager/internal/pager"
	"github.com/hanpama/graphpager/internal/query"
	"github.com/hanpama/graphpager/internal/transport"
	"github.com/hanpama/graphpager/internal/treefile"
)

const rootUsage = `graphpager — paginated GraphQL fetcher

USAGE:
  graphpager <command> [flags]

COMMANDS:
  render           Print the query text a tree file compiles to
  fetch            Run a tree file against an endpoint, following every page
  help             Show help for any command
`

const renderUsage = `render FLAGS:
  -tree <file>             Tree file to compile (required)
  -check                   Parse the rendered text and fail on syntax errors
`

const fetchUsage = `fetch FLAGS:
  -tree <file>                 Tree file to run (required)
  -config <file>               YAML configuration file
  -endpoint <url>              GraphQL endpoint
  -token <token>               Bearer token (default: $GRAPHPAGER_TOKEN)
  -header <Name: value>        Extra request header. Repeatable
  -out <file>                  Write nodes as JSON lines to file (default: stdout)
  -concurrency N               Queries in flight per wave (default: 4)
  -max-retries N               Retries for network errors, 429 and 5xx (default: 3)
  -timeout <duration>          Per-attempt timeout, e.g. 30s (default: 30s)
  -rate-floor N                Stop once the remaining budget drops below N
  -log.level <level>           trace|debug|info|warn|error|disabled (default: info)
  -log.pretty                  Human readable logs on stderr
  -otel.endpoint <addr>        OTLP collector endpoint
  -otel.service <name>         OpenTelemetry service name (default: graphpager)
  -metrics.addr <addr>         Serve Prometheus metrics at <addr>/metrics
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("graphpager", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "render":
		return cmdRender(cmdArgs, stdout)
	case "fetch":
		return cmdFetch(cmdArgs, stdout)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "render":
		fmt.Fprint(stdout, renderUsage)
	case "fetch":
		fmt.Fprint(stdout, fetchUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdRender(args []string, stdout io.Writer) error {
	treePath := ""
	check := false
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&treePath, "tree", treePath, "Tree file to compile")
	fs.BoolVar(&check, "check", check, "Parse the rendered text")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, renderUsage)
		return err
	}
	if treePath == "" {
		fmt.Fprint(os.Stderr, renderUsage)
		return fmt.Errorf("-tree is required")
	}

	tree, err := treefile.Load(treePath)
	if err != nil {
		return err
	}
	queries, err := tree.Build(nil)
	if err != nil {
		return err
	}
	for _, q := range queries {
		if check {
			if _, err := q.Document(); err != nil {
				return fmt.Errorf("query %q does not parse: %w", q.Name(), err)
			}
		}
		fmt.Fprintln(stdout, q.QueryText())
	}
	return nil
}

func cmdFetch(args []string, stdout io.Writer) error {
	treePath := ""
	configPath := ""
	outFile := ""
	var headers stringListFlag
	// flag defaults only show in usage; values are taken from the config
	// unless the flag was given explicitly
	d := config.Default()
	var (
		endpoint    string
		token       string
		concurrency = d.Concurrency
		maxRetries  = d.MaxRetries
		timeout     = d.Timeout
		rateFloor   = d.RateFloor
		logLevel    = d.Log.Level
		logPretty   bool
		otelEndp    string
		otelService = d.Otel.Service
		metricsAddr string
	)

	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&treePath, "tree", treePath, "Tree file to run")
	fs.StringVar(&configPath, "config", configPath, "YAML configuration file")
	fs.StringVar(&outFile, "out", outFile, "Write nodes to file")
	fs.StringVar(&endpoint, "endpoint", endpoint, "GraphQL endpoint")
	fs.StringVar(&token, "token", token, "Bearer token")
	fs.Var(&headers, "header", "Extra request header")
	fs.IntVar(&concurrency, "concurrency", concurrency, "Queries in flight per wave")
	fs.IntVar(&maxRetries, "max-retries", maxRetries, "Retries for transient failures")
	fs.DurationVar(&timeout, "timeout", timeout, "Per-attempt timeout")
	fs.IntVar(&rateFloor, "rate-floor", rateFloor, "Minimum remaining budget")
	fs.StringVar(&logLevel, "log.level", logLevel, "Log level")
	fs.BoolVar(&logPretty, "log.pretty", logPretty, "Human readable logs")
	fs.StringVar(&otelEndp, "otel.endpoint", otelEndp, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	fs.StringVar(&metricsAddr, "metrics.addr", metricsAddr, "Prometheus listen address")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, fetchUsage)
		return err
	}
	if treePath == "" {
		fmt.Fprint(os.Stderr, fetchUsage)
		return fmt.Errorf("-tree is required")
	}

	// validation waits until flags are applied
	cfg, err := config.Load(configPath)
	if err != nil && !errors.Is(err, config.ErrInvalid) {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Endpoint = endpoint
		case "token":
			cfg.Token = token
		case "concurrency":
			cfg.Concurrency = concurrency
		case "max-retries":
			cfg.MaxRetries = maxRetries
		case "timeout":
			cfg.Timeout = timeout
		case "rate-floor":
			cfg.RateFloor = rateFloor
		case "log.level":
			cfg.Log.Level = logLevel
		case "log.pretty":
			cfg.Log.Pretty = logPretty
		case "otel.endpoint":
			cfg.Otel.Endpoint = otelEndp
		case "otel.service":
			cfg.Otel.Service = otelService
		case "metrics.addr":
			cfg.Metrics.Addr = metricsAddr
		}
	})
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid header %q", h)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		cfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("no endpoint: pass -endpoint or set it in the config file")
	}

	logging.SetGlobalLogger(logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logging.Logger.WithContext(ctx)

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		defer metrics.New(reg).Subscribe()()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		logging.Info().Str("addr", cfg.Metrics.Addr).Msg("serving metrics")
	}

	out := stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	tree, err := treefile.Load(treePath)
	if err != nil {
		return err
	}
	queries, err := tree.Build(nil)
	if err != nil {
		return err
	}

	trOpts := []transport.Option{
		transport.WithBearerToken(cfg.Token),
		transport.WithMaxRetries(cfg.MaxRetries),
		transport.WithTimeout(cfg.Timeout),
	}
	for name, value := range cfg.Headers {
		trOpts = append(trOpts, transport.WithHeader(name, value))
	}
	client := transport.New(cfg.Endpoint, trOpts...)

	runner := pager.New(client,
		pager.WithConcurrency(cfg.Concurrency),
		pager.WithRateFloor(cfg.RateFloor),
		pager.WithHandler(nodeWriter(out)),
	)
	stats, err := runner.Run(ctx, queries...)
	if err != nil {
		return err
	}
	logging.Info().
		Str("run", stats.RunID).
		Int("queries", stats.Queries).
		Int("nodes", stats.Nodes).
		Dur("took", stats.Duration).
		Msg("fetch complete")
	return nil
}

type nodeLine struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Parent       string         `json:"parent,omitempty"`
	Relationship string         `json:"relationship,omitempty"`
	Payload      map[string]any `json:"payload"`
}

// nodeWriter prints one JSON object per node. It runs on the runner's serial
// worker, so writes never interleave.
func nodeWriter(w io.Writer) query.PerNodeFunc {
	enc := json.NewEncoder(w)
	return func(_ context.Context, out query.Output) error {
		if out.Kind != query.OutputNode {
			return nil
		}
		line := nodeLine{
			ID:           out.Node.ID,
			Type:         out.Node.Type,
			Relationship: out.Node.Relationship,
			Payload:      out.Node.Payload,
		}
		if out.Node.Parent != nil {
			line.Parent = out.Node.Parent.ID
		}
		return enc.Encode(line)
	}
}
