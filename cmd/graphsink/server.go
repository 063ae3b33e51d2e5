package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/graphsink/internal/ingest"
	"github.com/tinytelemetry/graphsink/internal/model"
	"github.com/tinytelemetry/graphsink/internal/neo4j"
	"github.com/tinytelemetry/graphsink/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// runServer starts headless ingestion and forwards every message to Neo4j.
func runServer(cfg appConfig) error {
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(shutdownTimeout)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nForce shutdown.")
		case <-deadline.C:
			fmt.Fprintln(os.Stderr, "Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	transport, err := neo4j.New(ctx, neo4j.Config{
		URL:          cfg.Neo4jURL,
		User:         cfg.Neo4jUser,
		Password:     cfg.Neo4jPassword,
		Protocol:     cfg.Neo4jProtocol,
		Database:     cfg.Neo4jDatabase,
		StartupQuery: cfg.Neo4jStartupQuery,
		Query:        cfg.Neo4jQuery,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize neo4j output: %w", err)
	}
	defer transport.Stop()

	status := func() map[string]any {
		return map[string]any{"transport": transport.Name(), "version": version}
	}

	// Build input plugins and source multiplexer
	plugins := buildInputPlugins(inputPluginConfig(cfg, logger, status))
	sources := buildSources(ctx, plugins, logger)

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()
	defer mux.Stop()

	processor := ingest.NewProcessor(transport, logger, metrics)

	printStartupBanner(cfg, mux.SourceNames(), transport.Name())
	if !mux.HasSources() {
		return fmt.Errorf("no input sources started")
	}
	logger.Info("graphsink started", "version", version, "inputs", mux.SourceNames(), "transport", transport.Name())

	// In-flight statements finish even after shutdown begins.
	dispatchCtx := context.WithoutCancel(ctx)

	g, gctx := errgroup.WithContext(ctx)

	// Dispatch loop. Messages are sent one at a time, in arrival order.
	g.Go(func() error {
		defer cancel()
		dispatch(dispatchCtx, mux.Lines(), processor)
		return nil
	})

	// Wait for context cancellation (from signal handler or closed inputs).
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
	}

	logger.Info("graphsink stopped")
	return nil
}

// dispatch drains lines into the processor until the channel closes.
func dispatch(ctx context.Context, lines <-chan model.IngestEnvelope, processor *ingest.Processor) int {
	count := 0
	for env := range lines {
		if processor.ProcessEnvelope(ctx, env) != nil {
			count++
		}
	}
	return count
}

func printStartupBanner(cfg appConfig, inputs []string, transportName string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	started := make(map[string]bool, len(inputs))
	for _, name := range inputs {
		started[name] = true
	}

	input := func(name, label, detail string) string {
		if started[name] {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(detail))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	logo := cyan.Bold(true).Render(`
    ╔═╗╦═╗╔═╗╔═╗╦ ╦╔═╗╦╔╗╔╦╔═
    ║ ╦╠╦╝╠═╣╠═╝╠═╣╚═╗║║║║╠╩╗
    ╚═╝╩╚═╩ ╩╩  ╩ ╩╚═╝╩╝╚╝╩ ╩`)

	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{
		"",
		logo,
		"    " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Inputs"),
		"",
		input("http", "HTTP API", cfg.APIAddr),
		input("tcp", "TCP Ingest", cfg.TCPAddr),
		input("otlp", "OTLP gRPC", cfg.OTLPAddr),
		input("kafka", "Kafka", cfg.KafkaTopic),
		input("nats", "NATS", cfg.NATSSubject),
		input("amqp", "AMQP", cfg.AMQPQueue),
		input("stdin", "Stdin", "piped"),
		"",
		bold.Render("    Output"),
		"",
		fmt.Sprintf("    %s  %-14s %s", check, "Neo4j", cyan.Render(cfg.Neo4jURL)),
		fmt.Sprintf("    %s  %-14s %s", check, "Transport", dim.Render(transportName)),
		"",
		bold.Render("    Config"),
		"",
	}
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)

	fmt.Fprintln(os.Stderr, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
