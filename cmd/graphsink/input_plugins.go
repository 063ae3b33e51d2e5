package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tinytelemetry/graphsink/internal/httpserver"
	"github.com/tinytelemetry/graphsink/internal/logsource"
	"github.com/tinytelemetry/graphsink/internal/otlpserver"
	"github.com/tinytelemetry/graphsink/internal/tcpserver"
)

// NamedLogSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedLogSource = logsource.LogSource

// InputSourcePlugin is a small plugin primitive for wiring message inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLogSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	Logger *slog.Logger

	TCPEnabled bool
	TCPAddr    string

	APIEnabled bool
	APIAddr    string
	APIStatus  func() map[string]any

	OTLPEnabled bool
	OTLPAddr    string

	KafkaEnabled bool
	Kafka        logsource.KafkaConfig

	NATSEnabled bool
	NATS        logsource.NATSConfig

	AMQPEnabled bool
	AMQP        logsource.AMQPConfig
}

func inputPluginConfig(cfg appConfig, logger *slog.Logger, status func() map[string]any) InputPluginConfig {
	return InputPluginConfig{
		Logger:      logger,
		TCPEnabled:  cfg.TCPEnabled,
		TCPAddr:     cfg.TCPAddr,
		APIEnabled:  cfg.APIEnabled,
		APIAddr:     cfg.APIAddr,
		APIStatus:   status,
		OTLPEnabled: cfg.OTLPEnabled,
		OTLPAddr:    cfg.OTLPAddr,

		KafkaEnabled: cfg.KafkaEnabled,
		Kafka: logsource.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		},
		NATSEnabled: cfg.NATSEnabled,
		NATS: logsource.NATSConfig{
			URL:         cfg.NATSURL,
			Subject:     cfg.NATSSubject,
			Queue:       cfg.NATSQueue,
			Name:        defaultNATSName,
			ConnTimeout: cfg.ConnTimeout,
		},
		AMQPEnabled: cfg.AMQPEnabled,
		AMQP: logsource.AMQPConfig{
			URL:         cfg.AMQPURL,
			Queue:       cfg.AMQPQueue,
			ConsumerTag: "graphsink",
			Declare:     cfg.AMQPDeclare,
			ConnTimeout: cfg.ConnTimeout,
		},
	}
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return []InputSourcePlugin{
		tcpInputPlugin{addr: cfg.TCPAddr, enabled: cfg.TCPEnabled, logger: logger},
		apiInputPlugin{addr: cfg.APIAddr, enabled: cfg.APIEnabled, status: cfg.APIStatus, logger: logger},
		otlpInputPlugin{addr: cfg.OTLPAddr, enabled: cfg.OTLPEnabled, logger: logger},
		kafkaInputPlugin{conf: cfg.Kafka, enabled: cfg.KafkaEnabled, logger: logger},
		natsInputPlugin{conf: cfg.NATS, enabled: cfg.NATSEnabled, logger: logger},
		amqpInputPlugin{conf: cfg.AMQP, enabled: cfg.AMQPEnabled, logger: logger},
		stdinInputPlugin{logger: logger},
	}
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
	logger  *slog.Logger
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedLogSource, error) {
	server := tcpserver.NewServer(p.addr, p.logger)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return logsource.NewTCPSource(server), nil
}

type apiInputPlugin struct {
	addr    string
	enabled bool
	status  func() map[string]any
	logger  *slog.Logger
}

func (p apiInputPlugin) Name() string { return "http" }

func (p apiInputPlugin) Enabled() bool { return p.enabled }

func (p apiInputPlugin) Build(_ context.Context) (NamedLogSource, error) {
	server := httpserver.NewServer(p.addr, p.logger, httpserver.Config{Status: p.status})
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start API server: %w", err)
	}
	return server, nil
}

type otlpInputPlugin struct {
	addr    string
	enabled bool
	logger  *slog.Logger
}

func (p otlpInputPlugin) Name() string { return "otlp" }

func (p otlpInputPlugin) Enabled() bool { return p.enabled }

func (p otlpInputPlugin) Build(_ context.Context) (NamedLogSource, error) {
	server := otlpserver.NewServer(p.addr, p.logger, 0)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start OTLP receiver: %w", err)
	}
	return server, nil
}

type kafkaInputPlugin struct {
	conf    logsource.KafkaConfig
	enabled bool
	logger  *slog.Logger
}

func (p kafkaInputPlugin) Name() string { return "kafka" }

func (p kafkaInputPlugin) Enabled() bool { return p.enabled }

func (p kafkaInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	src, err := logsource.NewKafkaSource(ctx, p.conf, p.logger)
	if err != nil {
		return nil, err
	}
	return src, nil
}

type natsInputPlugin struct {
	conf    logsource.NATSConfig
	enabled bool
	logger  *slog.Logger
}

func (p natsInputPlugin) Name() string { return "nats" }

func (p natsInputPlugin) Enabled() bool { return p.enabled }

func (p natsInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	src, err := logsource.NewNATSSource(ctx, p.conf, p.logger)
	if err != nil {
		return nil, err
	}
	return src, nil
}

type amqpInputPlugin struct {
	conf    logsource.AMQPConfig
	enabled bool
	logger  *slog.Logger
}

func (p amqpInputPlugin) Name() string { return "amqp" }

func (p amqpInputPlugin) Enabled() bool { return p.enabled }

func (p amqpInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	src, err := logsource.NewAMQPSource(ctx, p.conf, p.logger)
	if err != nil {
		return nil, err
	}
	return src, nil
}

type stdinInputPlugin struct {
	logger *slog.Logger
}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	return logsource.NewStdinSource(ctx, p.logger), nil
}

// buildSources starts every enabled plugin. A plugin that fails to start is
// logged and skipped so the remaining inputs keep working.
func buildSources(ctx context.Context, plugins []InputSourcePlugin, logger *slog.Logger) []NamedLogSource {
	sources := make([]NamedLogSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		start := time.Now()
		src, err := plugin.Build(ctx)
		if err != nil {
			logger.Error("input plugin failed to start", "plugin", plugin.Name(), "error", err)
			continue
		}
		logger.Debug("input plugin started", "plugin", plugin.Name(), "duration", time.Since(start))
		sources = append(sources, src)
	}
	return sources
}
