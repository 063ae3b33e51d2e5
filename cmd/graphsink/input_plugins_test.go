package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildInputPlugins_RegistersPrimitives(t *testing.T) {
	t.Parallel()

	plugins := buildInputPlugins(InputPluginConfig{
		Logger:     discardLogger(),
		TCPEnabled: true,
		TCPAddr:    "127.0.0.1:4000",
		APIEnabled: true,
		APIAddr:    "127.0.0.1:3000",
	})

	want := []string{"tcp", "http", "otlp", "kafka", "nats", "amqp", "stdin"}
	if len(plugins) != len(want) {
		t.Fatalf("expected %d plugins, got %d", len(want), len(plugins))
	}
	for i, name := range want {
		if plugins[i].Name() != name {
			t.Fatalf("plugins[%d] name = %q, want %q", i, plugins[i].Name(), name)
		}
	}
	if !plugins[0].Enabled() || !plugins[1].Enabled() {
		t.Fatal("expected tcp and http plugins to be enabled")
	}
	for _, p := range plugins[2:6] {
		if p.Enabled() {
			t.Fatalf("plugin %q should be disabled by default", p.Name())
		}
	}
}

func TestBuildInputPlugins_TCPDisabled(t *testing.T) {
	t.Parallel()

	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: false,
		TCPAddr:    "127.0.0.1:4000",
	})

	if plugins[0].Enabled() {
		t.Fatal("expected tcp plugin to be disabled when TCPEnabled=false")
	}
}

type stubPlugin struct {
	name    string
	enabled bool
	err     error
	src     NamedLogSource
}

func (p stubPlugin) Name() string  { return p.name }
func (p stubPlugin) Enabled() bool { return p.enabled }
func (p stubPlugin) Build(context.Context) (NamedLogSource, error) {
	return p.src, p.err
}

func TestBuildSources_SkipsDisabledAndFailing(t *testing.T) {
	t.Parallel()

	ok := newFakeSource("ok", 1)
	sources := buildSources(context.Background(), []InputSourcePlugin{
		stubPlugin{name: "off", enabled: false, src: newFakeSource("off", 1)},
		stubPlugin{name: "broken", enabled: true, err: errors.New("dial failed")},
		stubPlugin{name: "ok", enabled: true, src: ok},
	}, discardLogger())

	if len(sources) != 1 || sources[0].Name() != "ok" {
		t.Fatalf("sources = %v, want only ok", sources)
	}
}

func TestTCPInputPlugin_StartsServer(t *testing.T) {
	t.Parallel()

	p := tcpInputPlugin{addr: "127.0.0.1:0", enabled: true, logger: discardLogger()}
	src, err := p.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer src.Stop()
	if src.Name() != "tcp" {
		t.Fatalf("Name() = %q, want tcp", src.Name())
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetGraphsinkEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, "log-level: debug"))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Neo4jURL != defaultNeo4jURL {
		t.Fatalf("Neo4jURL = %q, want %q", cfg.Neo4jURL, defaultNeo4jURL)
	}
	if cfg.Neo4jProtocol != "http" {
		t.Fatalf("Neo4jProtocol = %q, want http", cfg.Neo4jProtocol)
	}
	if cfg.Neo4jQuery != defaultNeo4jQuery {
		t.Fatalf("Neo4jQuery = %q", cfg.Neo4jQuery)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ConfigPath == "" {
		t.Fatal("ConfigPath should record the file that was read")
	}
}

func TestLoadConfig_AddressResolution(t *testing.T) {
	resetGraphsinkEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		wantHost     string
		wantTCPAddr  string
		wantAPIAddr  string
		wantOTLPAddr string
	}{
		{
			name: "defaults to localhost host",
			configYAML: `
tcp-port: 4100
api-port: 3100
`,
			wantHost:     "127.0.0.1",
			wantTCPAddr:  "127.0.0.1:4100",
			wantAPIAddr:  "127.0.0.1:3100",
			wantOTLPAddr: "127.0.0.1:4317",
		},
		{
			name: "host applies to derived addresses",
			configYAML: `
host: 0.0.0.0
tcp-port: 4200
api-port: 3200
otlp-port: 4318
`,
			wantHost:     "0.0.0.0",
			wantTCPAddr:  "0.0.0.0:4200",
			wantAPIAddr:  "0.0.0.0:3200",
			wantOTLPAddr: "0.0.0.0:4318",
		},
		{
			name: "explicit addresses override host and ports",
			configYAML: `
host: 0.0.0.0
tcp-addr: 10.0.0.5:9999
api-addr: 10.0.0.5:8888
otlp-addr: 10.0.0.5:7777
`,
			wantHost:     "0.0.0.0",
			wantTCPAddr:  "10.0.0.5:9999",
			wantAPIAddr:  "10.0.0.5:8888",
			wantOTLPAddr: "10.0.0.5:7777",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML))
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if cfg.Host != tt.wantHost {
				t.Fatalf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.TCPAddr != tt.wantTCPAddr {
				t.Fatalf("TCPAddr = %q, want %q", cfg.TCPAddr, tt.wantTCPAddr)
			}
			if cfg.APIAddr != tt.wantAPIAddr {
				t.Fatalf("APIAddr = %q, want %q", cfg.APIAddr, tt.wantAPIAddr)
			}
			if cfg.OTLPAddr != tt.wantOTLPAddr {
				t.Fatalf("OTLPAddr = %q, want %q", cfg.OTLPAddr, tt.wantOTLPAddr)
			}
		})
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	resetGraphsinkEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		errSubstring string
	}{
		{"invalid tcp port", "tcp-port: 70000", "invalid tcp-port"},
		{"invalid api port", "api-port: -1", "invalid api-port"},
		{"empty query", `neo4j-query: ""`, "neo4j-query is required"},
		{"kafka without topic", "kafka-enabled: true", "kafka-topic"},
		{"nats without subject", "nats-enabled: true", "nats-subject"},
		{"amqp without queue", "amqp-enabled: true", "amqp-queue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeTempConfig(t, tt.configYAML))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errSubstring) {
				t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	resetGraphsinkEnv(t)
	t.Setenv("GRAPHSINK_NEO4J_URL", "https://graph.example.com:7473/")
	t.Setenv("GRAPHSINK_NEO4J_PROTOCOL", "bolt")
	t.Setenv("GRAPHSINK_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := loadConfig(writeTempConfig(t, "neo4j-url: http://ignored:7474"))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Neo4jURL != "https://graph.example.com:7473/" {
		t.Fatalf("Neo4jURL = %q, want env value", cfg.Neo4jURL)
	}
	if cfg.Neo4jProtocol != "bolt" {
		t.Fatalf("Neo4jProtocol = %q, want bolt", cfg.Neo4jProtocol)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	resetGraphsinkEnv(t)

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.ConfigPath != "" {
		t.Fatalf("ConfigPath = %q, want empty for a missing file", cfg.ConfigPath)
	}
	if cfg.TCPAddr != "127.0.0.1:4000" {
		t.Fatalf("TCPAddr = %q", cfg.TCPAddr)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetGraphsinkEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	existed := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "GRAPHSINK_") {
			continue
		}
		original[key] = value
		existed[key] = true
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key := range existed {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("cleanup unset %s: %v", key, err)
			}
		}
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
