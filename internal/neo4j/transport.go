package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinytelemetry/graphsink/internal/model"
	"github.com/tinytelemetry/graphsink/internal/observability"
)

// Supported protocols.
const (
	ProtocolHTTP = "http"
	ProtocolBolt = "bolt"
)

// Config holds the connection and query settings of a transport.
type Config struct {
	URL          string
	User         string
	Password     string
	Protocol     string
	Database     string // bolt only; empty uses the server default
	StartupQuery string
	Query        string
}

// Transport forwards messages to Neo4j. Delivery is best-effort: failures are
// logged by the transport and never reported to the caller.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *model.Message)
	TrySend(msg *model.Message) bool
	Stop()
}

// New builds the transport selected by cfg.Protocol (http when empty).
func New(ctx context.Context, cfg Config, logger *slog.Logger, metrics *observability.Metrics) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Protocol)) {
	case "", ProtocolHTTP:
		return NewHTTPTransport(ctx, cfg, logger, metrics)
	case ProtocolBolt:
		return NewBoltTransport(ctx, cfg, logger, metrics)
	default:
		return nil, fmt.Errorf("%w: unknown protocol %q", ErrConfiguration, cfg.Protocol)
	}
}
