package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tinytelemetry/graphsink/internal/model"
	"github.com/tinytelemetry/graphsink/internal/observability"
)

// BoltTransport runs the same rendered statement over the Bolt protocol using
// the official driver. Each Send uses a short-lived write session.
type BoltTransport struct {
	driver   neo4jdriver.DriverWithContext
	database string
	query    *QueryTemplate

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBoltTransport creates the driver and runs the startup query, if any.
// Connectivity is not verified; a failing startup query is only logged.
func NewBoltTransport(ctx context.Context, cfg Config, logger *slog.Logger, metrics *observability.Metrics) (*BoltTransport, error) {
	query, err := ParseTemplate(cfg.Query)
	if err != nil {
		return nil, err
	}

	driver, err := neo4jdriver.NewDriverWithContext(cfg.URL, neo4jdriver.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: neo4j bolt driver: %w", ErrConfiguration, err)
	}

	t := &BoltTransport{
		driver:   driver,
		database: cfg.Database,
		query:    query,
		logger:   logger.With("transport", ProtocolBolt),
		metrics:  metrics,
	}

	if cfg.StartupQuery != "" {
		if err := t.run(ctx, Sanitize(cfg.StartupQuery), map[string]any{}); err != nil {
			t.logger.Warn("startup query not delivered", "error", fmt.Errorf("%w: %w", ErrStartupQuery, err))
		}
	}

	return t, nil
}

func (t *BoltTransport) Name() string { return ProtocolBolt }

// Send renders the message query and runs it with the message fields as
// parameters. Failures are logged and swallowed.
func (t *BoltTransport) Send(ctx context.Context, msg *model.Message) {
	statement, err := t.query.Render(msg)
	if err != nil {
		t.metrics.RenderErrors.Inc()
		t.logger.Warn("message query not rendered", "error", err)
		return
	}

	if err := t.run(ctx, statement, msg.Fields()); err != nil {
		t.logger.Info("message not delivered", "statement", statement, "error", err)
	}
}

// TrySend never delivers; non-blocking submission is not supported.
func (t *BoltTransport) TrySend(_ *model.Message) bool {
	return false
}

// Stop closes the driver and its connection pool.
func (t *BoltTransport) Stop() {
	if err := t.driver.Close(context.Background()); err != nil {
		t.logger.Warn("closing neo4j driver", "error", err)
	}
}

func (t *BoltTransport) run(ctx context.Context, statement string, params map[string]any) error {
	session := t.driver.NewSession(ctx, neo4jdriver.SessionConfig{
		AccessMode:   neo4jdriver.AccessModeWrite,
		DatabaseName: t.database,
	})
	defer session.Close(ctx)

	start := time.Now()
	defer func() {
		t.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	result, err := session.Run(ctx, statement, params)
	if err != nil {
		t.metrics.StatementsSent.WithLabelValues(ProtocolBolt, observability.OutcomeError).Inc()
		return fmt.Errorf("%w: run: %w", ErrTransport, err)
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		t.metrics.StatementsSent.WithLabelValues(ProtocolBolt, observability.OutcomeRejected).Inc()
		return fmt.Errorf("%w: consume: %w", ErrTransport, err)
	}

	t.metrics.StatementsSent.WithLabelValues(ProtocolBolt, observability.OutcomeSuccess).Inc()
	counters := summary.Counters()
	t.logger.Debug("neo4j statement executed",
		"statement", statement,
		"nodes_created", counters.NodesCreated(),
		"relationships_created", counters.RelationshipsCreated(),
		"properties_set", counters.PropertiesSet(),
	)
	return nil
}
