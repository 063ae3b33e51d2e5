package neo4j

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tinytelemetry/graphsink/internal/model"
	"github.com/tinytelemetry/graphsink/internal/observability"
)

const commitPath = "/db/neo4j/tx/commit"

// HTTPTransport posts one single-statement transaction per message to the
// Neo4j HTTP transactional endpoint.
type HTTPTransport struct {
	baseURL  string
	endpoint string
	user     string
	password string
	query    *QueryTemplate

	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewHTTPTransport validates cfg, derives the commit endpoint and runs the
// startup query, if any. Only a bad URL or template fails construction.
func NewHTTPTransport(ctx context.Context, cfg Config, logger *slog.Logger, metrics *observability.Metrics) (*HTTPTransport, error) {
	endpoint, err := CommitEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}
	query, err := ParseTemplate(cfg.Query)
	if err != nil {
		return nil, err
	}

	t := &HTTPTransport{
		baseURL:    cfg.URL,
		endpoint:   endpoint,
		user:       cfg.User,
		password:   cfg.Password,
		query:      query,
		httpClient: &http.Client{},
		logger:     logger.With("transport", ProtocolHTTP),
		metrics:    metrics,
	}

	if cfg.StartupQuery != "" {
		payload := NewPayload(Sanitize(cfg.StartupQuery), nil)
		if err := t.post(ctx, payload); err != nil {
			t.logger.Warn("startup query not delivered", "error", fmt.Errorf("%w: %w", ErrStartupQuery, err))
		}
	}

	return t, nil
}

// CommitEndpoint appends the transactional commit path to a base URL.
func CommitEndpoint(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: malformed neo4j URL: %w", ErrConfiguration, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: neo4j URL %q must use http or https", ErrConfiguration, base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: neo4j URL %q has no host", ErrConfiguration, base)
	}

	escaped := strings.TrimSuffix(u.EscapedPath(), "/")
	u.Path = strings.TrimSuffix(u.Path, "/") + commitPath
	u.RawPath = escaped + commitPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func (t *HTTPTransport) Name() string { return ProtocolHTTP }

// Endpoint returns the commit URL requests are sent to.
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

// Send renders the message query and posts it with the message fields as
// parameters. It blocks for one round trip and never fails the caller.
func (t *HTTPTransport) Send(ctx context.Context, msg *model.Message) {
	statement, err := t.query.Render(msg)
	if err != nil {
		t.metrics.RenderErrors.Inc()
		t.logger.Warn("message query not rendered", "error", err)
		return
	}

	if err := t.post(ctx, NewPayload(statement, msg.Fields())); err != nil {
		t.logger.Warn("message not delivered", "error", err)
	}
}

// TrySend never delivers; non-blocking submission is not supported.
func (t *HTTPTransport) TrySend(_ *model.Message) bool {
	return false
}

// Stop is a no-op; the HTTP client holds no resources that need releasing.
func (t *HTTPTransport) Stop() {}

// post submits the payload and logs the exchange. A response of any status is
// not an error; only failing to complete the round trip is.
func (t *HTTPTransport) post(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		t.metrics.StatementsSent.WithLabelValues(ProtocolHTTP, observability.OutcomeError).Inc()
		return fmt.Errorf("%w: encode payload: %w", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		t.metrics.StatementsSent.WithLabelValues(ProtocolHTTP, observability.OutcomeError).Inc()
		return fmt.Errorf("%w: create request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(t.user, t.password)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	t.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		t.metrics.StatementsSent.WithLabelValues(ProtocolHTTP, observability.OutcomeError).Inc()
		return fmt.Errorf("%w: POST %s: %w", ErrTransport, t.endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Debug("response body not fully read", "error", err)
	}

	attrs := []any{
		"payload", string(body),
		"url", t.baseURL,
		"status", resp.StatusCode,
		"headers", resp.Header,
		"response", string(respBody),
	}
	if resp.StatusCode >= http.StatusBadRequest {
		t.metrics.StatementsSent.WithLabelValues(ProtocolHTTP, observability.OutcomeRejected).Inc()
		t.logger.Info("neo4j rejected statement", attrs...)
		return nil
	}

	t.metrics.StatementsSent.WithLabelValues(ProtocolHTTP, observability.OutcomeSuccess).Inc()
	t.logger.Debug("neo4j accepted statement", attrs...)
	return nil
}
