package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/tinytelemetry/graphsink/internal/ingest"
	"github.com/tinytelemetry/graphsink/internal/model"
)

const (
	// DefaultAddr is used when no listen address is configured.
	DefaultAddr = "0.0.0.0:3000"

	// DefaultMaxBodyBytes caps a single request body.
	DefaultMaxBodyBytes = 4 << 20

	// DefaultBufferSize is the default envelope channel size.
	DefaultBufferSize = 10_000

	sourceName     = "http"
	otlpSourceName = "otlp"

	contentTypeProtobuf = "application/x-protobuf"
)

var errShuttingDown = errors.New("server is shutting down")

// Config holds tunable parameters for the HTTP API.
type Config struct {
	MaxBodyBytes int64
	BufferSize   int
	// Status reports extra fields for the health endpoint.
	Status func() map[string]any
}

// Server provides the HTTP ingest API plus health and metrics endpoints.
// Accepted messages are queued on Lines like any other input.
type Server struct {
	addr      string
	logger    *slog.Logger
	conf      Config
	server    *http.Server
	listener  net.Listener
	ch        chan model.IngestEnvelope
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	stopOnce  sync.Once
}

// NewServer creates a new HTTP API server. An empty addr means DefaultAddr.
func NewServer(addr string, logger *slog.Logger, conf ...Config) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	var c Config
	if len(conf) > 0 {
		c = conf[0]
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		logger:    logger.With("component", "httpserver"),
		conf:      c,
		ch:        make(chan model.IngestEnvelope, c.BufferSize),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/api/messages", s.handleMessage)
	r.POST("/v1/logs", s.handleOTLPLogs)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http serve stopped", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server and closes Lines.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.server.Shutdown(ctx); err != nil {
				s.logger.Warn("http shutdown failed", "error", err)
			}
		}
		close(s.ch)
	})
}

func (s *Server) Lines() <-chan model.IngestEnvelope { return s.ch }

func (s *Server) Name() string { return sourceName }

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if s.conf.Status != nil {
		for k, v := range s.conf.Status() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleMessage(c *gin.Context) {
	body, err := s.readBody(c)
	if err != nil {
		c.JSON(bodyErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	msg, err := ingest.ParseJSONBody(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a single JSON object"})
		return
	}

	if err := s.enqueue(c.Request.Context(), sourceName, msg); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": 1})
}

// handleOTLPLogs implements the OTLP/HTTP logs endpoint for both the JSON
// and the binary protobuf encodings.
func (s *Server) handleOTLPLogs(c *gin.Context) {
	body, err := s.readBody(c)
	if err != nil {
		c.JSON(bodyErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	binary := strings.HasPrefix(c.ContentType(), contentTypeProtobuf)
	req := &collogspb.ExportLogsServiceRequest{}
	if binary {
		err = proto.Unmarshal(body, req)
	} else {
		err = protojson.Unmarshal(body, req)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OTLP logs payload"})
		return
	}

	msgs := ingest.MessagesFromOTLP(req, otlpSourceName, s.now())
	for _, msg := range msgs {
		if err := s.enqueue(c.Request.Context(), otlpSourceName, msg); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
	}

	resp := &collogspb.ExportLogsServiceResponse{}
	if binary {
		out, err := proto.Marshal(resp)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, contentTypeProtobuf, out)
		return
	}
	out, err := protojson.Marshal(resp)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}

func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.conf.MaxBodyBytes)
	return io.ReadAll(c.Request.Body)
}

// bodyErrorStatus maps a body read failure to a response status. Only an
// exceeded size limit is 413; truncated or reset bodies are the client's fault.
func bodyErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) enqueue(ctx context.Context, source string, msg *model.Message) error {
	select {
	case s.ch <- model.IngestEnvelope{Source: source, Message: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errShuttingDown
	}
}
