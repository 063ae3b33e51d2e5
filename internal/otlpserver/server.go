// Package otlpserver receives OpenTelemetry logs over gRPC and feeds them into
// the pipeline as pre-built messages.
package otlpserver

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinytelemetry/graphsink/internal/ingest"
	"github.com/tinytelemetry/graphsink/internal/model"
)

const (
	// DefaultAddr is the standard OTLP/gRPC port on loopback.
	DefaultAddr = "127.0.0.1:4317"

	// DefaultBufferSize is the default envelope channel size.
	DefaultBufferSize = 10_000

	sourceName = "otlp"
)

// Server implements the OTLP LogsService.
type Server struct {
	collogspb.UnimplementedLogsServiceServer

	addr     string
	logger   *slog.Logger
	grpc     *grpc.Server
	listener net.Listener
	ch       chan model.IngestEnvelope
	now      func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewServer creates a receiver. An empty addr means DefaultAddr.
func NewServer(addr string, logger *slog.Logger, bufferSize int) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		logger: logger.With("component", "otlpserver"),
		ch:     make(chan model.IngestEnvelope, bufferSize),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start listens and serves gRPC in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.grpc = grpc.NewServer()
	collogspb.RegisterLogsServiceServer(s.grpc, s)

	go func() {
		if err := s.grpc.Serve(listener); err != nil {
			s.logger.Warn("grpc serve stopped", "error", err)
		}
	}()
	return nil
}

// Export queues one message per log record. It blocks while the pipeline
// is full and fails with Unavailable once the caller gives up or the server stops.
func (s *Server) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	msgs := ingest.MessagesFromOTLP(req, sourceName, s.now())
	for i, msg := range msgs {
		select {
		case s.ch <- model.IngestEnvelope{Source: sourceName, Message: msg}:
		case <-ctx.Done():
			return nil, status.Errorf(codes.Unavailable, "queued %d of %d records: %v", i, len(msgs), ctx.Err())
		case <-s.ctx.Done():
			return nil, status.Error(codes.Unavailable, "receiver is shutting down")
		}
	}
	s.logger.Debug("export received", "records", len(msgs))
	return &collogspb.ExportLogsServiceResponse{}, nil
}

func (s *Server) Lines() <-chan model.IngestEnvelope { return s.ch }

// Stop drains in-flight exports and closes the envelope channel.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.grpc != nil {
			s.grpc.GracefulStop()
		}
		close(s.ch)
	})
}

func (s *Server) Name() string { return sourceName }

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
