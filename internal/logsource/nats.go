package logsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tinytelemetry/graphsink/internal/model"
)

// NATSConfig selects the subject a NATSSource subscribes to.
type NATSConfig struct {
	URL         string
	Subject     string
	Queue       string
	Name        string
	ConnTimeout time.Duration
	BufferSize  int
}

// NATSSource turns each message published on a subject into one envelope.
type NATSSource struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
	ch     chan model.IngestEnvelope

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewNATSSource connects and subscribes. With a Queue, subscribers sharing
// the queue name split the subject's messages between them.
func NewNATSSource(ctx context.Context, cfg NATSConfig, logger *slog.Logger) (*NATSSource, error) {
	if cfg.URL == "" || cfg.Subject == "" {
		return nil, errors.New("logsource: nats requires a url and a subject")
	}
	logger = logger.With("source", "nats", "subject", cfg.Subject)

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("logsource: nats connect: %w", err)
	}

	size := bufferOrDefault(cfg.BufferSize)
	msgs := make(chan *nats.Msg, size)
	var sub *nats.Subscription
	if cfg.Queue != "" {
		sub, err = nc.ChanQueueSubscribe(cfg.Subject, cfg.Queue, msgs)
	} else {
		sub, err = nc.ChanSubscribe(cfg.Subject, msgs)
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("logsource: nats subscribe %s: %w", cfg.Subject, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &NATSSource{
		nc:     nc,
		sub:    sub,
		logger: logger,
		ch:     make(chan model.IngestEnvelope, size),
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.forward(ctx, msgs)
	return s, nil
}

func (s *NATSSource) forward(ctx context.Context, msgs <-chan *nats.Msg) {
	defer s.wg.Done()
	defer close(s.ch)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			env, ok := natsEnvelope(msg)
			if !ok {
				continue
			}
			select {
			case s.ch <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

func natsEnvelope(msg *nats.Msg) (model.IngestEnvelope, bool) {
	if msg == nil {
		return model.IngestEnvelope{}, false
	}
	line := strings.TrimRight(string(msg.Data), "\r\n")
	if line == "" {
		return model.IngestEnvelope{}, false
	}
	return model.IngestEnvelope{Source: "nats", Line: line, Framed: true}, true
}

func (s *NATSSource) Lines() <-chan model.IngestEnvelope { return s.ch }

func (s *NATSSource) Stop() {
	s.stopOnce.Do(func() {
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Warn("nats unsubscribe failed", "error", err)
		}
		s.cancel()
		s.wg.Wait()
		s.nc.Close()
	})
}

func (s *NATSSource) Name() string { return "nats" }
