package logsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tinytelemetry/graphsink/internal/model"
)

// AMQPConfig selects the queue an AMQPSource consumes.
type AMQPConfig struct {
	URL         string
	Queue       string
	ConsumerTag string
	// Declare creates the queue as durable when it does not exist yet.
	Declare     bool
	ConnTimeout time.Duration
	BufferSize  int
}

// AMQPSource consumes a queue with automatic acknowledgement; delivery is
// best effort like the rest of the pipeline.
type AMQPSource struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
	out    chan model.IngestEnvelope

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewAMQPSource dials the broker and starts consuming cfg.Queue.
func NewAMQPSource(ctx context.Context, cfg AMQPConfig, logger *slog.Logger) (*AMQPSource, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, errors.New("logsource: amqp requires a url and a queue")
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "graphsink"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("logsource: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("logsource: amqp channel: %w", err)
	}
	if cfg.Declare {
		if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("logsource: amqp declare %s: %w", cfg.Queue, err)
		}
	}
	deliveries, err := ch.Consume(cfg.Queue, cfg.ConsumerTag, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("logsource: amqp consume %s: %w", cfg.Queue, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &AMQPSource{
		conn:   conn,
		ch:     ch,
		logger: logger.With("source", "amqp", "queue", cfg.Queue),
		out:    make(chan model.IngestEnvelope, bufferOrDefault(cfg.BufferSize)),
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.forward(ctx, deliveries)
	return s, nil
}

func (s *AMQPSource) forward(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer s.wg.Done()
	defer close(s.out)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() == nil {
					s.logger.Warn("amqp delivery channel closed by broker")
				}
				return
			}
			env, ok := amqpEnvelope(d)
			if !ok {
				continue
			}
			select {
			case s.out <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

func amqpEnvelope(d amqp.Delivery) (model.IngestEnvelope, bool) {
	line := strings.TrimRight(string(d.Body), "\r\n")
	if line == "" {
		return model.IngestEnvelope{}, false
	}
	return model.IngestEnvelope{Source: "amqp", Line: line, Framed: true}, true
}

func (s *AMQPSource) Lines() <-chan model.IngestEnvelope { return s.out }

func (s *AMQPSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		_ = s.ch.Close()
		_ = s.conn.Close()
		s.wg.Wait()
	})
}

func (s *AMQPSource) Name() string { return "amqp" }
