package logsource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tinytelemetry/graphsink/internal/model"
)

const kafkaRetryDelay = time.Second

// KafkaConfig selects the topic a KafkaSource consumes.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	GroupID    string
	BufferSize int
}

// KafkaSource consumes one message per Kafka record value.
type KafkaSource struct {
	reader  *kafkago.Reader
	groupID string
	logger  *slog.Logger
	ch      chan model.IngestEnvelope

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewKafkaSource starts consuming cfg.Topic. With a GroupID, offsets are
// committed once the record has been handed to the pipeline.
func NewKafkaSource(ctx context.Context, cfg KafkaConfig, logger *slog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("logsource: kafka requires brokers and a topic")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10 MB
	})

	ctx, cancel := context.WithCancel(ctx)
	s := &KafkaSource{
		reader:  reader,
		groupID: cfg.GroupID,
		logger:  logger.With("source", "kafka", "topic", cfg.Topic),
		ch:      make(chan model.IngestEnvelope, bufferOrDefault(cfg.BufferSize)),
		cancel:  cancel,
	}
	s.wg.Add(1)
	go s.consume(ctx)
	return s, nil
}

func (s *KafkaSource) consume(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.ch)

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			s.logger.Warn("kafka fetch failed", "error", err)
			select {
			case <-time.After(kafkaRetryDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		env, ok := kafkaEnvelope(msg)
		if ok {
			select {
			case s.ch <- env:
			case <-ctx.Done():
				return
			}
		}

		if s.groupID != "" {
			if err := s.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				s.logger.Warn("kafka commit failed", "offset", msg.Offset, "error", err)
			}
		}
	}
}

// kafkaEnvelope maps a record to an envelope. Empty values are skipped.
func kafkaEnvelope(msg kafkago.Message) (model.IngestEnvelope, bool) {
	line := strings.TrimRight(string(msg.Value), "\r\n")
	if line == "" {
		return model.IngestEnvelope{}, false
	}
	return model.IngestEnvelope{Source: "kafka", Line: line, Framed: true}, true
}

func (s *KafkaSource) Lines() <-chan model.IngestEnvelope { return s.ch }

func (s *KafkaSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		if err := s.reader.Close(); err != nil {
			s.logger.Warn("kafka reader close failed", "error", err)
		}
	})
}

func (s *KafkaSource) Name() string { return "kafka" }

