package logsource

import "github.com/tinytelemetry/graphsink/internal/model"

// LogSource is the interface every message input implements
// (tcp, stdin, kafka, nats, amqp, otlp).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of envelopes
	Stop()                              // graceful shutdown, closes Lines
	Name() string
}

// DefaultBufferSize is the envelope channel size used by broker sources.
const DefaultBufferSize = 10_000

func bufferOrDefault(n int) int {
	if n > 0 {
		return n
	}
	return DefaultBufferSize
}
