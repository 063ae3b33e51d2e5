package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tinytelemetry/graphsink/internal/model"
	"github.com/tinytelemetry/graphsink/internal/observability"
)

// Processor turns source-tagged envelopes into messages and hands them to the sink.
// It is not safe for concurrent use; the server drives it from one loop.
type Processor struct {
	sink    MessageSink
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	// Multi-line JSON accumulation, tracked per stream so interleaved inputs
	// cannot corrupt each other's objects.
	pending         map[string]*jsonAccumulator
	maxPendingLines   int
	maxPendingBytes   int
	maxPendingStreams int
}

const (
	defaultMaxPendingLines   = 1000
	defaultMaxPendingBytes   = 1 << 20
	defaultMaxPendingStreams = 1024
)

// NewProcessor creates a processor. sink may be nil for parse-only use.
func NewProcessor(sink MessageSink, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		pending: make(map[string]*jsonAccumulator),

		maxPendingLines:   defaultMaxPendingLines,
		maxPendingBytes:   defaultMaxPendingBytes,
		maxPendingStreams: defaultMaxPendingStreams,
	}
}

// ProcessEnvelope builds a message from env and forwards it to the sink.
// Returns nil while a multi-line JSON object is still being accumulated.
func (p *Processor) ProcessEnvelope(ctx context.Context, env model.IngestEnvelope) *model.Message {
	if env.Empty() {
		return nil
	}

	source := env.Source
	if source == "" {
		source = model.DefaultSource
	}

	msg := env.Message
	if msg == nil {
		line := env.Line
		if !env.Framed {
			stream := env.Stream
			if stream == "" {
				stream = source
			}
			var complete bool
			line, complete = p.accumulate(stream, env.Line)
			if !complete {
				return nil
			}
		}
		msg = p.parseLine(line)
	}

	normalize(msg, source, p.now())
	p.metrics.MessagesReceived.WithLabelValues(source).Inc()

	if p.sink != nil {
		p.sink.Send(ctx, msg)
	}
	return msg
}

func (p *Processor) parseLine(line string) *model.Message {
	if strings.HasPrefix(strings.TrimSpace(line), "{") {
		msg, err := ParseJSONMessage(line)
		if err == nil {
			return msg
		}
		p.logger.Debug("line is not a JSON object, treating as text", "error", err)
	}
	return NewTextMessage(line)
}

// accumulate returns the complete text to parse for this line. Lines that open
// a JSON object which is not closed yet are buffered until depth returns to zero
// or the buffer reaches its line or byte cap, whichever comes first. A capped
// buffer is flushed as-is and ends up as a text message.
func (p *Processor) accumulate(stream, line string) (string, bool) {
	acc, open := p.pending[stream]
	if !open {
		if !strings.HasPrefix(strings.TrimSpace(line), "{") {
			return line, true
		}
		if CountJSONDepth(line) <= 0 {
			return line, true
		}
		if len(p.pending) >= p.maxPendingStreams {
			return line, true
		}
		acc = &jsonAccumulator{}
		p.pending[stream] = acc
	}

	if acc.add(line) {
		delete(p.pending, stream)
		return strings.TrimSpace(acc.buf.String()), true
	}
	if acc.lines >= p.maxPendingLines || acc.buf.Len() >= p.maxPendingBytes {
		delete(p.pending, stream)
		p.logger.Warn("unterminated JSON object flushed as text",
			"stream", stream, "lines", acc.lines, "bytes", acc.buf.Len())
		return strings.TrimSpace(acc.buf.String()), true
	}
	return "", false
}

type jsonAccumulator struct {
	buf   strings.Builder
	depth int
	lines int
}

// add appends a line and reports whether the object is complete.
func (a *jsonAccumulator) add(line string) bool {
	a.buf.WriteString(line)
	a.buf.WriteString("\n")
	a.lines++
	a.depth += CountJSONDepth(line)
	return a.depth <= 0
}

// CountJSONDepth counts the net change in JSON nesting depth for a line.
func CountJSONDepth(line string) int {
	depth := 0
	inString := false
	escaped := false

	for _, char := range line {
		if escaped {
			escaped = false
			continue
		}
		switch char {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}
	return depth
}
