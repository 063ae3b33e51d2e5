package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tinytelemetry/graphsink/internal/model"
	"github.com/tinytelemetry/graphsink/internal/observability"
)

type recordingSink struct {
	messages []*model.Message
}

func (s *recordingSink) Send(_ context.Context, msg *model.Message) {
	s.messages = append(s.messages, msg)
}

func newTestProcessor(sink MessageSink) *Processor {
	p := NewProcessor(sink, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	p.now = func() time.Time { return time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC) }
	return p
}

func TestProcessEnvelope_JSONLine(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newTestProcessor(sink)

	msg := p.ProcessEnvelope(context.Background(), model.IngestEnvelope{
		Source: "tcp",
		Line:   `{"_id":"id value","someKeyValue":"foo","msg":"request processed","level":30}`,
	})
	if msg == nil {
		t.Fatal("expected message")
	}
	if len(sink.messages) != 1 {
		t.Fatalf("sink messages = %d, want 1", len(sink.messages))
	}

	if got := msg.GetString("_id"); got != "id value" {
		t.Errorf("_id = %q, want existing id to be kept", got)
	}
	if got := msg.GetString("someKeyValue"); got != "foo" {
		t.Errorf("someKeyValue = %q, want foo", got)
	}
	if got := msg.GetString(model.FieldMessage); got != "request processed" {
		t.Errorf("message = %q, want msg fallback", got)
	}
	if v, _ := msg.Get("level"); v != float64(30) {
		t.Errorf("level = %v, want original value 30", v)
	}
	if got := msg.GetString(model.FieldSource); got != "tcp" {
		t.Errorf("source = %q, want tcp", got)
	}
	ts, _ := msg.Get(model.FieldTimestamp)
	if ts != time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC) {
		t.Errorf("timestamp = %v, want receive time", ts)
	}

	keys := msg.Keys()
	if keys[0] != "_id" || keys[1] != "someKeyValue" {
		t.Errorf("keys = %v, want document order first", keys)
	}
}

func TestProcessEnvelope_TextLine(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(nil)
	msg := p.ProcessEnvelope(context.Background(), model.IngestEnvelope{Source: "stdin", Line: "ERROR:\tconnection refused"})
	if msg == nil {
		t.Fatal("expected message")
	}
	if got := msg.GetString(model.FieldMessage); got != "ERROR: connection refused" {
		t.Errorf("message = %q", got)
	}
	if got := msg.GetString(model.FieldLevel); got != "ERROR" {
		t.Errorf("level = %q, want ERROR", got)
	}
	if got := msg.GetString(model.FieldID); got == "" {
		t.Error("expected generated _id")
	}
}

func TestProcessEnvelope_DefaultSource(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(nil)
	msg := p.ProcessEnvelope(context.Background(), model.IngestEnvelope{Line: "hello"})
	if got := msg.GetString(model.FieldSource); got != model.DefaultSource {
		t.Errorf("source = %q, want %q", got, model.DefaultSource)
	}
}

func TestProcessEnvelope_PrebuiltMessage(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newTestProcessor(sink)

	in := model.NewMessageFromPairs("message", "from otlp", "source", "collector")
	msg := p.ProcessEnvelope(context.Background(), model.IngestEnvelope{Source: "otlp", Message: in})
	if msg != in {
		t.Fatal("expected the prebuilt message to be forwarded")
	}
	if got := msg.GetString(model.FieldSource); got != "collector" {
		t.Errorf("source = %q, want message source kept", got)
	}
}

func TestProcessEnvelope_EmptyIsIgnored(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newTestProcessor(sink)
	if msg := p.ProcessEnvelope(context.Background(), model.IngestEnvelope{Source: "tcp"}); msg != nil {
		t.Fatalf("expected nil, got %v", msg)
	}
	if len(sink.messages) != 0 {
		t.Fatal("empty envelope must not reach the sink")
	}
}

func TestProcessEnvelope_MultiLineJSONPerSource(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newTestProcessor(sink)
	ctx := context.Background()

	steps := []model.IngestEnvelope{
		{Source: "tcp", Line: `{`},
		{Source: "tcp", Line: `  "message": "multi",`},
		{Source: "stdin", Line: `plain line`},
		{Source: "tcp", Line: `  "nested": {"a": [1, 2]}`},
		{Source: "tcp", Line: `}`},
	}
	for _, env := range steps {
		p.ProcessEnvelope(ctx, env)
	}

	if len(sink.messages) != 2 {
		t.Fatalf("sink messages = %d, want 2", len(sink.messages))
	}
	if got := sink.messages[0].GetString(model.FieldMessage); got != "plain line" {
		t.Errorf("first message = %q, want the interleaved stdin line", got)
	}
	if got := sink.messages[1].GetString(model.FieldMessage); got != "multi" {
		t.Errorf("second message = %q, want multi", got)
	}
	nested, _ := sink.messages[1].Get("nested")
	if _, ok := nested.(map[string]any); !ok {
		t.Errorf("nested = %T, want map", nested)
	}
}

func TestProcessEnvelope_FramedRecordsAreNotJoined(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newTestProcessor(sink)
	ctx := context.Background()

	p.ProcessEnvelope(ctx, model.IngestEnvelope{Source: "kafka", Line: `{"broken":`, Framed: true})
	for i := 0; i < 5; i++ {
		p.ProcessEnvelope(ctx, model.IngestEnvelope{
			Source: "kafka",
			Line:   `{"_id":"id value","someKeyValue":"foo"}`,
			Framed: true,
		})
	}

	if len(sink.messages) != 6 {
		t.Fatalf("sink messages = %d, want 6", len(sink.messages))
	}
	if got := sink.messages[0].GetString(model.FieldMessage); got != `{"broken":` {
		t.Errorf("malformed record message = %q, want raw text", got)
	}
	for i, msg := range sink.messages[1:] {
		if got := msg.GetString("someKeyValue"); got != "foo" {
			t.Errorf("message %d someKeyValue = %q, want foo", i+1, got)
		}
	}
}

func TestProcessEnvelope_MultiLineJSONPerStream(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newTestProcessor(sink)
	ctx := context.Background()

	steps := []model.IngestEnvelope{
		{Source: "tcp", Stream: "tcp:10.0.0.1:5000", Line: `{`},
		{Source: "tcp", Stream: "tcp:10.0.0.2:5000", Line: `{`},
		{Source: "tcp", Stream: "tcp:10.0.0.1:5000", Line: `"message": "first"`},
		{Source: "tcp", Stream: "tcp:10.0.0.2:5000", Line: `"message": "second"`},
		{Source: "tcp", Stream: "tcp:10.0.0.2:5000", Line: `}`},
		{Source: "tcp", Stream: "tcp:10.0.0.1:5000", Line: `}`},
	}
	for _, env := range steps {
		p.ProcessEnvelope(ctx, env)
	}

	if len(sink.messages) != 2 {
		t.Fatalf("sink messages = %d, want 2", len(sink.messages))
	}
	if got := sink.messages[0].GetString(model.FieldMessage); got != "second" {
		t.Errorf("first completed message = %q, want second", got)
	}
	if got := sink.messages[1].GetString(model.FieldMessage); got != "first" {
		t.Errorf("second completed message = %q, want first", got)
	}
	if got := sink.messages[0].GetString(model.FieldSource); got != "tcp" {
		t.Errorf("source = %q, want tcp", got)
	}
}

func TestProcessEnvelope_UnterminatedJSONIsFlushedAtCap(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newTestProcessor(sink)
	p.maxPendingLines = 3
	ctx := context.Background()

	for _, line := range []string{`{"a": 1,`, `"b": 2,`, `"c": 3,`, `after the cap`} {
		p.ProcessEnvelope(ctx, model.IngestEnvelope{Source: "stdin", Line: line})
	}

	if len(sink.messages) != 2 {
		t.Fatalf("sink messages = %d, want 2", len(sink.messages))
	}
	if _, ok := sink.messages[0].Get("a"); ok {
		t.Error("flushed buffer should be a text message, not parsed JSON")
	}
	if got := sink.messages[1].GetString(model.FieldMessage); got != "after the cap" {
		t.Errorf("message after flush = %q, want after the cap", got)
	}
	if len(p.pending) != 0 {
		t.Errorf("pending streams = %d, want 0", len(p.pending))
	}
}

func TestProcessEnvelope_BrokenJSONFallsBackToText(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(nil)
	msg := p.ProcessEnvelope(context.Background(), model.IngestEnvelope{Line: `{"a":1} trailing`})
	if msg == nil {
		t.Fatal("expected message")
	}
	if got := msg.GetString(model.FieldMessage); got != `{"a":1} trailing` {
		t.Errorf("message = %q", got)
	}
}

func TestCountJSONDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want int
	}{
		{`{`, 1},
		{`}`, -1},
		{`{"a": 1}`, 0},
		{`{"a": [1, {"b": 2}`, 2},
		{`"braces in string {"`, 0},
		{`{"escaped": "quote \" {"`, 1},
	}

	for _, tt := range tests {
		if got := CountJSONDepth(tt.line); got != tt.want {
			t.Errorf("CountJSONDepth(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}
