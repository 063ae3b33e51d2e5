package ingest

import (
	"context"

	"github.com/tinytelemetry/graphsink/internal/model"
)

// MessageSink receives processed messages. Implementations own delivery
// semantics; Send returns once the message has been handed off.
type MessageSink interface {
	Send(ctx context.Context, msg *model.Message)
}

// SinkFunc adapts a function to MessageSink.
type SinkFunc func(ctx context.Context, msg *model.Message)

func (f SinkFunc) Send(ctx context.Context, msg *model.Message) { f(ctx, msg) }
