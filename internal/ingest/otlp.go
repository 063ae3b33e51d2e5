package ingest

import (
	"encoding/base64"
	"encoding/hex"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/tinytelemetry/graphsink/internal/logparse"
	"github.com/tinytelemetry/graphsink/internal/model"
)

// MessagesFromOTLP flattens an OTLP logs export into one message per log record.
// Resource, scope and record attributes are merged in that order with native
// value types; later levels override earlier ones.
func MessagesFromOTLP(req *collogspb.ExportLogsServiceRequest, source string, receivedAt time.Time) []*model.Message {
	var out []*model.Message
	for _, rl := range req.GetResourceLogs() {
		resourceAttrs := rl.GetResource().GetAttributes()
		for _, sl := range rl.GetScopeLogs() {
			scope := sl.GetScope()
			for _, record := range sl.GetLogRecords() {
				msg := messageFromOTLPRecord(record, receivedAt)
				setAttributes(msg, resourceAttrs)
				if name := scope.GetName(); name != "" {
					msg.Set("otel.scope.name", name)
				}
				if version := scope.GetVersion(); version != "" {
					msg.Set("otel.scope.version", version)
				}
				setAttributes(msg, scope.GetAttributes())
				setAttributes(msg, record.GetAttributes())
				if source != "" {
					msg.SetDefault(model.FieldSource, source)
				}
				out = append(out, msg)
			}
		}
	}
	return out
}

func messageFromOTLPRecord(record *logspb.LogRecord, receivedAt time.Time) *model.Message {
	msg := model.NewMessage()

	switch {
	case record.GetTimeUnixNano() > 0:
		msg.Set(model.FieldTimestamp, time.Unix(0, int64(record.GetTimeUnixNano())).UTC())
	case record.GetObservedTimeUnixNano() > 0:
		msg.Set(model.FieldTimestamp, time.Unix(0, int64(record.GetObservedTimeUnixNano())).UTC())
	default:
		msg.Set(model.FieldTimestamp, receivedAt.UTC())
	}

	severityNumber := int(record.GetSeverityNumber())
	level := record.GetSeverityText()
	if level == "" {
		level = logparse.SeverityFromOTELNumber(severityNumber)
	}
	if level != "" {
		msg.Set(model.FieldLevel, logparse.NormalizeSeverity(level))
	}
	if severityNumber > 0 {
		msg.Set("severity_number", int64(severityNumber))
	}

	switch body := anyValue(record.GetBody()).(type) {
	case nil:
	case string:
		msg.Set(model.FieldMessage, sanitizeLogMessage(body))
	default:
		msg.Set(model.FieldMessage, body)
	}

	if traceID := record.GetTraceId(); len(traceID) > 0 {
		msg.Set("trace_id", hex.EncodeToString(traceID))
	}
	if spanID := record.GetSpanId(); len(spanID) > 0 {
		msg.Set("span_id", hex.EncodeToString(spanID))
	}
	return msg
}

func setAttributes(msg *model.Message, attrs []*commonpb.KeyValue) {
	for _, kv := range attrs {
		if kv.GetKey() == "" {
			continue
		}
		if v := anyValue(kv.GetValue()); v != nil {
			msg.Set(kv.GetKey(), v)
		}
	}
}

// anyValue converts an OTLP AnyValue into a value the graph driver and the
// JSON encoder both accept.
func anyValue(v *commonpb.AnyValue) any {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return val.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return base64.StdEncoding.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		values := val.ArrayValue.GetValues()
		out := make([]any, 0, len(values))
		for _, item := range values {
			out = append(out, anyValue(item))
		}
		return out
	case *commonpb.AnyValue_KvlistValue:
		kvs := val.KvlistValue.GetValues()
		out := make(map[string]any, len(kvs))
		for _, kv := range kvs {
			out[kv.GetKey()] = anyValue(kv.GetValue())
		}
		return out
	default:
		return nil
	}
}
