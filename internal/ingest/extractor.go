package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/graphsink/internal/logparse"
	"github.com/tinytelemetry/graphsink/internal/model"
)

var errNotObject = errors.New("ingest: JSON value is not an object")

// ParseJSONMessage decodes one JSON object into a message, keeping the
// top-level keys in document order. Nested values stay decoded JSON.
func ParseJSONMessage(data string) (*model.Message, error) {
	dec := json.NewDecoder(strings.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("ingest: decode: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}

	msg := model.NewMessage()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("ingest: decode key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("ingest: unexpected key token %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("ingest: decode %q: %w", key, err)
		}
		msg.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("ingest: decode: %w", err)
	}
	if rest := strings.TrimSpace(data[dec.InputOffset():]); rest != "" {
		return nil, errors.New("ingest: trailing data after JSON object")
	}
	return msg, nil
}

// ParseJSONBody decodes a request body holding one JSON object.
func ParseJSONBody(body []byte) (*model.Message, error) {
	return ParseJSONMessage(string(bytes.TrimSpace(body)))
}

// NewTextMessage wraps an unstructured line.
func NewTextMessage(line string) *model.Message {
	msg := model.NewMessage()
	msg.Set(model.FieldMessage, sanitizeLogMessage(line))
	msg.Set(model.FieldLevel, logparse.ExtractSeverityFromText(line))
	return msg
}

// normalize fills the standard fields a message is missing.
func normalize(msg *model.Message, source string, receivedAt time.Time) {
	if _, ok := msg.Get(model.FieldMessage); !ok {
		if text := firstString(msg, "msg", "short_message", "body", "log"); text != "" {
			msg.Set(model.FieldMessage, sanitizeLogMessage(text))
		}
	}
	if _, ok := msg.Get(model.FieldLevel); !ok {
		msg.Set(model.FieldLevel, extractLevel(msg))
	}
	msg.SetDefault(model.FieldTimestamp, receivedAt.UTC())
	msg.SetDefault(model.FieldSource, source)
	msg.SetDefault(model.FieldID, uuid.NewString())
}

// extractLevel reads the level from common alternative keys, or from the
// message text when none is present.
func extractLevel(msg *model.Message) string {
	for _, key := range []string{"severity", "severityText", "loglevel", "lvl"} {
		v, ok := msg.Get(key)
		if !ok {
			continue
		}
		switch level := v.(type) {
		case string:
			if level != "" {
				return logparse.NormalizeSeverity(level)
			}
		case float64:
			return logparse.SeverityFromNumber(int(level))
		}
	}
	return logparse.ExtractSeverityFromText(msg.GetString(model.FieldMessage))
}

func firstString(msg *model.Message, keys ...string) string {
	for _, k := range keys {
		if s := msg.GetString(k); s != "" {
			return s
		}
	}
	return ""
}

func sanitizeLogMessage(message string) string {
	clean := strings.ReplaceAll(message, "\t", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	return clean
}
