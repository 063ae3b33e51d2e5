package model

import (
	"bytes"
	"encoding/json"
)

// Message is one log/event message: an ordered mapping from field name to value.
// Values are scalars (string, float64, int64, bool, time.Time) or decoded JSON
// containers. Outputs treat a received Message as read-only.
type Message struct {
	keys   []string
	fields map[string]any
}

// NewMessage creates an empty message.
func NewMessage() *Message {
	return &Message{fields: make(map[string]any)}
}

// NewMessageFromPairs builds a message from alternating key/value arguments,
// keeping the given order. A trailing key without a value is ignored.
func NewMessageFromPairs(kv ...any) *Message {
	m := NewMessage()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		m.Set(key, kv[i+1])
	}
	return m
}

// Set stores a field. Existing fields keep their original position.
func (m *Message) Set(key string, value any) {
	if _, exists := m.fields[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.fields[key] = value
}

// SetDefault stores a field only when it is not present yet.
func (m *Message) SetDefault(key string, value any) {
	if _, exists := m.fields[key]; exists {
		return
	}
	m.Set(key, value)
}

// Get returns a field value.
func (m *Message) Get(key string) (any, bool) {
	v, ok := m.fields[key]
	return v, ok
}

// GetString returns a field when it holds a string.
func (m *Message) GetString(key string) string {
	if s, ok := m.fields[key].(string); ok {
		return s
	}
	return ""
}

// Delete removes a field.
func (m *Message) Delete(key string) {
	if _, exists := m.fields[key]; !exists {
		return
	}
	delete(m.fields, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of fields.
func (m *Message) Len() int { return len(m.keys) }

// Keys returns field names in insertion order.
func (m *Message) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each field in order until fn returns false.
func (m *Message) Range(fn func(key string, value any) bool) {
	for _, k := range m.keys {
		if !fn(k, m.fields[k]) {
			return
		}
	}
}

// Fields returns a copy of the field mapping.
func (m *Message) Fields() map[string]any {
	out := make(map[string]any, len(m.fields))
	for k, v := range m.fields {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the fields as a JSON object in insertion order.
func (m *Message) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.fields[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
