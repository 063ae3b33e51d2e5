package model

// IngestEnvelope carries one raw log line with source metadata.
// It is the transport contract between ingestion plugins and processing.
// Inputs that already decode structured records (OTLP) set Message instead of Line.
type IngestEnvelope struct {
	Source string
	// Stream identifies the ordered line stream inside Source, such as one TCP
	// connection. Multi-line JSON is accumulated per stream. Defaults to Source.
	Stream string
	Line   string
	// Framed marks inputs that deliver one complete record per envelope
	// (broker messages). Framed lines are never joined with later ones.
	Framed  bool
	Message *Message
}

// Empty reports whether the envelope carries nothing to process.
func (e IngestEnvelope) Empty() bool {
	return e.Line == "" && e.Message == nil
}
