package model

// Shared defaults used by the server binary and the ingest packages.
const (
	DefaultSource = "unknown"
	DefaultLevel  = "INFO"
)

// Standard message field names. Inputs may carry any other field as well.
const (
	FieldID        = "_id"
	FieldMessage   = "message"
	FieldSource    = "source"
	FieldTimestamp = "timestamp"
	FieldLevel     = "level"
)
