package neo4j

import (
	"math"
	"strconv"
)

// Payload is the transactional endpoint request body:
//
//	{"statements":[{"statement":"MATCH (n) WHERE ID(n) = $nodeId RETURN n","parameters":{"nodeId":5}}]}
type Payload struct {
	Statements []Statement `json:"statements"`
}

// Statement is one Cypher statement with its server-side bound parameters.
type Statement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters"`
}

// NewPayload wraps a single statement. A nil parameter map is sent as {}.
// NaN and infinite floats have no JSON form and are sent as the strings
// "NaN", "+Inf" and "-Inf".
func NewPayload(statement string, parameters map[string]any) Payload {
	params := make(map[string]any, len(parameters))
	for k, v := range parameters {
		params[k] = encodable(v)
	}
	return Payload{Statements: []Statement{{Statement: statement, Parameters: params}}}
}

func encodable(value any) any {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return strconv.FormatFloat(float64(v), 'f', -1, 32)
		}
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = encodable(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = encodable(item)
		}
		return out
	}
	return value
}
