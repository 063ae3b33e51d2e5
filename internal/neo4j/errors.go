package neo4j

import "errors"

var (
	// ErrConfiguration is returned when a transport cannot be built from its Config.
	ErrConfiguration = errors.New("neo4j: invalid configuration")

	// ErrTransport marks a failed round trip. It is logged, never returned from Send.
	ErrTransport = errors.New("neo4j: transport failure")

	// ErrStartupQuery marks a failed startup query. It is logged only.
	ErrStartupQuery = errors.New("neo4j: startup query failed")
)
