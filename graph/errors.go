package graph

import "errors"

// ErrStepLimit indicates the engine-level safety cap on total node executions
// was reached before any terminal destination. This is the absolute guard
// that keeps a misconfigured graph — one whose rules never reach a sentinel —
// from looping forever. It is an error, unlike StatusExhausted, which is the
// normal "gave up within policy" outcome.
var ErrStepLimit = errors.New("run exceeded the engine step limit without reaching a terminal destination")

// ConfigError reports an invalid graph definition: duplicate nodes, missing
// entry point, a routing rule naming an unknown destination, or a declared
// node output absent from the schema. Configuration errors are detected at
// graph-build time, before any node runs.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "graph configuration: " + e.Message
}
