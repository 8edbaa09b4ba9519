// Package emit provides pluggable observability for workflow runs.
package emit

// Event is an observability record emitted during run execution.
//
// The engine emits run_start, node_start, node_end, checkpoint_saved,
// run_resumed, and run_end events. Emitters route them to logs, traces, or
// in-memory buffers.
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Step is the sequential node-execution number within the run
	// (1-indexed). Zero for run-level events emitted before the first node.
	Step int

	// NodeID identifies the node involved. Empty for run-level events.
	NodeID string

	// Msg names the event kind.
	Msg string

	// Meta carries additional structured data. Common keys: "status",
	// "steps", "error", "checkpoint_id".
	Meta map[string]interface{}
}
