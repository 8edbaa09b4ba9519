package graph

import "context"

// Node is a unit of work in the graph. It receives an immutable snapshot of
// the current state, performs its computation (which may include exactly one
// synchronous call to an external collaborator), and returns a partial state
// update for the engine to merge.
//
// Nodes hold no state between invocations; everything that must persist
// flows through State. A node must only return fields it owns — returning
// unrelated or stale fields is a programming error, caught by the node's
// declared outputs when those are registered.
type Node interface {
	// Run executes the node against a snapshot of the current state and
	// returns the partial update to merge. A non-nil error aborts the run.
	Run(ctx context.Context, state State) (State, error)
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	classify := graph.NodeFunc(func(ctx context.Context, s graph.State) (graph.State, error) {
//	    return graph.State{"category": pick(s.String("input"))}, nil
//	})
type NodeFunc func(ctx context.Context, state State) (State, error)

// Run implements Node.
func (f NodeFunc) Run(ctx context.Context, state State) (State, error) {
	return f(ctx, state)
}

// NodeError wraps a failure raised by a node's work or its collaborator
// call. The engine does not catch these; the run terminates as
// StatusAborted with the cause preserved for inspection.
type NodeError struct {
	// NodeID identifies which node failed.
	NodeID string

	// Cause is the underlying error.
	Cause error
}

func (e *NodeError) Error() string {
	return "node " + e.NodeID + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
