package graph

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout wraps a node so that each invocation runs under a deadline.
//
// The deadline is imposed on the node's collaborator call via context; the
// engine itself has no timeout machinery and treats an expired deadline like
// any other node failure — the run aborts. d <= 0 returns the node
// unwrapped.
//
// Example:
//
//	engine.Add("investigate", graph.WithTimeout(investigator, 90*time.Second))
func WithTimeout(node Node, d time.Duration) Node {
	if d <= 0 {
		return node
	}
	return NodeFunc(func(ctx context.Context, state State) (State, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		partial, err := node.Run(ctx, state)
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("timed out after %v: %w", d, err)
		}
		return partial, err
	})
}
