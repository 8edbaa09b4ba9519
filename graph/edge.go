package graph

import (
	"fmt"
	"strings"
)

// Terminal sentinels. A routing rule may name these as destinations; reaching
// one ends the run with the corresponding terminal status.
const (
	// End is the terminal-success sentinel: the workflow finished its job.
	End = "__end__"

	// GiveUp is the terminal-exhaustion sentinel: the workflow stopped
	// retrying within policy. Distinct from a crash — runs that give up
	// terminate as StatusExhausted, not StatusAborted.
	GiveUp = "__give_up__"
)

// Router is a routing predicate: given the post-merge state it returns the
// name of the next destination. The returned name must be one of the rule's
// declared destinations (which may include the terminal sentinels); anything
// else fails the run with RoutingError.
//
// Routers are read-only over state and must be total: every reachable state
// shape maps to some declared destination.
//
// Example — the canonical validation-gated self-correction router:
//
//	func afterReview(s graph.State) string {
//	    if s.Bool("validated") {
//	        return "publish"
//	    }
//	    if s.Int("attempts") >= maxAttempts {
//	        return graph.GiveUp
//	    }
//	    return "investigate" // loop back with accumulated feedback
//	}
type Router func(state State) string

// rule is a node's single outgoing edge resolution: either a fixed successor
// (router == nil) or a router over a closed destination set.
type rule struct {
	to     string
	router Router
	dests  map[string]bool
}

// destinations returns the rule's declared destination names, for error
// messages and validation.
func (r rule) destinations() []string {
	if r.router == nil {
		return []string{r.to}
	}
	out := make([]string, 0, len(r.dests))
	for d := range r.dests {
		out = append(out, d)
	}
	return out
}

// isTerminal reports whether a destination name is one of the sentinels.
func isTerminal(dest string) bool {
	return dest == End || dest == GiveUp
}

// RoutingError reports a router returning a destination outside its declared
// set. Declared destinations are validated against the graph at build time;
// this error therefore only fires when a router's own output disagrees with
// its declaration.
type RoutingError struct {
	NodeID   string
	Got      string
	Declared []string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("node %s: router returned undeclared destination %q (declared: %s)",
		e.NodeID, e.Got, strings.Join(e.Declared, ", "))
}
