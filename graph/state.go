// Package graph provides the cyclic state-graph execution engine that drives
// opsmend workflows.
package graph

import (
	"encoding/json"
	"fmt"
)

// Policy declares how a node's partial output combines with the existing
// value of a field during a merge.
type Policy int

const (
	// Overwrite replaces the current value with the partial's value.
	// Use for scalars, flags, and counters.
	Overwrite Policy = iota

	// Append concatenates the partial's value(s) onto the existing ordered
	// sequence. A partial may supply a single item or a slice; both are
	// flattened onto the end in argument order. Appended sequences are never
	// reordered or deduplicated.
	Append
)

// State is the shared record a run's nodes read from and write to.
//
// Fields are declared up front in a Schema; a State only ever holds fields
// the schema knows about. Nodes receive a snapshot of the current State and
// return a partial State containing just the fields they changed.
type State map[string]interface{}

// Schema fixes the set of state fields and their merge policies at
// graph-definition time.
//
// Every field has exactly one policy. A partial update mentioning a field
// with no declared policy is rejected with UnknownFieldError rather than
// silently merged — an undeclared field is a programming error, not data.
//
// Example:
//
//	schema := graph.Schema{
//	    "transcript": graph.Append,
//	    "attempts":   graph.Overwrite,
//	    "validated":  graph.Overwrite,
//	}
type Schema map[string]Policy

// UnknownFieldError reports a partial update for a field the schema does not
// declare. It aborts the run that produced it.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return "state field has no declared merge policy: " + e.Field
}

// NewState builds the initial state for a run: caller-supplied initial values
// plus zero-valued defaults for every declared field the caller left unset.
//
// Zero defaults are nil for Overwrite fields and an empty sequence for
// Append fields. Returns UnknownFieldError if initial mentions an undeclared
// field.
func (sc Schema) NewState(initial State) (State, error) {
	next := make(State, len(sc))
	for field, policy := range sc {
		if policy == Append {
			next[field] = []interface{}{}
		} else {
			next[field] = nil
		}
	}
	for field, value := range initial {
		policy, ok := sc[field]
		if !ok {
			return nil, &UnknownFieldError{Field: field}
		}
		if policy == Append {
			next[field] = appendFlat(nil, value)
		} else {
			next[field] = value
		}
	}
	return next, nil
}

// Merge applies a node's partial update to the current state and returns the
// next state. The current state is not modified.
//
// For every key in partial: Overwrite fields take the partial's value,
// Append fields gain the partial's value(s) at the end. Keys absent from the
// partial carry over from current untouched (the frame invariant).
func (sc Schema) Merge(current, partial State) (State, error) {
	next := make(State, len(current))
	for field, value := range current {
		next[field] = value
	}
	for field, value := range partial {
		policy, ok := sc[field]
		if !ok {
			return nil, &UnknownFieldError{Field: field}
		}
		if policy == Append {
			next[field] = appendFlat(asSlice(current[field]), value)
		} else {
			next[field] = value
		}
	}
	return next, nil
}

// appendFlat appends value onto seq, flattening one level of slice so a
// partial may supply either a single item or a batch. The result never
// aliases seq's backing array.
func appendFlat(seq []interface{}, value interface{}) []interface{} {
	out := make([]interface{}, len(seq), len(seq)+1)
	copy(out, seq)

	switch v := value.(type) {
	case []interface{}:
		return append(out, v...)
	case []string:
		for _, s := range v {
			out = append(out, s)
		}
		return out
	default:
		return append(out, value)
	}
}

func asSlice(value interface{}) []interface{} {
	if value == nil {
		return nil
	}
	if s, ok := value.([]interface{}); ok {
		return s
	}
	return []interface{}{value}
}

// Clone deep-copies a state using a JSON round trip.
//
// Works for any value that survives JSON marshaling (primitives, slices,
// maps, exported struct fields). Runs operate on clones so that no run — and
// no checkpoint reader — ever observes another run's mutations.
func (s State) Clone() (State, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	var copied State
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return copied, nil
}

// Bool reads a flag field. Missing, nil, or non-bool values read as false.
func (s State) Bool(field string) bool {
	b, _ := s[field].(bool)
	return b
}

// Int reads a counter field. JSON round trips store numbers as float64, so
// both int and float64 representations are accepted.
func (s State) Int(field string) int {
	switch v := s[field].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// String reads a text field. Missing or nil values read as "".
func (s State) String(field string) string {
	str, _ := s[field].(string)
	return str
}

// Strings reads an Append-policy field as a string slice, skipping any
// non-string entries.
func (s State) Strings(field string) []string {
	seq, ok := s[field].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(seq))
	for _, v := range seq {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
