package graph

import (
	"context"
	"sync"
	"time"

	"github.com/opsmend/opsmend/graph/emit"
	"github.com/opsmend/opsmend/graph/store"
)

// Status is the terminal outcome of a run.
type Status int

const (
	// StatusSucceeded: the run reached the End sentinel.
	StatusSucceeded Status = iota

	// StatusExhausted: the run reached the GiveUp sentinel — it stopped
	// retrying within policy. A normal outcome, not a crash; callers must
	// not treat it like StatusAborted.
	StatusExhausted

	// StatusAborted: a node failed, a merge or routing contract was
	// violated, the step limit was hit, or the caller cancelled. The engine
	// returns the state as of the last completed merge alongside the error.
	StatusAborted
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusExhausted:
		return "exhausted"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// DefaultMaxSteps is the engine-level cap on node executions per run when
// Options.MaxSteps is unset. The cap exists independently of any domain
// iteration ceiling: even a graph whose rules never reach a terminal
// sentinel terminates within this many steps (with ErrStepLimit).
const DefaultMaxSteps = 64

// Options configures engine execution.
type Options struct {
	// MaxSteps is the absolute cap on node executions per run. Zero or
	// negative means DefaultMaxSteps. There is deliberately no way to
	// disable the cap.
	MaxSteps int

	// Metrics, when non-nil, receives Prometheus observations for each run
	// and node execution.
	Metrics *Metrics
}

func (o Options) maxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return DefaultMaxSteps
}

// Engine executes a fixed set of named nodes over a shared State, following
// directed edges that may be conditional and may loop back to earlier nodes.
//
// The engine owns the execution loop, state merging, routing, checkpoint
// persistence, and termination. It performs no retries of its own: all retry
// semantics live in the graph topology as loop-back edges, which keeps retry
// policy visible in the state transcript instead of hidden in infrastructure.
//
// Nodes within a run execute strictly sequentially. Multiple runs may execute
// concurrently; each run works on its own deep copy of state, so no cross-run
// locking is needed beyond the engine's own registry lock.
//
// Example:
//
//	engine := graph.New(schema, store.NewMemStore(), emit.NewLogEmitter(os.Stdout, false), graph.Options{})
//	engine.Add("work", workNode)
//	engine.Connect("work", graph.End)
//	engine.StartAt("work")
//	final, status, err := engine.Run(ctx, "run-001", graph.State{"input": "hello"})
type Engine struct {
	mu sync.RWMutex

	// schema declares every state field and its merge policy.
	schema Schema

	// nodes maps node IDs to implementations.
	nodes map[string]Node

	// outputs maps node IDs to their declared output fields, when declared.
	outputs map[string]map[string]bool

	// rules maps node IDs to their single outgoing edge resolution.
	rules map[string]rule

	// entry is the designated entry node.
	entry string

	// st persists state snapshots per run; may be nil for ephemeral runs.
	st store.Store

	// emitter receives observability events; may be nil.
	emitter emit.Emitter

	opts Options
}

// New creates an engine over the given schema.
//
// The store persists a snapshot after every completed merge and enables
// checkpoint resumption; pass nil for ephemeral runs. The emitter receives
// observability events; pass nil to disable. Graph shape is validated when
// Run is called, not here, so nodes and edges can be registered in any order.
func New(schema Schema, st store.Store, emitter emit.Emitter, opts Options) *Engine {
	return &Engine{
		schema:  schema,
		nodes:   make(map[string]Node),
		outputs: make(map[string]map[string]bool),
		rules:   make(map[string]rule),
		st:      st,
		emitter: emitter,
		opts:    opts,
	}
}

// Add registers a node under a unique ID.
//
// Optional declaredOutputs name the state fields this node is allowed to
// return. When declared, they are checked against the schema at build time
// and against every partial the node produces at merge time, so a node
// returning unrelated fields fails fast instead of corrupting state.
func (e *Engine) Add(nodeID string, node Node, declaredOutputs ...string) error {
	if nodeID == "" {
		return &ConfigError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &ConfigError{Message: "node cannot be nil: " + nodeID}
	}
	if isTerminal(nodeID) {
		return &ConfigError{Message: "node ID collides with a terminal sentinel: " + nodeID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &ConfigError{Message: "duplicate node ID: " + nodeID}
	}
	e.nodes[nodeID] = node

	if len(declaredOutputs) > 0 {
		declared := make(map[string]bool, len(declaredOutputs))
		for _, field := range declaredOutputs {
			if _, ok := e.schema[field]; !ok {
				delete(e.nodes, nodeID)
				return &ConfigError{Message: "node " + nodeID + " declares output not in schema: " + field}
			}
			declared[field] = true
		}
		e.outputs[nodeID] = declared
	}
	return nil
}

// StartAt designates the entry node for every run.
func (e *Engine) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &ConfigError{Message: "start node does not exist: " + nodeID}
	}
	e.entry = nodeID
	return nil
}

// Connect sets an unconditional edge: after from completes, control moves to
// to, which may be a node ID or a terminal sentinel.
//
// Each node has exactly one outgoing resolution; a second Connect or Route
// for the same node is a configuration error.
func (e *Engine) Connect(from, to string) error {
	if from == "" || to == "" {
		return &ConfigError{Message: "edge endpoints cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[from]; exists {
		return &ConfigError{Message: "node already has an outgoing rule: " + from}
	}
	e.rules[from] = rule{to: to}
	return nil
}

// Route sets a conditional edge: after from completes and its update is
// merged, router inspects the post-merge state and returns one of the
// declared destinations (node IDs or terminal sentinels).
//
// The destination set is closed: a router result outside it fails the run
// with RoutingError, and destinations naming unknown nodes are rejected at
// build time.
func (e *Engine) Route(from string, router Router, destinations ...string) error {
	if from == "" {
		return &ConfigError{Message: "edge source cannot be empty"}
	}
	if router == nil {
		return &ConfigError{Message: "router cannot be nil: " + from}
	}
	if len(destinations) == 0 {
		return &ConfigError{Message: "routed edge needs at least one destination: " + from}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[from]; exists {
		return &ConfigError{Message: "node already has an outgoing rule: " + from}
	}
	dests := make(map[string]bool, len(destinations))
	for _, d := range destinations {
		dests[d] = true
	}
	e.rules[from] = rule{router: router, dests: dests}
	return nil
}

// Validate checks the graph shape: an entry node is set, every node has
// exactly one outgoing rule, and every declared destination is a known node
// or a terminal sentinel. Run calls this before executing anything.
func (e *Engine) Validate() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validateLocked()
}

func (e *Engine) validateLocked() error {
	if len(e.schema) == 0 {
		return &ConfigError{Message: "schema is empty"}
	}
	if e.entry == "" {
		return &ConfigError{Message: "entry node not set (call StartAt)"}
	}
	for nodeID := range e.nodes {
		r, ok := e.rules[nodeID]
		if !ok {
			return &ConfigError{Message: "node has no outgoing rule: " + nodeID}
		}
		for _, dest := range r.destinations() {
			if isTerminal(dest) {
				continue
			}
			if _, exists := e.nodes[dest]; !exists {
				return &ConfigError{Message: "rule for " + nodeID + " names unknown destination: " + dest}
			}
		}
	}
	return nil
}

// Run executes the graph from the entry node to a terminal status.
//
// The initial state is completed against the schema (zero defaults for unset
// fields) and deep-copied, so the caller's map is never mutated and
// concurrent runs are fully isolated. On every return path the last merged
// snapshot comes back — including aborts, where the failing node's partial
// is discarded.
//
// The error is nil exactly when the status is StatusSucceeded or
// StatusExhausted; StatusAborted always carries the cause.
func (e *Engine) Run(ctx context.Context, runID string, initial State) (State, Status, error) {
	if err := e.Validate(); err != nil {
		return nil, StatusAborted, err
	}

	state, err := e.schema.NewState(initial)
	if err != nil {
		return nil, StatusAborted, err
	}
	state, err = state.Clone()
	if err != nil {
		return nil, StatusAborted, err
	}

	e.mu.RLock()
	entry := e.entry
	e.mu.RUnlock()

	return e.execute(ctx, runID, entry, state, 0)
}

// execute is the engine loop shared by Run and ResumeFromCheckpoint.
// startStep is the step number already persisted for this run (0 for fresh
// runs), so resumed runs keep a monotonically increasing step sequence.
func (e *Engine) execute(ctx context.Context, runID, startNode string, state State, startStep int) (State, Status, error) {
	e.emit(emit.Event{RunID: runID, NodeID: startNode, Msg: "run_start"})

	maxSteps := e.opts.maxSteps()
	current := startNode
	step := startStep

	for {
		// Cancellation is honored between node executions, never mid-node.
		select {
		case <-ctx.Done():
			err := ctx.Err()
			e.finish(runID, step, StatusAborted, err)
			return state, StatusAborted, err
		default:
		}

		step++
		if step-startStep > maxSteps {
			e.finish(runID, step, StatusAborted, ErrStepLimit)
			return state, StatusAborted, ErrStepLimit
		}

		e.mu.RLock()
		node, exists := e.nodes[current]
		declared := e.outputs[current]
		r := e.rules[current]
		e.mu.RUnlock()

		if !exists {
			err := &ConfigError{Message: "node not found during execution: " + current}
			e.finish(runID, step, StatusAborted, err)
			return state, StatusAborted, err
		}

		e.emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: "node_start"})
		started := time.Now()

		partial, err := node.Run(ctx, state)
		if err != nil {
			nerr := &NodeError{NodeID: current, Cause: err}
			e.observeNode(current, started, "error")
			e.finish(runID, step, StatusAborted, nerr)
			return state, StatusAborted, nerr
		}
		e.observeNode(current, started, "success")

		if err := checkDeclaredOutputs(current, declared, partial); err != nil {
			e.finish(runID, step, StatusAborted, err)
			return state, StatusAborted, err
		}

		next, err := e.schema.Merge(state, partial)
		if err != nil {
			e.finish(runID, step, StatusAborted, err)
			return state, StatusAborted, err
		}
		state = next

		if e.st != nil {
			if err := e.st.SaveStep(ctx, runID, step, current, store.Snapshot(state)); err != nil {
				e.finish(runID, step, StatusAborted, err)
				return state, StatusAborted, err
			}
		}
		e.emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: "node_end"})

		// Resolve the next destination against the post-merge state.
		dest := r.to
		if r.router != nil {
			dest = r.router(state)
			if !r.dests[dest] {
				err := &RoutingError{NodeID: current, Got: dest, Declared: r.destinations()}
				e.finish(runID, step, StatusAborted, err)
				return state, StatusAborted, err
			}
		}

		switch dest {
		case End:
			e.finish(runID, step, StatusSucceeded, nil)
			return state, StatusSucceeded, nil
		case GiveUp:
			e.finish(runID, step, StatusExhausted, nil)
			return state, StatusExhausted, nil
		default:
			current = dest
		}
	}
}

// checkDeclaredOutputs enforces a node's output declaration against the
// partial it actually returned.
func checkDeclaredOutputs(nodeID string, declared map[string]bool, partial State) error {
	if declared == nil {
		return nil
	}
	for field := range partial {
		if !declared[field] {
			return &ConfigError{Message: "node " + nodeID + " returned undeclared output field: " + field}
		}
	}
	return nil
}

// SaveCheckpoint snapshots the most recent persisted state of a run under a
// caller-chosen checkpoint ID, enabling later resumption or inspection.
func (e *Engine) SaveCheckpoint(ctx context.Context, runID, cpID string) error {
	if e.st == nil {
		return &ConfigError{Message: "engine has no store; checkpoints unavailable"}
	}
	snapshot, step, err := e.st.LoadLatest(ctx, runID)
	if err != nil {
		return err
	}
	if err := e.st.SaveCheckpoint(ctx, cpID, snapshot, step); err != nil {
		return err
	}
	e.emit(emit.Event{RunID: runID, Step: step, Msg: "checkpoint_saved", Meta: map[string]interface{}{"checkpoint_id": cpID}})
	return nil
}

// ResumeFromCheckpoint starts a new run from a previously saved checkpoint's
// state, beginning execution at startNode. The new run gets its own runID;
// the checkpointed run is untouched (single-writer per run ID).
func (e *Engine) ResumeFromCheckpoint(ctx context.Context, cpID, newRunID, startNode string) (State, Status, error) {
	if e.st == nil {
		return nil, StatusAborted, &ConfigError{Message: "engine has no store; checkpoints unavailable"}
	}
	if err := e.Validate(); err != nil {
		return nil, StatusAborted, err
	}

	e.mu.RLock()
	_, exists := e.nodes[startNode]
	e.mu.RUnlock()
	if !exists {
		return nil, StatusAborted, &ConfigError{Message: "resume start node does not exist: " + startNode}
	}

	snapshot, step, err := e.st.LoadCheckpoint(ctx, cpID)
	if err != nil {
		return nil, StatusAborted, err
	}
	state, err := State(snapshot).Clone()
	if err != nil {
		return nil, StatusAborted, err
	}

	e.emit(emit.Event{RunID: newRunID, NodeID: startNode, Msg: "run_resumed",
		Meta: map[string]interface{}{"checkpoint_id": cpID, "checkpoint_step": step}})

	return e.execute(ctx, newRunID, startNode, state, 0)
}

func (e *Engine) emit(ev emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// finish emits the run_end event and records run-level metrics.
func (e *Engine) finish(runID string, steps int, status Status, cause error) {
	meta := map[string]interface{}{"status": status.String(), "steps": steps}
	if cause != nil {
		meta["error"] = cause.Error()
	}
	e.emit(emit.Event{RunID: runID, Step: steps, Msg: "run_end", Meta: meta})

	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveRun(status, steps)
	}
}

func (e *Engine) observeNode(nodeID string, started time.Time, outcome string) {
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveNode(nodeID, time.Since(started), outcome)
	}
}
