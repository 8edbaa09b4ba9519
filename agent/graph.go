package agent

import (
	"os"
	"time"

	"github.com/opsmend/opsmend/graph"
	"github.com/opsmend/opsmend/graph/emit"
	"github.com/opsmend/opsmend/graph/store"
	"github.com/opsmend/opsmend/model"
)

// Node identifiers in the remediation graph.
const (
	NodeInvestigator = "investigator"
	NodeMechanic     = "mechanic"
	NodeReview       = "review"
	NodePublish      = "publish"
)

// DefaultMaxIterations bounds the self-correction loop.
const DefaultMaxIterations = 3

// Deps carries everything needed to assemble the remediation graph.
type Deps struct {
	Model     model.ChatModel
	Logs      LogSource
	Validator Validator
	Publisher Publisher

	// SourcePath is the file under repair on the local filesystem;
	// FilePath is its path within the target repository.
	SourcePath string
	FilePath   string

	// MaxIterations bounds the investigation/fix loop. Defaults to
	// DefaultMaxIterations.
	MaxIterations int

	// NodeTimeout caps each LLM call. Zero means no deadline.
	NodeTimeout time.Duration

	// Store persists step history. Nil means ephemeral runs.
	Store store.Store

	// Emitter receives run events. Nil means silent.
	Emitter emit.Emitter

	// Options are passed through to the engine.
	Options graph.Options
}

// Build assembles the remediation workflow:
//
//	investigator ─┬─> mechanic ─> review ─┬─> publish ─> End
//	      ^       │                       │
//	      │<──────┘ (no root cause yet)   │
//	      │<──────────────────────────────┘ (validation failed)
//
// The loop back to the investigator is the self-correction path: each
// pass carries the accumulated validation feedback. The iteration
// ceiling routes to GiveUp, ending the run as exhausted rather than
// looping forever.
func Build(deps Deps) (*graph.Engine, error) {
	maxIter := deps.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	eng := graph.New(Schema(), deps.Store, deps.Emitter, deps.Options)

	investigator := &Investigator{Model: deps.Model, Logs: deps.Logs}
	mechanic := &Mechanic{
		Model:      deps.Model,
		SourcePath: deps.SourcePath,
		Source:     readSource,
	}
	review := &Review{Validator: deps.Validator}
	publish := &Publish{Publisher: deps.Publisher, FilePath: deps.FilePath}

	if err := eng.Add(NodeInvestigator, graph.WithTimeout(investigator, deps.NodeTimeout),
		FieldMessages, FieldErrorLogs, FieldRootCauseIdentified,
		FieldRootCauseAnalysis, FieldIterationCount); err != nil {
		return nil, err
	}
	if err := eng.Add(NodeMechanic, graph.WithTimeout(mechanic, deps.NodeTimeout),
		FieldMessages, FieldFixCode, FieldFixValidated); err != nil {
		return nil, err
	}
	if err := eng.Add(NodeReview, review,
		FieldMessages, FieldFixValidated, FieldValidationErrs); err != nil {
		return nil, err
	}
	if err := eng.Add(NodePublish, publish,
		FieldMessages, FieldPRStatus, FieldPRURL); err != nil {
		return nil, err
	}

	if err := eng.StartAt(NodeInvestigator); err != nil {
		return nil, err
	}
	if err := eng.Route(NodeInvestigator, afterInvestigation(maxIter),
		NodeMechanic, NodeInvestigator, graph.GiveUp); err != nil {
		return nil, err
	}
	if err := eng.Connect(NodeMechanic, NodeReview); err != nil {
		return nil, err
	}
	if err := eng.Route(NodeReview, afterValidation(maxIter),
		NodePublish, NodeInvestigator, graph.GiveUp); err != nil {
		return nil, err
	}
	if err := eng.Connect(NodePublish, graph.End); err != nil {
		return nil, err
	}

	if err := eng.Validate(); err != nil {
		return nil, err
	}
	return eng, nil
}

// afterInvestigation decides whether the analysis is conclusive enough
// to hand to the mechanic, needs another pass, or has run out of
// attempts.
func afterInvestigation(maxIter int) graph.Router {
	return func(state graph.State) string {
		if state.Int(FieldIterationCount) > maxIter {
			return graph.GiveUp
		}
		if state.Bool(FieldRootCauseIdentified) {
			return NodeMechanic
		}
		return NodeInvestigator
	}
}

// afterValidation is the self-correction decision: a validated fix goes
// out as a pull request, a failed one loops back to the investigator
// with the feedback, and the iteration ceiling gives up.
func afterValidation(maxIter int) graph.Router {
	return func(state graph.State) string {
		if state.Bool(FieldFixValidated) {
			return NodePublish
		}
		if state.Int(FieldIterationCount) >= maxIter {
			return graph.GiveUp
		}
		return NodeInvestigator
	}
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
