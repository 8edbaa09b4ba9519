// Package agent implements the self-healing remediation workflow: log
// investigation, fix generation, validation, and pull-request publishing,
// wired as a cyclic graph with a self-correction loop.
package agent

import (
	"time"

	"github.com/opsmend/opsmend/graph"
)

// State field names shared by the nodes and routers.
const (
	// FieldMessages is the running conversation transcript. Appended.
	FieldMessages = "messages"

	// Investigation phase.
	FieldErrorLogs           = "error_logs"
	FieldRootCauseIdentified = "root_cause_identified"
	FieldRootCauseAnalysis   = "root_cause_analysis"

	// Fix generation phase.
	FieldFixCode        = "fix_code"
	FieldFixValidated   = "fix_validated"
	FieldValidationErrs = "validation_errors"

	// Publishing phase. pr_status is one of "pending", "created", "failed".
	FieldPRStatus = "pr_status"
	FieldPRURL    = "pr_url"

	// Control flow.
	FieldIterationCount = "iteration_count"
	FieldErrorTimestamp = "error_timestamp"
)

// PR status values for FieldPRStatus.
const (
	PRPending = "pending"
	PRCreated = "created"
	PRFailed  = "failed"
)

// Schema declares the workflow state fields and their merge policies.
// The transcript and the validation error list accumulate across the
// retry loop so later iterations keep earlier feedback; everything else
// is last-writer-wins.
func Schema() graph.Schema {
	return graph.Schema{
		FieldMessages:            graph.Append,
		FieldErrorLogs:           graph.Overwrite,
		FieldRootCauseIdentified: graph.Overwrite,
		FieldRootCauseAnalysis:   graph.Overwrite,
		FieldFixCode:             graph.Overwrite,
		FieldFixValidated:        graph.Overwrite,
		FieldValidationErrs:      graph.Append,
		FieldPRStatus:            graph.Overwrite,
		FieldPRURL:               graph.Overwrite,
		FieldIterationCount:      graph.Overwrite,
		FieldErrorTimestamp:      graph.Overwrite,
	}
}

// NewInitialState builds the starting state for a remediation run
// triggered by the given alert message.
func NewInitialState(alert string) graph.State {
	return graph.State{
		FieldMessages:            []interface{}{alert},
		FieldErrorLogs:           "",
		FieldRootCauseIdentified: false,
		FieldRootCauseAnalysis:   "",
		FieldFixCode:             "",
		FieldFixValidated:        false,
		FieldValidationErrs:      []interface{}{},
		FieldPRStatus:            PRPending,
		FieldPRURL:               "",
		FieldIterationCount:      0,
		FieldErrorTimestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}
