package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opsmend/opsmend/graph"
	"github.com/opsmend/opsmend/model"
)

// rootCausePhrases signal that the analysis reached a conclusion rather
// than asking for more data.
var rootCausePhrases = []string{
	"root cause",
	"the issue is",
	"the error occurs because",
	"keyerror",
	"missing key",
	"the bug is",
	"nil pointer",
	"index out of range",
}

const investigatorPrompt = `You are an expert Site Reliability Engineer specializing in debugging production issues.

Your task is to analyze application logs, identify the root cause of errors, and provide a clear explanation.

Steps:
1. Carefully analyze the stack traces, error messages, and context in the logs below
2. Identify the specific line of code causing the issue
3. Determine the root cause (e.g., missing map key, nil pointer, type mismatch)
4. Provide a clear, concise explanation of what went wrong and why

Be thorough but focused. Your analysis will be used by another agent to generate a fix.`

// Investigator analyzes logs to identify the root cause of an error.
// It is the retry entry point of the self-correction loop and the only
// node that advances the iteration counter, so every pass through the
// loop counts exactly once.
type Investigator struct {
	Model model.ChatModel
	Logs  LogSource

	// Window and Severity control the log fetch. Defaults: "1h", "error".
	Window   string
	Severity string
}

// Run implements graph.Node.
func (n *Investigator) Run(ctx context.Context, state graph.State) (graph.State, error) {
	iteration := state.Int(FieldIterationCount) + 1

	window := n.Window
	if window == "" {
		window = "1h"
	}
	severity := n.Severity
	if severity == "" {
		severity = "error"
	}
	logs, err := n.Logs.Fetch(ctx, Filter{Window: window, Severity: severity})
	if err != nil {
		return nil, fmt.Errorf("log fetch failed: %w", err)
	}

	system := investigatorPrompt
	if prior := state.Strings(FieldValidationErrs); len(prior) > 0 {
		var sb strings.Builder
		sb.WriteString(system)
		sb.WriteString("\n\nIMPORTANT: A previous fix attempt failed with these errors:\n")
		for _, e := range prior {
			sb.WriteString("- ")
			sb.WriteString(e)
			sb.WriteString("\n")
		}
		sb.WriteString("\nReconsider the root cause analysis with this feedback in mind. The previous fix didn't work correctly.")
		system = sb.String()
	}

	messages := []model.Message{{Role: model.RoleSystem, Content: system}}
	for _, m := range state.Strings(FieldMessages) {
		messages = append(messages, model.Message{Role: model.RoleUser, Content: m})
	}
	logsPrompt := "No logs were found for the requested window. Reason from the alert alone."
	if logs != "" {
		logsPrompt = fmt.Sprintf("Here are the logs:\n\n%s\n\nNow analyze these logs and identify the root cause.", logs)
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: logsPrompt})

	out, err := n.Model.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("investigation failed: %w", err)
	}
	analysis := out.Text

	update := graph.State{
		FieldMessages:            "Investigation Result:\n\n" + analysis,
		FieldRootCauseIdentified: hasRootCause(analysis),
		FieldRootCauseAnalysis:   analysis,
		FieldIterationCount:      iteration,
	}
	if logs != "" {
		update[FieldErrorLogs] = logs
	}
	return update, nil
}

func hasRootCause(analysis string) bool {
	lower := strings.ToLower(analysis)
	for _, phrase := range rootCausePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

const mechanicPrompt = `You are an expert Go developer specializing in fixing production bugs.

Your task is to generate a corrected version of the buggy code based on the root cause analysis.

Requirements:
1. Provide the COMPLETE fixed source file, not just a snippet
2. Fix the specific issue identified in the root cause analysis
3. Check map lookups and error returns instead of assuming success
4. Preserve all other functionality, including every original function
5. Ensure the code is clean, readable, and idiomatic

Respond with ONLY the code, no explanations before or after.`

// Mechanic generates a fix for the identified root cause. When the loop
// comes back around after a failed validation, the accumulated errors
// are included so the next attempt addresses them.
type Mechanic struct {
	Model model.ChatModel

	// SourcePath is the file under repair; its current content is
	// given to the model alongside the analysis.
	SourcePath string
	Source     SourceReader
}

// SourceReader loads the code under repair.
type SourceReader func(path string) (string, error)

// Run implements graph.Node.
func (n *Mechanic) Run(ctx context.Context, state graph.State) (graph.State, error) {
	system := mechanicPrompt
	if prior := state.Strings(FieldValidationErrs); len(prior) > 0 {
		var sb strings.Builder
		sb.WriteString(system)
		sb.WriteString("\n\nWARNING: Your previous fix failed validation with these errors:\n")
		for _, e := range prior {
			sb.WriteString("- ")
			sb.WriteString(e)
			sb.WriteString("\n")
		}
		sb.WriteString("\nGenerate a NEW fix that addresses these validation failures.")
		system = sb.String()
	}

	original := "[could not read original source file]"
	if n.Source != nil && n.SourcePath != "" {
		if src, err := n.Source(n.SourcePath); err == nil {
			original = src
		}
	}

	prompt := fmt.Sprintf(`Root Cause Analysis:
%s

Original Buggy Code:
`+"```go\n%s\n```"+`

Provide the COMPLETE fixed version of this file that solves the issue.`,
		state.String(FieldRootCauseAnalysis), original)

	out, err := n.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("fix generation failed: %w", err)
	}

	return graph.State{
		FieldMessages:     "Generated a fix addressing the root cause.",
		FieldFixCode:      stripFences(out.Text),
		FieldFixValidated: false,
	}, nil
}

// stripFences removes a surrounding markdown code fence if the model
// wrapped its answer in one.
func stripFences(code string) string {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "```") {
		return code
	}
	if idx := strings.Index(code, "\n"); idx >= 0 {
		code = code[idx+1:]
	}
	if idx := strings.LastIndex(code, "```"); idx >= 0 {
		code = code[:idx]
	}
	return strings.TrimSpace(code)
}

// Review runs the validator against the generated fix. Failures are
// recorded as accumulated feedback for the next loop iteration.
type Review struct {
	Validator Validator
}

// Run implements graph.Node.
func (n *Review) Run(ctx context.Context, state graph.State) (graph.State, error) {
	code := state.String(FieldFixCode)
	if code == "" {
		return graph.State{
			FieldMessages:       "Validation failed: no fix code to test.",
			FieldFixValidated:   false,
			FieldValidationErrs: "no fix code provided",
		}, nil
	}

	verdict, err := n.Validator.Validate(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("validation failed to run: %w", err)
	}

	if verdict.Passed {
		return graph.State{
			FieldMessages:     "Validation passed: the fix is valid.",
			FieldFixValidated: true,
		}, nil
	}

	found := make([]interface{}, 0, len(verdict.Errors))
	for _, e := range verdict.Errors {
		found = append(found, e)
	}
	return graph.State{
		FieldMessages:       "Validation failed:\n" + strings.Join(verdict.Errors, "\n"),
		FieldFixValidated:   false,
		FieldValidationErrs: found,
	}, nil
}

// Publish opens a pull request with the validated fix.
type Publish struct {
	Publisher Publisher

	// FilePath is the repository path of the file being fixed.
	FilePath string

	// Now is stubbed in tests. Defaults to time.Now.
	Now func() time.Time
}

// prTitleLimit keeps the analysis excerpt in the title readable in git
// log output.
const prTitleLimit = 72

// Run implements graph.Node.
func (n *Publish) Run(ctx context.Context, state graph.State) (graph.State, error) {
	analysis := state.String(FieldRootCauseAnalysis)
	if analysis == "" {
		analysis = "Unknown root cause detected"
	}

	excerpt := analysis
	if len(excerpt) > prTitleLimit {
		excerpt = excerpt[:prTitleLimit]
	}
	title := "[Automated Fix] " + excerpt

	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	iterations := state.Int(FieldIterationCount)
	body := fmt.Sprintf(`## Automated Fix

This PR was automatically generated after detecting and analyzing a production error.

### Root Cause Analysis
%s

### Validation
All automated checks passed (syntax and function-preservation validation).

### Human Review Required
This PR was created automatically. Please review carefully before merging.

---
Timestamp: %s
Iterations: %d
`, analysis, now().UTC().Format(time.RFC3339), iterations)

	result, err := n.Publisher.Publish(ctx, PublishRequest{
		Title:    title,
		Body:     body,
		FixCode:  state.String(FieldFixCode),
		FilePath: n.FilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("publish failed: %w", err)
	}

	msg := "Pull request created:\n" + result.URL
	if result.Status != PRCreated {
		msg = "Pull request creation failed:\n" + result.URL
	}
	return graph.State{
		FieldMessages: msg,
		FieldPRStatus: result.Status,
		FieldPRURL:    result.URL,
	}, nil
}
