package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmend/opsmend/graph"
	"github.com/opsmend/opsmend/model"
)

type stubLogs struct {
	logs string
	err  error
}

func (s *stubLogs) Fetch(ctx context.Context, f Filter) (string, error) {
	return s.logs, s.err
}

type stubValidator struct {
	verdict Verdict
	err     error
}

func (s *stubValidator) Validate(ctx context.Context, code string) (Verdict, error) {
	return s.verdict, s.err
}

type stubPublisher struct {
	result PublishResult
	err    error
	got    PublishRequest
}

func (s *stubPublisher) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	s.got = req
	return s.result, s.err
}

func TestInvestigator(t *testing.T) {
	ctx := context.Background()

	t.Run("identifies root cause from confident analysis", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{
			{Text: "The root cause is a missing key check in the config lookup."},
		}}
		node := &Investigator{
			Model: mock,
			Logs:  &stubLogs{logs: "ERROR: KeyError: 'api_key'"},
		}

		update, err := node.Run(ctx, NewInitialState("alert"))
		require.NoError(t, err)

		assert.True(t, update.Bool(FieldRootCauseIdentified))
		assert.Equal(t, 1, update.Int(FieldIterationCount))
		assert.Contains(t, update.String(FieldRootCauseAnalysis), "root cause")
		assert.Equal(t, "ERROR: KeyError: 'api_key'", update.String(FieldErrorLogs))
	})

	t.Run("inconclusive analysis leaves flag unset", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{
			{Text: "I need more log context to reach a conclusion."},
		}}
		node := &Investigator{Model: mock, Logs: &stubLogs{}}

		update, err := node.Run(ctx, NewInitialState("alert"))
		require.NoError(t, err)

		assert.False(t, update.Bool(FieldRootCauseIdentified))
	})

	t.Run("increments the counter from current state", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "the issue is X"}}}
		node := &Investigator{Model: mock, Logs: &stubLogs{}}

		state := NewInitialState("alert")
		state[FieldIterationCount] = 2

		update, err := node.Run(ctx, state)
		require.NoError(t, err)
		assert.Equal(t, 3, update.Int(FieldIterationCount))
	})

	t.Run("prior validation errors reach the prompt", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "the bug is Y"}}}
		node := &Investigator{Model: mock, Logs: &stubLogs{}}

		state := NewInitialState("alert")
		state[FieldValidationErrs] = []interface{}{"syntax error at line 3"}

		_, err := node.Run(ctx, state)
		require.NoError(t, err)

		require.Len(t, mock.Calls, 1)
		system := mock.Calls[0].Messages[0]
		assert.Equal(t, model.RoleSystem, system.Role)
		assert.Contains(t, system.Content, "syntax error at line 3")
	})

	t.Run("empty logs are not an error", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "the issue is Z"}}}
		node := &Investigator{Model: mock, Logs: &stubLogs{logs: ""}}

		update, err := node.Run(ctx, NewInitialState("alert"))
		require.NoError(t, err)
		_, touched := update[FieldErrorLogs]
		assert.False(t, touched, "empty fetch should not overwrite error_logs")
	})

	t.Run("log source failure fails the node", func(t *testing.T) {
		node := &Investigator{
			Model: &model.MockChatModel{},
			Logs:  &stubLogs{err: errors.New("aggregator unreachable")},
		}

		_, err := node.Run(ctx, NewInitialState("alert"))
		assert.ErrorContains(t, err, "aggregator unreachable")
	})
}

func TestMechanic(t *testing.T) {
	ctx := context.Background()

	t.Run("strips markdown fences from the fix", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{
			{Text: "```go\npackage main\n\nfunc main() {}\n```"},
		}}
		node := &Mechanic{Model: mock}

		state := NewInitialState("alert")
		state[FieldRootCauseAnalysis] = "missing nil check"

		update, err := node.Run(ctx, state)
		require.NoError(t, err)

		assert.Equal(t, "package main\n\nfunc main() {}", update.String(FieldFixCode))
		assert.False(t, update.Bool(FieldFixValidated))
	})

	t.Run("unfenced output passes through", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{
			{Text: "package main\n"},
		}}
		node := &Mechanic{Model: mock}

		update, err := node.Run(ctx, NewInitialState("alert"))
		require.NoError(t, err)
		assert.Equal(t, "package main", update.String(FieldFixCode))
	})

	t.Run("original source reaches the prompt", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "fixed"}}}
		node := &Mechanic{
			Model:      mock,
			SourcePath: "app.go",
			Source: func(path string) (string, error) {
				return "func buggy() {}", nil
			},
		}

		_, err := node.Run(ctx, NewInitialState("alert"))
		require.NoError(t, err)

		require.Len(t, mock.Calls, 1)
		prompt := mock.Calls[0].Messages[1].Content
		assert.Contains(t, prompt, "func buggy() {}")
	})

	t.Run("accumulated feedback reaches the prompt", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "fixed"}}}
		node := &Mechanic{Model: mock}

		state := NewInitialState("alert")
		state[FieldValidationErrs] = []interface{}{"empty error check at line 12"}

		_, err := node.Run(ctx, state)
		require.NoError(t, err)
		assert.Contains(t, mock.Calls[0].Messages[0].Content, "empty error check at line 12")
	})
}

func TestReview(t *testing.T) {
	ctx := context.Background()

	t.Run("pass sets the flag without new errors", func(t *testing.T) {
		node := &Review{Validator: &stubValidator{verdict: Verdict{Passed: true}}}

		state := NewInitialState("alert")
		state[FieldFixCode] = "package main"

		update, err := node.Run(ctx, state)
		require.NoError(t, err)

		assert.True(t, update.Bool(FieldFixValidated))
		_, touched := update[FieldValidationErrs]
		assert.False(t, touched)
	})

	t.Run("failure reports the specific errors", func(t *testing.T) {
		node := &Review{Validator: &stubValidator{verdict: Verdict{
			Passed: false,
			Errors: []string{"syntax error", "function removed"},
		}}}

		state := NewInitialState("alert")
		state[FieldFixCode] = "not go"

		update, err := node.Run(ctx, state)
		require.NoError(t, err)

		assert.False(t, update.Bool(FieldFixValidated))
		assert.Equal(t, []interface{}{"syntax error", "function removed"}, update[FieldValidationErrs])
	})

	t.Run("missing fix code fails validation, not the run", func(t *testing.T) {
		node := &Review{Validator: &stubValidator{}}

		update, err := node.Run(ctx, NewInitialState("alert"))
		require.NoError(t, err)
		assert.False(t, update.Bool(FieldFixValidated))
		assert.Equal(t, "no fix code provided", update[FieldValidationErrs])
	})

	t.Run("validator breakage fails the node", func(t *testing.T) {
		node := &Review{Validator: &stubValidator{err: errors.New("parser crashed")}}

		state := NewInitialState("alert")
		state[FieldFixCode] = "package main"

		_, err := node.Run(ctx, state)
		assert.ErrorContains(t, err, "parser crashed")
	})
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("assembles title and body from state", func(t *testing.T) {
		pub := &stubPublisher{result: PublishResult{Status: PRCreated, URL: "https://github.com/o/r/pull/7"}}
		node := &Publish{
			Publisher: pub,
			FilePath:  "app.go",
			Now:       func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
		}

		state := NewInitialState("alert")
		state[FieldRootCauseAnalysis] = "The handler dereferences a nil pointer."
		state[FieldFixCode] = "package main"
		state[FieldIterationCount] = 2

		update, err := node.Run(ctx, state)
		require.NoError(t, err)

		assert.Equal(t, PRCreated, update.String(FieldPRStatus))
		assert.Equal(t, "https://github.com/o/r/pull/7", update.String(FieldPRURL))
		assert.Equal(t, "[Automated Fix] The handler dereferences a nil pointer.", pub.got.Title)
		assert.Equal(t, "app.go", pub.got.FilePath)
		assert.Contains(t, pub.got.Body, "The handler dereferences a nil pointer.")
		assert.Contains(t, pub.got.Body, "Iterations: 2")
		assert.Contains(t, pub.got.Body, "2026-08-01T12:00:00Z")
	})

	t.Run("long analysis truncated in the title", func(t *testing.T) {
		pub := &stubPublisher{result: PublishResult{Status: PRCreated}}
		node := &Publish{Publisher: pub}

		state := NewInitialState("alert")
		state[FieldRootCauseAnalysis] = strings.Repeat("x", 200)

		_, err := node.Run(ctx, state)
		require.NoError(t, err)
		assert.Equal(t, "[Automated Fix] "+strings.Repeat("x", prTitleLimit), pub.got.Title)
	})

	t.Run("failed publish recorded in state", func(t *testing.T) {
		pub := &stubPublisher{result: PublishResult{Status: PRFailed, URL: "github API returned 403"}}
		node := &Publish{Publisher: pub}

		update, err := node.Run(ctx, NewInitialState("alert"))
		require.NoError(t, err)
		assert.Equal(t, PRFailed, update.String(FieldPRStatus))
	})
}

func TestSchemaAndInitialState(t *testing.T) {
	schema := Schema()

	state, err := schema.NewState(NewInitialState("disk alert"))
	require.NoError(t, err)

	assert.Equal(t, []string{"disk alert"}, state.Strings(FieldMessages))
	assert.Equal(t, PRPending, state.String(FieldPRStatus))
	assert.Equal(t, 0, state.Int(FieldIterationCount))

	ts, err := time.Parse(time.RFC3339, state.String(FieldErrorTimestamp))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)

	// Every field the nodes write must be declared.
	for _, field := range []string{
		FieldMessages, FieldErrorLogs, FieldRootCauseIdentified, FieldRootCauseAnalysis,
		FieldFixCode, FieldFixValidated, FieldValidationErrs, FieldPRStatus, FieldPRURL,
		FieldIterationCount, FieldErrorTimestamp,
	} {
		_, ok := schema[field]
		assert.True(t, ok, "field %s missing from schema", field)
	}

	assert.Equal(t, graph.Append, schema[FieldMessages])
	assert.Equal(t, graph.Append, schema[FieldValidationErrs])
}
