// Package model provides LLM chat adapters for the remediation workflow.
package model

import "context"

// ChatModel is the interface all LLM providers implement.
//
// Implementations handle provider-specific authentication, convert the
// standard Message format to the provider's wire format, and parse the
// response back into ChatOut. All implementations respect context
// cancellation and deadlines.
//
// Example:
//
//	m := anthropic.NewChatModel(apiKey, "claude-sonnet-4-20250514")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Summarize this stack trace."},
//	})
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is a single turn in an LLM conversation.
//
// Typical structure: an optional system message first, then alternating
// user and assistant messages.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content is the message text.
	Content string
}

// Standard role constants, aligned with the conventions used by the
// major providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is the result of a chat completion.
type ChatOut struct {
	// Text is the generated response.
	Text string

	// TokensIn and TokensOut report the provider's token accounting
	// for the request. Zero when the provider does not report usage.
	TokensIn  int
	TokensOut int
}
