package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// Each call to Chat returns the next entry in Responses; once they are
// exhausted the last response repeats. Set Err to make every call fail.
// All invocations are recorded in Calls. Safe for concurrent use.
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{
//	        {Text: "Root cause: the lookup is missing a key check."},
//	        {Text: "def handler(event):\n    ..."},
//	    },
//	}
type MockChatModel struct {
	// Responses is the sequence of responses to return, in order.
	Responses []ChatOut

	// Err, if set, is returned by Chat instead of a response.
	Err error

	// Calls records every invocation, including failed ones.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single invocation of Chat.
type MockChatCall struct {
	Messages []Message
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and response cursor so the mock can be
// reused across test cases.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
