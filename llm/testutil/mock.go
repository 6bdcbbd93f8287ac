// Package testutil provides test utilities for code that talks to the AI service.
// It includes a mock Asker for exercising the plausibility check without a network.
package testutil

import (
	"context"
	"sync"
)

// MockAsker is a thread-safe mock of the Ask contract.
// It captures prompts and returns configured replies in sequence.
//
// Usage:
//
//	// Single reply
//	mock := &MockAsker{
//	    Replies: []string{`{"is_consistent": true, "justification": "ok"}`},
//	}
//
//	// Reply chosen by prompt content
//	mock := &MockAsker{
//	    Reply: func(prompt string) (string, error) { ... },
//	}
//
//	// Error
//	mock := &MockAsker{
//	    Err: errors.New("connection failed"),
//	}
type MockAsker struct {
	mu        sync.Mutex
	Replies   []string                            // Replies to return in sequence
	Reply     func(prompt string) (string, error) // Used when set, ahead of Replies
	Err       error                               // Error to return (takes precedence)
	prompts   []string
	callCount int
	index     int
}

// Ask records the prompt and returns the next configured reply.
// When replies run out the last one is repeated.
func (m *MockAsker) Ask(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	m.callCount++

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != nil {
		return m.Reply(prompt)
	}
	if len(m.Replies) == 0 {
		return "", nil
	}

	reply := m.Replies[m.index]
	if m.index < len(m.Replies)-1 {
		m.index++
	}
	return reply, nil
}

// GetCallCount returns the number of times Ask was called.
func (m *MockAsker) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// GetPrompts returns a copy of every prompt received, in order.
func (m *MockAsker) GetPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Reset clears the captured state.
func (m *MockAsker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.callCount = 0
	m.index = 0
}
