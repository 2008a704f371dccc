package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrBackendUnavailable is returned by Unavailable.
var ErrBackendUnavailable = errors.New("backend unavailable")

// MockBackend is a scriptable Backend for tests and offline runs.
type MockBackend struct {
	mu       sync.Mutex
	requests []CompletionRequest

	// Reply computes the answer; when nil, Answer and Err are returned.
	Reply  func(ctx context.Context, req CompletionRequest) (string, error)
	Answer string
	Err    error
}

// NewMockBackend creates a mock that always returns answer.
func NewMockBackend(answer string) *MockBackend {
	return &MockBackend{Answer: answer}
}

// Complete records the request and replies.
func (m *MockBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	reply := m.Reply
	m.mu.Unlock()

	if reply != nil {
		return reply(ctx, req)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Answer == "" {
		return "", ErrEmptyCompletion
	}
	return m.Answer, nil
}

// Requests returns a copy of every request received.
func (m *MockBackend) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls reports how many requests were received.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Unavailable is a Backend that always fails. It drives dataset-only runs.
type Unavailable struct{}

func (Unavailable) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return "", ErrBackendUnavailable
}

var (
	_ Backend = (*MockBackend)(nil)
	_ Backend = Unavailable{}
)
