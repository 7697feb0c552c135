package model

import (
	"context"
	"time"
)

// MockModel is a test implementation of ChatModel that returns canned
// responses without making API calls.
//
// Configure Responses before use; calls are served in order and the final
// entry repeats once the list is exhausted. Err, when set, is returned by
// every call instead.
//
// MockModel is not safe for concurrent use; configure it per test.
type MockModel struct {
	// Responses are the texts to return, in call order.
	Responses []string

	// Tokens is the token count reported with every response.
	Tokens int

	// Err, when non-nil, is returned by every Complete call.
	Err error

	// Calls records every request made, for assertions.
	Calls []Request

	next int
}

// Name returns "mock".
func (m *MockModel) Name() string { return "mock" }

// Complete implements ChatModel with canned data. Respects context
// cancellation.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return Response{}, m.Err
	}

	var text string
	if len(m.Responses) > 0 {
		idx := m.next
		if idx >= len(m.Responses) {
			idx = len(m.Responses) - 1
		}
		text = m.Responses[idx]
		m.next++
	}

	return Response{
		Text:       text,
		TokensUsed: m.Tokens,
		Duration:   time.Since(start),
		Provider:   m.Name(),
	}, nil
}
