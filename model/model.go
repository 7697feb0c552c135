// Package model provides chat-completion adapters over the official
// Anthropic, OpenAI, and Google SDKs, behind a single ChatModel interface
// used by the analysis steps.
package model

import (
	"context"
	"time"
)

// Request is a single chat-completion request.
type Request struct {
	// System is an optional system prompt.
	System string

	// Prompt is the user message.
	Prompt string

	// MaxTokens caps the response length. Zero uses the adapter default.
	MaxTokens int

	// JSON requests machine-parseable JSON output where the provider
	// supports enforcing it; other adapters fall back to prompt
	// instructions.
	JSON bool
}

// Response is the adapter-normalized completion result.
type Response struct {
	// Text is the response content.
	Text string

	// TokensUsed is the combined input and output token count, zero when
	// the provider does not report usage.
	TokensUsed int

	// Duration is the wall-clock time of the API call.
	Duration time.Duration

	// Provider names the adapter that produced this response.
	Provider string
}

// ChatModel is the interface all provider adapters implement.
//
// Implementations are safe for concurrent use and respect context
// cancellation. Errors are *ModelError values whose Retryable flag
// distinguishes transient failures (rate limits, timeouts) from permanent
// ones (bad credentials, exhausted quota).
type ChatModel interface {
	// Complete performs a chat completion.
	Complete(ctx context.Context, req Request) (Response, error)

	// Name returns the provider identifier: "anthropic", "openai",
	// "google", or "mock".
	Name() string
}
