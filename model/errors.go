package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ModelError is the normalized error type returned by all adapters. It
// distinguishes retryable transient failures from permanent failures.
type ModelError struct {
	// Code is the machine-readable error code.
	Code string

	// Message is the human-readable error message.
	Message string

	// Retryable is true for transient failures (rate limits, timeouts).
	Retryable bool
}

func (e *ModelError) Error() string {
	return e.Message
}

// IsRetryable reports whether the operation can be retried with backoff.
func (e *ModelError) IsRetryable() bool {
	return e.Retryable
}

// classifyAPIError maps a provider SDK error onto a ModelError. The SDKs do
// not expose a common error taxonomy, so classification falls back to
// inspecting the error text for well-known status codes and keywords.
func classifyAPIError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ModelError{Code: "timeout", Message: "request cancelled or timed out", Retryable: true}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "authentication"), strings.Contains(msg, "api_key"):
		return &ModelError{Code: "invalid_api_key", Message: "API key is invalid or expired"}
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"):
		return &ModelError{Code: "rate_limited", Message: "API rate limit exceeded", Retryable: true}
	case strings.Contains(msg, "quota"), strings.Contains(msg, "billing"):
		return &ModelError{Code: "quota_exceeded", Message: "API quota exceeded"}
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return &ModelError{Code: "timeout", Message: "request timed out", Retryable: true}
	}
	return &ModelError{Code: "api_error", Message: fmt.Sprintf("%s API error: %v", provider, err)}
}
