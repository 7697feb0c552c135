// Package store provides persistence backends for workflow run state and
// conversation analysis results.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run or conversation does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists workflow run state step by step.
//
// Every step execution writes the merged state keyed by runID + step number,
// so a run can be resumed from its latest persisted state after a crash and
// its full progression can be inspected afterward.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Store[S any] interface {
	// SaveStep persists the state after a step execution. Steps are
	// identified by runID + step number (1-indexed); re-saving the same
	// step replaces the earlier record.
	SaveStep(ctx context.Context, runID string, step int, stepID string, state S) error

	// LoadLatest retrieves the most recent state for a run along with its
	// step number. Returns ErrNotFound if the run has no persisted steps.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// History returns every persisted step of a run in execution order.
	// Returns ErrNotFound if the run has no persisted steps.
	History(ctx context.Context, runID string) ([]StepRecord[S], error)

	// Close releases backend resources. Subsequent operations fail with
	// ErrClosed. Double-close is a no-op.
	Close() error
}

// StepRecord is a single persisted execution step.
type StepRecord[S any] struct {
	// Step is the sequential step number (1-indexed).
	Step int

	// StepID names the step that produced this state.
	StepID string

	// State is the merged workflow state after this step completed.
	State S
}

// AnalysisRecord is the durable output of a conversation analysis run.
type AnalysisRecord struct {
	ConversationID string         `json:"conversation_id"`
	TenantKey      string         `json:"tenant_key,omitempty"`
	Analysis       map[string]any `json:"analysis,omitempty"`
	Suggestions    map[string]any `json:"suggestions,omitempty"`
	ActionPlan     map[string]any `json:"action_plan,omitempty"`
	TokensUsed     int            `json:"tokens_used,omitempty"`
	CostUSD        float64        `json:"cost_usd,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AnalysisStore persists conversation analysis results independently of run
// state, so completed analyses survive run retention policies.
type AnalysisStore interface {
	// SaveAnalysis persists an analysis record. A zero CreatedAt is set to
	// the current time.
	SaveAnalysis(ctx context.Context, rec AnalysisRecord) error

	// LatestAnalysis returns the most recent analysis for a conversation.
	// Returns ErrNotFound if none exists.
	LatestAnalysis(ctx context.Context, conversationID string) (AnalysisRecord, error)
}
