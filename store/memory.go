package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S] and AnalysisStore.
//
// Intended for tests and single-process development runs; nothing survives
// process exit. Safe for concurrent use.
type MemStore[S any] struct {
	mu       sync.RWMutex
	steps    map[string]map[int]StepRecord[S]
	analyses map[string][]AnalysisRecord
	closed   bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:    make(map[string]map[int]StepRecord[S]),
		analyses: make(map[string][]AnalysisRecord),
	}
}

// SaveStep persists a step record (implements Store).
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, stepID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	run, ok := m.steps[runID]
	if !ok {
		run = make(map[int]StepRecord[S])
		m.steps[runID] = run
	}
	run[step] = StepRecord[S]{Step: step, StepID: stepID, State: state}
	return nil
}

// LoadLatest returns the highest-numbered step for a run (implements Store).
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (S, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero S
	if m.closed {
		return zero, 0, ErrClosed
	}
	run, ok := m.steps[runID]
	if !ok || len(run) == 0 {
		return zero, 0, ErrNotFound
	}
	latest := 0
	for step := range run {
		if step > latest {
			latest = step
		}
	}
	return run[latest].State, latest, nil
}

// History returns all steps of a run in order (implements Store).
func (m *MemStore[S]) History(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	run, ok := m.steps[runID]
	if !ok || len(run) == 0 {
		return nil, ErrNotFound
	}
	records := make([]StepRecord[S], 0, len(run))
	for _, rec := range run {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Step < records[j].Step })
	return records, nil
}

// SaveAnalysis appends an analysis record (implements AnalysisStore).
func (m *MemStore[S]) SaveAnalysis(_ context.Context, rec AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.analyses[rec.ConversationID] = append(m.analyses[rec.ConversationID], rec)
	return nil
}

// LatestAnalysis returns the newest analysis for a conversation (implements
// AnalysisStore).
func (m *MemStore[S]) LatestAnalysis(_ context.Context, conversationID string) (AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return AnalysisRecord{}, ErrClosed
	}
	recs := m.analyses[conversationID]
	if len(recs) == 0 {
		return AnalysisRecord{}, ErrNotFound
	}
	return recs[len(recs)-1], nil
}

// Close marks the store closed (implements Store).
func (m *MemStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
