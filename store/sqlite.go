package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S] and AnalysisStore.
//
// It keeps run history and analysis results in a single-file database, which
// makes it the default backend for development and single-instance
// deployments. WAL mode allows concurrent reads while a run is writing.
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens or creates a SQLite-backed store at path. Use
// ":memory:" for an ephemeral database. The schema is created on first use.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite supports a single writer; the pool must not hand out more.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			step_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_steps_run ON run_steps(run_id)`,
		`CREATE TABLE IF NOT EXISTS conversation_analyses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			tenant_key TEXT NOT NULL DEFAULT '',
			analysis TEXT NOT NULL,
			suggestions TEXT NOT NULL,
			action_plan TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_conversation ON conversation_analyses(conversation_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveStep persists a step record (implements Store). Re-saving a step
// replaces the earlier row.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, step int, stepID string, state S) error {
	if err := s.check(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	query := `
		INSERT INTO run_steps (run_id, step, step_id, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			step_id = excluded.step_id,
			state = excluded.state
	`
	if _, err := s.db.ExecContext(ctx, query, runID, step, stepID, string(stateJSON)); err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

// LoadLatest returns the highest-numbered step for a run (implements Store).
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S
	if err := s.check(); err != nil {
		return zero, 0, err
	}
	query := `SELECT step, state FROM run_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1`

	var (
		step      int
		stateJSON string
	)
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("load latest step: %w", err)
	}

	var state S
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return zero, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, step, nil
}

// History returns all steps of a run in order (implements Store).
func (s *SQLiteStore[S]) History(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	query := `SELECT step, step_id, state FROM run_steps WHERE run_id = ? ORDER BY step ASC`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []StepRecord[S]
	for rows.Next() {
		var (
			rec       StepRecord[S]
			stateJSON string
		)
		if err := rows.Scan(&rec.Step, &rec.StepID, &stateJSON); err != nil {
			return nil, fmt.Errorf("scan step row: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step rows: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// SaveAnalysis persists an analysis record (implements AnalysisStore).
func (s *SQLiteStore[S]) SaveAnalysis(ctx context.Context, rec AnalysisRecord) error {
	if err := s.check(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	analysis, err := json.Marshal(rec.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	suggestions, err := json.Marshal(rec.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	actionPlan, err := json.Marshal(rec.ActionPlan)
	if err != nil {
		return fmt.Errorf("marshal action plan: %w", err)
	}
	query := `
		INSERT INTO conversation_analyses
			(conversation_id, tenant_key, analysis, suggestions, action_plan, tokens_used, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ConversationID, rec.TenantKey,
		string(analysis), string(suggestions), string(actionPlan),
		rec.TokensUsed, rec.CostUSD, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// LatestAnalysis returns the newest analysis for a conversation (implements
// AnalysisStore).
func (s *SQLiteStore[S]) LatestAnalysis(ctx context.Context, conversationID string) (AnalysisRecord, error) {
	if err := s.check(); err != nil {
		return AnalysisRecord{}, err
	}
	query := `
		SELECT conversation_id, tenant_key, analysis, suggestions, action_plan, tokens_used, cost_usd, created_at
		FROM conversation_analyses
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var (
		rec         AnalysisRecord
		analysis    string
		suggestions string
		actionPlan  string
		createdAt   string
	)
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(
		&rec.ConversationID, &rec.TenantKey,
		&analysis, &suggestions, &actionPlan,
		&rec.TokensUsed, &rec.CostUSD, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisRecord{}, ErrNotFound
	}
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("load analysis: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return AnalysisRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(analysis), &rec.Analysis); err != nil {
		return AnalysisRecord{}, fmt.Errorf("unmarshal analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(suggestions), &rec.Suggestions); err != nil {
		return AnalysisRecord{}, fmt.Errorf("unmarshal suggestions: %w", err)
	}
	if err := json.Unmarshal([]byte(actionPlan), &rec.ActionPlan); err != nil {
		return AnalysisRecord{}, fmt.Errorf("unmarshal action plan: %w", err)
	}
	return rec, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore[S]) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
