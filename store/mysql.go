package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S] and AnalysisStore.
//
// Intended for production deployments where multiple service instances share
// run history and analyses must survive restarts.
//
// The DSN format follows go-sql-driver/mysql:
//
//	user:password@tcp(localhost:3306)/convoflow?parseTime=true
//
// Credentials should come from the environment, never source code.
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a MySQL-backed store and creates the schema if needed.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	m := &MySQLStore[S]{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			step_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_steps_run (run_id),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS conversation_analyses (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			conversation_id VARCHAR(255) NOT NULL,
			tenant_key VARCHAR(255) NOT NULL DEFAULT '',
			analysis JSON NOT NULL,
			suggestions JSON NOT NULL,
			action_plan JSON NOT NULL,
			tokens_used INT NOT NULL DEFAULT 0,
			cost_usd DOUBLE NOT NULL DEFAULT 0,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_analyses_conversation (conversation_id, created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveStep persists a step record (implements Store).
func (m *MySQLStore[S]) SaveStep(ctx context.Context, runID string, step int, stepID string, state S) error {
	if err := m.check(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	query := `
		INSERT INTO run_steps (run_id, step, step_id, state)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			step_id = VALUES(step_id),
			state = VALUES(state)
	`
	if _, err := m.db.ExecContext(ctx, query, runID, step, stepID, string(stateJSON)); err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

// LoadLatest returns the highest-numbered step for a run (implements Store).
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S
	if err := m.check(); err != nil {
		return zero, 0, err
	}
	query := `SELECT step, state FROM run_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1`

	var (
		step      int
		stateJSON string
	)
	err := m.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
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
func (m *MySQLStore[S]) History(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	query := `SELECT step, step_id, state FROM run_steps WHERE run_id = ? ORDER BY step ASC`

	rows, err := m.db.QueryContext(ctx, query, runID)
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
func (m *MySQLStore[S]) SaveAnalysis(ctx context.Context, rec AnalysisRecord) error {
	if err := m.check(); err != nil {
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
	_, err = m.db.ExecContext(ctx, query,
		rec.ConversationID, rec.TenantKey,
		string(analysis), string(suggestions), string(actionPlan),
		rec.TokensUsed, rec.CostUSD, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// LatestAnalysis returns the newest analysis for a conversation (implements
// AnalysisStore).
func (m *MySQLStore[S]) LatestAnalysis(ctx context.Context, conversationID string) (AnalysisRecord, error) {
	if err := m.check(); err != nil {
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
	)
	err := m.db.QueryRowContext(ctx, query, conversationID).Scan(
		&rec.ConversationID, &rec.TenantKey,
		&analysis, &suggestions, &actionPlan,
		&rec.TokensUsed, &rec.CostUSD, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisRecord{}, ErrNotFound
	}
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("load analysis: %w", err)
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
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Close closes the database connection. Double-close is a no-op.
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func (m *MySQLStore[S]) check() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}
