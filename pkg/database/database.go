package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run ID is unknown
var ErrRunNotFound = errors.New("run not found")

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// Open opens or creates a SQLite database and initializes the schema
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets a test run read history while an analysis is writing it
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// If database is locked, retry for up to 5 seconds before failing
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateRun inserts a run, assigning a new ID when run.ID is empty
func (db *DB) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	_, err := db.conn.Exec(`
		INSERT INTO runs (id, kind, source, seed, threshold, started_at, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Source, run.Seed, run.Threshold,
		run.StartedAt.Format(time.RFC3339), run.Status, run.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// UpdateRun stores a run's threshold, completion time, status and notes
func (db *DB) UpdateRun(run *Run) error {
	var completedAt *string
	if run.CompletedAt != nil {
		t := run.CompletedAt.Format(time.RFC3339)
		completedAt = &t
	}

	result, err := db.conn.Exec(`
		UPDATE runs
		SET threshold = ?, completed_at = ?, status = ?, notes = ?
		WHERE id = ?`,
		run.Threshold, completedAt, run.Status, run.Notes, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}

	return nil
}

// CompleteRun marks a run finished with the given status
func (db *DB) CompleteRun(run *Run, status string) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = status
	return db.UpdateRun(run)
}

const runColumns = `id, kind, source, seed, threshold, started_at, completed_at, status, notes`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var startedAt string
	var completedAt, notes *string

	err := s.Scan(
		&run.ID, &run.Kind, &run.Source, &run.Seed, &run.Threshold,
		&startedAt, &completedAt, &run.Status, &notes,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if completedAt != nil {
		t, _ := time.Parse(time.RFC3339, *completedAt)
		run.CompletedAt = &t
	}
	if notes != nil {
		run.Notes = *notes
	}

	return &run, nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest first, optionally filtered by kind ("" = all)
func (db *DB) ListRuns(kind string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC, rowid DESC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RecordExecutions stores a run's executions in one transaction
func (db *DB) RecordExecutions(executions []*Execution) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO executions (run_id, position, test_name, duration_ms, outcome, anomalous)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare execution insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range executions {
		result, err := stmt.Exec(e.RunID, e.Position, e.TestName, e.DurationMs, e.Outcome, e.Anomalous)
		if err != nil {
			return fmt.Errorf("failed to record execution %s: %w", e.TestName, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		e.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit executions: %w", err)
	}
	return nil
}

// ListExecutions lists a run's executions in log order
func (db *DB) ListExecutions(runID string) ([]*Execution, error) {
	rows, err := db.conn.Query(`
		SELECT id, run_id, position, test_name, duration_ms, outcome, anomalous
		FROM executions WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.RunID, &e.Position, &e.TestName, &e.DurationMs, &e.Outcome, &e.Anomalous); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, &e)
	}

	return executions, rows.Err()
}

// RecordPriorities stores a run's execution order in one transaction
func (db *DB) RecordPriorities(priorities []*Priority) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO priorities (run_id, position, test_name, fail_probability)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare priority insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range priorities {
		result, err := stmt.Exec(p.RunID, p.Position, p.TestName, p.FailProbability)
		if err != nil {
			return fmt.Errorf("failed to record priority %s: %w", p.TestName, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		p.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit priorities: %w", err)
	}
	return nil
}

// ListPriorities lists a run's execution order
func (db *DB) ListPriorities(runID string) ([]*Priority, error) {
	rows, err := db.conn.Query(`
		SELECT id, run_id, position, test_name, fail_probability
		FROM priorities WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list priorities: %w", err)
	}
	defer rows.Close()

	var priorities []*Priority
	for rows.Next() {
		var p Priority
		if err := rows.Scan(&p.ID, &p.RunID, &p.Position, &p.TestName, &p.FailProbability); err != nil {
			return nil, fmt.Errorf("failed to scan priority: %w", err)
		}
		priorities = append(priorities, &p)
	}

	return priorities, rows.Err()
}

// TestHistory summarizes each test's most recent window executions across
// analyze runs, newest run first. Tests are returned by name.
func (db *DB) TestHistory(window int) ([]*TestStat, error) {
	if window < 1 {
		return nil, fmt.Errorf("history window must be positive, got %d", window)
	}

	rows, err := db.conn.Query(`
		WITH ranked AS (
			SELECT e.test_name, e.outcome, e.duration_ms,
				ROW_NUMBER() OVER (
					PARTITION BY e.test_name
					ORDER BY r.started_at DESC, r.rowid DESC, e.position DESC
				) AS rn
			FROM executions e
			JOIN runs r ON r.id = e.run_id
			WHERE r.kind = ?
		)
		SELECT test_name,
			COUNT(*),
			SUM(CASE WHEN outcome = 'FAILED' THEN 1 ELSE 0 END),
			MAX(CASE WHEN rn = 1 THEN outcome END),
			AVG(duration_ms)
		FROM ranked
		WHERE rn <= ?
		GROUP BY test_name
		ORDER BY test_name`, KindAnalyze, window,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query test history: %w", err)
	}
	defer rows.Close()

	var stats []*TestStat
	for rows.Next() {
		var s TestStat
		if err := rows.Scan(&s.TestName, &s.Executions, &s.Failures, &s.LastOutcome, &s.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan test history: %w", err)
		}
		stats = append(stats, &s)
	}

	return stats, rows.Err()
}
