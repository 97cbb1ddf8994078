// Package history persists execution records in SQLite so finished runs
// can be listed and inspected after the executor is gone.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BDNK1/nodeflow/runtime"
)

var ErrNotFound = errors.New("execution not found")

// timeFormat is fixed width so started_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed table of execution records, one row per run.
// Node results are kept as a JSON column.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema
// exists. ":memory:" gives a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			flow_id TEXT NOT NULL,
			flow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			results TEXT NOT NULL,
			error TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS executions_started_at ON executions (started_at);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts rec, so a running execution can be saved again once it ends.
func (s *Store) Save(ctx context.Context, rec runtime.ExecutionRecord) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, flow_id, flow_name, status, results, error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			flow_id = excluded.flow_id,
			flow_name = excluded.flow_name,
			status = excluded.status,
			results = excluded.results,
			error = excluded.error,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at`,
		rec.ID,
		rec.FlowID,
		rec.FlowName,
		string(rec.Status),
		string(results),
		rec.Error,
		formatTime(rec.StartedAt),
		formatTime(rec.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (runtime.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, flow_id, flow_name, status, results, error, started_at, ended_at
		 FROM executions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return runtime.ExecutionRecord{}, ErrNotFound
	}
	return rec, err
}

// List returns the most recent executions first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]runtime.ExecutionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flow_id, flow_name, status, results, error, started_at, ended_at
		 FROM executions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []runtime.ExecutionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes one execution. Deleting an unknown id is ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete execution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (runtime.ExecutionRecord, error) {
	var (
		rec             runtime.ExecutionRecord
		status, results string
		started, ended  string
	)
	if err := row.Scan(&rec.ID, &rec.FlowID, &rec.FlowName, &status, &results, &rec.Error, &started, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan execution row: %w", err)
	}
	rec.Status = runtime.ExecutionStatus(status)

	if err := json.Unmarshal([]byte(results), &rec.Results); err != nil {
		return rec, fmt.Errorf("decode results of %s: %w", rec.ID, err)
	}
	var err error
	if rec.StartedAt, err = parseTime(started); err != nil {
		return rec, fmt.Errorf("parse started_at of %s: %w", rec.ID, err)
	}
	if rec.EndedAt, err = parseTime(ended); err != nil {
		return rec, fmt.Errorf("parse ended_at of %s: %w", rec.ID, err)
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, s)
}
