package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/lib/pq"

	"github.com/BDNK1/nodeflow/runtime"
)

// PostgresConfig holds the connection pool settings of PostgresStore.
type PostgresConfig struct {
	ConnectionString  string `yaml:"connection_string" validate:"required"`
	MaxOpenConns      int    `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"` // 5 min default
}

// PostgresStore keeps execution records in PostgreSQL. Results are a JSONB
// column; timestamps are TIMESTAMPTZ with NULL for a run still in progress.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects using raw config values, pings the server and
// ensures the schema exists.
func OpenPostgres(ctx context.Context, raw map[string]any) (*PostgresStore, error) {
	var cfg PostgresConfig
	if err := runtime.InitializeConfig(&cfg, raw); err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}

	slog.DebugContext(ctx, "Opening postgres history",
		"connection_string", maskConnectionString(cfg.ConnectionString),
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns)

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			flow_id TEXT NOT NULL,
			flow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			results JSONB NOT NULL,
			error TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS executions_started_at ON executions (started_at);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Save(ctx context.Context, rec runtime.ExecutionRecord) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, flow_id, flow_name, status, results, error, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			flow_id = EXCLUDED.flow_id,
			flow_name = EXCLUDED.flow_name,
			status = EXCLUDED.status,
			results = EXCLUDED.results,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at`,
		rec.ID,
		rec.FlowID,
		rec.FlowName,
		string(rec.Status),
		string(results),
		rec.Error,
		rec.StartedAt.UTC(),
		nullTime(rec.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert execution: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (runtime.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, flow_id, flow_name, status, results, error, started_at, ended_at
		 FROM executions WHERE id = $1`, id)

	rec, err := scanPostgresRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return runtime.ExecutionRecord{}, ErrNotFound
	}
	return rec, err
}

// List returns the most recent executions first. A limit <= 0 returns all.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]runtime.ExecutionRecord, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	// LIMIT NULL is no limit in postgres.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flow_id, flow_name, status, results, error, started_at, ended_at
		 FROM executions ORDER BY started_at DESC LIMIT $1`, limitArg)
	if err != nil {
		return nil, fmt.Errorf("postgres: query executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []runtime.ExecutionRecord{}
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete execution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPostgresRecord(row scanner) (runtime.ExecutionRecord, error) {
	var (
		rec     runtime.ExecutionRecord
		status  string
		results []byte
		ended   sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.FlowID, &rec.FlowName, &status, &results, &rec.Error, &rec.StartedAt, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("postgres: scan execution row: %w", err)
	}
	rec.Status = runtime.ExecutionStatus(status)
	rec.StartedAt = rec.StartedAt.UTC()
	if ended.Valid {
		rec.EndedAt = ended.Time.UTC()
	}
	if err := json.Unmarshal(results, &rec.Results); err != nil {
		return rec, fmt.Errorf("decode results of %s: %w", rec.ID, err)
	}
	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// maskConnectionString hides the password of a postgres URL for logging.
// Key/value connection strings are returned as is.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	return u.Redacted()
}
