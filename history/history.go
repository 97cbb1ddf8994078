package history

import (
	"context"
	"strings"

	"github.com/BDNK1/nodeflow/runtime"
)

// Backend is implemented by Store and PostgresStore.
type Backend interface {
	Save(ctx context.Context, rec runtime.ExecutionRecord) error
	Get(ctx context.Context, id string) (runtime.ExecutionRecord, error)
	List(ctx context.Context, limit int) ([]runtime.ExecutionRecord, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*PostgresStore)(nil)
)

// Connect opens a PostgresStore for postgres:// and postgresql:// URLs and a
// SQLite Store for anything else, which is taken as a file path.
func Connect(ctx context.Context, dsn string) (Backend, error) {
	if IsPostgres(dsn) {
		return OpenPostgres(ctx, map[string]any{"connection_string": dsn})
	}
	return Open(dsn)
}

func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
