package journal

import (
	"context"
	"strings"
)

// Open returns the repository named by dsn:
//
//	""                          in-memory, lost on exit
//	"memory"                    in-memory, lost on exit
//	"postgres://..."            PostgreSQL
//	"sqlite://path", or a path  SQLite file
func Open(ctx context.Context, dsn string) (Repository, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	}
}
