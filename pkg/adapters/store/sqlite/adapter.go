package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

const busyTimeoutPragma = "_pragma=busy_timeout(5000)"

// Open opens a SQLite database file. The pool is pinned to one connection so
// that the concurrent pipeline stages serialize instead of failing with
// "database is locked".
func Open(ctx context.Context, path string) (*store.SQLExecutor, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open(DriverName, withBusyTimeout(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return store.NewSQLExecutor(db, Dialect{}), nil
}

func withBusyTimeout(path string) string {
	if strings.Contains(path, "busy_timeout") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&" + busyTimeoutPragma
	}
	return path + "?" + busyTimeoutPragma
}
