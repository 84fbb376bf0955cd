package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store/sqlite"
	"github.com/ekaya-inc/ekaya-pivot/pkg/database"
)

// NewSQLiteStore creates a migrated SQLite database in a temp dir.
// The executor is closed when the test ends.
func NewSQLiteStore(t *testing.T) store.Executor {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pivot.db")

	sqlDB, err := database.OpenSQL("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations("sqlite", sqlDB, zap.NewNop()))

	exec, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	return exec
}
