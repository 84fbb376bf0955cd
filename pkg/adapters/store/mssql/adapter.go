package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-pivot/pkg/retry"
)

// DriverName is the database/sql driver registered by go-mssqldb.
const DriverName = "sqlserver"

// Open opens a SQL Server pool for a sqlserver:// URL.
func Open(ctx context.Context, dsn string, opts store.OpenOptions) (*store.SQLExecutor, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	if opts.MaxConnections > 0 {
		db.SetMaxOpenConns(int(opts.MaxConnections))
	}

	if err := retry.DoIfRetryable(ctx, nil, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return store.NewSQLExecutor(db, Dialect{}), nil
}
