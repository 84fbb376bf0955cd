package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-pivot/pkg/database"
)

// Adapter runs pipeline statements on PostgreSQL through a pgx pool.
type Adapter struct {
	db        *database.DB
	dialect   Dialect
	ownedPool bool // false when wrapping a pool owned by the caller (tests)
}

// NewAdapter opens a pool for dsn.
func NewAdapter(ctx context.Context, dsn string, opts store.OpenOptions) (*Adapter, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dsn,
		MaxConnections: opts.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Adapter{db: db, ownedPool: true}, nil
}

// WrapPool builds an adapter over an existing pool; Close leaves the pool open.
func WrapPool(pool *pgxpool.Pool) *Adapter {
	return &Adapter{db: &database.DB{Pool: pool}}
}

func (a *Adapter) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := a.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (a *Adapter) Query(ctx context.Context, query string, args ...any) (store.Rows, error) {
	return a.db.Query(ctx, query, args...)
}

func (a *Adapter) QueryRow(ctx context.Context, query string, args ...any) store.Row {
	return a.db.QueryRow(ctx, query, args...)
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.Ping(ctx)
}

func (a *Adapter) Dialect() store.Dialect {
	return a.dialect
}

// Pool exposes the pgx pool.
func (a *Adapter) Pool() *pgxpool.Pool {
	return a.db.Pool
}

// Close releases the pool if the adapter created it.
func (a *Adapter) Close() error {
	if a.ownedPool && a.db != nil {
		a.db.Close()
	}
	return nil
}

// Ensure Adapter implements Executor at compile time.
var _ store.Executor = (*Adapter)(nil)
