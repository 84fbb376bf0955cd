package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

func init() {
	store.Register(store.AdapterRegistration{
		Info: store.AdapterInfo{
			Driver:      "postgres",
			DisplayName: "PostgreSQL",
			Description: "PostgreSQL 12+ through pgx",
		},
		Open: func(ctx context.Context, dsn string, opts store.OpenOptions) (store.Executor, error) {
			return NewAdapter(ctx, dsn, opts)
		},
	})
}
