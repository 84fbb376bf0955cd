package sqlite

import (
	"context"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

func init() {
	store.Register(store.AdapterRegistration{
		Info: store.AdapterInfo{
			Driver:      "sqlite",
			DisplayName: "SQLite",
			Description: "Embedded SQLite file (modernc.org/sqlite)",
		},
		Open: func(ctx context.Context, dsn string, _ store.OpenOptions) (store.Executor, error) {
			return Open(ctx, dsn)
		},
	})
}
