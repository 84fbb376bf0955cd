package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

func init() {
	store.Register(store.AdapterRegistration{
		Info: store.AdapterInfo{
			Driver:      "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2017+ and Azure SQL through go-mssqldb",
		},
		Open: func(ctx context.Context, dsn string, opts store.OpenOptions) (store.Executor, error) {
			return Open(ctx, dsn, opts)
		},
	})
}
