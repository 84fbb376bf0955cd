// Package migrations embeds the static table definitions for each supported store.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per driver
// (postgres, sqlite, sqlserver).
//
//go:embed postgres/*.sql sqlite/*.sql sqlserver/*.sql
var FS embed.FS
