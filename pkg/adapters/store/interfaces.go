package store

import "context"

// Rows is the result-set surface shared by pgx.Rows and *sql.Rows.
// Callers must Close rows before issuing the next statement; the embedded
// SQLite adapter runs on a single connection.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...any) error
}

// Executor runs statements against the relational store.
// Every Exec is its own autocommitted statement; the pipeline never spans a
// transaction across steps.
type Executor interface {
	// Exec runs a statement and returns the number of rows it changed.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// Query runs a statement returning rows.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// QueryRow runs a statement expected to return at most one row.
	QueryRow(ctx context.Context, query string, args ...any) Row

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Dialect returns the SQL dialect of the store.
	Dialect() Dialect

	// Close releases the underlying connection pool.
	Close() error
}

// Dialect renders the engine-specific parts of the pipeline's statements and
// classifies engine errors.
type Dialect interface {
	// Name returns the driver name ("postgres", "sqlite", "sqlserver").
	Name() string

	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// QuoteIdent quotes a table or column identifier.
	QuoteIdent(name string) string

	// NumericType returns the fixed-point column type.
	NumericType(precision, scale int) string

	// AddColumn renders an additive ALTER TABLE for one nullable column.
	AddColumn(table, column, columnType string) string

	// UpdateFrom renders a set-based UPDATE joined against other relations.
	UpdateFrom(u UpdateFrom) string

	// ListColumnsQuery lists the columns of the table bound to the first
	// placeholder as (name, data_type, numeric_precision, numeric_scale).
	ListColumnsQuery() string

	// IsDuplicateColumn reports the "column already exists" condition.
	IsDuplicateColumn(err error) bool

	// IsNumericOverflow reports a value that does not fit a fixed-point column.
	IsNumericOverflow(err error) bool
}

// Assignment is one "column = expression" of an UPDATE.
// Column is unquoted; Expr is rendered verbatim.
type Assignment struct {
	Column string
	Expr   string
}

// UpdateFrom describes an UPDATE of Table (aliased Alias) joined with the
// relations in From, restricted by Where. From entries and Where are rendered
// verbatim and must reference identifiers already quoted by the caller.
type UpdateFrom struct {
	Table string
	Alias string
	Set   []Assignment
	From  []string
	Where string
}
