package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLExecutor adapts a database/sql pool to Executor.
// Used by the adapters whose drivers only speak database/sql.
type SQLExecutor struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLExecutor wraps db; the executor owns db and closes it on Close.
func NewSQLExecutor(db *sql.DB, dialect Dialect) *SQLExecutor {
	return &SQLExecutor{db: db, dialect: dialect}
}

// DB exposes the underlying pool (for migrations).
func (e *SQLExecutor) DB() *sql.DB {
	return e.db
}

func (e *SQLExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (e *SQLExecutor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (e *SQLExecutor) QueryRow(ctx context.Context, query string, args ...any) Row {
	return e.db.QueryRowContext(ctx, query, args...)
}

func (e *SQLExecutor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *SQLExecutor) Dialect() Dialect {
	return e.dialect
}

func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

var _ Executor = (*SQLExecutor)(nil)

// RenderUpdateFrom renders the "UPDATE t AS a SET ... FROM ... WHERE ..." form
// understood by PostgreSQL and SQLite (3.33+).
func RenderUpdateFrom(d Dialect, u UpdateFrom) string {
	sets := make([]string, len(u.Set))
	for i, a := range u.Set {
		sets[i] = d.QuoteIdent(a.Column) + " = " + a.Expr
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s AS %s SET %s", u.Table, u.Alias, strings.Join(sets, ", "))
	if len(u.From) > 0 {
		b.WriteString(" FROM ")
		b.WriteString(strings.Join(u.From, ", "))
	}
	if u.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(u.Where)
	}
	return b.String()
}

// QuoteDoubled quotes an identifier with double quotes, doubling embedded quotes.
func QuoteDoubled(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Rebind rewrites "$n" bind markers into the dialect's placeholder syntax.
// Queries are written once in PostgreSQL form. Markers inside quoted
// literals and quoted identifiers are left alone.
func Rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "$1" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		if quote != 0 {
			// A doubled quote is an escaped quote and keeps us inside.
			b.WriteByte(c)
			if c == quote {
				if i+1 < len(query) && query[i+1] == quote {
					b.WriteByte(query[i+1])
					i++
				} else {
					quote = 0
				}
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			b.WriteByte(c)
			continue
		}
		if c != '$' || i+1 >= len(query) || query[i+1] < '0' || query[i+1] > '9' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		n := 0
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			n = n*10 + int(query[j]-'0')
			j++
		}
		b.WriteString(d.Placeholder(n))
		i = j - 1
	}
	return b.String()
}
