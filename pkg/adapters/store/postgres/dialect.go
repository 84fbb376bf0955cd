package postgres

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

const (
	sqlStateDuplicateColumn = "42701"
	sqlStateNumericOverflow = "22003"
)

// Dialect renders PostgreSQL statements.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Dialect) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (Dialect) NumericType(precision, scale int) string {
	return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale)
}

func (Dialect) AddColumn(table, column, columnType string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", table, column, columnType)
}

func (d Dialect) UpdateFrom(u store.UpdateFrom) string {
	return store.RenderUpdateFrom(d, u)
}

func (Dialect) ListColumnsQuery() string {
	return `
		SELECT
			c.column_name::text,
			c.data_type::text,
			c.numeric_precision::int,
			c.numeric_scale::int
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema()
		  AND c.table_name::text = $1
		ORDER BY c.ordinal_position`
}

func (Dialect) IsDuplicateColumn(err error) bool {
	return hasSQLState(err, sqlStateDuplicateColumn)
}

func (Dialect) IsNumericOverflow(err error) bool {
	return hasSQLState(err, sqlStateNumericOverflow)
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

var _ store.Dialect = Dialect{}
