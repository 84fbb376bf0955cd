package mssql

import (
	"errors"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

const (
	errColumnNamesMustBeUnique = 2705
	errArithmeticOverflow      = 8115
)

// Dialect renders T-SQL statements.
type Dialect struct{}

func (Dialect) Name() string { return "sqlserver" }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// QuoteIdent wraps the name in brackets, doubling any closing bracket.
func (Dialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (Dialect) NumericType(precision, scale int) string {
	return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
}

// AddColumn omits the COLUMN keyword, which T-SQL rejects.
func (Dialect) AddColumn(table, column, columnType string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s %s NULL", table, column, columnType)
}

// UpdateFrom renders the T-SQL form, where the target is named by its alias
// and declared in the FROM list:
//
//	UPDATE w SET w.[c] = e FROM [t] AS w, ... WHERE ...
func (d Dialect) UpdateFrom(u store.UpdateFrom) string {
	sets := make([]string, len(u.Set))
	for i, a := range u.Set {
		sets[i] = u.Alias + "." + d.QuoteIdent(a.Column) + " = " + a.Expr
	}
	from := append([]string{u.Table + " AS " + u.Alias}, u.From...)

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s FROM %s", u.Alias, strings.Join(sets, ", "), strings.Join(from, ", "))
	if u.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(u.Where)
	}
	return b.String()
}

func (Dialect) ListColumnsQuery() string {
	return `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			CAST(NUMERIC_PRECISION AS INT),
			CAST(NUMERIC_SCALE AS INT)
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = SCHEMA_NAME()
		  AND TABLE_NAME = @p1
		ORDER BY ORDINAL_POSITION`
}

func (Dialect) IsDuplicateColumn(err error) bool {
	return hasErrorNumber(err, errColumnNamesMustBeUnique)
}

func (Dialect) IsNumericOverflow(err error) bool {
	return hasErrorNumber(err, errArithmeticOverflow)
}

func hasErrorNumber(err error, number int32) bool {
	var msErr mssqldb.Error
	if errors.As(err, &msErr) {
		return msErr.Number == number
	}
	return false
}

var _ store.Dialect = Dialect{}
