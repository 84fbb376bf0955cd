package sqlite

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

// Dialect renders SQLite statements. Requires SQLite 3.33 for UPDATE ... FROM.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

// Placeholder uses numbered parameters so a marker may appear out of
// argument order.
func (Dialect) Placeholder(n int) string { return "?" + strconv.Itoa(n) }

func (Dialect) QuoteIdent(name string) string { return store.QuoteDoubled(name) }

func (Dialect) NumericType(precision, scale int) string {
	return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale)
}

func (Dialect) AddColumn(table, column, columnType string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", table, column, columnType)
}

func (d Dialect) UpdateFrom(u store.UpdateFrom) string {
	return store.RenderUpdateFrom(d, u)
}

// ListColumnsQuery reports the declared type only; precision and scale are
// parsed from it by the caller.
func (Dialect) ListColumnsQuery() string {
	return `SELECT name, type, NULL, NULL FROM pragma_table_info(?) ORDER BY cid`
}

func (Dialect) IsDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

// IsNumericOverflow is always false: SQLite stores NUMERIC affinity values
// without enforcing the declared precision.
func (Dialect) IsNumericOverflow(error) bool { return false }

var _ store.Dialect = Dialect{}
