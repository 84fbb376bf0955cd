package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-pivot/pkg/logging"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
)

// WideRecordRepository provides the set-based statements over experiment_measurements.
// Every method is a single autocommitted statement (or a read).
type WideRecordRepository interface {
	// Structure
	ListColumns(ctx context.Context) ([]models.LiveColumn, error)
	AddColumn(ctx context.Context, desc models.ColumnDescriptor) error

	// Records
	InsertMissing(ctx context.Context) (int64, error)
	CountTotal(ctx context.Context) (int64, error)
	CountUnresolved(ctx context.Context) (int64, error)
	GetBySampleID(ctx context.Context, sampleID int64, columns []string) (*models.WideRecord, error)

	// Pivot
	PrecisionViolations(ctx context.Context, category string, precision, scale, limit int) (int, []apperrors.OverflowValue, error)
	PivotCategory(ctx context.Context, category, column string) (int64, error)

	// Ancestors
	SetRootAncestors(ctx context.Context) (int64, error)
	PropagateAncestors(ctx context.Context) (int64, error)
	FindOrphans(ctx context.Context, limit int) ([]int64, error)
	FindBlocked(ctx context.Context, limit int) ([]int64, error)
}

type wideRecordRepository struct {
	exec store.Executor
}

// NewWideRecordRepository creates a new WideRecordRepository.
func NewWideRecordRepository(exec store.Executor) WideRecordRepository {
	return &wideRecordRepository{exec: exec}
}

var _ WideRecordRepository = (*wideRecordRepository)(nil)

// typeModifier extracts "(p,s)" from declared types such as NUMERIC(16,6).
var typeModifier = regexp.MustCompile(`\(\s*(\d+)\s*,\s*(\d+)\s*\)`)

// ============================================================================
// Structure
// ============================================================================

func (r *wideRecordRepository) ListColumns(ctx context.Context) ([]models.LiveColumn, error) {
	rows, err := r.exec.Query(ctx, r.exec.Dialect().ListColumnsQuery(), models.WideTable)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", models.WideTable, err)
	}
	defer rows.Close()

	var columns []models.LiveColumn
	for rows.Next() {
		var c models.LiveColumn
		if err := rows.Scan(&c.Name, &c.DataType, &c.Precision, &c.Scale); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if c.Precision == nil {
			if m := typeModifier.FindStringSubmatch(c.DataType); m != nil {
				p, _ := strconv.Atoi(m[1])
				s, _ := strconv.Atoi(m[2])
				c.Precision, c.Scale = &p, &s
			}
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s: %w (run migrations first)", models.WideTable, apperrors.ErrNotFound)
	}
	return columns, nil
}

// AddColumn adds one nullable fixed-point column. A column that already exists
// is reported as apperrors.ErrColumnExists.
func (r *wideRecordRepository) AddColumn(ctx context.Context, desc models.ColumnDescriptor) error {
	d := r.exec.Dialect()
	query := d.AddColumn(models.WideTable, d.QuoteIdent(desc.Name), d.NumericType(desc.Precision, desc.Scale))

	if _, err := r.exec.Exec(ctx, query); err != nil {
		if d.IsDuplicateColumn(err) {
			return fmt.Errorf("%s: %w", desc.Name, apperrors.ErrColumnExists)
		}
		return fmt.Errorf("failed to add column %s: %w", desc.Name, err)
	}
	return nil
}

// ============================================================================
// Records
// ============================================================================

func (r *wideRecordRepository) InsertMissing(ctx context.Context) (int64, error) {
	query := `
		INSERT INTO experiment_measurements (sample_id, experiment_id)
		SELECT s.id, s.experiment_id
		FROM samples s
		WHERE NOT EXISTS (
			SELECT 1 FROM experiment_measurements w WHERE w.sample_id = s.id
		)`

	n, err := r.exec.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize wide records: %w", err)
	}
	return n, nil
}

func (r *wideRecordRepository) CountTotal(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM experiment_measurements`)
}

func (r *wideRecordRepository) CountUnresolved(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM experiment_measurements WHERE top_parent_id IS NULL`)
}

func (r *wideRecordRepository) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := r.exec.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count wide records: %w", err)
	}
	return n, nil
}

// GetBySampleID loads one wide record with the given measurement columns.
// Returns apperrors.ErrNotFound if the sample has no wide record.
func (r *wideRecordRepository) GetBySampleID(ctx context.Context, sampleID int64, columns []string) (*models.WideRecord, error) {
	d := r.exec.Dialect()

	selectList := []string{"sample_id", "experiment_id", "top_parent_id"}
	for _, c := range columns {
		selectList = append(selectList, d.QuoteIdent(c))
	}
	query := fmt.Sprintf("SELECT %s FROM experiment_measurements WHERE sample_id = $1",
		strings.Join(selectList, ", "))

	rec := &models.WideRecord{Values: make(map[string]*float64, len(columns))}
	values := make([]*float64, len(columns))
	dest := []any{&rec.SampleID, &rec.ExperimentID, &rec.TopParentID}
	for i := range values {
		dest = append(dest, &values[i])
	}

	if err := r.exec.QueryRow(ctx, store.Rebind(d, query), sampleID).Scan(dest...); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("wide record for sample %d: %w", sampleID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wide record: %w", err)
	}
	for i, c := range columns {
		rec.Values[c] = values[i]
	}
	return rec, nil
}

// ============================================================================
// Pivot
// ============================================================================

// PrecisionViolations finds values of category, belonging to unresolved
// records, whose integer part does not fit NUMERIC(precision, scale).
// Returns the total count and at most limit examples ordered by sample id.
func (r *wideRecordRepository) PrecisionViolations(ctx context.Context, category string, precision, scale, limit int) (int, []apperrors.OverflowValue, error) {
	bound := "1" + strings.Repeat("0", precision-scale)
	query := fmt.Sprintf(`
		SELECT m.sample_id, CAST(m.value AS VARCHAR(64))
		FROM sample_measurements m
		JOIN experiment_measurements w ON w.sample_id = m.sample_id
		WHERE m.measurement_type = $1
		  AND w.top_parent_id IS NULL
		  AND ABS(m.value) >= %s
		ORDER BY m.sample_id`, bound)

	rows, err := r.exec.Query(ctx, store.Rebind(r.exec.Dialect(), query), category)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to check precision of %q: %w", category, err)
	}
	defer rows.Close()

	total := 0
	var values []apperrors.OverflowValue
	for rows.Next() {
		total++
		if len(values) >= limit {
			continue
		}
		v := apperrors.OverflowValue{Category: category}
		if err := rows.Scan(&v.SampleID, &v.Value); err != nil {
			return 0, nil, fmt.Errorf("failed to scan overflow value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("error iterating overflow values: %w", err)
	}
	return total, values, nil
}

// PivotCategory copies the values of one label into its column for every
// unresolved wide record. Rows already holding the value are not rewritten.
func (r *wideRecordRepository) PivotCategory(ctx context.Context, category, column string) (int64, error) {
	d := r.exec.Dialect()
	col := "w." + d.QuoteIdent(column)
	query := d.UpdateFrom(store.UpdateFrom{
		Table: models.WideTable,
		Alias: "w",
		Set:   []store.Assignment{{Column: column, Expr: "m.value"}},
		From:  []string{"sample_measurements AS m"},
		Where: fmt.Sprintf(`m.sample_id = w.sample_id
			AND m.measurement_type = $1
			AND w.top_parent_id IS NULL
			AND (%[1]s IS NULL OR %[1]s <> m.value)`, col),
	})

	n, err := r.exec.Exec(ctx, store.Rebind(d, query), category)
	if err != nil {
		if d.IsNumericOverflow(err) {
			return 0, &apperrors.PrecisionError{Column: column, Cause: err}
		}
		return 0, statementError(fmt.Sprintf("pivot %q into %s", category, column), query, err)
	}
	return n, nil
}

// ============================================================================
// Ancestors
// ============================================================================

func (r *wideRecordRepository) SetRootAncestors(ctx context.Context) (int64, error) {
	query := `
		UPDATE experiment_measurements
		SET top_parent_id = sample_id
		WHERE top_parent_id IS NULL
		  AND sample_id IN (SELECT id FROM samples WHERE parent_id IS NULL)`

	n, err := r.exec.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve root ancestors: %w", err)
	}
	return n, nil
}

// PropagateAncestors runs one closure pass: every unresolved record whose
// parent is resolved inherits the parent's ancestor.
func (r *wideRecordRepository) PropagateAncestors(ctx context.Context) (int64, error) {
	query := r.exec.Dialect().UpdateFrom(store.UpdateFrom{
		Table: models.WideTable,
		Alias: "w",
		Set:   []store.Assignment{{Column: models.ColumnTopParentID, Expr: "p.top_parent_id"}},
		From:  []string{"samples AS s", "experiment_measurements AS p"},
		Where: `w.sample_id = s.id
			AND p.sample_id = s.parent_id
			AND w.top_parent_id IS NULL
			AND p.top_parent_id IS NOT NULL`,
	})

	n, err := r.exec.Exec(ctx, query)
	if err != nil {
		return 0, statementError("propagate ancestors", query, err)
	}
	return n, nil
}

// FindOrphans returns unresolved samples whose parent id names no sample.
func (r *wideRecordRepository) FindOrphans(ctx context.Context, limit int) ([]int64, error) {
	return r.sampleIDs(ctx, `
		SELECT s.id
		FROM samples s
		JOIN experiment_measurements w ON w.sample_id = s.id
		WHERE w.top_parent_id IS NULL
		  AND s.parent_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM samples p WHERE p.id = s.parent_id)
		ORDER BY s.id`, limit)
}

// FindBlocked returns unresolved samples whose parent exists but can never be
// resolved: members of cycles and descendants of faulty chains.
func (r *wideRecordRepository) FindBlocked(ctx context.Context, limit int) ([]int64, error) {
	return r.sampleIDs(ctx, `
		SELECT w.sample_id
		FROM experiment_measurements w
		WHERE w.top_parent_id IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM samples s
			WHERE s.id = w.sample_id
			  AND s.parent_id IS NOT NULL
			  AND NOT EXISTS (SELECT 1 FROM samples p WHERE p.id = s.parent_id)
		  )
		ORDER BY w.sample_id`, limit)
}

func (r *wideRecordRepository) sampleIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	rows, err := r.exec.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved samples: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		if len(ids) >= limit {
			break
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan sample id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unresolved samples: %w", err)
	}
	return ids, nil
}

// statementError wraps a failed bulk statement with its sanitized text.
func statementError(action, query string, err error) error {
	return fmt.Errorf("failed to %s [%s]: %w", action, logging.SanitizeQuery(query), err)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
