package repositories

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
)

// CatalogFilter restricts the measurement scan.
// A nil bound is open; UnresolvedOnly keeps only samples whose wide record
// has no ancestor yet.
type CatalogFilter struct {
	MinSampleID    *int64
	MaxSampleID    *int64
	UnresolvedOnly bool
}

// CatalogRepository reads the set of measurement labels present in the narrow table.
type CatalogRepository interface {
	// DistinctCategories returns the distinct labels, sorted ascending.
	DistinctCategories(ctx context.Context, filter CatalogFilter) ([]string, error)
}

type catalogRepository struct {
	exec store.Executor
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(exec store.Executor) CatalogRepository {
	return &catalogRepository{exec: exec}
}

var _ CatalogRepository = (*catalogRepository)(nil)

func (r *catalogRepository) DistinctCategories(ctx context.Context, filter CatalogFilter) ([]string, error) {
	var (
		conds []string
		args  []any
	)
	if filter.MinSampleID != nil {
		args = append(args, *filter.MinSampleID)
		conds = append(conds, "m.sample_id >= $"+strconv.Itoa(len(args)))
	}
	if filter.MaxSampleID != nil {
		args = append(args, *filter.MaxSampleID)
		conds = append(conds, "m.sample_id <= $"+strconv.Itoa(len(args)))
	}
	if filter.UnresolvedOnly {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM experiment_measurements w
			WHERE w.sample_id = m.sample_id AND w.top_parent_id IS NULL)`)
	}

	query := `SELECT DISTINCT m.measurement_type FROM sample_measurements m`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY m.measurement_type"

	rows, err := r.exec.Query(ctx, store.Rebind(r.exec.Dialect(), query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan measurement categories: %w", err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan measurement category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating measurement categories: %w", err)
	}
	return categories, nil
}
