package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
	"github.com/ekaya-inc/ekaya-pivot/pkg/services/dag"
)

// MaxReportedOverflows caps the example values carried by a PrecisionError.
const MaxReportedOverflows = 100

// ValuePivotLoader copies narrow measurements into the wide table's columns.
type ValuePivotLoader interface {
	// Load pivots every label measured on an unresolved sample. One bulk
	// statement runs per label; resolved records are never rewritten.
	Load(ctx context.Context, progress dag.ProgressCallback) (*models.PivotResult, error)
}

type valuePivotLoader struct {
	catalog  CatalogService
	evolver  SchemaEvolver
	wideRepo repositories.WideRecordRepository
	logger   *zap.Logger
}

// NewValuePivotLoader creates a new value pivot loader.
func NewValuePivotLoader(
	catalog CatalogService,
	evolver SchemaEvolver,
	wideRepo repositories.WideRecordRepository,
	logger *zap.Logger,
) ValuePivotLoader {
	return &valuePivotLoader{
		catalog:  catalog,
		evolver:  evolver,
		wideRepo: wideRepo,
		logger:   logger.Named("value-pivot"),
	}
}

var _ ValuePivotLoader = (*valuePivotLoader)(nil)

func (s *valuePivotLoader) Load(ctx context.Context, progress dag.ProgressCallback) (*models.PivotResult, error) {
	result := &models.PivotResult{PerCategory: make(map[string]int64)}

	unresolved, err := s.wideRepo.CountUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	result.Unresolved = unresolved
	if unresolved == 0 {
		s.logger.Info("No unresolved wide records to pivot")
		return result, nil
	}

	categories, err := s.catalog.Categories(ctx, repositories.CatalogFilter{UnresolvedOnly: true})
	if err != nil {
		return nil, err
	}
	result.Categories = categories
	if len(categories) == 0 {
		return result, nil
	}

	evolved, err := s.evolver.EnsureColumns(ctx, categories)
	if err != nil {
		return nil, err
	}
	result.ColumnsAdded = evolved.ColumnsChanged()

	s.logger.Info("Populating measurements",
		zap.Int("categories", len(categories)),
		zap.Int64("unresolved", unresolved))

	registry := s.evolver.Registry()
	for i, category := range categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		desc, ok := registry.Lookup(category)
		if !ok {
			return nil, fmt.Errorf("no column registered for %q after schema evolution", category)
		}

		total, values, err := s.wideRepo.PrecisionViolations(ctx, category, desc.Precision, desc.Scale, MaxReportedOverflows)
		if err != nil {
			return nil, err
		}
		if total > 0 {
			return nil, &apperrors.PrecisionError{
				Column:    desc.Name,
				Precision: desc.Precision,
				Scale:     desc.Scale,
				Total:     total,
				Values:    values,
			}
		}

		rows, err := s.wideRepo.PivotCategory(ctx, category, desc.Name)
		if err != nil {
			var precErr *apperrors.PrecisionError
			if errors.As(err, &precErr) {
				precErr.Precision, precErr.Scale = desc.Precision, desc.Scale
			}
			return nil, err
		}

		result.PerCategory[category] = rows
		result.RowsUpdated += rows
		s.logger.Debug("Pivoted measurement category",
			zap.String("category", category),
			zap.String("column", desc.Name),
			zap.Int64("rows_affected", rows))

		if progress != nil {
			progress(i+1, len(categories), fmt.Sprintf("Pivoted %s (%d rows)", category, rows))
		}
	}

	return result, nil
}
