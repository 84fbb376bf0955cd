package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
)

// SchemaEvolver keeps the wide table's measurement columns a superset of the
// observed labels. Changes are additive only.
type SchemaEvolver interface {
	// Evolve adds columns for every label in the catalog.
	Evolve(ctx context.Context) (*models.EvolveResult, error)

	// EnsureColumns adds columns for the given labels.
	EnsureColumns(ctx context.Context, categories []string) (*models.EvolveResult, error)

	// Registry returns the label-to-column mapping as of the last reconciliation.
	Registry() *models.ColumnRegistry
}

type schemaEvolver struct {
	catalog  CatalogService
	wideRepo repositories.WideRecordRepository
	registry *models.ColumnRegistry
	logger   *zap.Logger

	// mu serializes reconcile+alter within this process; concurrent processes
	// are handled by treating "column already exists" as success.
	mu sync.Mutex
}

// NewSchemaEvolver creates a new schema evolver over registry.
func NewSchemaEvolver(
	catalog CatalogService,
	wideRepo repositories.WideRecordRepository,
	registry *models.ColumnRegistry,
	logger *zap.Logger,
) SchemaEvolver {
	return &schemaEvolver{
		catalog:  catalog,
		wideRepo: wideRepo,
		registry: registry,
		logger:   logger.Named("schema-evolver"),
	}
}

var _ SchemaEvolver = (*schemaEvolver)(nil)

func (s *schemaEvolver) Registry() *models.ColumnRegistry {
	return s.registry
}

func (s *schemaEvolver) Evolve(ctx context.Context) (*models.EvolveResult, error) {
	categories, err := s.catalog.Categories(ctx, repositories.CatalogFilter{})
	if err != nil {
		return nil, err
	}
	return s.EnsureColumns(ctx, categories)
}

func (s *schemaEvolver) EnsureColumns(ctx context.Context, categories []string) (*models.EvolveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.wideRepo.ListColumns(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect wide table: %w", err)
	}
	s.registry.Reconcile(live)

	result := &models.EvolveResult{Categories: len(categories)}

	missing, err := s.registry.Missing(categories)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		result.RegistryVersion = s.registry.Version()
		return result, nil
	}

	s.logger.Info("Populating new measurement columns", zap.Int("count", len(missing)))

	for _, desc := range missing {
		err := s.wideRepo.AddColumn(ctx, desc)
		switch {
		case err == nil:
			result.Added = append(result.Added, desc.Name)
			s.logger.Info("Added measurement column",
				zap.String("category", desc.Category),
				zap.String("column", desc.Name))
		case errors.Is(err, apperrors.ErrColumnExists):
			result.AlreadyPresent = append(result.AlreadyPresent, desc.Name)
			s.logger.Debug("Measurement column added concurrently",
				zap.String("column", desc.Name))
		default:
			return nil, err
		}
		s.registry.MarkPresent(desc)
	}

	result.RegistryVersion = s.registry.Version()
	return result, nil
}
