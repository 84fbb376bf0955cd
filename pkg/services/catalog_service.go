package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
	pivotsql "github.com/ekaya-inc/ekaya-pivot/pkg/sql"
)

// CatalogService reports which measurement labels exist in the narrow table.
type CatalogService interface {
	// Categories returns the sorted distinct labels matching filter.
	// Zero labels is an empty slice, not an error.
	Categories(ctx context.Context, filter repositories.CatalogFilter) ([]string, error)
}

type catalogService struct {
	catalogRepo repositories.CatalogRepository
	logger      *zap.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(catalogRepo repositories.CatalogRepository, logger *zap.Logger) CatalogService {
	return &catalogService{
		catalogRepo: catalogRepo,
		logger:      logger.Named("catalog"),
	}
}

var _ CatalogService = (*catalogService)(nil)

func (s *catalogService) Categories(ctx context.Context, filter repositories.CatalogFilter) ([]string, error) {
	categories, err := s.catalogRepo.DistinctCategories(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("scan measurement catalog: %w", err)
	}

	for _, flagged := range pivotsql.CheckAllCategories(categories) {
		s.logger.Warn("Measurement label looks like SQL injection",
			zap.String("category", flagged.Category),
			zap.String("fingerprint", flagged.Fingerprint))
	}

	s.logger.Debug("Scanned measurement catalog",
		zap.Int("categories", len(categories)),
		zap.Bool("unresolved_only", filter.UnresolvedOnly))
	return categories, nil
}
