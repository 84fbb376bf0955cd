package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
	"github.com/ekaya-inc/ekaya-pivot/pkg/services/dag"
)

const (
	// DefaultMaxClosurePasses bounds the closure loop when no limit is configured.
	DefaultMaxClosurePasses = 1000

	// MaxReportedKeys caps the sample ids carried by an IntegrityError.
	MaxReportedKeys = 20
)

// AncestorResolver writes each wide record's root ancestor.
type AncestorResolver interface {
	// ResolveRoots marks unresolved root samples as their own ancestor.
	ResolveRoots(ctx context.Context) (int64, error)

	// ResolveClosure runs one bulk pass per forest level until no unresolved
	// record remains. A pass that makes no progress while records remain
	// unresolved, or running out of passes, is a data-integrity fault.
	ResolveClosure(ctx context.Context, progress dag.ProgressCallback) (*models.ClosureResult, error)
}

type ancestorResolver struct {
	wideRepo  repositories.WideRecordRepository
	maxPasses int
	logger    *zap.Logger
}

// NewAncestorResolver creates a new ancestor resolver.
func NewAncestorResolver(wideRepo repositories.WideRecordRepository, maxPasses int, logger *zap.Logger) AncestorResolver {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxClosurePasses
	}
	return &ancestorResolver{
		wideRepo:  wideRepo,
		maxPasses: maxPasses,
		logger:    logger.Named("ancestor-resolver"),
	}
}

var _ AncestorResolver = (*ancestorResolver)(nil)

func (s *ancestorResolver) ResolveRoots(ctx context.Context) (int64, error) {
	return s.wideRepo.SetRootAncestors(ctx)
}

func (s *ancestorResolver) ResolveClosure(ctx context.Context, progress dag.ProgressCallback) (*models.ClosureResult, error) {
	result := &models.ClosureResult{}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		unresolved, err := s.wideRepo.CountUnresolved(ctx)
		if err != nil {
			return nil, err
		}
		result.Unresolved = unresolved
		if unresolved == 0 {
			return result, nil
		}

		if result.Passes >= s.maxPasses {
			return nil, s.integrityError(ctx, "closure pass limit reached", result)
		}

		updated, err := s.wideRepo.PropagateAncestors(ctx)
		if err != nil {
			return nil, err
		}
		result.Passes++
		result.RowsUpdated += updated

		s.logger.Debug("Closure pass complete",
			zap.Int("pass", result.Passes),
			zap.Int64("rows_affected", updated),
			zap.Int64("unresolved_before", unresolved))

		if updated == 0 {
			return nil, s.integrityError(ctx, "closure pass made no progress", result)
		}

		if progress != nil {
			progress(result.Passes, 0, fmt.Sprintf("resolved %d records", updated))
		}
	}
}

// integrityError classifies the unresolved records into orphans (parent id
// names no sample) and blocked keys (cycles and their descendants).
func (s *ancestorResolver) integrityError(ctx context.Context, reason string, result *models.ClosureResult) error {
	integrityErr := &apperrors.IntegrityError{
		Reason:     reason,
		Passes:     result.Passes,
		Unresolved: result.Unresolved,
	}

	if unresolved, err := s.wideRepo.CountUnresolved(ctx); err == nil {
		integrityErr.Unresolved = unresolved
	}

	orphans, err := s.wideRepo.FindOrphans(ctx, MaxReportedKeys)
	if err != nil {
		s.logger.Warn("Failed to list orphan samples", zap.Error(err))
	}
	integrityErr.OrphanKeys = orphans

	blocked, err := s.wideRepo.FindBlocked(ctx, MaxReportedKeys)
	if err != nil {
		s.logger.Warn("Failed to list blocked samples", zap.Error(err))
	}
	integrityErr.BlockedKeys = blocked

	s.logger.Error("Ancestor closure cannot terminate",
		zap.String("reason", reason),
		zap.Int("passes", integrityErr.Passes),
		zap.Int64("unresolved", integrityErr.Unresolved),
		zap.Int64s("orphan_keys", integrityErr.OrphanKeys),
		zap.Int64s("blocked_keys", integrityErr.BlockedKeys))

	return integrityErr
}
