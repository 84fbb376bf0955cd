package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
)

// RecordInitializer guarantees one wide record per sample.
type RecordInitializer interface {
	// Initialize inserts the missing wide records and returns how many were created.
	Initialize(ctx context.Context) (int64, error)
}

type recordInitializer struct {
	wideRepo repositories.WideRecordRepository
	logger   *zap.Logger
}

// NewRecordInitializer creates a new record initializer.
func NewRecordInitializer(wideRepo repositories.WideRecordRepository, logger *zap.Logger) RecordInitializer {
	return &recordInitializer{
		wideRepo: wideRepo,
		logger:   logger.Named("record-initializer"),
	}
}

var _ RecordInitializer = (*recordInitializer)(nil)

func (s *recordInitializer) Initialize(ctx context.Context) (int64, error) {
	inserted, err := s.wideRepo.InsertMissing(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Initialized wide records", zap.Int64("inserted", inserted))
	return inserted, nil
}
