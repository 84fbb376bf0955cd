//go:build integration

package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
	"github.com/ekaya-inc/ekaya-pivot/pkg/testhelpers"
)

func TestPipelineService_Postgres_Chain(t *testing.T) {
	ctx := context.Background()
	exec := testhelpers.NewPostgresStore(t)
	seedChain(t, exec)

	run, err := NewPipelineService(exec, testPipelineConfig(), nil, zap.NewNop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, int64(2), run.Step(models.StepAncestorClosure).RowsAffected)

	rec := wideRecord(t, exec, 3, "measurement_vol", "measurement_ph")
	require.NotNil(t, rec.TopParentID)
	assert.Equal(t, int64(1), *rec.TopParentID)
	vol, ok := rec.Value("measurement_vol")
	assert.True(t, ok)
	assert.Equal(t, 7.25, vol)

	stored, err := repositories.NewPipelineRunRepository(exec).GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestPipelineService_Postgres_RandomForest(t *testing.T) {
	ctx := context.Background()
	exec := testhelpers.NewPostgresStore(t)
	forest := testhelpers.GenerateForest(1234, 5000)
	testhelpers.Seed(t, exec, forest)

	pipeline := NewPipelineService(exec, testPipelineConfig(), nil, zap.NewNop())
	_, err := pipeline.Run(ctx)
	require.NoError(t, err)

	byID := forest.ByID()
	for _, s := range forest.Samples {
		want, err := testhelpers.ExpectedRoot(byID, s.ID)
		require.NoError(t, err)
		rec := wideRecord(t, exec, s.ID, "measurement_vol")
		require.NotNil(t, rec.TopParentID, "sample %d", s.ID)
		require.Equal(t, want, *rec.TopParentID, "sample %d", s.ID)

		got, ok := rec.Value("measurement_vol")
		wantVol, measured := forest.MeasurementsOf(s.ID)["vol"]
		require.Equal(t, measured, ok, "sample %d", s.ID)
		if ok {
			require.InDelta(t, wantVol, got, 1e-6, "sample %d", s.ID)
		}
	}

	second, err := pipeline.Run(ctx)
	require.NoError(t, err)
	for _, step := range second.Steps {
		assert.Equal(t, int64(0), step.RowsAffected, "second run step %s", step.Name)
	}
}

func TestPipelineService_Postgres_CycleIsIntegrityFault(t *testing.T) {
	ctx := context.Background()
	exec := testhelpers.NewPostgresStore(t)
	seedSamples(t, exec,
		sample(1, nil),
		sample(2, testhelpers.Int64(3)),
		sample(3, testhelpers.Int64(2)),
		sample(5, testhelpers.Int64(99)),
	)

	_, err := NewPipelineService(exec, testPipelineConfig(), nil, zap.NewNop()).Run(ctx)
	var integrityErr *apperrors.IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, []int64{5}, integrityErr.OrphanKeys)
	assert.Equal(t, []int64{2, 3}, integrityErr.BlockedKeys)
}

// The server rejects the UPDATE itself here, so the overflow surfaces from the
// store rather than from the pre-check.
func TestPipelineService_Postgres_NumericOverflowFromStore(t *testing.T) {
	ctx := context.Background()
	exec := testhelpers.NewPostgresStore(t)
	wideRepo := repositories.NewWideRecordRepository(exec)

	seedSamples(t, exec, sample(1, nil))
	seedMeasurements(t, exec, models.Measurement{SampleID: 1, Category: "vol", Value: 2500000})
	_, err := wideRepo.InsertMissing(ctx)
	require.NoError(t, err)
	require.NoError(t, wideRepo.AddColumn(ctx, models.ColumnDescriptor{Name: "measurement_vol", Precision: 8, Scale: 2}))

	_, err = wideRepo.PivotCategory(ctx, "vol", "measurement_vol")
	var precisionErr *apperrors.PrecisionError
	require.ErrorAs(t, err, &precisionErr)
	assert.Equal(t, "measurement_vol", precisionErr.Column)
}

func TestSchemaEvolver_Postgres_ConcurrentEvolvers(t *testing.T) {
	ctx := context.Background()
	exec := testhelpers.NewPostgresStore(t)
	labels := []string{"a", "b", "c", "d", "e", "f"}

	var wg sync.WaitGroup
	results := make([]*models.EvolveResult, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			evolver := newTestEvolver(t, repositories.NewWideRecordRepository(exec), repositories.NewCatalogRepository(exec))
			results[i], errs[i] = evolver.EnsureColumns(ctx, labels)
		}(i)
	}
	wg.Wait()

	added := 0
	for i := range results {
		require.NoError(t, errs[i])
		added += len(results[i].Added)
	}
	assert.Equal(t, len(labels), added, "each column is created exactly once")

	cols, err := repositories.NewWideRecordRepository(exec).ListColumns(ctx)
	require.NoError(t, err)
	assert.Len(t, cols, 3+len(labels))
}
