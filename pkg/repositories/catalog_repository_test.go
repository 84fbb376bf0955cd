package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/testhelpers"
)

func seedCatalog(t *testing.T) store.Executor {
	t.Helper()
	ctx := context.Background()
	exec := testhelpers.NewSQLiteStore(t)

	require.NoError(t, testhelpers.InsertSamples(ctx, exec,
		models.Sample{ID: 1},
		models.Sample{ID: 2, ParentID: testhelpers.Int64(1)},
		models.Sample{ID: 3, ParentID: testhelpers.Int64(1)},
	))
	require.NoError(t, testhelpers.InsertMeasurements(ctx, exec,
		models.Measurement{SampleID: 1, Category: "vol", Value: 1},
		models.Measurement{SampleID: 2, Category: "ph", Value: 2},
		models.Measurement{SampleID: 2, Category: "vol", Value: 3},
		models.Measurement{SampleID: 3, Category: "temp", Value: 4},
	))
	return exec
}

func TestCatalogRepository_DistinctCategories(t *testing.T) {
	ctx := context.Background()
	exec := seedCatalog(t)
	repo := NewCatalogRepository(exec)

	all, err := repo.DistinctCategories(ctx, CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ph", "temp", "vol"}, all)

	ranged, err := repo.DistinctCategories(ctx, CatalogFilter{
		MinSampleID: testhelpers.Int64(2),
		MaxSampleID: testhelpers.Int64(2),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ph", "vol"}, ranged)

	above, err := repo.DistinctCategories(ctx, CatalogFilter{MinSampleID: testhelpers.Int64(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"temp"}, above)
}

func TestCatalogRepository_UnresolvedOnly(t *testing.T) {
	ctx := context.Background()
	exec := seedCatalog(t)
	repo := NewCatalogRepository(exec)

	// No wide records yet
	none, err := repo.DistinctCategories(ctx, CatalogFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)

	wideRepo := NewWideRecordRepository(exec)
	_, err = wideRepo.InsertMissing(ctx)
	require.NoError(t, err)
	_, err = wideRepo.SetRootAncestors(ctx)
	require.NoError(t, err)

	unresolved, err := repo.DistinctCategories(ctx, CatalogFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"ph", "temp", "vol"}, unresolved)

	_, err = wideRepo.PropagateAncestors(ctx)
	require.NoError(t, err)

	resolved, err := repo.DistinctCategories(ctx, CatalogFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
