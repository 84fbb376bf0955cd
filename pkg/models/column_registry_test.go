package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
)

func intPtr(v int) *int { return &v }

func TestNewColumnRegistry_Defaults(t *testing.T) {
	r := NewColumnRegistry(0, -1)
	assert.Equal(t, DefaultPrecision, r.Precision())
	assert.Equal(t, DefaultScale, r.Scale())

	r = NewColumnRegistry(10, 12)
	assert.Equal(t, 10, r.Precision())
	assert.Equal(t, DefaultScale, r.Scale(), "scale above precision falls back to the default")
}

func TestColumnRegistry_Reconcile(t *testing.T) {
	r := NewColumnRegistry(16, 6)
	r.Reconcile([]LiveColumn{
		{Name: "sample_id", DataType: "bigint"},
		{Name: "experiment_id", DataType: "bigint"},
		{Name: "top_parent_id", DataType: "bigint"},
		{Name: "measurement_vol", DataType: "numeric", Precision: intPtr(16), Scale: intPtr(6)},
		{Name: "measurement_ph", DataType: "NUMERIC(10,2)", Precision: intPtr(10), Scale: intPtr(2)},
	})

	cols := r.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "measurement_ph", cols[0].Name)
	assert.Equal(t, "ph", cols[0].Category)
	assert.Equal(t, 10, cols[0].Precision)
	assert.Equal(t, 2, cols[0].Scale)
	assert.Equal(t, "measurement_vol", cols[1].Name)
	assert.Equal(t, 1, r.Version())

	// Same key set: no version bump
	r.Reconcile([]LiveColumn{{Name: "measurement_vol"}, {Name: "measurement_ph"}})
	assert.Equal(t, 1, r.Version())

	// Column dropped externally: version moves and the column is forgotten
	r.Reconcile([]LiveColumn{{Name: "measurement_vol"}})
	assert.Equal(t, 2, r.Version())
	_, ok := r.Lookup("ph")
	assert.False(t, ok)
}

func TestColumnRegistry_Missing(t *testing.T) {
	r := NewColumnRegistry(16, 6)
	r.Reconcile([]LiveColumn{{Name: "measurement_vol"}})

	missing, err := r.Missing([]string{"vol", "ph", "bar", "foo"})
	require.NoError(t, err)

	names := make([]string, 0, len(missing))
	for _, d := range missing {
		names = append(names, d.Name)
		assert.Equal(t, 16, d.Precision)
		assert.Equal(t, 6, d.Scale)
	}
	assert.Equal(t, []string{"measurement_bar", "measurement_foo", "measurement_ph"}, names)
}

func TestColumnRegistry_Missing_CaseFoldedCollision(t *testing.T) {
	r := NewColumnRegistry(16, 6)

	_, err := r.Missing([]string{"ph", "PH"})
	require.Error(t, err)

	var catErr *apperrors.CategoryError
	require.True(t, errors.As(err, &catErr))
	assert.Equal(t, "PH", catErr.Category)
	assert.Contains(t, catErr.Reason, "measurement_ph")
}

func TestColumnRegistry_Missing_DuplicateLabelIgnored(t *testing.T) {
	r := NewColumnRegistry(16, 6)
	missing, err := r.Missing([]string{"ph", "ph"})
	require.NoError(t, err)
	assert.Len(t, missing, 1)
}

func TestColumnRegistry_Missing_InvalidLabel(t *testing.T) {
	r := NewColumnRegistry(16, 6)
	_, err := r.Missing([]string{"vol", "bad label"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCategory)
}

func TestColumnRegistry_MarkPresentAndLookup(t *testing.T) {
	r := NewColumnRegistry(16, 6)
	desc := ColumnDescriptor{Category: "Smoot", Name: "measurement_smoot", Precision: 16, Scale: 6}

	r.MarkPresent(desc)
	assert.Equal(t, 1, r.Version())
	r.MarkPresent(desc)
	assert.Equal(t, 1, r.Version(), "marking twice is a no-op")

	got, ok := r.Lookup("smoot")
	require.True(t, ok)
	assert.Equal(t, "measurement_smoot", got.Name)

	got, ok = r.Lookup("SMOOT")
	require.True(t, ok, "lookup is case-folded")
	assert.Equal(t, "measurement_smoot", got.Name)

	_, ok = r.Lookup("not valid!")
	assert.False(t, ok)
}
