package testhelpers

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
)

// RareCategories are the occasional labels attached to about a fifth of the samples.
var RareCategories = []string{"smoot", "foo", "bar", "len", "area"}

// Forest is a generated sample forest with its narrow measurements.
type Forest struct {
	Samples      []models.Sample
	Measurements []models.Measurement
}

// ByID indexes the forest's samples.
func (f *Forest) ByID() map[int64]models.Sample {
	m := make(map[int64]models.Sample, len(f.Samples))
	for _, s := range f.Samples {
		m[s.ID] = s
	}
	return m
}

// MeasurementsOf returns the measurements of one sample keyed by label.
func (f *Forest) MeasurementsOf(sampleID int64) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range f.Measurements {
		if m.SampleID == sampleID {
			out[m.Category] = m.Value
		}
	}
	return out
}

// GenerateForest builds n samples with a fixed seed. Each sample is a root with
// 5% probability, otherwise its parent is one of the previous 100 samples.
// Samples above id 20 get a "vol" value (95%), a "ph" value (70%) and a rare
// label (20%).
func GenerateForest(seed int64, n int) *Forest {
	rng := rand.New(rand.NewSource(seed))
	f := &Forest{}

	for id := int64(1); id <= int64(n); id++ {
		s := models.Sample{ID: id}
		experiment := (id % 20) + id/1000 + 1
		s.ExperimentID = &experiment
		if id > 1 && rng.Float64() <= 0.95 {
			lo := id - 100
			if lo < 1 {
				lo = 1
			}
			parent := lo + rng.Int63n(id-lo)
			s.ParentID = &parent
		}
		f.Samples = append(f.Samples, s)
	}

	for _, s := range f.Samples {
		if s.ID <= 20 {
			continue
		}
		if rng.Float64() < 0.95 {
			f.Measurements = append(f.Measurements, models.Measurement{SampleID: s.ID, Category: "vol", Value: roundValue(rng.Float64() * 100)})
		}
		if rng.Float64() < 0.7 {
			f.Measurements = append(f.Measurements, models.Measurement{SampleID: s.ID, Category: "ph", Value: roundValue(rng.Float64() * 100)})
		}
		if rng.Float64() < 0.2 {
			category := RareCategories[rng.Intn(len(RareCategories))]
			f.Measurements = append(f.Measurements, models.Measurement{SampleID: s.ID, Category: category, Value: 1})
		}
	}
	return f
}

// roundValue keeps values exactly representable at scale 3 so comparisons
// after a NUMERIC round trip are exact.
func roundValue(v float64) float64 {
	return float64(int64(v*1000)) / 1000
}

// ExpectedRoot walks parent links in memory. The walk is bounded by the number
// of samples so a cycle is reported instead of looping.
func ExpectedRoot(samples map[int64]models.Sample, id int64) (int64, error) {
	current := id
	for steps := 0; steps <= len(samples); steps++ {
		s, ok := samples[current]
		if !ok {
			return 0, fmt.Errorf("sample %d: parent chain references missing sample %d", id, current)
		}
		if s.ParentID == nil {
			return s.ID, nil
		}
		current = *s.ParentID
	}
	return 0, fmt.Errorf("sample %d: parent chain does not terminate", id)
}

// Seed inserts the forest into the store in batches.
func Seed(t *testing.T, exec store.Executor, f *Forest) {
	t.Helper()
	require.NoError(t, InsertSamples(context.Background(), exec, f.Samples...))
	require.NoError(t, InsertMeasurements(context.Background(), exec, f.Measurements...))
}

const insertBatchSize = 400

// InsertSamples inserts samples with multi-row INSERT statements.
func InsertSamples(ctx context.Context, exec store.Executor, samples ...models.Sample) error {
	for start := 0; start < len(samples); start += insertBatchSize {
		end := min(start+insertBatchSize, len(samples))
		var (
			values []string
			args   []any
		)
		for _, s := range samples[start:end] {
			n := len(args)
			values = append(values, fmt.Sprintf("($%d, $%d, $%d)", n+1, n+2, n+3))
			args = append(args, s.ID, s.ParentID, s.ExperimentID)
		}
		query := "INSERT INTO samples (id, parent_id, experiment_id) VALUES " + strings.Join(values, ", ")
		if _, err := exec.Exec(ctx, store.Rebind(exec.Dialect(), query), args...); err != nil {
			return fmt.Errorf("insert samples: %w", err)
		}
	}
	return nil
}

// InsertMeasurements inserts measurements with multi-row INSERT statements.
func InsertMeasurements(ctx context.Context, exec store.Executor, measurements ...models.Measurement) error {
	for start := 0; start < len(measurements); start += insertBatchSize {
		end := min(start+insertBatchSize, len(measurements))
		var (
			values []string
			args   []any
		)
		for _, m := range measurements[start:end] {
			n := len(args)
			values = append(values, fmt.Sprintf("($%d, $%d, $%d)", n+1, n+2, n+3))
			args = append(args, m.SampleID, m.Category, m.Value)
		}
		query := "INSERT INTO sample_measurements (sample_id, measurement_type, value) VALUES " + strings.Join(values, ", ")
		if _, err := exec.Exec(ctx, store.Rebind(exec.Dialect(), query), args...); err != nil {
			return fmt.Errorf("insert measurements: %w", err)
		}
	}
	return nil
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
