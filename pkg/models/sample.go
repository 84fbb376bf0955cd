package models

import "time"

// Sample is a node of the sample forest. Samples are created externally and never change.
type Sample struct {
	ID           int64     `json:"id"`
	ParentID     *int64    `json:"parent_id,omitempty"`
	ExperimentID *int64    `json:"experiment_id,omitempty"`
	CreatedAt    time.Time `json:"ts"`
}

// IsRoot returns true if the sample has no parent.
func (s *Sample) IsRoot() bool {
	return s.ParentID == nil
}

// Measurement is one narrow (sample, category, value) fact.
type Measurement struct {
	SampleID int64   `json:"sample_id"`
	Category string  `json:"measurement_type"`
	Value    float64 `json:"value"`
}

// WideRecord is the pivoted, per-sample row of experiment_measurements.
// TopParentID nil means the record has not been resolved yet.
// Values is keyed by column name; a nil entry is a SQL NULL.
type WideRecord struct {
	SampleID     int64               `json:"sample_id"`
	ExperimentID *int64              `json:"experiment_id,omitempty"`
	TopParentID  *int64              `json:"top_parent_id,omitempty"`
	Values       map[string]*float64 `json:"values"`
}

// IsResolved returns true once the root ancestor has been written.
func (w *WideRecord) IsResolved() bool {
	return w.TopParentID != nil
}

// Value returns the pivoted value of a column and whether it is non-null.
func (w *WideRecord) Value(column string) (float64, bool) {
	v, ok := w.Values[column]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Table and column names of the narrow and wide relations.
const (
	SamplesTable      = "samples"
	MeasurementsTable = "sample_measurements"
	WideTable         = "experiment_measurements"

	ColumnSampleID     = "sample_id"
	ColumnExperimentID = "experiment_id"
	ColumnTopParentID  = "top_parent_id"
)
