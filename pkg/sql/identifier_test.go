package sql

import (
	"errors"
	"strings"
	"testing"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
)

func TestColumnNameForCategory(t *testing.T) {
	tests := []struct {
		category string
		expected string
		wantErr  bool
	}{
		{category: "vol", expected: "measurement_vol"},
		{category: "pH", expected: "measurement_ph"},
		{category: "cell_count_2", expected: "measurement_cell_count_2"},
		{category: "", wantErr: true},
		{category: "with space", wantErr: true},
		{category: "dash-ed", wantErr: true},
		{category: "quote\"d", wantErr: true},
		{category: "semi;colon", wantErr: true},
		{category: "ünicode", wantErr: true},
		{category: strings.Repeat("a", MaxCategoryLength), expected: MeasurementColumnPrefix + strings.Repeat("a", MaxCategoryLength)},
		{category: strings.Repeat("a", MaxCategoryLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got, err := ColumnNameForCategory(tt.category)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got column %q", tt.category, got)
				}
				var catErr *apperrors.CategoryError
				if !errors.As(err, &catErr) {
					t.Errorf("expected CategoryError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ColumnNameForCategory(%q) = %q, want %q", tt.category, got, tt.expected)
			}
		})
	}
}

func TestValidateCategory_InjectionReportsFingerprint(t *testing.T) {
	err := ValidateCategory("' OR '1'='1")
	if err == nil {
		t.Fatal("expected injection to be rejected")
	}
	if !errors.Is(err, apperrors.ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
	if !strings.Contains(err.Error(), "fingerprint") {
		t.Errorf("expected fingerprint in error, got %v", err)
	}
}

func TestIsMeasurementColumn(t *testing.T) {
	tests := map[string]bool{
		"measurement_vol": true,
		"MEASUREMENT_PH":  true,
		"measurement_":    false,
		"sample_id":       false,
		"top_parent_id":   false,
		"experiment_id":   false,
	}
	for column, want := range tests {
		if got := IsMeasurementColumn(column); got != want {
			t.Errorf("IsMeasurementColumn(%q) = %v, want %v", column, got, want)
		}
	}
}
