package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
)

const (
	// MeasurementColumnPrefix is prepended to every category label to form its wide column name.
	MeasurementColumnPrefix = "measurement_"

	// MaxCategoryLength keeps generated column names inside every supported engine's identifier limit.
	MaxCategoryLength = 48
)

var categoryPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateCategory checks that a measurement label can be used as part of a column identifier.
func ValidateCategory(category string) error {
	if category == "" {
		return &apperrors.CategoryError{Category: category, Reason: "empty label"}
	}
	if result := CheckCategoryForInjection(category); result != nil {
		return &apperrors.CategoryError{
			Category: category,
			Reason:   fmt.Sprintf("rejected by injection check (fingerprint %s)", result.Fingerprint),
		}
	}
	if len(category) > MaxCategoryLength {
		return &apperrors.CategoryError{
			Category: category,
			Reason:   fmt.Sprintf("longer than %d characters", MaxCategoryLength),
		}
	}
	if !categoryPattern.MatchString(category) {
		return &apperrors.CategoryError{Category: category, Reason: "only letters, digits and underscore are allowed"}
	}
	return nil
}

// ColumnNameForCategory maps a measurement label to its wide column name.
// The mapping is deterministic and case-folded so engines with
// case-insensitive identifiers agree on the name.
func ColumnNameForCategory(category string) (string, error) {
	if err := ValidateCategory(category); err != nil {
		return "", err
	}
	return MeasurementColumnPrefix + strings.ToLower(category), nil
}

// IsMeasurementColumn reports whether a wide-table column holds pivoted values.
func IsMeasurementColumn(column string) bool {
	return strings.HasPrefix(strings.ToLower(column), MeasurementColumnPrefix) &&
		len(column) > len(MeasurementColumnPrefix)
}
