package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntegrityError(t *testing.T) {
	err := &IntegrityError{
		Reason:      "closure pass made no progress",
		Passes:      3,
		Unresolved:  4,
		OrphanKeys:  []int64{30},
		BlockedKeys: []int64{21, 22},
	}

	wrapped := fmt.Errorf("ancestor closure: %w", err)
	assert.True(t, errors.Is(wrapped, ErrDataIntegrity))

	var target *IntegrityError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, []int64{21, 22}, target.BlockedKeys)

	msg := err.Error()
	assert.Contains(t, msg, "closure pass made no progress after 3 closure passes, 4 wide records unresolved")
	assert.Contains(t, msg, "parent missing for samples [30]")
	assert.Contains(t, msg, "unterminated chains at samples [21 22]")
}

func TestPrecisionError(t *testing.T) {
	cause := errors.New("numeric field overflow")
	err := &PrecisionError{
		Column:    "measurement_vol",
		Precision: 16,
		Scale:     6,
		Total:     2,
		Values: []OverflowValue{
			{SampleID: 7, Category: "vol", Value: "1e+12"},
			{SampleID: 9, Category: "vol", Value: "5e+15"},
		},
		Cause: cause,
	}

	assert.True(t, errors.Is(err, ErrPrecisionOverflow))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "column measurement_vol NUMERIC(16,6), 2 values out of range (sample 7=1e+12, sample 9=5e+15)")

	bare := &PrecisionError{Column: "measurement_ph", Precision: 4, Scale: 2}
	assert.True(t, errors.Is(bare, ErrPrecisionOverflow))
	assert.NotContains(t, bare.Error(), "values out of range")
}

func TestCategoryError(t *testing.T) {
	err := fmt.Errorf("schema evolution: %w", &CategoryError{Category: "a b", Reason: "only letters, digits and underscore are allowed"})
	assert.True(t, errors.Is(err, ErrInvalidCategory))
	assert.Contains(t, err.Error(), `invalid measurement category "a b"`)
}
