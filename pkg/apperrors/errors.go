package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrColumnExists      = errors.New("column already exists")
	ErrDataIntegrity     = errors.New("data integrity fault")
	ErrPrecisionOverflow = errors.New("value exceeds fixed-point column range")
	ErrInvalidCategory   = errors.New("invalid measurement category")
	ErrUnknownDriver     = errors.New("unknown store driver")
)

// IntegrityError reports samples whose ancestor chain cannot terminate.
// OrphanKeys and BlockedKeys are capped samples; Unresolved is the full count.
type IntegrityError struct {
	Reason      string
	Passes      int
	Unresolved  int64
	OrphanKeys  []int64
	BlockedKeys []int64
}

func (e *IntegrityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s after %d closure passes, %d wide records unresolved",
		ErrDataIntegrity, e.Reason, e.Passes, e.Unresolved)
	if len(e.OrphanKeys) > 0 {
		fmt.Fprintf(&b, "; parent missing for samples %v", e.OrphanKeys)
	}
	if len(e.BlockedKeys) > 0 {
		fmt.Fprintf(&b, "; unterminated chains at samples %v", e.BlockedKeys)
	}
	return b.String()
}

func (e *IntegrityError) Unwrap() error { return ErrDataIntegrity }

// OverflowValue is a single measurement that does not fit its wide column.
type OverflowValue struct {
	SampleID int64
	Category string
	Value    string
}

// PrecisionError lists the measurement values rejected for one column write.
type PrecisionError struct {
	Column    string
	Precision int
	Scale     int
	Total     int
	Values    []OverflowValue
	Cause     error
}

func (e *PrecisionError) Error() string {
	msg := fmt.Sprintf("%s: column %s NUMERIC(%d,%d)", ErrPrecisionOverflow, e.Column, e.Precision, e.Scale)
	if e.Total > 0 {
		parts := make([]string, 0, len(e.Values))
		for _, v := range e.Values {
			parts = append(parts, fmt.Sprintf("sample %d=%s", v.SampleID, v.Value))
		}
		msg += fmt.Sprintf(", %d values out of range (%s)", e.Total, strings.Join(parts, ", "))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PrecisionError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrPrecisionOverflow, e.Cause}
	}
	return []error{ErrPrecisionOverflow}
}

// CategoryError reports a measurement label that cannot be mapped to a column.
type CategoryError struct {
	Category string
	Reason   string
}

func (e *CategoryError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidCategory, e.Category, e.Reason)
}

func (e *CategoryError) Unwrap() error { return ErrInvalidCategory }
