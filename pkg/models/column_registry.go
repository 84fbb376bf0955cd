package models

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	pivotsql "github.com/ekaya-inc/ekaya-pivot/pkg/sql"
)

const (
	// DefaultPrecision and DefaultScale describe the fixed-point type of measurement columns.
	DefaultPrecision = 16
	DefaultScale     = 6
)

// ColumnDescriptor describes one measurement column of the wide table.
type ColumnDescriptor struct {
	Category  string `json:"category" yaml:"category"`
	Name      string `json:"name" yaml:"name"`
	DataType  string `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	Precision int    `json:"precision" yaml:"precision"`
	Scale     int    `json:"scale" yaml:"scale"`
}

// LiveColumn is a column as reported by the store's introspection.
type LiveColumn struct {
	Name      string
	DataType  string
	Precision *int
	Scale     *int
}

// ColumnRegistry maps category labels to wide-table column descriptors.
// It is rebuilt from the live table structure on each run; Version changes
// whenever the set of measurement columns changes.
type ColumnRegistry struct {
	mu        sync.RWMutex
	precision int
	scale     int
	columns   map[string]ColumnDescriptor // keyed by lower-cased column name
	version   int
}

// NewColumnRegistry creates an empty registry for columns of NUMERIC(precision, scale).
func NewColumnRegistry(precision, scale int) *ColumnRegistry {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	if scale < 0 || scale > precision {
		scale = DefaultScale
	}
	return &ColumnRegistry{
		precision: precision,
		scale:     scale,
		columns:   make(map[string]ColumnDescriptor),
	}
}

// Precision returns the total digits of new measurement columns.
func (r *ColumnRegistry) Precision() int { return r.precision }

// Scale returns the fractional digits of new measurement columns.
func (r *ColumnRegistry) Scale() int { return r.scale }

// Version returns a counter that increases whenever the column set changes.
func (r *ColumnRegistry) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Reconcile replaces the registry contents with the measurement columns found
// in live. Non-measurement columns (keys, ancestor) are ignored.
func (r *ColumnRegistry) Reconcile(live []LiveColumn) {
	next := make(map[string]ColumnDescriptor, len(live))
	for _, c := range live {
		if !pivotsql.IsMeasurementColumn(c.Name) {
			continue
		}
		desc := ColumnDescriptor{
			Category:  c.Name[len(pivotsql.MeasurementColumnPrefix):],
			Name:      c.Name,
			DataType:  c.DataType,
			Precision: r.precision,
			Scale:     r.scale,
		}
		if c.Precision != nil {
			desc.Precision = *c.Precision
		}
		if c.Scale != nil {
			desc.Scale = *c.Scale
		}
		next[strings.ToLower(c.Name)] = desc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !sameKeys(r.columns, next) {
		r.version++
	}
	r.columns = next
}

// Missing returns descriptors for the labels whose column does not exist yet,
// sorted by column name. Labels that cannot be mapped, or two labels mapping to
// the same column, produce a CategoryError.
func (r *ColumnRegistry) Missing(categories []string) ([]ColumnDescriptor, error) {
	seen := make(map[string]string, len(categories))
	var missing []ColumnDescriptor

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, category := range categories {
		name, err := pivotsql.ColumnNameForCategory(category)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[name]; dup {
			if other == category {
				continue
			}
			return nil, &apperrors.CategoryError{
				Category: category,
				Reason:   fmt.Sprintf("maps to column %s already claimed by %q", name, other),
			}
		}
		seen[name] = category

		if _, ok := r.columns[name]; ok {
			continue
		}
		missing = append(missing, ColumnDescriptor{
			Category:  category,
			Name:      name,
			Precision: r.precision,
			Scale:     r.scale,
		})
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i].Name < missing[j].Name })
	return missing, nil
}

// MarkPresent records a column as existing after it was added (or found to exist).
func (r *ColumnRegistry) MarkPresent(desc ColumnDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(desc.Name)
	if _, ok := r.columns[key]; ok {
		return
	}
	r.columns[key] = desc
	r.version++
}

// Lookup returns the descriptor of a category's column if it exists.
func (r *ColumnRegistry) Lookup(category string) (ColumnDescriptor, bool) {
	name, err := pivotsql.ColumnNameForCategory(category)
	if err != nil {
		return ColumnDescriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.columns[name]
	return desc, ok
}

// Columns returns all known measurement columns sorted by name.
func (r *ColumnRegistry) Columns() []ColumnDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ColumnDescriptor, 0, len(r.columns))
	for _, c := range r.columns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sameKeys(a, b map[string]ColumnDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
