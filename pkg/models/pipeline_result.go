package models

// EvolveResult summarizes one schema-evolution pass.
type EvolveResult struct {
	Categories      int      `json:"categories" yaml:"categories"`
	Added           []string `json:"added,omitempty" yaml:"added,omitempty"`
	AlreadyPresent  []string `json:"already_present,omitempty" yaml:"already_present,omitempty"`
	RegistryVersion int      `json:"registry_version" yaml:"registry_version"`
}

// ColumnsChanged returns the number of columns this pass created.
func (r *EvolveResult) ColumnsChanged() int {
	if r == nil {
		return 0
	}
	return len(r.Added)
}

// PivotResult summarizes one value-pivot pass.
type PivotResult struct {
	Unresolved   int64            `json:"unresolved" yaml:"unresolved"`
	Categories   []string         `json:"categories,omitempty" yaml:"categories,omitempty"`
	ColumnsAdded int              `json:"columns_added" yaml:"columns_added"`
	RowsUpdated  int64            `json:"rows_updated" yaml:"rows_updated"`
	PerCategory  map[string]int64 `json:"per_category,omitempty" yaml:"per_category,omitempty"`
}

// ClosureResult summarizes the ancestor-closure loop.
type ClosureResult struct {
	Passes      int   `json:"passes" yaml:"passes"`
	RowsUpdated int64 `json:"rows_updated" yaml:"rows_updated"`
	Unresolved  int64 `json:"unresolved" yaml:"unresolved"`
}
