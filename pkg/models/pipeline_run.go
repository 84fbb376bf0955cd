package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Run Status
// ============================================================================

// RunStatus represents the execution status of a pipeline run or one of its steps.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ValidRunStatuses contains all valid run status values.
var ValidRunStatuses = []RunStatus{
	RunStatusPending,
	RunStatusRunning,
	RunStatusCompleted,
	RunStatusFailed,
	RunStatusCancelled,
}

// IsValidRunStatus checks if the given status is valid.
func IsValidRunStatus(s RunStatus) bool {
	for _, v := range ValidRunStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is terminal (completed, failed, or cancelled).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// ============================================================================
// Step Names
// ============================================================================

// StepName identifies one bulk transformation of the pipeline.
type StepName string

const (
	StepSchemaEvolution      StepName = "schema_evolution"
	StepRecordInitialization StepName = "record_initialization"
	StepValuePivot           StepName = "value_pivot"
	StepRootAncestors        StepName = "root_ancestors"
	StepAncestorClosure      StepName = "ancestor_closure"
)

// StepStage groups steps by dependency level. Steps sharing a stage have no
// data dependency on each other; a stage starts only after the previous one finished.
var StepStage = map[StepName]int{
	StepSchemaEvolution:      1,
	StepRecordInitialization: 1,
	StepValuePivot:           2,
	StepRootAncestors:        3,
	StepAncestorClosure:      4,
}

// AllSteps returns all step names in execution order.
func AllSteps() []StepName {
	return []StepName{
		StepSchemaEvolution,
		StepRecordInitialization,
		StepValuePivot,
		StepRootAncestors,
		StepAncestorClosure,
	}
}

// Stages returns the steps grouped by stage, in stage order.
func Stages() [][]StepName {
	var stages [][]StepName
	last := 0
	for _, step := range AllSteps() {
		stage := StepStage[step]
		if stage != last {
			stages = append(stages, nil)
			last = stage
		}
		stages[len(stages)-1] = append(stages[len(stages)-1], step)
	}
	return stages
}

// ============================================================================
// Run Models
// ============================================================================

// PipelineRun is one invocation of the full pipeline.
type PipelineRun struct {
	ID           uuid.UUID  `json:"id" yaml:"id"`
	Status       RunStatus  `json:"status" yaml:"status"`
	ErrorMessage *string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	Steps []PipelineStep `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Duration returns the wall time of a finished run, or zero while it is running.
func (r *PipelineRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Step returns the step record with the given name, or nil.
func (r *PipelineRun) Step(name StepName) *PipelineStep {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// PipelineStep records the outcome of a single step within a run.
type PipelineStep struct {
	ID           uuid.UUID  `json:"id" yaml:"id"`
	RunID        uuid.UUID  `json:"run_id" yaml:"-"`
	Name         StepName   `json:"name" yaml:"name"`
	Stage        int        `json:"stage" yaml:"stage"`
	Status       RunStatus  `json:"status" yaml:"status"`
	RowsAffected int64      `json:"rows_affected" yaml:"rows_affected"`
	Message      string     `json:"message,omitempty" yaml:"message,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// StepProgress is what a step reports while it works.
type StepProgress struct {
	RowsAffected int64
	Message      string
}
