package dag

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
)

// NodeExecutor defines the interface for pipeline step execution.
// Each node wraps one service method and reports progress.
type NodeExecutor interface {
	// Name returns the step name (e.g., "value_pivot")
	Name() models.StepName

	// Execute runs the step's work. Returns an error if the step fails.
	Execute(ctx context.Context, run *models.PipelineRun) error
}

// ProgressCallback is a function that reports progress updates.
// total is 0 when the amount of work is not known up front.
type ProgressCallback func(current, total int, message string)

// BaseNode provides common functionality for all pipeline nodes.
type BaseNode struct {
	stepName models.StepName
	runRepo  repositories.PipelineRunRepository
	logger   *zap.Logger
	step     *models.PipelineStep
}

// NewBaseNode creates a new base node with common dependencies.
// runRepo may be nil when runs are not recorded.
func NewBaseNode(
	stepName models.StepName,
	runRepo repositories.PipelineRunRepository,
	logger *zap.Logger,
) *BaseNode {
	return &BaseNode{
		stepName: stepName,
		runRepo:  runRepo,
		logger:   logger.Named(string(stepName)),
	}
}

// Name returns the step name.
func (b *BaseNode) Name() models.StepName {
	return b.stepName
}

// SetCurrentStep sets the ledger record progress is written to.
func (b *BaseNode) SetCurrentStep(step *models.PipelineStep) {
	b.step = step
}

// ReportProgress records rows affected so far on the current step and
// persists it to the run ledger.
func (b *BaseNode) ReportProgress(ctx context.Context, rowsAffected int64, message string) error {
	if b.step == nil {
		return nil // No step set, skip progress update
	}

	b.step.RowsAffected = rowsAffected
	b.step.Message = message

	if b.runRepo == nil {
		return nil
	}
	return b.runRepo.UpdateStepProgress(ctx, b.step.ID, &models.StepProgress{
		RowsAffected: rowsAffected,
		Message:      message,
	})
}

// reportProgress logs instead of failing when the ledger write fails; progress
// is informational.
func (b *BaseNode) reportProgress(ctx context.Context, rowsAffected int64, message string) {
	if err := b.ReportProgress(ctx, rowsAffected, message); err != nil {
		b.logger.Warn("Failed to report progress", zap.Error(err))
	}
}

// reportMessage updates the progress message, keeping the rows reported so far.
func (b *BaseNode) reportMessage(ctx context.Context, message string) {
	var rows int64
	if b.step != nil {
		rows = b.step.RowsAffected
	}
	b.reportProgress(ctx, rows, message)
}

// Logger returns the node's logger.
func (b *BaseNode) Logger() *zap.Logger {
	return b.logger
}

func runFields(run *models.PipelineRun) []zap.Field {
	if run == nil {
		return nil
	}
	return []zap.Field{zap.String("run_id", run.ID.String())}
}
