package dag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
)

// RecordInitializationMethods defines the methods needed to create wide records.
type RecordInitializationMethods interface {
	// Initialize inserts a wide record for every sample lacking one.
	Initialize(ctx context.Context) (int64, error)
}

// RecordInitializationNode creates the per-sample rows of experiment_measurements.
type RecordInitializationNode struct {
	*BaseNode
	initializer RecordInitializationMethods
}

// NewRecordInitializationNode creates a new record initialization node.
func NewRecordInitializationNode(
	runRepo repositories.PipelineRunRepository,
	initializer RecordInitializationMethods,
	logger *zap.Logger,
) *RecordInitializationNode {
	return &RecordInitializationNode{
		BaseNode:    NewBaseNode(models.StepRecordInitialization, runRepo, logger),
		initializer: initializer,
	}
}

// Execute runs the record initialization step.
func (n *RecordInitializationNode) Execute(ctx context.Context, run *models.PipelineRun) error {
	n.Logger().Info("Starting wide record initialization", runFields(run)...)

	inserted, err := n.initializer.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("record initialization: %w", err)
	}

	n.reportProgress(ctx, inserted, fmt.Sprintf("Inserted %d wide records", inserted))
	n.Logger().Info("Wide record initialization complete",
		append(runFields(run), zap.Int64("rows_affected", inserted))...)
	return nil
}
