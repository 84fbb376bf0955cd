package dag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
)

// ValuePivotMethods defines the methods needed to pivot measurement values.
type ValuePivotMethods interface {
	// Load copies every measurement of unresolved samples into its wide column.
	Load(ctx context.Context, progress ProgressCallback) (*models.PivotResult, error)
}

// ValuePivotNode fills measurement columns from sample_measurements.
type ValuePivotNode struct {
	*BaseNode
	pivot ValuePivotMethods
}

// NewValuePivotNode creates a new value pivot node.
func NewValuePivotNode(
	runRepo repositories.PipelineRunRepository,
	pivot ValuePivotMethods,
	logger *zap.Logger,
) *ValuePivotNode {
	return &ValuePivotNode{
		BaseNode: NewBaseNode(models.StepValuePivot, runRepo, logger),
		pivot:    pivot,
	}
}

// Execute runs the value pivot step. Progress is reported once per label.
func (n *ValuePivotNode) Execute(ctx context.Context, run *models.PipelineRun) error {
	n.Logger().Info("Starting value pivot", runFields(run)...)

	result, err := n.pivot.Load(ctx, func(current, total int, message string) {
		n.reportMessage(ctx, fmt.Sprintf("%s (%d/%d)", message, current, total))
	})
	if err != nil {
		return fmt.Errorf("value pivot: %w", err)
	}

	n.reportProgress(ctx, result.RowsUpdated,
		fmt.Sprintf("Pivoted %d labels into %d unresolved records", len(result.Categories), result.Unresolved))

	n.Logger().Info("Value pivot complete",
		append(runFields(run),
			zap.Int64("unresolved", result.Unresolved),
			zap.Strings("categories", result.Categories),
			zap.Int64("rows_affected", result.RowsUpdated))...)
	return nil
}
