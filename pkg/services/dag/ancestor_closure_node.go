package dag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
)

// AncestorClosureMethods defines the methods needed for the closure loop.
type AncestorClosureMethods interface {
	// ResolveClosure propagates resolved ancestors down the forest until every
	// wide record is resolved, or fails with a data-integrity fault.
	ResolveClosure(ctx context.Context, progress ProgressCallback) (*models.ClosureResult, error)
}

// AncestorClosureNode resolves the root ancestor of every non-root sample.
type AncestorClosureNode struct {
	*BaseNode
	resolver AncestorClosureMethods
}

// NewAncestorClosureNode creates a new ancestor closure node.
func NewAncestorClosureNode(
	runRepo repositories.PipelineRunRepository,
	resolver AncestorClosureMethods,
	logger *zap.Logger,
) *AncestorClosureNode {
	return &AncestorClosureNode{
		BaseNode: NewBaseNode(models.StepAncestorClosure, runRepo, logger),
		resolver: resolver,
	}
}

// Execute runs the closure loop.
func (n *AncestorClosureNode) Execute(ctx context.Context, run *models.PipelineRun) error {
	n.Logger().Info("Starting ancestor closure", runFields(run)...)

	result, err := n.resolver.ResolveClosure(ctx, func(current, _ int, message string) {
		n.reportMessage(ctx, fmt.Sprintf("pass %d: %s", current, message))
	})
	if err != nil {
		return fmt.Errorf("ancestor closure: %w", err)
	}

	n.reportProgress(ctx, result.RowsUpdated,
		fmt.Sprintf("Resolved %d records in %d passes", result.RowsUpdated, result.Passes))
	n.Logger().Info("Ancestor closure complete",
		append(runFields(run),
			zap.Int("passes", result.Passes),
			zap.Int64("rows_affected", result.RowsUpdated))...)
	return nil
}
