package dag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
)

// RootAncestorsMethods defines the methods needed for the root pass.
type RootAncestorsMethods interface {
	// ResolveRoots marks every unresolved root sample as its own ancestor.
	ResolveRoots(ctx context.Context) (int64, error)
}

// RootAncestorsNode seeds the ancestor closure with the forest's roots.
type RootAncestorsNode struct {
	*BaseNode
	resolver RootAncestorsMethods
}

// NewRootAncestorsNode creates a new root ancestors node.
func NewRootAncestorsNode(
	runRepo repositories.PipelineRunRepository,
	resolver RootAncestorsMethods,
	logger *zap.Logger,
) *RootAncestorsNode {
	return &RootAncestorsNode{
		BaseNode: NewBaseNode(models.StepRootAncestors, runRepo, logger),
		resolver: resolver,
	}
}

// Execute runs the root pass.
func (n *RootAncestorsNode) Execute(ctx context.Context, run *models.PipelineRun) error {
	resolved, err := n.resolver.ResolveRoots(ctx)
	if err != nil {
		return fmt.Errorf("root ancestors: %w", err)
	}

	n.reportProgress(ctx, resolved, fmt.Sprintf("Resolved %d root samples", resolved))
	n.Logger().Info("Root ancestors resolved",
		append(runFields(run), zap.Int64("rows_affected", resolved))...)
	return nil
}
