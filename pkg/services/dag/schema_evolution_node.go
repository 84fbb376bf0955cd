package dag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
)

// SchemaEvolutionMethods defines the methods needed for schema evolution.
// This interface allows the node to call service methods without causing import cycles.
type SchemaEvolutionMethods interface {
	// Evolve adds a column for every measurement label that has none.
	Evolve(ctx context.Context) (*models.EvolveResult, error)
}

// SchemaEvolutionNode widens experiment_measurements with a column per observed label.
type SchemaEvolutionNode struct {
	*BaseNode
	evolver SchemaEvolutionMethods
}

// NewSchemaEvolutionNode creates a new schema evolution node.
func NewSchemaEvolutionNode(
	runRepo repositories.PipelineRunRepository,
	evolver SchemaEvolutionMethods,
	logger *zap.Logger,
) *SchemaEvolutionNode {
	return &SchemaEvolutionNode{
		BaseNode: NewBaseNode(models.StepSchemaEvolution, runRepo, logger),
		evolver:  evolver,
	}
}

// Execute runs the schema evolution step.
func (n *SchemaEvolutionNode) Execute(ctx context.Context, run *models.PipelineRun) error {
	n.Logger().Info("Starting schema evolution", runFields(run)...)

	result, err := n.evolver.Evolve(ctx)
	if err != nil {
		return fmt.Errorf("schema evolution: %w", err)
	}

	msg := "Wide table already covers all measurement labels"
	if len(result.Added) > 0 {
		msg = fmt.Sprintf("Added %d measurement columns", len(result.Added))
	}
	n.reportProgress(ctx, int64(len(result.Added)), msg)

	n.Logger().Info("Schema evolution complete",
		append(runFields(run),
			zap.Int("categories", result.Categories),
			zap.Strings("added", result.Added),
			zap.Int("already_present", len(result.AlreadyPresent)))...)
	return nil
}
