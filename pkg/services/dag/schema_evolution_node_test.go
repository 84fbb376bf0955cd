package dag

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
)

type mockSchemaEvolutionMethods struct {
	evolveFunc func(ctx context.Context) (*models.EvolveResult, error)
}

func (m *mockSchemaEvolutionMethods) Evolve(ctx context.Context) (*models.EvolveResult, error) {
	return m.evolveFunc(ctx)
}

func TestSchemaEvolutionNode_Execute_AddsColumns(t *testing.T) {
	repo, writes := recordingRunRepo()
	methods := &mockSchemaEvolutionMethods{
		evolveFunc: func(ctx context.Context) (*models.EvolveResult, error) {
			return &models.EvolveResult{
				Categories:     3,
				Added:          []string{"measurement_ph", "measurement_vol"},
				AlreadyPresent: []string{"measurement_foo"},
			}, nil
		},
	}

	node := NewSchemaEvolutionNode(repo, methods, zap.NewNop())
	step := &models.PipelineStep{ID: uuid.New(), Name: models.StepSchemaEvolution}
	node.SetCurrentStep(step)

	err := node.Execute(context.Background(), testRun())
	require.NoError(t, err)

	require.Len(t, *writes, 1)
	assert.Equal(t, int64(2), (*writes)[0].RowsAffected)
	assert.Equal(t, "Added 2 measurement columns", (*writes)[0].Message)
	assert.Equal(t, int64(2), step.RowsAffected)
}

func TestSchemaEvolutionNode_Execute_NothingToAdd(t *testing.T) {
	repo, writes := recordingRunRepo()
	methods := &mockSchemaEvolutionMethods{
		evolveFunc: func(ctx context.Context) (*models.EvolveResult, error) {
			return &models.EvolveResult{Categories: 2, AlreadyPresent: []string{"measurement_ph", "measurement_vol"}}, nil
		},
	}

	node := NewSchemaEvolutionNode(repo, methods, zap.NewNop())
	node.SetCurrentStep(&models.PipelineStep{ID: uuid.New()})

	require.NoError(t, node.Execute(context.Background(), testRun()))
	require.Len(t, *writes, 1)
	assert.Equal(t, int64(0), (*writes)[0].RowsAffected)
	assert.Equal(t, "Wide table already covers all measurement labels", (*writes)[0].Message)
}

func TestSchemaEvolutionNode_Execute_Error(t *testing.T) {
	methods := &mockSchemaEvolutionMethods{
		evolveFunc: func(ctx context.Context) (*models.EvolveResult, error) {
			return nil, &apperrors.CategoryError{Category: "pH", Reason: "maps to column measurement_ph already claimed by \"ph\""}
		},
	}

	node := NewSchemaEvolutionNode(nil, methods, zap.NewNop())
	err := node.Execute(context.Background(), testRun())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCategory)
	assert.Contains(t, err.Error(), "schema evolution")
}

func TestSchemaEvolutionNode_Name(t *testing.T) {
	node := NewSchemaEvolutionNode(nil, &mockSchemaEvolutionMethods{}, zap.NewNop())
	assert.Equal(t, models.StepSchemaEvolution, node.Name())
}

func TestSchemaEvolutionNode_PropagatesUnexpectedError(t *testing.T) {
	boom := errors.New("connection reset")
	methods := &mockSchemaEvolutionMethods{
		evolveFunc: func(ctx context.Context) (*models.EvolveResult, error) { return nil, boom },
	}
	node := NewSchemaEvolutionNode(nil, methods, zap.NewNop())
	assert.ErrorIs(t, node.Execute(context.Background(), testRun()), boom)
}
