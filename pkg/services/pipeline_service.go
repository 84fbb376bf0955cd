package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-pivot/pkg/config"
	"github.com/ekaya-inc/ekaya-pivot/pkg/logging"
	"github.com/ekaya-inc/ekaya-pivot/pkg/metrics"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
	"github.com/ekaya-inc/ekaya-pivot/pkg/repositories"
	"github.com/ekaya-inc/ekaya-pivot/pkg/retry"
	"github.com/ekaya-inc/ekaya-pivot/pkg/services/dag"
)

// ledgerTimeout bounds the final ledger writes of a run whose context was cancelled.
const ledgerTimeout = 10 * time.Second

// PipelineStatus describes the wide table and the latest runs.
type PipelineStatus struct {
	Driver            string                    `json:"driver" yaml:"driver"`
	Columns           []models.ColumnDescriptor `json:"columns" yaml:"columns"`
	TotalRecords      int64                     `json:"total_records" yaml:"total_records"`
	UnresolvedRecords int64                     `json:"unresolved_records" yaml:"unresolved_records"`
	RecentRuns        []*models.PipelineRun     `json:"recent_runs,omitempty" yaml:"recent_runs,omitempty"`
}

// PipelineService runs the transformation steps in dependency order.
type PipelineService interface {
	// Run executes every step once. Each bulk statement commits on its own;
	// a failed run leaves the store in a state the next run converges from.
	Run(ctx context.Context) (*models.PipelineRun, error)

	// Status reports wide-table columns, record counts and recent runs.
	Status(ctx context.Context, recentRuns int) (*PipelineStatus, error)
}

type pipelineService struct {
	driver   string
	wideRepo repositories.WideRecordRepository
	runRepo  repositories.PipelineRunRepository // nil when runs are not recorded

	evolver     SchemaEvolver
	initializer RecordInitializer
	pivot       ValuePivotLoader
	resolver    AncestorResolver

	retryCfg *retry.Config
	recorder *metrics.Recorder
	logger   *zap.Logger
}

// NewPipelineService wires the pipeline over exec. recorder may be nil.
func NewPipelineService(
	exec store.Executor,
	cfg config.PipelineConfig,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) PipelineService {
	wideRepo := repositories.NewWideRecordRepository(exec)
	catalog := NewCatalogService(repositories.NewCatalogRepository(exec), logger)
	registry := models.NewColumnRegistry(cfg.NumericPrecision, cfg.NumericScale)
	evolver := NewSchemaEvolver(catalog, wideRepo, registry, logger)

	var runRepo repositories.PipelineRunRepository
	if cfg.RecordRuns {
		runRepo = repositories.NewPipelineRunRepository(exec)
	}
	if recorder == nil {
		recorder = metrics.NewRecorder(config.MetricsConfig{}, logger)
	}

	retryCfg := retry.DefaultConfig()
	if cfg.Retry.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.Retry.MaxRetries
	}
	if cfg.Retry.InitialDelay > 0 {
		retryCfg.InitialDelay = cfg.Retry.InitialDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		retryCfg.MaxDelay = cfg.Retry.MaxDelay
	}

	return &pipelineService{
		driver:      exec.Dialect().Name(),
		wideRepo:    wideRepo,
		runRepo:     runRepo,
		evolver:     evolver,
		initializer: NewRecordInitializer(wideRepo, logger),
		pivot:       NewValuePivotLoader(catalog, evolver, wideRepo, logger),
		resolver:    NewAncestorResolver(wideRepo, cfg.MaxClosurePasses, logger),
		retryCfg:    retryCfg,
		recorder:    recorder,
		logger:      logger.Named("pipeline"),
	}
}

var _ PipelineService = (*pipelineService)(nil)

// ============================================================================
// Run
// ============================================================================

func (s *pipelineService) Run(ctx context.Context) (*models.PipelineRun, error) {
	run := &models.PipelineRun{
		ID:        uuid.New(),
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	for _, name := range models.AllSteps() {
		run.Steps = append(run.Steps, models.PipelineStep{
			ID:     uuid.New(),
			RunID:  run.ID,
			Name:   name,
			Stage:  models.StepStage[name],
			Status: models.RunStatusPending,
		})
	}

	if s.runRepo != nil {
		if err := s.runRepo.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("record pipeline run: %w", err)
		}
	}

	s.logger.Info("Starting pipeline run",
		zap.String("run_id", run.ID.String()),
		zap.String("driver", s.driver))

	var runErr error
	for _, stage := range models.Stages() {
		if runErr = s.executeStage(ctx, run, stage); runErr != nil {
			break
		}
	}

	s.finishRun(ctx, run, runErr)
	if runErr != nil {
		return run, runErr
	}
	return run, nil
}

// executeStage runs the steps of one stage concurrently. The first failure
// cancels the remaining steps of the stage.
func (s *pipelineService) executeStage(ctx context.Context, run *models.PipelineRun, stage []models.StepName) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range stage {
		step := run.Step(name)
		g.Go(func() error {
			return s.executeStep(gctx, run, step)
		})
	}
	return g.Wait()
}

// executeStep runs a single step with retry logic.
func (s *pipelineService) executeStep(ctx context.Context, run *models.PipelineRun, step *models.PipelineStep) error {
	start := time.Now()

	executor, err := s.nodeExecutor(step)
	if err != nil {
		return fmt.Errorf("get node executor: %w", err)
	}

	if err := s.setStepStatus(ctx, step, models.RunStatusRunning, nil); err != nil {
		return fmt.Errorf("mark step running: %w", err)
	}

	err = retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		return executor.Execute(ctx, run)
	})
	if err != nil {
		status := models.RunStatusFailed
		if errors.Is(err, context.Canceled) {
			status = models.RunStatusCancelled
		}
		msg := logging.SanitizeError(err)
		lctx, cancel := ledgerContext(ctx)
		defer cancel()
		if lerr := s.setStepStatus(lctx, step, status, &msg); lerr != nil {
			s.logger.Warn("Failed to record step failure", zap.String("step", string(step.Name)), zap.Error(lerr))
		}
		s.recorder.ObserveStep(step, time.Since(start))

		s.logger.Error("Step failed",
			zap.String("run_id", run.ID.String()),
			zap.String("step", string(step.Name)),
			zap.Bool("retryable", retry.IsRetryable(err)),
			zap.String("error", msg))
		return err
	}

	if err := s.setStepStatus(ctx, step, models.RunStatusCompleted, nil); err != nil {
		return fmt.Errorf("mark step completed: %w", err)
	}
	s.recorder.ObserveStep(step, time.Since(start))
	if step.Name == models.StepSchemaEvolution {
		s.recorder.AddColumns(int(step.RowsAffected))
	}

	s.logger.Info("Step completed",
		zap.String("run_id", run.ID.String()),
		zap.String("step", string(step.Name)),
		zap.Int64("rows_affected", step.RowsAffected),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// nodeExecutor returns the appropriate executor for a step.
func (s *pipelineService) nodeExecutor(step *models.PipelineStep) (dag.NodeExecutor, error) {
	switch step.Name {
	case models.StepSchemaEvolution:
		node := dag.NewSchemaEvolutionNode(s.runRepo, s.evolver, s.logger)
		node.SetCurrentStep(step)
		return node, nil

	case models.StepRecordInitialization:
		node := dag.NewRecordInitializationNode(s.runRepo, s.initializer, s.logger)
		node.SetCurrentStep(step)
		return node, nil

	case models.StepValuePivot:
		node := dag.NewValuePivotNode(s.runRepo, observedPivot{s.pivot, s.recorder}, s.logger)
		node.SetCurrentStep(step)
		return node, nil

	case models.StepRootAncestors:
		node := dag.NewRootAncestorsNode(s.runRepo, s.resolver, s.logger)
		node.SetCurrentStep(step)
		return node, nil

	case models.StepAncestorClosure:
		node := dag.NewAncestorClosureNode(s.runRepo, observedResolver{s.resolver, s.recorder}, s.logger)
		node.SetCurrentStep(step)
		return node, nil

	default:
		return nil, fmt.Errorf("unknown step: %s", step.Name)
	}
}

func (s *pipelineService) setStepStatus(ctx context.Context, step *models.PipelineStep, status models.RunStatus, errMsg *string) error {
	now := time.Now().UTC()
	step.Status = status
	step.ErrorMessage = errMsg
	switch {
	case status == models.RunStatusRunning:
		step.StartedAt = &now
	case status.IsTerminal():
		step.CompletedAt = &now
	}

	if s.runRepo == nil {
		return nil
	}
	return s.runRepo.UpdateStepStatus(ctx, step.ID, status, errMsg)
}

// finishRun marks the run terminal in memory and in the ledger, then records
// and pushes metrics. Ledger writes survive cancellation of ctx.
func (s *pipelineService) finishRun(ctx context.Context, run *models.PipelineRun, runErr error) {
	lctx, cancel := ledgerContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = models.RunStatusCompleted
	if runErr != nil {
		run.Status = models.RunStatusFailed
		if errors.Is(runErr, context.Canceled) {
			run.Status = models.RunStatusCancelled
		}
		msg := logging.SanitizeError(runErr)
		run.ErrorMessage = &msg
	}

	if s.runRepo != nil {
		if err := s.runRepo.UpdateStatus(lctx, run.ID, run.Status, run.ErrorMessage); err != nil {
			s.logger.Error("Failed to record run outcome",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
		}
	}

	s.recorder.ObserveRun(run)
	if err := s.recorder.Push(lctx); err != nil {
		s.logger.Warn("Failed to push metrics", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
		zap.Duration("duration", run.Duration()),
	}
	if runErr != nil {
		s.logger.Error("Pipeline run failed", append(fields, zap.String("error", *run.ErrorMessage))...)
		return
	}
	s.logger.Info("Pipeline run completed", fields...)
}

func ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
}

// observedPivot counts columns the pivot had to add for labels that
// appeared after schema evolution ran.
type observedPivot struct {
	ValuePivotLoader
	recorder *metrics.Recorder
}

func (o observedPivot) Load(ctx context.Context, progress dag.ProgressCallback) (*models.PivotResult, error) {
	result, err := o.ValuePivotLoader.Load(ctx, progress)
	if result != nil {
		o.recorder.AddColumns(result.ColumnsAdded)
	}
	return result, err
}

// observedResolver records closure metrics around the resolver.
type observedResolver struct {
	AncestorResolver
	recorder *metrics.Recorder
}

func (o observedResolver) ResolveClosure(ctx context.Context, progress dag.ProgressCallback) (*models.ClosureResult, error) {
	result, err := o.AncestorResolver.ResolveClosure(ctx, progress)
	if result != nil {
		o.recorder.SetClosure(result.Passes, result.Unresolved)
	}
	var integrityErr *apperrors.IntegrityError
	if errors.As(err, &integrityErr) {
		o.recorder.SetClosure(integrityErr.Passes, integrityErr.Unresolved)
	}
	return result, err
}

// ============================================================================
// Status
// ============================================================================

func (s *pipelineService) Status(ctx context.Context, recentRuns int) (*PipelineStatus, error) {
	live, err := s.wideRepo.ListColumns(ctx)
	if err != nil {
		return nil, err
	}
	registry := s.evolver.Registry()
	registry.Reconcile(live)

	total, err := s.wideRepo.CountTotal(ctx)
	if err != nil {
		return nil, err
	}
	unresolved, err := s.wideRepo.CountUnresolved(ctx)
	if err != nil {
		return nil, err
	}

	status := &PipelineStatus{
		Driver:            s.driver,
		Columns:           registry.Columns(),
		TotalRecords:      total,
		UnresolvedRecords: unresolved,
	}

	if s.runRepo != nil && recentRuns > 0 {
		runs, err := s.runRepo.ListRecent(ctx, recentRuns)
		if err != nil {
			return nil, err
		}
		status.RecentRuns = runs
	}
	return status, nil
}
