// Package metrics records pipeline run metrics in a dedicated Prometheus
// registry and optionally pushes them to a Pushgateway when a run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-pivot/pkg/config"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
)

const namespace = "ekaya_pivot"

// Recorder collects the metrics of pipeline runs.
type Recorder struct {
	registry *prometheus.Registry
	pusher   *push.Pusher
	logger   *zap.Logger

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stepDuration  *prometheus.HistogramVec
	rowsAffected  *prometheus.CounterVec
	columnsAdded  prometheus.Counter
	closurePasses prometheus.Gauge
	unresolved    prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewRecorder creates a recorder. Pushing is enabled when cfg.PushgatewayURL is set.
func NewRecorder(cfg config.MetricsConfig, logger *zap.Logger) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		logger:   logger.Named("metrics"),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of pipeline steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"step", "status"}),
		rowsAffected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_affected_total",
			Help:      "Rows changed by pipeline steps.",
		}, []string{"step"}),
		columnsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "columns_added_total",
			Help:      "Measurement columns added to the wide table.",
		}),
		closurePasses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "closure_passes",
			Help:      "Ancestor closure passes of the last run.",
		}),
		unresolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unresolved_records",
			Help:      "Wide records without a resolved ancestor after the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}
	reg.MustRegister(r.runs, r.runDuration, r.stepDuration, r.rowsAffected,
		r.columnsAdded, r.closurePasses, r.unresolved, r.lastSuccess)

	if cfg.PushgatewayURL != "" {
		job := cfg.Job
		if job == "" {
			job = namespace
		}
		r.pusher = push.New(cfg.PushgatewayURL, job).Gatherer(reg)
	}
	return r
}

// Registry exposes the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep records a finished step.
func (r *Recorder) ObserveStep(step *models.PipelineStep, elapsed time.Duration) {
	r.stepDuration.WithLabelValues(string(step.Name), string(step.Status)).Observe(elapsed.Seconds())
	if step.RowsAffected > 0 {
		r.rowsAffected.WithLabelValues(string(step.Name)).Add(float64(step.RowsAffected))
	}
}

// AddColumns counts measurement columns created by schema evolution.
func (r *Recorder) AddColumns(n int) {
	if n > 0 {
		r.columnsAdded.Add(float64(n))
	}
}

// SetClosure records the outcome of the closure loop.
func (r *Recorder) SetClosure(passes int, unresolved int64) {
	r.closurePasses.Set(float64(passes))
	r.unresolved.Set(float64(unresolved))
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(run *models.PipelineRun) {
	r.runs.WithLabelValues(string(run.Status)).Inc()
	r.runDuration.Observe(run.Duration().Seconds())
	if run.Status == models.RunStatusCompleted && run.CompletedAt != nil {
		r.lastSuccess.Set(float64(run.CompletedAt.Unix()))
	}
}

// Push sends the registry to the Pushgateway. It is a no-op when pushing is disabled.
func (r *Recorder) Push(ctx context.Context) error {
	if r.pusher == nil {
		return nil
	}
	if err := r.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	r.logger.Debug("Pushed run metrics")
	return nil
}
