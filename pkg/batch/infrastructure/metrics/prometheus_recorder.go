// Package metrics implements the engine's MetricRecorder and Tracer ports with
// Prometheus and OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/employee-import/pkg/batch/core/metrics"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// With a Pushgateway URL the registry is pushed once the job ended, since a batch
// process does not live long enough to be scraped.
type PrometheusRecorder struct {
	registry       *prometheus.Registry
	pushgatewayURL string

	// Job Metrics
	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	// Step Metrics
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec
	stepRollbackCount   *prometheus.CounterVec

	// Item Metrics
	itemSkipCounter *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder. An empty
// pushgatewayURL disables pushing.
func NewPrometheusRecorder(pushgatewayURL string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry:       registry,
		pushgatewayURL: pushgatewayURL,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by final status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_name", "status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step executions by final status.",
		}, []string{"step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total items read by committed chunks.",
		}, []string{"step_name"}),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by committed chunks.",
		}, []string{"step_name"}),
		stepCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"step_name"}),
		stepRollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_rollback_total",
			Help: "Total chunk rollbacks by step and error kind.",
		}, []string{"step_name", "reason"}),
		itemSkipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_skip_total",
			Help: "Total items skipped by step and phase.",
		}, []string{"step_name", "type"}), // type: read, process, write
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of engine operations such as chunks.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "step_name", "outcome"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.stepReadCount,
		r.stepWriteCount,
		r.stepCommitCount,
		r.stepRollbackCount,
		r.itemSkipCounter,
		r.operationDuration,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

// RecordJobEnd records the end of a JobExecution and pushes the registry when a
// Pushgateway is configured.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	status := execution.Status.String()
	r.jobStatusCounter.WithLabelValues(execution.JobName, status).Inc()
	if execution.EndTime != nil {
		duration := execution.EndTime.Sub(execution.StartTime).Seconds()
		r.jobDurationSeconds.WithLabelValues(execution.JobName, status).Observe(duration)
		logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
	}

	if r.pushgatewayURL == "" {
		return
	}
	err := push.New(r.pushgatewayURL, execution.JobName).
		Gatherer(r.registry).
		Grouping("run_id", execution.ID).
		PushContext(ctx)
	if err != nil {
		logger.Warnf("Metrics: failed to push to Pushgateway %s: %v", r.pushgatewayURL, err)
		return
	}
	logger.Debugf("Metrics: pushed metrics of run %s to %s.", execution.ID, r.pushgatewayURL)
}

// RecordStepStart records the start of a StepExecution.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

// RecordStepEnd records the end of a StepExecution.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	status := execution.Status.String()
	r.stepStatusCounter.WithLabelValues(execution.StepName, status).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.stepDurationSeconds.WithLabelValues(execution.StepName, status).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

// RecordItemRead records items read by a committed chunk.
func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.stepReadCount.WithLabelValues(stepName).Add(float64(count))
}

// RecordItemWrite records items written by a committed chunk.
func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.stepWriteCount.WithLabelValues(stepName).Add(float64(count))
}

// RecordItemSkip records one skipped item. reason is the skip phase.
func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	skipType := "unknown"
	if reason == "read" || reason == "process" || reason == "write" {
		skipType = reason
	}
	r.itemSkipCounter.WithLabelValues(stepName, skipType).Inc()
}

// RecordChunkCommit records chunk commits.
func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string) {
	r.stepCommitCount.WithLabelValues(stepName).Inc()
}

// RecordChunkRollback records a chunk that rolled back.
func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	r.stepRollbackCount.WithLabelValues(stepName, reason).Inc()
}

// RecordDuration records the execution time of a specific operation. Tags "step"
// and "outcome" become labels.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDuration.WithLabelValues(name, tags["step"], tags["outcome"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
