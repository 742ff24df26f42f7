package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricJobsTotal     = "stemforge.jobs.total"
	metricJobDuration   = "stemforge.job.duration.seconds"
	metricStageDuration = "stemforge.stage.duration.seconds"
	metricErrorsTotal   = "stemforge.errors.total"
	metricInflightJobs  = "stemforge.inflight.jobs"

	attrStage  = "stage"
	attrStatus = "status"
	attrKind   = "error_kind"
)

// jobBucketBoundaries covers 100ms to 30min: a short analysis-only job up to
// a full master of a long session.
var jobBucketBoundaries = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1200, 1800}

// stageBucketBoundaries covers 10ms to 10min per stage.
var stageBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// PipelineMetrics holds the OTel instruments for job and stage telemetry.
type PipelineMetrics struct {
	jobsTotal     metric.Int64Counter
	jobDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	errorsTotal   metric.Int64Counter
	inflightJobs  metric.Int64UpDownCounter
}

// NewPipelineMetrics creates the pipeline instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	jobsTotal, err := mt.Int64Counter(metricJobsTotal,
		metric.WithDescription("Total number of jobs processed"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricJobsTotal, err)
	}

	jobDuration, err := mt.Float64Histogram(metricJobDuration,
		metric.WithDescription("Full-job wall-clock duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricJobDuration, err)
	}

	stageDuration, err := mt.Float64Histogram(metricStageDuration,
		metric.WithDescription("Per-stage wall-clock duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStageDuration, err)
	}

	errorsTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of failed jobs by error kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightJobs,
		metric.WithDescription("Number of jobs currently executing"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightJobs, err)
	}

	return &PipelineMetrics{
		jobsTotal:     jobsTotal,
		jobDuration:   jobDuration,
		stageDuration: stageDuration,
		errorsTotal:   errorsTotal,
		inflightJobs:  inflight,
	}, nil
}

// RecordJob records a completed job with its terminal status and duration.
// errorKind is empty for successful and cancelled jobs.
func (pm *PipelineMetrics) RecordJob(ctx context.Context, status string, errorKind string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(attrStatus, status))

	pm.jobsTotal.Add(ctx, 1, attrs)
	pm.jobDuration.Record(ctx, duration.Seconds(), attrs)

	if errorKind != "" {
		pm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrKind, errorKind),
		))
	}
}

// RecordStage records one stage's duration.
func (pm *PipelineMetrics) RecordStage(ctx context.Context, stageID string, duration time.Duration) {
	pm.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrStage, stageID),
	))
}

// TrackInflight increments the in-flight gauge and returns the decrement.
func (pm *PipelineMetrics) TrackInflight(ctx context.Context) func() {
	pm.inflightJobs.Add(ctx, 1)

	return func() {
		pm.inflightJobs.Add(ctx, -1)
	}
}
