package framework

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/ports"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/stage"
)

// JobResult is the orchestrator's terminal outcome for one job.
type JobResult struct {
	Status ports.Status

	// Metrics is set on success.
	Metrics *ports.FinalMetrics

	// StagesCompleted counts fully executed stages.
	StagesCompleted int
	TotalStages     int

	// Err carries the taxonomy error on failure.
	Err error
}

// Orchestrator runs a full job from ingest to report.
type Orchestrator struct {
	contracts *contract.Registry
	stages    *stage.Registry
	runner    *Runner
	artifacts ports.ArtifactSink
	logger    *slog.Logger

	version string
	now     func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the pipeline core together.
func NewOrchestrator(contracts *contract.Registry, stages *stage.Registry, runner *Runner, artifacts ports.ArtifactSink, version string, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		contracts: contracts,
		stages:    stages,
		runner:    runner,
		artifacts: artifacts,
		logger:    logger,
		version:   version,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// RunJob executes one job: resolve the plan, ingest stems, run every stage
// in order, and finalize artifacts. The returned JobResult always carries a
// terminal status; the error mirrors JobResult.Err for failed jobs.
func (o *Orchestrator) RunJob(ctx context.Context, jc *session.Context, src session.InputSource, enabled []string) (*JobResult, error) {
	plan, err := ResolvePlan(o.contracts, enabled)
	if err != nil {
		return o.fail(jc, 0, 0, err)
	}

	if err = jc.LoadStems(src); err != nil {
		return o.fail(jc, 0, len(plan), err)
	}

	jc.RefreshMixdown()

	o.logger.Info("job starting",
		"job_id", jc.JobID(), "stems", jc.StemCount(),
		"sample_rate", jc.SampleRate(), "stages", len(plan))

	results := make([]*StageResult, 0, len(plan))

	for i, c := range plan {
		res, runErr := o.runner.Run(ctx, jc, c, i+1, len(plan))
		if runErr != nil {
			o.flushMixdown(ctx, jc)

			if errors.Is(runErr, ErrCancelled) {
				return o.cancel(jc, len(results), len(plan))
			}

			return o.fail(jc, len(results), len(plan), runErr)
		}

		results = append(results, res)
	}

	if jc.Cancelled() {
		o.flushMixdown(ctx, jc)

		return o.cancel(jc, len(results), len(plan))
	}

	return o.finalize(ctx, jc, results, len(plan))
}

// finalize publishes the mixdown, the loudness chart, and the report, then
// returns the success result.
func (o *Orchestrator) finalize(ctx context.Context, jc *session.Context, results []*StageResult, total int) (*JobResult, error) {
	metrics := o.measureFinal(jc)

	if err := o.publishMixdown(ctx, jc); err != nil {
		return o.fail(jc, len(results), total, err)
	}

	if chart, chartErr := RenderLoudnessChart(results); chartErr == nil && chart != nil {
		jc.PutArtifact(ChartArtifact, chart)

		if err := o.publish(ctx, jc, ChartArtifact, chart); err != nil {
			return o.fail(jc, len(results), total, err)
		}
	}

	report := BuildReport(o.version, o.now(), jc, results, metrics)

	data, err := report.Encode()
	if err != nil {
		return o.fail(jc, len(results), total,
			&StageError{Kind: ErrArtifactWrite, Cause: err})
	}

	jc.PutArtifact(ReportArtifact, data)

	if err = o.publish(ctx, jc, ReportArtifact, data); err != nil {
		return o.fail(jc, len(results), total, err)
	}

	o.logger.Info("job succeeded",
		"job_id", jc.JobID(), "stages", len(results), "lufs", metrics.LUFS)

	return &JobResult{
		Status:          ports.StatusSuccess,
		Metrics:         &metrics,
		StagesCompleted: len(results),
		TotalStages:     total,
	}, nil
}

// measureFinal computes the delivered-mixdown metrics.
func (o *Orchestrator) measureFinal(jc *session.Context) ports.FinalMetrics {
	mix := jc.Mixdown()
	if mix == nil {
		return ports.FinalMetrics{}
	}

	key, scale := audio.Key(mix)

	return ports.FinalMetrics{
		LUFS:                  audio.LUFS(mix),
		TruePeakDB:            audio.TruePeakDB(mix),
		LRA:                   audio.LRA(mix),
		TempoBPM:              audio.TempoBPM(mix),
		Key:                   key,
		Scale:                 scale,
		ChannelLoudnessDiffDB: audio.ChannelLoudnessDiffDB(mix),
		Correlation:           audio.Correlation(mix),
	}
}

// publishMixdown encodes and publishes full_song.wav.
func (o *Orchestrator) publishMixdown(ctx context.Context, jc *session.Context) error {
	mix := jc.Mixdown()
	if mix == nil {
		return nil
	}

	data, err := audio.EncodeWAV(mix, audio.Depth16)
	if err != nil {
		return &StageError{Kind: ErrArtifactWrite, Cause: err}
	}

	jc.PutArtifact(MixdownArtifact, data)

	return o.publish(ctx, jc, MixdownArtifact, data)
}

// flushMixdown publishes the current mixdown best-effort on failure or
// cancel. Artifacts written before the terminal state remain available but
// are never advertised in the status.
func (o *Orchestrator) flushMixdown(ctx context.Context, jc *session.Context) {
	if err := o.publishMixdown(ctx, jc); err != nil {
		o.logger.Warn("best-effort mixdown publish failed",
			"job_id", jc.JobID(), "error", err)
	}
}

// publish writes one artifact through the sink.
func (o *Orchestrator) publish(ctx context.Context, jc *session.Context, name string, data []byte) error {
	if o.artifacts == nil {
		return nil
	}

	if err := o.artifacts.Put(ctx, jc.JobID(), name, data); err != nil {
		return &StageError{Kind: ErrArtifactWrite, Cause: fmt.Errorf("%s: %w", name, err)}
	}

	o.logger.Info("artifact published",
		"job_id", jc.JobID(), "name", name, "size", humanize.Bytes(uint64(len(data))))

	return nil
}

// cancel builds the terminal cancelled result. No report is produced.
func (o *Orchestrator) cancel(jc *session.Context, completed, total int) (*JobResult, error) {
	o.logger.Info("job cancelled",
		"job_id", jc.JobID(), "completed", completed, "total", total)

	return &JobResult{
		Status:          ports.StatusCancelled,
		StagesCompleted: completed,
		TotalStages:     total,
	}, nil
}

// fail builds the terminal failure result. No report is produced.
func (o *Orchestrator) fail(jc *session.Context, completed, total int, err error) (*JobResult, error) {
	o.logger.Error("job failed",
		"job_id", jc.JobID(), "completed", completed, "total", total,
		"kind", ErrorKind(err), "error", err)

	return &JobResult{
		Status:          ports.StatusFailure,
		StagesCompleted: completed,
		TotalStages:     total,
		Err:             err,
	}, err
}
