// Package framework is the pipeline core: plan resolution, the per-stage
// runner, the job orchestrator, and the error taxonomy everything above them
// speaks. Stages run strictly sequentially within one job; any concurrency
// lives inside a single stage behind a bounded pool.
package framework

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/ports"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/stage"
)

// PostRecordKey is the shadow key a stage's post-analysis record is stored
// under in the job context.
func PostRecordKey(stageID string) string {
	return stageID + ":post"
}

// StageResult is the outcome of one completed stage run.
type StageResult struct {
	Contract contract.Contract
	Pre      *session.Record
	Post     *session.Record
	Diff     *stage.Diff
	Duration time.Duration
}

// Runner executes exactly one stage end-to-end: pre-analysis, process,
// mixdown refresh when the stage mutates stems, post-analysis, diff, timing,
// and a progress event.
type Runner struct {
	stages   *stage.Registry
	progress ports.ProgressSink
	logger   *slog.Logger
}

// NewRunner creates a stage runner publishing to the given progress sink.
func NewRunner(stages *stage.Registry, progress ports.ProgressSink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{stages: stages, progress: progress, logger: logger}
}

// Run executes the stage declared by the contract. index is the 1-based
// position within the resolved plan and total the plan length; both feed the
// progress event.
func (r *Runner) Run(ctx context.Context, jc *session.Context, c contract.Contract, index, total int) (*StageResult, error) {
	if jc.Cancelled() {
		return nil, &StageError{StageID: c.ID, Kind: ErrCancelled}
	}

	for _, dep := range c.DependsOn {
		if _, ok := jc.Analysis(dep); !ok {
			return nil, &StageError{
				StageID: c.ID,
				Kind:    ErrDependencyMissing,
				Cause:   fmt.Errorf("no analysis record for %s", dep),
			}
		}
	}

	impl, err := r.stages.Get(c.ID)
	if err != nil {
		return nil, &StageError{StageID: c.ID, Kind: ErrAnalysisFailed, Cause: err}
	}

	started := time.Now()

	r.logger.Debug("stage starting",
		"job_id", jc.JobID(), "stage", c.ID, "kind", string(c.Kind),
		"index", index, "total", total)

	pre, err := safeAnalyse(impl, jc)
	if err != nil {
		return nil, &StageError{StageID: c.ID, Kind: ErrAnalysisFailed, Cause: err}
	}

	if err = jc.RecordAnalysis(c.ID, pre); err != nil {
		return nil, &StageError{StageID: c.ID, Kind: ErrAnalysisFailed, Cause: err}
	}

	post := pre
	diff := &stage.Diff{StageID: c.ID}

	// Analysis-only stages skip process and post-analysis: post equals
	// pre and the diff is empty.
	if c.Kind != contract.KindAnalysis {
		post, diff, err = r.processAndMeasure(jc, c, impl, pre)
		if err != nil {
			return nil, err
		}
	}

	if jc.Cancelled() {
		return nil, &StageError{StageID: c.ID, Kind: ErrCancelled}
	}

	elapsed := time.Since(started)
	jc.RecordTiming(c.ID, elapsed)

	result := &StageResult{Contract: c, Pre: pre, Post: post, Diff: diff, Duration: elapsed}

	if err := r.emitProgress(ctx, jc, result, index, total); err != nil {
		r.logger.Warn("progress emit failed",
			"job_id", jc.JobID(), "stage", c.ID, "error", err)
	}

	r.logger.Info("stage completed",
		"job_id", jc.JobID(), "stage", c.ID,
		"duration", elapsed, "changed", diff.AnyChanged())

	return result, nil
}

// processAndMeasure runs the mutation phase: process, conditional mixdown
// refresh, post-analysis under the shadow key, and the diff.
func (r *Runner) processAndMeasure(jc *session.Context, c contract.Contract, impl stage.Stage, pre *session.Record) (*session.Record, *stage.Diff, error) {
	if err := safeProcess(impl, jc, pre); err != nil {
		return nil, nil, &StageError{StageID: c.ID, Kind: ErrProcessFailed, Cause: err}
	}

	// Stages that mutate stems invalidate the mixdown; mixdown-DSP stages
	// rewrite it in place themselves.
	if c.Kind.MutatesStems() {
		jc.RefreshMixdown()
	}

	post, err := safeAnalyse(impl, jc)
	if err != nil {
		return nil, nil, &StageError{StageID: c.ID, Kind: ErrAnalysisFailed, Cause: err}
	}

	if err = jc.RecordAnalysis(PostRecordKey(c.ID), post); err != nil {
		return nil, nil, &StageError{StageID: c.ID, Kind: ErrAnalysisFailed, Cause: err}
	}

	return post, stage.NewDiff(pre, post), nil
}

// safeAnalyse calls the stage's Analyse, converting a panic into an error.
// A panicking stage must never take the worker slot down with it.
func safeAnalyse(impl stage.Stage, jc *session.Context) (rec *session.Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage panic: %v", p)
		}
	}()

	return impl.Analyse(jc)
}

// safeProcess calls the stage's Process, converting a panic into an error.
func safeProcess(impl stage.Stage, jc *session.Context, pre *session.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage panic: %v", p)
		}
	}()

	return impl.Process(jc, pre)
}

// emitProgress publishes the per-stage progress event.
func (r *Runner) emitProgress(ctx context.Context, jc *session.Context, res *StageResult, index, total int) error {
	if r.progress == nil {
		return nil
	}

	event := ports.ProgressEvent{
		StageID:     res.Contract.ID,
		StageIndex:  index,
		TotalStages: total,
		ElapsedSec:  res.Duration.Seconds(),
		Message:     fmt.Sprintf("completed %s (%d/%d)", res.Contract.Name, index, total),
		PreSummary:  summarize(res.Pre),
		PostSummary: summarize(res.Post),
		DiffSummary: diffSummary(res.Diff),
	}

	return r.progress.Emit(ctx, jc.JobID(), event)
}

// summarize flattens a record's session block into a JSON-safe map.
func summarize(rec *session.Record) map[string]any {
	if rec == nil || len(rec.Session) == 0 {
		return nil
	}

	out := make(map[string]any, len(rec.Session))
	for k, v := range rec.Session {
		out[k] = jsonSafe(v)
	}

	return out
}

// diffSummary condenses a diff into changed-field counts and names.
func diffSummary(d *stage.Diff) map[string]any {
	if d == nil || d.Empty() {
		return nil
	}

	var changed []string

	for _, f := range d.Session {
		if f.Changed {
			changed = append(changed, f.Key)
		}
	}

	stemChanges := 0

	for _, stemDiff := range d.Stems {
		for _, f := range stemDiff.Fields {
			if f.Changed {
				stemChanges++
			}
		}
	}

	return map[string]any{
		"changed_session_fields": changed,
		"changed_stem_fields":    stemChanges,
		"any_changed":            d.AnyChanged(),
	}
}
