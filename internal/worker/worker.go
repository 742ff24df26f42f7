// Package worker hosts the job-consuming loop: each slot blocks on the
// queue, runs one job to completion through the orchestrator, and publishes
// terminal status to the store. One job per slot; slots run in parallel
// with no shared mutable state beyond the queue and store ports.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stemforge/stemforge/pkg/framework"
	"github.com/stemforge/stemforge/pkg/observability"
	"github.com/stemforge/stemforge/pkg/ports"
	"github.com/stemforge/stemforge/pkg/session"
)

// Environment contract with DSP leaves the core does not own. JobIDEnv is
// exported per job and removed when the job ends; the rest are read-only
// inputs honored here or by the leaves themselves.
const (
	// JobIDEnv carries the current job id for diagnostic correlation.
	JobIDEnv = "MIX_JOB_ID"

	// MediaDirEnv backs the input port when no media dir is configured.
	MediaDirEnv = "MIX_MEDIA_DIR"

	// ModelsDirEnv points DSP leaves at a local model cache root.
	ModelsDirEnv = "MIX_MODELS_DIR"

	// OfflineEnv set to "1" forbids network fetches inside DSP leaves.
	OfflineEnv = "MIX_OFFLINE"
)

// defaultSlots is the number of concurrent jobs when unconfigured.
const defaultSlots = 1

// Worker consumes jobs from the queue and drives the orchestrator.
type Worker struct {
	queue   ports.JobQueue
	store   ports.JobStore
	orch    *framework.Orchestrator
	logger  *slog.Logger
	metrics *observability.PipelineMetrics

	slots    int
	mediaDir string

	// envMu serializes the JobIDEnv export across slots.
	envMu sync.Mutex
}

// Option configures a Worker.
type Option func(*Worker)

// WithSlots sets the number of concurrent job slots.
func WithSlots(n int) Option {
	return func(w *Worker) { w.slots = max(n, 1) }
}

// WithMediaDir sets the local directory that relative media refs resolve
// against.
func WithMediaDir(dir string) Option {
	return func(w *Worker) { w.mediaDir = dir }
}

// WithMetrics attaches pipeline telemetry.
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// New creates a worker over the given ports and orchestrator.
func New(queue ports.JobQueue, store ports.JobStore, orch *framework.Orchestrator, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		queue:  queue,
		store:  store,
		orch:   orch,
		logger: logger,
		slots:  defaultSlots,
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.mediaDir == "" {
		w.mediaDir = os.Getenv(MediaDirEnv)
	}

	return w
}

// Run consumes jobs until the context is done or the queue closes. Blocks.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for slot := range w.slots {
		wg.Add(1)

		go func(slot int) {
			defer wg.Done()
			w.runSlot(ctx, slot)
		}(slot)
	}

	wg.Wait()

	return nil
}

// runSlot is one slot's pop-execute loop.
func (w *Worker) runSlot(ctx context.Context, slot int) {
	for {
		env, err := w.queue.Pop(ctx)

		switch {
		case errors.Is(err, ports.ErrQueueClosed), errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			w.logger.Info("worker slot stopping", "slot", slot)

			return
		case err != nil:
			w.logger.Error("dequeue failed", "slot", slot, "error", err)

			continue
		}

		w.handle(ctx, env)
	}
}

// handle runs one job end-to-end and publishes its terminal status.
// Delivery is at-least-once: a job whose terminal status already exists is
// acknowledged by re-reading that status, leaving artifacts untouched.
func (w *Worker) handle(ctx context.Context, env ports.JobEnvelope) {
	if existing, err := w.store.GetStatus(ctx, env.JobID); err == nil && existing.Status.Terminal() {
		w.logger.Info("job already terminal, skipping",
			"job_id", env.JobID, "status", string(existing.Status))

		return
	}

	if w.metrics != nil {
		done := w.metrics.TrackInflight(ctx)
		defer done()
	}

	w.exportJobID(env.JobID)
	defer w.clearJobID()

	w.publish(ctx, ports.StatusBlob{
		JobID:    env.JobID,
		Status:   ports.StatusRunning,
		Message:  "job accepted",
		Progress: 0,
	})

	started := time.Now()

	jc := session.NewContext(env.JobID)
	for key, value := range env.Metadata {
		jc.SetMetadata(key, value)
	}

	src, err := w.resolveInput(ctx, env)
	if err != nil {
		w.publishFailure(ctx, env.JobID, 0, 0, err)

		return
	}

	res, runErr := w.orch.RunJob(ctx, jc, src, env.EnabledStageIDs)

	w.recordJob(ctx, res, time.Since(started))

	switch res.Status {
	case ports.StatusSuccess:
		w.publish(ctx, ports.StatusBlob{
			JobID:       env.JobID,
			Status:      ports.StatusSuccess,
			StageIndex:  res.StagesCompleted,
			TotalStages: res.TotalStages,
			Message:     "job completed",
			Progress:    100,
			Metrics:     res.Metrics,
		})
	case ports.StatusCancelled:
		w.publish(ctx, ports.StatusBlob{
			JobID:       env.JobID,
			Status:      ports.StatusCancelled,
			StageIndex:  res.StagesCompleted,
			TotalStages: res.TotalStages,
			Message:     "job cancelled",
			Progress:    ports.RunningProgress(res.StagesCompleted, res.TotalStages),
		})
	default:
		w.publishFailure(ctx, env.JobID, res.StagesCompleted, res.TotalStages, runErr)
	}
}

// resolveInput picks the stem source: transport-backed inputs from the
// store when present, otherwise a local directory named by the media ref.
func (w *Worker) resolveInput(ctx context.Context, env ports.JobEnvelope) (session.InputSource, error) {
	inputs, err := w.store.GetInputs(ctx, env.JobID)
	if err == nil {
		return session.MapSource(inputs), nil
	}

	if !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("resolve inputs for %s: %w", env.JobID, err)
	}

	if env.MediaRef == "" {
		return nil, fmt.Errorf("job %s: %w", env.JobID, session.ErrInputMissing)
	}

	path := env.MediaRef
	if !filepath.IsAbs(path) && w.mediaDir != "" {
		path = filepath.Join(w.mediaDir, path)
	}

	return session.DirSource{Path: path}, nil
}

// publishFailure writes the terminal failure blob. The failed stage id and
// taxonomy kind ride along for the status poller.
func (w *Worker) publishFailure(ctx context.Context, jobID string, completed, total int, err error) {
	blob := ports.StatusBlob{
		JobID:       jobID,
		Status:      ports.StatusFailure,
		StageIndex:  completed,
		TotalStages: total,
		StageKey:    framework.FailedStage(err),
		Message:     errMessage(err),
		Progress:    ports.RunningProgress(completed, total),
		ErrorKind:   framework.ErrorKind(err),
	}

	w.publish(ctx, blob)
}

// publish writes a status blob, logging rather than failing the slot when
// the store refuses.
func (w *Worker) publish(ctx context.Context, blob ports.StatusBlob) {
	if err := w.store.SetStatus(ctx, blob.JobID, blob); err != nil {
		w.logger.Error("status publish failed",
			"job_id", blob.JobID, "status", string(blob.Status), "error", err)
	}
}

// recordJob feeds the job telemetry.
func (w *Worker) recordJob(ctx context.Context, res *framework.JobResult, elapsed time.Duration) {
	if w.metrics == nil || res == nil {
		return
	}

	kind := ""
	if res.Status == ports.StatusFailure {
		kind = framework.ErrorKind(res.Err)
	}

	w.metrics.RecordJob(ctx, string(res.Status), kind, elapsed)
}

// exportJobID publishes the job id for out-of-core DSP diagnostics.
func (w *Worker) exportJobID(jobID string) {
	w.envMu.Lock()
	defer w.envMu.Unlock()

	_ = os.Setenv(JobIDEnv, jobID)
}

// clearJobID removes the per-job environment export.
func (w *Worker) clearJobID() {
	w.envMu.Lock()
	defer w.envMu.Unlock()

	_ = os.Unsetenv(JobIDEnv)
}

func errMessage(err error) string {
	if err == nil {
		return "job failed"
	}

	return err.Error()
}
