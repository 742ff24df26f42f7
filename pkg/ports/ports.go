// Package ports defines the abstract boundaries between the pipeline core
// and its transport and persistence collaborators: the job queue, the job
// store, the progress sink, and the artifact sink. Implementations live
// under internal/store.
package ports

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a status, artifact, or input lookup misses.
var ErrNotFound = errors.New("not found")

// ErrArtifactExists is returned on a second write to the same artifact name.
// Artifacts are write-once per (job id, name).
var ErrArtifactExists = errors.New("artifact already exists")

// ErrQueueClosed is returned from a blocked Pop when the queue shuts down.
var ErrQueueClosed = errors.New("queue closed")

// JobEnvelope is the queue message describing a submitted job.
type JobEnvelope struct {
	// JobID is opaque and globally unique within a deployment.
	JobID string `json:"job_id"`

	// MediaRef locates the input stems; the configured input port decides
	// how to interpret it.
	MediaRef string `json:"media_ref"`

	// EnabledStageIDs restricts the plan. Nil means all declared stages;
	// an empty non-nil slice means an empty plan.
	EnabledStageIDs []string `json:"enabled_stage_ids,omitempty"`

	// Metadata carries session config. Recognized keys include
	// style_preset, profiles_by_name, bus_styles, and upload_mode.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JobQueue transports job envelopes. Delivery is at-least-once; consumers
// must be idempotent on job id.
type JobQueue interface {
	// Push enqueues an envelope.
	Push(ctx context.Context, env JobEnvelope) error

	// Pop blocks until an envelope is available, the context is done, or
	// the queue closes.
	Pop(ctx context.Context) (JobEnvelope, error)
}

// JobStore persists per-job status, artifacts, and inputs. Status blobs are
// overwritable; artifacts are write-once per (job id, name). No cross-job
// queries.
type JobStore interface {
	SetStatus(ctx context.Context, jobID string, blob StatusBlob) error
	GetStatus(ctx context.Context, jobID string) (StatusBlob, error)

	PutArtifact(ctx context.Context, jobID, name string, data []byte) error
	GetArtifact(ctx context.Context, jobID, name string) ([]byte, error)

	PutInput(ctx context.Context, jobID, name string, data []byte) error
	GetInputs(ctx context.Context, jobID string) (map[string][]byte, error)
}

// ProgressSink receives per-stage progress events for a running job.
type ProgressSink interface {
	Emit(ctx context.Context, jobID string, event ProgressEvent) error
}

// ArtifactSink receives finalized artifacts. A thin adapter over JobStore
// for the orchestrator's finalize step.
type ArtifactSink interface {
	Put(ctx context.Context, jobID, name string, data []byte) error
}

// ProgressEvent describes one completed stage within a job.
type ProgressEvent struct {
	StageID string `json:"stage_id"`

	// StageIndex is the 1-based position within the resolved plan.
	StageIndex  int `json:"stage_index"`
	TotalStages int `json:"total_stages"`

	ElapsedSec float64 `json:"elapsed_sec"`
	Message    string  `json:"message"`

	// Session-level measurement snapshots before and after the stage ran,
	// and a per-field change summary.
	PreSummary  map[string]any `json:"pre_summary,omitempty"`
	PostSummary map[string]any `json:"post_summary,omitempty"`
	DiffSummary map[string]any `json:"diff_summary,omitempty"`
}
