package ports

import (
	"context"
	"fmt"
)

// StoreProgressSink is the default ProgressSink: it composes a running
// status blob from each progress event and writes it to the JobStore.
// Callers must emit in stage order from a single goroutine per job; the
// store is last-writer-wins.
type StoreProgressSink struct {
	store JobStore
}

// NewStoreProgressSink wires a progress sink to the given store.
func NewStoreProgressSink(store JobStore) *StoreProgressSink {
	return &StoreProgressSink{store: store}
}

// Emit implements ProgressSink.
func (s *StoreProgressSink) Emit(ctx context.Context, jobID string, event ProgressEvent) error {
	blob := StatusBlob{
		JobID:       jobID,
		Status:      StatusRunning,
		StageIndex:  event.StageIndex,
		TotalStages: event.TotalStages,
		StageKey:    event.StageID,
		Message:     event.Message,
		Progress:    RunningProgress(event.StageIndex, event.TotalStages),
	}

	if err := s.store.SetStatus(ctx, jobID, blob); err != nil {
		return fmt.Errorf("publish progress for %s: %w", jobID, err)
	}

	return nil
}

// RunningProgress maps completed-stages-of-total onto 0-99. Only a terminal
// success may report 100.
func RunningProgress(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}

	pct := completed * 100 / total

	return min(pct, 99)
}

// StoreArtifactSink is the default ArtifactSink: a pass-through to the
// JobStore's write-once artifact table.
type StoreArtifactSink struct {
	store JobStore
}

// NewStoreArtifactSink wires an artifact sink to the given store.
func NewStoreArtifactSink(store JobStore) *StoreArtifactSink {
	return &StoreArtifactSink{store: store}
}

// Put implements ArtifactSink.
func (s *StoreArtifactSink) Put(ctx context.Context, jobID, name string, data []byte) error {
	if err := s.store.PutArtifact(ctx, jobID, name, data); err != nil {
		return fmt.Errorf("store artifact %s for %s: %w", name, jobID, err)
	}

	return nil
}
