// Package memstore provides in-process implementations of the JobQueue and
// JobStore ports. The queue is a buffered channel; the store is a set of
// mutex-guarded maps. Used by single-process deployments and tests.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/stemforge/stemforge/pkg/ports"
)

// defaultQueueDepth bounds pending envelopes before Push blocks.
const defaultQueueDepth = 128

// Queue is a FIFO in-memory JobQueue.
type Queue struct {
	ch chan ports.JobEnvelope

	closeOnce sync.Once
	closed    chan struct{}
}

// NewQueue creates an in-memory queue. depth <= 0 uses the default.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}

	return &Queue{
		ch:     make(chan ports.JobEnvelope, depth),
		closed: make(chan struct{}),
	}
}

// Push implements ports.JobQueue.
func (q *Queue) Push(ctx context.Context, env ports.JobEnvelope) error {
	select {
	case q.ch <- env:
		return nil
	case <-q.closed:
		return ports.ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("push %s: %w", env.JobID, ctx.Err())
	}
}

// Pop implements ports.JobQueue. Blocks until an envelope arrives, the
// context is done, or the queue closes.
func (q *Queue) Pop(ctx context.Context) (ports.JobEnvelope, error) {
	select {
	case env := <-q.ch:
		return env, nil
	case <-q.closed:
		// Drain what was already queued before reporting closed.
		select {
		case env := <-q.ch:
			return env, nil
		default:
			return ports.JobEnvelope{}, ports.ErrQueueClosed
		}
	case <-ctx.Done():
		return ports.JobEnvelope{}, ctx.Err()
	}
}

// Close wakes all blocked Pops with ErrQueueClosed. Idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Store is an in-memory JobStore.
type Store struct {
	mu sync.RWMutex

	statuses  map[string]ports.StatusBlob
	artifacts map[string]map[string][]byte
	inputs    map[string]map[string][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		statuses:  make(map[string]ports.StatusBlob),
		artifacts: make(map[string]map[string][]byte),
		inputs:    make(map[string]map[string][]byte),
	}
}

// SetStatus implements ports.JobStore. Last writer wins.
func (s *Store) SetStatus(_ context.Context, jobID string, blob ports.StatusBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[jobID] = blob

	return nil
}

// GetStatus implements ports.JobStore.
func (s *Store) GetStatus(_ context.Context, jobID string) (ports.StatusBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.statuses[jobID]
	if !ok {
		return ports.StatusBlob{}, fmt.Errorf("status %s: %w", jobID, ports.ErrNotFound)
	}

	return blob, nil
}

// PutArtifact implements ports.JobStore. Write-once per (job id, name).
func (s *Store) PutArtifact(_ context.Context, jobID, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName, ok := s.artifacts[jobID]
	if !ok {
		byName = make(map[string][]byte)
		s.artifacts[jobID] = byName
	}

	if _, exists := byName[name]; exists {
		return fmt.Errorf("artifact %s/%s: %w", jobID, name, ports.ErrArtifactExists)
	}

	byName[name] = clone(data)

	return nil
}

// GetArtifact implements ports.JobStore.
func (s *Store) GetArtifact(_ context.Context, jobID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.artifacts[jobID][name]
	if !ok {
		return nil, fmt.Errorf("artifact %s/%s: %w", jobID, name, ports.ErrNotFound)
	}

	return clone(data), nil
}

// PutInput implements ports.JobStore. Inputs are overwritable.
func (s *Store) PutInput(_ context.Context, jobID, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName, ok := s.inputs[jobID]
	if !ok {
		byName = make(map[string][]byte)
		s.inputs[jobID] = byName
	}

	byName[name] = clone(data)

	return nil
}

// GetInputs implements ports.JobStore.
func (s *Store) GetInputs(_ context.Context, jobID string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName, ok := s.inputs[jobID]
	if !ok {
		return nil, fmt.Errorf("inputs %s: %w", jobID, ports.ErrNotFound)
	}

	out := make(map[string][]byte, len(byName))
	for name, data := range byName {
		out[name] = clone(data)
	}

	return out, nil
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)

	return out
}
