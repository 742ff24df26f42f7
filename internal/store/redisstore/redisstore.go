// Package redisstore implements the JobQueue and JobStore ports on Redis.
// The queue is a list worked with LPUSH/BRPOP; statuses are JSON strings;
// artifacts and inputs are hashes per job, with HSETNX giving artifacts
// their write-once guarantee.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemforge/stemforge/pkg/ports"
)

// Key layout. Everything is namespaced under the prefix so one Redis can
// host several deployments.
const (
	queueKey       = "queue:jobs"
	statusKeyFmt   = "job:%s:status"
	artifactKeyFmt = "job:%s:artifacts"
	inputKeyFmt    = "job:%s:inputs"
)

// popTimeout bounds each BRPOP round so context cancellation is observed.
const popTimeout = 2 * time.Second

// Queue is a Redis-backed FIFO JobQueue.
type Queue struct {
	client *redis.Client
	prefix string
}

// NewQueue creates a queue on the given client. prefix namespaces all keys.
func NewQueue(client *redis.Client, prefix string) *Queue {
	return &Queue{client: client, prefix: prefix}
}

// Push implements ports.JobQueue.
func (q *Queue) Push(ctx context.Context, env ports.JobEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", env.JobID, err)
	}

	if err := q.client.LPush(ctx, q.prefix+queueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", env.JobID, err)
	}

	return nil
}

// Pop implements ports.JobQueue. Loops bounded BRPOP rounds until an
// envelope arrives or the context is done.
func (q *Queue) Pop(ctx context.Context) (ports.JobEnvelope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ports.JobEnvelope{}, err
		}

		res, err := q.client.BRPop(ctx, popTimeout, q.prefix+queueKey).Result()

		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ports.JobEnvelope{}, ctx.Err()
			}

			return ports.JobEnvelope{}, fmt.Errorf("dequeue: %w", err)
		}

		// BRPOP returns [key, value].
		var env ports.JobEnvelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			return ports.JobEnvelope{}, fmt.Errorf("decode envelope: %w", err)
		}

		return env, nil
	}
}

// Store is a Redis-backed JobStore.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a store on the given client. prefix namespaces all keys.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// SetStatus implements ports.JobStore. Last writer wins.
func (s *Store) SetStatus(ctx context.Context, jobID string, blob ports.StatusBlob) error {
	payload, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode status %s: %w", jobID, err)
	}

	key := s.prefix + fmt.Sprintf(statusKeyFmt, jobID)
	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("set status %s: %w", jobID, err)
	}

	return nil
}

// GetStatus implements ports.JobStore.
func (s *Store) GetStatus(ctx context.Context, jobID string) (ports.StatusBlob, error) {
	key := s.prefix + fmt.Sprintf(statusKeyFmt, jobID)

	payload, err := s.client.Get(ctx, key).Bytes()

	switch {
	case errors.Is(err, redis.Nil):
		return ports.StatusBlob{}, fmt.Errorf("status %s: %w", jobID, ports.ErrNotFound)
	case err != nil:
		return ports.StatusBlob{}, fmt.Errorf("get status %s: %w", jobID, err)
	}

	var blob ports.StatusBlob
	if err := json.Unmarshal(payload, &blob); err != nil {
		return ports.StatusBlob{}, fmt.Errorf("decode status %s: %w", jobID, err)
	}

	return blob, nil
}

// PutArtifact implements ports.JobStore. HSETNX enforces write-once.
func (s *Store) PutArtifact(ctx context.Context, jobID, name string, data []byte) error {
	key := s.prefix + fmt.Sprintf(artifactKeyFmt, jobID)

	set, err := s.client.HSetNX(ctx, key, name, data).Result()
	if err != nil {
		return fmt.Errorf("put artifact %s/%s: %w", jobID, name, err)
	}

	if !set {
		return fmt.Errorf("artifact %s/%s: %w", jobID, name, ports.ErrArtifactExists)
	}

	return nil
}

// GetArtifact implements ports.JobStore.
func (s *Store) GetArtifact(ctx context.Context, jobID, name string) ([]byte, error) {
	key := s.prefix + fmt.Sprintf(artifactKeyFmt, jobID)

	data, err := s.client.HGet(ctx, key, name).Bytes()

	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("artifact %s/%s: %w", jobID, name, ports.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("get artifact %s/%s: %w", jobID, name, err)
	}

	return data, nil
}

// PutInput implements ports.JobStore. Inputs are overwritable.
func (s *Store) PutInput(ctx context.Context, jobID, name string, data []byte) error {
	key := s.prefix + fmt.Sprintf(inputKeyFmt, jobID)

	if err := s.client.HSet(ctx, key, name, data).Err(); err != nil {
		return fmt.Errorf("put input %s/%s: %w", jobID, name, err)
	}

	return nil
}

// GetInputs implements ports.JobStore.
func (s *Store) GetInputs(ctx context.Context, jobID string) (map[string][]byte, error) {
	key := s.prefix + fmt.Sprintf(inputKeyFmt, jobID)

	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get inputs %s: %w", jobID, err)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("inputs %s: %w", jobID, ports.ErrNotFound)
	}

	out := make(map[string][]byte, len(raw))
	for name, data := range raw {
		out[name] = []byte(data)
	}

	return out, nil
}
