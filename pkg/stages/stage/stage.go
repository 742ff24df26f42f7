// Package stage defines the uniform contract every pipeline stage
// implements, the registry mapping stage ids to stage values, and the
// numeric diff derived from a stage's pre- and post-analysis records.
package stage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/stemforge/stemforge/pkg/session"
)

// ErrUnknownStageID is returned when a registry lookup fails.
var ErrUnknownStageID = errors.New("unknown stage id")

// ErrDuplicateStageID is returned when two stages register the same id.
var ErrDuplicateStageID = errors.New("duplicate stage id")

// Stage is the uniform analyse/process contract. Analyse must not mutate
// audio buffers, metadata, or artifacts. Process may mutate per the stage's
// declared kind; analysis-only stages implement it as a no-op. Stages must
// not retain context references after returning.
type Stage interface {
	// ID returns the stage id matching its contract declaration.
	ID() string

	// Analyse measures the context and produces a record.
	Analyse(ctx *session.Context) (*session.Record, error)

	// Process mutates the context using the pre-analysis record.
	Process(ctx *session.Context, pre *session.Record) error
}

// Registry maps stage ids to stage values. Populated once at process start;
// selection of which stage implements which id is fixed per build.
type Registry struct {
	ordered []string
	index   map[string]Stage
}

// NewRegistry creates a registry from the given stages, preserving
// registration order.
func NewRegistry(stages ...Stage) (*Registry, error) {
	reg := &Registry{index: make(map[string]Stage, len(stages))}

	for _, s := range stages {
		if _, dup := reg.index[s.ID()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStageID, s.ID())
		}

		reg.index[s.ID()] = s
		reg.ordered = append(reg.ordered, s.ID())
	}

	return reg, nil
}

// Get returns the stage registered under the given id.
func (r *Registry) Get(id string) (Stage, error) {
	s, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStageID, id)
	}

	return s, nil
}

// IDs returns registered stage ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)

	return out
}

// SortedIDs returns registered stage ids sorted lexicographically.
func (r *Registry) SortedIDs() []string {
	out := r.IDs()
	sort.Strings(out)

	return out
}
