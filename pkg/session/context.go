// Package session owns all mutable per-job state: stem buffers, the current
// mixdown, metadata, per-stage analysis records, timings, and artifacts. The
// context is a leaf dependency: stages depend on it, never the reverse.
//
// The context is single-writer per job (the stage runner on behalf of the
// orchestrator). External readers may observe a consistent snapshot only
// between stages. The cancel flag is the one exception and is safe to set
// from any goroutine.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/stemforge/stemforge/pkg/audio"
)

// ErrInputMissing is returned when no stems are resolvable from the input
// source.
var ErrInputMissing = errors.New("no input stems found")

// ErrDuplicateAnalysis is returned when a stage records a second analysis
// under the same key within one pass.
var ErrDuplicateAnalysis = errors.New("duplicate analysis record")

// ErrUnknownStem is returned when a stem lookup fails.
var ErrUnknownStem = errors.New("unknown stem")

// Timing is one (stage id, wall-clock duration) pair.
type Timing struct {
	StageID  string
	Duration time.Duration
}

// Context holds all mutable state for one job.
type Context struct {
	jobID      string
	sampleRate int

	stems     map[string]*audio.Buffer
	stemOrder []string

	// pendingResample lists stems whose native rate differs from the
	// session rate. A structural stage resolves them.
	pendingResample []string

	mixdown *audio.Buffer

	metadata map[string]any

	records map[string]*Record
	timings []Timing

	artifacts map[string][]byte

	cancelled atomic.Bool
}

// NewContext creates an empty context for the given job id.
func NewContext(jobID string) *Context {
	return &Context{
		jobID:     jobID,
		stems:     make(map[string]*audio.Buffer),
		metadata:  make(map[string]any),
		records:   make(map[string]*Record),
		artifacts: make(map[string][]byte),
	}
}

// JobID returns the opaque job identifier.
func (c *Context) JobID() string {
	return c.jobID
}

// LoadStems populates the stem set from an input source. The first stem read
// establishes the session sample rate; stems arriving at another rate are
// tracked as pending-resample for a structural stage to resolve. Channel
// layouts are coerced: if any stem is stereo, all stems become stereo.
func (c *Context) LoadStems(src InputSource) error {
	blobs, err := src.Read()
	if err != nil {
		return fmt.Errorf("read input source: %w", err)
	}

	if len(blobs) == 0 {
		return ErrInputMissing
	}

	names := make([]string, 0, len(blobs))
	for name := range blobs {
		names = append(names, name)
	}

	// Deterministic ingest order for logs and the rate-establishing stem.
	sort.Strings(names)

	for _, name := range names {
		buf, decodeErr := audio.DecodeWAV(name, blobs[name])
		if decodeErr != nil {
			return fmt.Errorf("decode stem %s: %w", name, decodeErr)
		}

		if c.sampleRate == 0 {
			c.sampleRate = buf.Rate
		}

		if buf.Rate != c.sampleRate {
			c.pendingResample = append(c.pendingResample, name)
		}

		c.stems[name] = buf
		c.stemOrder = append(c.stemOrder, name)
	}

	c.coerceChannelLayout()

	return nil
}

// coerceChannelLayout widens every stem to stereo when at least one stereo
// stem is present, so all stems share one layout.
func (c *Context) coerceChannelLayout() {
	anyStereo := false
	for _, stem := range c.stems {
		if stem.Channels() == audio.Stereo {
			anyStereo = true

			break
		}
	}

	if !anyStereo {
		return
	}

	for name, stem := range c.stems {
		c.stems[name] = stem.ToStereo()
	}
}

// SampleRate returns the authoritative session sample rate.
func (c *Context) SampleRate() int {
	return c.sampleRate
}

// SetSampleRate rewrites the session rate. Only structural stages may call
// this; subsequent stages observe the new rate without conversion.
func (c *Context) SetSampleRate(rate int) {
	c.sampleRate = rate
}

// PendingResample returns the stems whose native rate differs from the
// session rate, in ingest order.
func (c *Context) PendingResample() []string {
	out := make([]string, len(c.pendingResample))
	copy(out, c.pendingResample)

	return out
}

// ClearPendingResample marks all rate mismatches as resolved.
func (c *Context) ClearPendingResample() {
	c.pendingResample = nil
}

// StemNames returns stem names in ingest order.
func (c *Context) StemNames() []string {
	out := make([]string, len(c.stemOrder))
	copy(out, c.stemOrder)

	return out
}

// Stem returns the buffer for the given stem name.
func (c *Context) Stem(name string) (*audio.Buffer, error) {
	stem, ok := c.stems[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStem, name)
	}

	return stem, nil
}

// Stems returns all stem buffers in ingest order.
func (c *Context) Stems() []*audio.Buffer {
	out := make([]*audio.Buffer, 0, len(c.stemOrder))
	for _, name := range c.stemOrder {
		out = append(out, c.stems[name])
	}

	return out
}

// SetStem inserts or replaces a stem buffer. Structural stages use this to
// add or replace stems.
func (c *Context) SetStem(name string, buf *audio.Buffer) {
	if _, exists := c.stems[name]; !exists {
		c.stemOrder = append(c.stemOrder, name)
	}

	c.stems[name] = buf
}

// StemCount returns the number of stems.
func (c *Context) StemCount() int {
	return len(c.stems)
}

// RefreshMixdown recomputes the mixdown as the zero-padded stereo sum of all
// current stems. Pure function of the current stems and sample rate; no peak
// normalization happens here.
func (c *Context) RefreshMixdown() {
	c.mixdown = audio.Mixdown(c.sampleRate, c.Stems())
}

// Mixdown returns the current mixdown, or nil before the first refresh.
func (c *Context) Mixdown() *audio.Buffer {
	return c.mixdown
}

// SetMixdown replaces the mixdown buffer. Mixdown-DSP stages rewrite the
// mixdown through the buffer they received; this setter exists for stages
// that reallocate.
func (c *Context) SetMixdown(buf *audio.Buffer) {
	c.mixdown = buf
}

// SetMetadata stores one metadata value.
func (c *Context) SetMetadata(key string, value any) {
	c.metadata[key] = value
}

// Metadata returns the metadata value for the given key.
func (c *Context) Metadata(key string) (any, bool) {
	v, ok := c.metadata[key]

	return v, ok
}

// MetadataString returns a string metadata value, or "" when absent.
func (c *Context) MetadataString(key string) string {
	s, _ := c.metadata[key].(string)

	return s
}

// RecordAnalysis inserts a record under the given key. Keys are stage ids,
// or stage id + ":post" for post-process records.
func (c *Context) RecordAnalysis(key string, record *Record) error {
	if _, exists := c.records[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAnalysis, key)
	}

	c.records[key] = record

	return nil
}

// Analysis returns the record stored under the given key.
func (c *Context) Analysis(key string) (*Record, bool) {
	r, ok := c.records[key]

	return r, ok
}

// AnalysisCount returns the number of stored records, post records included.
func (c *Context) AnalysisCount() int {
	return len(c.records)
}

// RecordTiming appends one stage wall-clock duration.
func (c *Context) RecordTiming(stageID string, duration time.Duration) {
	c.timings = append(c.timings, Timing{StageID: stageID, Duration: duration})
}

// Timings returns all recorded timings in execution order.
func (c *Context) Timings() []Timing {
	out := make([]Timing, len(c.timings))
	copy(out, c.timings)

	return out
}

// PutArtifact stores a byte blob under a logical name.
func (c *Context) PutArtifact(name string, data []byte) {
	c.artifacts[name] = data
}

// Artifact returns the artifact stored under the given name.
func (c *Context) Artifact(name string) ([]byte, bool) {
	data, ok := c.artifacts[name]

	return data, ok
}

// ArtifactNames returns all artifact names in sorted order.
func (c *Context) ArtifactNames() []string {
	names := make([]string, 0, len(c.artifacts))
	for name := range c.artifacts {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// RequestCancel sets the cancel flag. Monotonic: false to true once.
func (c *Context) RequestCancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested. Stages observing
// true must stop at their next natural checkpoint.
func (c *Context) Cancelled() bool {
	return c.cancelled.Load()
}
