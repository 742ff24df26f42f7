package framework_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/ports"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/stage"
)

const testRate = 44100

// testContracts declares a small stage set exercising every kind.
const testContracts = `{
  "stages": {
    "alpha":   {"id": "alpha",   "name": "Alpha Measure", "ordinal": 10, "kind": "analysis"},
    "beta":    {"id": "beta",    "name": "Beta Measure",  "ordinal": 20, "kind": "analysis"},
    "gamma":   {"id": "gamma",   "name": "Gamma Measure", "ordinal": 30, "kind": "analysis"},
    "halve":   {"id": "halve",   "name": "Halve Stems",   "ordinal": 40, "kind": "stems-dsp"},
    "boom":    {"id": "boom",    "name": "Always Fails",  "ordinal": 50, "kind": "mixdown-dsp"},
    "needsalpha": {"id": "needsalpha", "name": "Needs Alpha", "ordinal": 60, "kind": "analysis", "depends_on": ["alpha"]}
  }
}`

func testRegistry(t *testing.T) *contract.Registry {
	t.Helper()

	reg, err := contract.Load(strings.NewReader(testContracts))
	require.NoError(t, err)

	return reg
}

// measureStage is an analysis-only stage recording the mix RMS.
type measureStage struct {
	id string
}

func (s *measureStage) ID() string { return s.id }

func (s *measureStage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.id, s.id)

	if mix := ctx.Mixdown(); mix != nil {
		rec.Session["rms_db"] = audio.DB(audio.RMS(mix))
	}

	for _, name := range ctx.StemNames() {
		stem, err := ctx.Stem(name)
		if err != nil {
			return nil, err
		}

		rec.AddStem(name, map[string]any{"rms_db": audio.DB(audio.RMS(stem))})
	}

	return rec, nil
}

func (s *measureStage) Process(_ *session.Context, _ *session.Record) error { return nil }

// halveStage is a stems-DSP stage halving every stem's amplitude.
type halveStage struct{}

func (s *halveStage) ID() string { return "halve" }

func (s *halveStage) Analyse(ctx *session.Context) (*session.Record, error) {
	return (&measureStage{id: "halve"}).Analyse(ctx)
}

func (s *halveStage) Process(ctx *session.Context, _ *session.Record) error {
	for _, stem := range ctx.Stems() {
		stem.Scale(0.5)
	}

	return nil
}

// boomStage always fails in process.
type boomStage struct{}

var errBoom = errors.New("synthetic process failure")

func (s *boomStage) ID() string { return "boom" }

func (s *boomStage) Analyse(ctx *session.Context) (*session.Record, error) {
	return (&measureStage{id: "boom"}).Analyse(ctx)
}

func (s *boomStage) Process(_ *session.Context, _ *session.Record) error { return errBoom }

func testStages(t *testing.T) *stage.Registry {
	t.Helper()

	reg, err := stage.NewRegistry(
		&measureStage{id: "alpha"},
		&measureStage{id: "beta"},
		&measureStage{id: "gamma"},
		&halveStage{},
		&boomStage{},
		&measureStage{id: "needsalpha"},
	)
	require.NoError(t, err)

	return reg
}

// recordingSink captures progress events in order. onEmit, when set, runs
// after each capture.
type recordingSink struct {
	mu     sync.Mutex
	events []ports.ProgressEvent
	onEmit func(event ports.ProgressEvent)
}

func (s *recordingSink) Emit(_ context.Context, _ string, event ports.ProgressEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	if s.onEmit != nil {
		s.onEmit(event)
	}

	return nil
}

func (s *recordingSink) all() []ports.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ports.ProgressEvent, len(s.events))
	copy(out, s.events)

	return out
}

// memArtifacts is a write-once in-memory artifact sink.
type memArtifacts struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{blobs: make(map[string][]byte)}
}

func (s *memArtifacts) Put(_ context.Context, _ string, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blobs[name]; exists {
		return ports.ErrArtifactExists
	}

	out := make([]byte, len(data))
	copy(out, data)
	s.blobs[name] = out

	return nil
}

func (s *memArtifacts) get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[name]

	return data, ok
}

// encodeStem renders a buffer to 16-bit WAV bytes for ingest.
func encodeStem(t *testing.T, buf *audio.Buffer) []byte {
	t.Helper()

	data, err := audio.EncodeWAV(buf, audio.Depth16)
	require.NoError(t, err)

	return data
}
