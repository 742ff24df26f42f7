package framework_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/framework"
	"github.com/stemforge/stemforge/pkg/ports"
	"github.com/stemforge/stemforge/pkg/session"
)

type harness struct {
	orch      *framework.Orchestrator
	sink      *recordingSink
	artifacts *memArtifacts
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sink := &recordingSink{}
	artifacts := newMemArtifacts()
	runner := framework.NewRunner(testStages(t), sink, nil)
	orch := framework.NewOrchestrator(
		testRegistry(t), testStages(t), runner, artifacts, "test", nil)

	return &harness{orch: orch, sink: sink, artifacts: artifacts}
}

func TestEmptyPlanPassthrough(t *testing.T) {
	t.Parallel()

	a := audio.Sine("a.wav", testRate, 440, 0.5, 1.0)
	b := audio.Sine("b.wav", testRate, 880, 0.5, 0.5)

	src := session.MapSource{
		"a.wav": encodeStem(t, a),
		"b.wav": encodeStem(t, b),
	}

	h := newHarness(t)
	jc := session.NewContext("job-passthrough")

	res, err := h.orch.RunJob(context.Background(), jc, src, []string{})
	require.NoError(t, err)
	assert.Equal(t, ports.StatusSuccess, res.Status)
	assert.Zero(t, res.StagesCompleted)

	data, ok := h.artifacts.get(framework.MixdownArtifact)
	require.True(t, ok)

	mix, err := audio.DecodeWAV("full_song.wav", data)
	require.NoError(t, err)

	assert.Equal(t, audio.Stereo, mix.Channels())
	assert.Equal(t, testRate, mix.Rate)
	assert.Equal(t, testRate, mix.Frames())

	// Mono inputs duplicated to both channels: the channels are equal.
	assert.Equal(t, mix.Samples[0], mix.Samples[1])

	// Sample-exact against the time-aligned sum of the decoded inputs.
	decodedA, err := audio.DecodeWAV("a.wav", src["a.wav"])
	require.NoError(t, err)
	decodedB, err := audio.DecodeWAV("b.wav", src["b.wav"])
	require.NoError(t, err)

	expected := audio.Mixdown(testRate, []*audio.Buffer{decodedA, decodedB})
	expectedWAV, err := audio.EncodeWAV(expected, audio.Depth16)
	require.NoError(t, err)
	assert.Equal(t, expectedWAV, data)
}

func TestAnalysisOnlyIdentity(t *testing.T) {
	t.Parallel()

	noise := audio.WhiteNoise("noise.wav", audio.Stereo, 48000, 0.5, 2.0, 3)
	src := session.MapSource{"noise.wav": encodeStem(t, noise)}

	h := newHarness(t)
	jc := session.NewContext("job-identity")

	// Capture the ingested samples before the run.
	require.NoError(t, jc.LoadStems(src))
	ingested, err := jc.Stem("noise.wav")
	require.NoError(t, err)
	before := ingested.Clone()

	res, err := h.orch.RunJob(context.Background(), session.NewContext("job-identity-run"), src, []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, ports.StatusSuccess, res.Status)

	// Report has exactly one analyzed stage and no diff.
	reportData, ok := h.artifacts.get(framework.ReportArtifact)
	require.True(t, ok)

	var report framework.Report
	require.NoError(t, json.Unmarshal(reportData, &report))
	require.Len(t, report.Stages, 1)
	assert.Equal(t, "alpha", report.Stages[0].ContractID)
	assert.Equal(t, framework.StageAnalyzed, report.Stages[0].Status)
	assert.Nil(t, report.Stages[0].Diff)

	// The stem bytes are untouched by an analysis-only run.
	jc2 := session.NewContext("job-identity-check")
	require.NoError(t, jc2.LoadStems(src))
	after, err := jc2.Stem("noise.wav")
	require.NoError(t, err)
	assert.Equal(t, before.Samples, after.Samples)
}

func TestDependencyViolationFailsPlan(t *testing.T) {
	t.Parallel()

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.5, 1.0)),
	}

	h := newHarness(t)

	res, err := h.orch.RunJob(context.Background(), session.NewContext("job-badplan"), src, []string{"needsalpha"})
	require.ErrorIs(t, err, framework.ErrInvalidPlan)
	assert.Equal(t, ports.StatusFailure, res.Status)
	assert.Zero(t, res.StagesCompleted)
	assert.Equal(t, "InvalidPlan", framework.ErrorKind(res.Err))

	_, ok := h.artifacts.get(framework.ReportArtifact)
	assert.False(t, ok)
}

func TestCancellationBetweenStages(t *testing.T) {
	t.Parallel()

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.5, 1.0)),
	}

	h := newHarness(t)
	jc := session.NewContext("job-cancel")

	// Cancel as soon as the first progress event lands.
	h.sink.onEmit = func(ports.ProgressEvent) {
		jc.RequestCancel()
	}

	res, err := h.orch.RunJob(context.Background(), jc, src, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, ports.StatusCancelled, res.Status)
	assert.Equal(t, 1, res.StagesCompleted)

	// Exactly stage 1 produced a record.
	assert.Equal(t, 1, jc.AnalysisCount())

	_, ok := jc.Analysis("alpha")
	assert.True(t, ok)

	_, ok = h.artifacts.get(framework.ReportArtifact)
	assert.False(t, ok)
}

func TestMixdownRefreshAfterStemDSP(t *testing.T) {
	t.Parallel()

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.8, 1.0)),
	}

	h := newHarness(t)
	jc := session.NewContext("job-halve")

	res, err := h.orch.RunJob(context.Background(), jc, src, []string{"halve"})
	require.NoError(t, err)
	assert.Equal(t, ports.StatusSuccess, res.Status)

	data, ok := h.artifacts.get(framework.MixdownArtifact)
	require.True(t, ok)

	mix, err := audio.DecodeWAV("full_song.wav", data)
	require.NoError(t, err)

	decoded, err := audio.DecodeWAV("a.wav", src["a.wav"])
	require.NoError(t, err)

	initial := audio.Mixdown(testRate, []*audio.Buffer{decoded})
	assert.Equal(t, initial.Frames(), mix.Frames())
	assert.InDelta(t, audio.Peak(initial)*0.5, audio.Peak(mix), 1e-3)
}

func TestFailureContainment(t *testing.T) {
	t.Parallel()

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.8, 1.0)),
	}

	h := newHarness(t)
	jc := session.NewContext("job-contained")

	res, err := h.orch.RunJob(context.Background(), jc, src, []string{"halve", "boom"})
	require.ErrorIs(t, err, framework.ErrProcessFailed)
	assert.Equal(t, ports.StatusFailure, res.Status)
	assert.Equal(t, 1, res.StagesCompleted)
	assert.Equal(t, "boom", framework.FailedStage(res.Err))

	// Pre-records for both stages, post-record only for the first.
	_, ok := jc.Analysis("halve")
	assert.True(t, ok)

	_, ok = jc.Analysis(framework.PostRecordKey("halve"))
	assert.True(t, ok)

	_, ok = jc.Analysis("boom")
	assert.True(t, ok)

	_, ok = jc.Analysis(framework.PostRecordKey("boom"))
	assert.False(t, ok)

	// No report, but the mixdown reflects stage 1's output best-effort.
	_, ok = h.artifacts.get(framework.ReportArtifact)
	assert.False(t, ok)

	data, ok := h.artifacts.get(framework.MixdownArtifact)
	require.True(t, ok)

	mix, err := audio.DecodeWAV("full_song.wav", data)
	require.NoError(t, err)

	decoded, err := audio.DecodeWAV("a.wav", src["a.wav"])
	require.NoError(t, err)
	assert.InDelta(t, audio.Peak(decoded)*0.5, audio.Peak(mix), 1e-3)
}

func TestZeroStemsInputMissing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	res, err := h.orch.RunJob(context.Background(), session.NewContext("job-empty"), session.MapSource{}, nil)
	require.ErrorIs(t, err, session.ErrInputMissing)
	assert.Equal(t, ports.StatusFailure, res.Status)
	assert.Equal(t, "InputMissing", framework.ErrorKind(res.Err))
}

func TestProgressEventsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.5, 1.0)),
	}

	h := newHarness(t)

	_, err := h.orch.RunJob(context.Background(), session.NewContext("job-progress"), src, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)

	events := h.sink.all()
	require.Len(t, events, 3)

	for i, event := range events {
		assert.Equal(t, i+1, event.StageIndex)
		assert.Equal(t, 3, event.TotalStages)
	}
}

func TestReportCarriesFinalMetricsAndDurations(t *testing.T) {
	t.Parallel()

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.5, 2.0)),
	}

	h := newHarness(t)

	res, err := h.orch.RunJob(context.Background(), session.NewContext("job-report"), src, []string{"alpha", "halve"})
	require.NoError(t, err)
	require.NotNil(t, res.Metrics)

	reportData, ok := h.artifacts.get(framework.ReportArtifact)
	require.True(t, ok)

	var report map[string]any
	require.NoError(t, json.Unmarshal(reportData, &report))

	assert.Equal(t, "test", report["pipeline_version"])
	assert.Contains(t, report, "generated_at_utc")
	assert.Contains(t, report, "final_metrics")

	durations := report["pipeline_durations"].(map[string]any)
	assert.Len(t, durations["stages"], 2)
}
