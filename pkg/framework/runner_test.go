package framework_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/framework"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/stage"
)

func runnerContext(t *testing.T) *session.Context {
	t.Helper()

	jc := session.NewContext("job-runner")
	jc.SetSampleRate(testRate)
	jc.SetStem("a.wav", audio.Sine("a.wav", testRate, 440, 0.5, 1.0))
	jc.RefreshMixdown()

	return jc
}

func TestRunAnalysisOnlyPostEqualsPre(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	runner := framework.NewRunner(testStages(t), nil, nil)
	jc := runnerContext(t)

	c, err := reg.Get("alpha")
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), jc, c, 1, 1)
	require.NoError(t, err)

	assert.Same(t, res.Pre, res.Post)
	assert.True(t, res.Diff.Empty())

	// Only the pre-record is stored; no shadow key for analysis-only.
	_, ok := jc.Analysis("alpha")
	assert.True(t, ok)

	_, ok = jc.Analysis(framework.PostRecordKey("alpha"))
	assert.False(t, ok)
}

func TestRunStemsDSPRefreshesMixdownAndDiffs(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	runner := framework.NewRunner(testStages(t), nil, nil)
	jc := runnerContext(t)

	initialPeak := audio.Peak(jc.Mixdown())

	c, err := reg.Get("halve")
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), jc, c, 1, 1)
	require.NoError(t, err)

	// Halving every stem halves the refreshed mixdown peak.
	assert.InDelta(t, initialPeak*0.5, audio.Peak(jc.Mixdown()), 1e-12)

	// Post-analysis shows a -6.02 dB RMS delta on the mix.
	require.NotEmpty(t, res.Diff.Session)
	rmsDiff := res.Diff.Session[0]
	assert.Equal(t, "rms_db", rmsDiff.Key)
	assert.InDelta(t, -6.02, rmsDiff.Delta, 0.01)
	assert.True(t, rmsDiff.Changed)

	// Both records stored: pre under the id, post under the shadow key.
	_, ok := jc.Analysis("halve")
	assert.True(t, ok)

	post, ok := jc.Analysis(framework.PostRecordKey("halve"))
	assert.True(t, ok)
	assert.Equal(t, res.Post, post)
}

func TestRunDependencyMissing(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	runner := framework.NewRunner(testStages(t), nil, nil)
	jc := runnerContext(t)

	c, err := reg.Get("needsalpha")
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), jc, c, 1, 1)
	require.ErrorIs(t, err, framework.ErrDependencyMissing)
	assert.Equal(t, "needsalpha", framework.FailedStage(err))
}

func TestRunProcessFailure(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	runner := framework.NewRunner(testStages(t), nil, nil)
	jc := runnerContext(t)

	c, err := reg.Get("boom")
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), jc, c, 1, 1)
	require.ErrorIs(t, err, framework.ErrProcessFailed)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "boom", framework.FailedStage(err))

	// The pre-record survives the failure.
	_, ok := jc.Analysis("boom")
	assert.True(t, ok)
}

type panicStage struct{}

func (panicStage) ID() string { return "panicky" }

func (panicStage) Analyse(_ *session.Context) (*session.Record, error) {
	return session.NewRecord("panicky", "panicky"), nil
}

func (panicStage) Process(_ *session.Context, _ *session.Record) error {
	panic("blown gain stage")
}

func TestRunRecoversStagePanic(t *testing.T) {
	t.Parallel()

	stages, err := stage.NewRegistry(panicStage{})
	require.NoError(t, err)

	runner := framework.NewRunner(stages, nil, nil)
	jc := runnerContext(t)

	c := contract.Contract{ID: "panicky", Name: "Panicky", Ordinal: 10, Kind: contract.KindMixdownDSP}

	_, err = runner.Run(context.Background(), jc, c, 1, 1)
	require.ErrorIs(t, err, framework.ErrProcessFailed)
	assert.Contains(t, err.Error(), "stage panic")
	assert.Equal(t, "panicky", framework.FailedStage(err))
}

func TestRunCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	runner := framework.NewRunner(testStages(t), nil, nil)
	jc := runnerContext(t)
	jc.RequestCancel()

	c, err := reg.Get("alpha")
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), jc, c, 1, 1)
	require.ErrorIs(t, err, framework.ErrCancelled)

	// Nothing was recorded.
	_, ok := jc.Analysis("alpha")
	assert.False(t, ok)
}

func TestRunEmitsProgress(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	sink := &recordingSink{}
	runner := framework.NewRunner(testStages(t), sink, nil)
	jc := runnerContext(t)

	c, err := reg.Get("alpha")
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), jc, c, 2, 5)
	require.NoError(t, err)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "alpha", events[0].StageID)
	assert.Equal(t, 2, events[0].StageIndex)
	assert.Equal(t, 5, events[0].TotalStages)
	assert.Contains(t, events[0].PreSummary, "rms_db")
}
