package buscomp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/buscomp"
)

const testRate = 44100

func testContract() contract.Contract {
	return contract.Contract{
		ID:      "buscomp",
		Kind:    contract.KindMixdownDSP,
		Metrics: map[string]float64{"threshold_db": -18, "ratio": 2},
		Limits:  map[string]float64{"max_gain_reduction_db": 6},
	}
}

func newContext(t *testing.T, stems ...*audio.Buffer) *session.Context {
	t.Helper()

	ctx := session.NewContext("job-buscomp")
	ctx.SetSampleRate(testRate)

	for _, stem := range stems {
		ctx.SetStem(stem.Name, stem)
	}

	ctx.RefreshMixdown()

	return ctx
}

func TestAnalyseEstimatesReduction(t *testing.T) {
	t.Parallel()

	// A loud sine well over threshold.
	ctx := newContext(t, audio.Sine("mix.wav", testRate, 220, 0.8, 1.0))

	rec, err := buscomp.New(testContract()).Analyse(ctx)
	require.NoError(t, err)

	est := rec.Session["estimated_max_reduction_db"].(float64)
	assert.Positive(t, est)
	assert.LessOrEqual(t, est, 6.0)
}

func TestProcessReducesLevelAboveThreshold(t *testing.T) {
	t.Parallel()

	loud := audio.Sine("mix.wav", testRate, 220, 0.8, 2.0)
	ctx := newContext(t, loud)

	before := audio.DB(audio.RMS(ctx.Mixdown()))

	stage := buscomp.New(testContract())

	rec, err := stage.Analyse(ctx)
	require.NoError(t, err)
	require.NoError(t, stage.Process(ctx, rec))

	after := audio.DB(audio.RMS(ctx.Mixdown()))
	assert.Less(t, after, before)

	// 2:1 above -18 dB can never take more than the 6 dB bound.
	assert.LessOrEqual(t, before-after, 6.0)
}

func TestProcessLeavesQuietSignalAlone(t *testing.T) {
	t.Parallel()

	// -40ish dB RMS sits far below the -18 dB threshold and the knee.
	quiet := audio.Sine("mix.wav", testRate, 220, 0.01, 1.0)
	ctx := newContext(t, quiet)

	before := audio.RMS(ctx.Mixdown())

	stage := buscomp.New(testContract())

	rec, err := stage.Analyse(ctx)
	require.NoError(t, err)
	require.NoError(t, stage.Process(ctx, rec))

	assert.InDelta(t, before, audio.RMS(ctx.Mixdown()), before*1e-6)
}

func TestProcessWithoutMixdownIsNoop(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-buscomp-empty")

	stage := buscomp.New(testContract())

	rec, err := stage.Analyse(ctx)
	require.NoError(t, err)
	require.NoError(t, stage.Process(ctx, rec))
}

func TestProcessHonorsCancellation(t *testing.T) {
	t.Parallel()

	loud := audio.Sine("mix.wav", testRate, 220, 0.8, 1.0)
	ctx := newContext(t, loud)

	stage := buscomp.New(testContract())

	rec, err := stage.Analyse(ctx)
	require.NoError(t, err)

	before := audio.RMS(ctx.Mixdown())

	ctx.RequestCancel()
	require.NoError(t, stage.Process(ctx, rec))

	assert.Equal(t, before, audio.RMS(ctx.Mixdown()))
}
