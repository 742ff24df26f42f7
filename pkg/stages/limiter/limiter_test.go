package limiter_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/limiter"
)

const testRate = 44100

func testContract() contract.Contract {
	return contract.Contract{
		ID:   "limiter",
		Kind: contract.KindMixdownDSP,
		Metrics: map[string]float64{
			"target_lufs":          -14,
			"true_peak_ceiling_db": -1,
		},
		Limits: map[string]float64{"max_makeup_db": 12},
	}
}

func newContext(t *testing.T, stems ...*audio.Buffer) *session.Context {
	t.Helper()

	ctx := session.NewContext("job-limiter")
	ctx.SetSampleRate(testRate)

	for _, stem := range stems {
		ctx.SetStem(stem.Name, stem)
	}

	ctx.RefreshMixdown()

	return ctx
}

func TestAnalyseComputesMakeup(t *testing.T) {
	t.Parallel()

	ctx := newContext(t, audio.Sine("mix.wav", testRate, 440, 0.1, 3.0))

	rec, err := limiter.New(testContract()).Analyse(ctx)
	require.NoError(t, err)

	lufs := rec.Session["lufs"].(float64)
	makeup := rec.Session["makeup_db"].(float64)

	require.False(t, math.IsInf(lufs, -1))
	assert.InDelta(t, math.Min(-14-lufs, 12), makeup, 1e-9)
}

func TestAnalyseSilenceGetsNoMakeup(t *testing.T) {
	t.Parallel()

	ctx := newContext(t, audio.Sine("mix.wav", testRate, 440, 0, 1.0))

	rec, err := limiter.New(testContract()).Analyse(ctx)
	require.NoError(t, err)

	assert.True(t, math.IsInf(rec.Session["lufs"].(float64), -1))
	assert.Zero(t, rec.Session["makeup_db"].(float64))
}

func TestProcessMovesTowardTarget(t *testing.T) {
	t.Parallel()

	ctx := newContext(t, audio.Sine("mix.wav", testRate, 440, 0.05, 3.0))

	stage := limiter.New(testContract())

	rec, err := stage.Analyse(ctx)
	require.NoError(t, err)

	before := audio.LUFS(ctx.Mixdown())
	require.NoError(t, stage.Process(ctx, rec))

	after := audio.LUFS(ctx.Mixdown())
	assert.Greater(t, after, before)

	// Either the target is reached or the makeup bound stopped short.
	makeup := rec.Session["makeup_db"].(float64)
	if makeup < 12 {
		assert.InDelta(t, -14, after, 0.5)
	}
}

func TestProcessEnforcesTruePeakCeiling(t *testing.T) {
	t.Parallel()

	// A quiet but peaky signal that makeup would push over the ceiling.
	ctx := newContext(t, audio.Sine("mix.wav", testRate, 440, 0.3, 3.0))

	stage := limiter.New(testContract())

	rec, err := stage.Analyse(ctx)
	require.NoError(t, err)
	require.NoError(t, stage.Process(ctx, rec))

	assert.LessOrEqual(t, audio.TruePeakDB(ctx.Mixdown()), -1+0.1)
}

func TestProcessHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx := newContext(t, audio.Sine("mix.wav", testRate, 440, 0.05, 1.0))

	stage := limiter.New(testContract())

	rec, err := stage.Analyse(ctx)
	require.NoError(t, err)

	before := audio.RMS(ctx.Mixdown())

	ctx.RequestCancel()
	require.NoError(t, stage.Process(ctx, rec))

	assert.Equal(t, before, audio.RMS(ctx.Mixdown()))
}
