package tempokey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/tempokey"
)

const testRate = 44100

func testContract() contract.Contract {
	return contract.Contract{ID: "tempokey", Kind: contract.KindAnalysis}
}

func TestAnalyseEstimatesTempo(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-tempokey")
	ctx.SetSampleRate(testRate)
	ctx.SetMixdown(audio.Click("mix", testRate, 120, 8.0))

	rec, err := tempokey.New(testContract()).Analyse(ctx)
	require.NoError(t, err)

	assert.InDelta(t, 120, rec.Session["tempo_bpm"].(float64), 3)
}

func TestAnalyseDetectsKey(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-tempokey")
	ctx.SetSampleRate(testRate)

	// A 440 Hz sine: chroma energy concentrated on A.
	ctx.SetMixdown(audio.Sine("mix", testRate, 440, 0.5, 2.0))

	rec, err := tempokey.New(testContract()).Analyse(ctx)
	require.NoError(t, err)

	assert.Equal(t, "A", rec.Session["key"])
	assert.Contains(t, []any{audio.ScaleMajor, audio.ScaleMinor}, rec.Session["scale"])
}

func TestAnalyseWithoutMixdownIsEmpty(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-tempokey-empty")

	rec, err := tempokey.New(testContract()).Analyse(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rec.Session, "tempo_bpm")
}
