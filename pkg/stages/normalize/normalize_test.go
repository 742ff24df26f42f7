package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/normalize"
)

func testContract() contract.Contract {
	return contract.Contract{ID: "normalize", Kind: contract.KindStructural}
}

func TestAnalyseRecordsLayout(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-normalize")
	ctx.SetSampleRate(44100)
	ctx.SetStem("a.wav", audio.Sine("a.wav", 44100, 220, 0.5, 1.0))
	ctx.SetStem("b.wav", audio.Sine("b.wav", 48000, 220, 0.5, 1.0))

	rec, err := normalize.New(testContract()).Analyse(ctx)
	require.NoError(t, err)

	assert.Equal(t, 44100, rec.Session["sample_rate"])
	assert.Equal(t, 2, rec.Session["stem_count"])

	require.Len(t, rec.Stems, 2)
	assert.Equal(t, 44100, rec.Stems[0]["native_rate"])
	assert.Equal(t, 48000, rec.Stems[1]["native_rate"])
}

func TestProcessResamplesMismatchedStems(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-normalize")
	ctx.SetSampleRate(44100)
	ctx.SetStem("a.wav", audio.Sine("a.wav", 44100, 220, 0.5, 1.0))
	ctx.SetStem("b.wav", audio.Sine("b.wav", 48000, 220, 0.5, 1.0))

	require.NoError(t, normalize.New(testContract()).Process(ctx, nil))

	for _, name := range ctx.StemNames() {
		stem, err := ctx.Stem(name)
		require.NoError(t, err)
		assert.Equal(t, 44100, stem.Rate, name)
	}

	assert.Empty(t, ctx.PendingResample())
}

func TestProcessHonorsExplicitTargetRate(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-normalize")
	ctx.SetSampleRate(44100)
	ctx.SetStem("a.wav", audio.Sine("a.wav", 44100, 220, 0.5, 1.0))
	ctx.SetMetadata(normalize.TargetRateKey, 48000)

	require.NoError(t, normalize.New(testContract()).Process(ctx, nil))

	assert.Equal(t, 48000, ctx.SampleRate())

	stem, err := ctx.Stem("a.wav")
	require.NoError(t, err)
	assert.Equal(t, 48000, stem.Rate)
}

func TestProcessToleratesJSONNumericTarget(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-normalize")
	ctx.SetSampleRate(44100)
	ctx.SetStem("a.wav", audio.Sine("a.wav", 44100, 220, 0.5, 1.0))
	ctx.SetMetadata(normalize.TargetRateKey, float64(22050))

	require.NoError(t, normalize.New(testContract()).Process(ctx, nil))
	assert.Equal(t, 22050, ctx.SampleRate())
}

func TestProcessHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-normalize")
	ctx.SetSampleRate(44100)
	ctx.SetStem("b.wav", audio.Sine("b.wav", 48000, 220, 0.5, 1.0))

	ctx.RequestCancel()
	require.NoError(t, normalize.New(testContract()).Process(ctx, nil))

	stem, err := ctx.Stem("b.wav")
	require.NoError(t, err)
	assert.Equal(t, 48000, stem.Rate)
}
