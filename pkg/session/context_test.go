package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/session"
)

// testRate is the session sample rate for context tests.
const testRate = 44100

// encodeStem serializes a synthesized buffer as WAV test input.
func encodeStem(t *testing.T, buf *audio.Buffer) []byte {
	t.Helper()

	data, err := audio.EncodeWAV(buf, audio.Depth16)
	require.NoError(t, err)

	return data
}

func TestLoadStems_EmptySourceIsInputMissing(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	err := ctx.LoadStems(session.MapSource{})
	require.ErrorIs(t, err, session.ErrInputMissing)
}

func TestLoadStems_FirstStemEstablishesRate(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.5, 0.1)),
		"b.wav": encodeStem(t, audio.Sine("b.wav", 48000, 880, 0.5, 0.1)),
	}

	require.NoError(t, ctx.LoadStems(src))

	assert.Equal(t, testRate, ctx.SampleRate())
	assert.Equal(t, []string{"b.wav"}, ctx.PendingResample())
}

func TestLoadStems_CoercesToStereoWhenMixed(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	src := session.MapSource{
		"mono.wav":   encodeStem(t, audio.Sine("mono.wav", testRate, 440, 0.5, 0.1)),
		"stereo.wav": encodeStem(t, audio.WhiteNoise("stereo.wav", audio.Stereo, testRate, 0.3, 0.1, 3)),
	}

	require.NoError(t, ctx.LoadStems(src))

	for _, stem := range ctx.Stems() {
		assert.Equal(t, audio.Stereo, stem.Channels())
	}
}

func TestLoadStems_AllMonoStaysMono(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.5, 0.1)),
		"b.wav": encodeStem(t, audio.Sine("b.wav", testRate, 880, 0.5, 0.1)),
	}

	require.NoError(t, ctx.LoadStems(src))

	for _, stem := range ctx.Stems() {
		assert.Equal(t, audio.Mono, stem.Channels())
	}
}

func TestRefreshMixdown_MatchesLongestStem(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.5, 1.0)),
		"b.wav": encodeStem(t, audio.Sine("b.wav", testRate, 880, 0.5, 0.5)),
	}

	require.NoError(t, ctx.LoadStems(src))
	ctx.RefreshMixdown()

	mix := ctx.Mixdown()
	require.NotNil(t, mix)
	assert.Equal(t, audio.Stereo, mix.Channels())

	longest := 0
	for _, stem := range ctx.Stems() {
		longest = max(longest, stem.Frames())
	}

	assert.Equal(t, longest, mix.Frames())
}

func TestRecordAnalysis_DuplicateRejected(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")
	rec := session.NewRecord("loudness", "loudness")

	require.NoError(t, ctx.RecordAnalysis("loudness", rec))

	err := ctx.RecordAnalysis("loudness", rec)
	require.ErrorIs(t, err, session.ErrDuplicateAnalysis)

	// Post key is distinct from the pre key.
	require.NoError(t, ctx.RecordAnalysis("loudness:post", rec))
}

func TestArtifacts_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	ctx.PutArtifact("report.json", []byte(`{}`))
	ctx.PutArtifact("full_song.wav", []byte{1, 2, 3})

	data, ok := ctx.Artifact("report.json")
	require.True(t, ok)
	assert.JSONEq(t, `{}`, string(data))

	assert.Equal(t, []string{"full_song.wav", "report.json"}, ctx.ArtifactNames())

	_, ok = ctx.Artifact("missing")
	assert.False(t, ok)
}

func TestCancel_Monotonic(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	assert.False(t, ctx.Cancelled())

	ctx.RequestCancel()
	assert.True(t, ctx.Cancelled())

	// Second request is a no-op.
	ctx.RequestCancel()
	assert.True(t, ctx.Cancelled())
}

func TestTimings_PreserveOrder(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	ctx.RecordTiming("loudness", 10*time.Millisecond)
	ctx.RecordTiming("limiter", 20*time.Millisecond)

	timings := ctx.Timings()
	require.Len(t, timings, 2)
	assert.Equal(t, "loudness", timings[0].StageID)
	assert.Equal(t, "limiter", timings[1].StageID)
}

func TestSetStem_AppendsNewName(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext("job-1")

	src := session.MapSource{
		"a.wav": encodeStem(t, audio.Sine("a.wav", testRate, 440, 0.5, 0.1)),
	}
	require.NoError(t, ctx.LoadStems(src))

	extra := audio.Sine("vox.wav", testRate, 660, 0.4, 0.1)
	ctx.SetStem("vox.wav", extra)

	assert.Equal(t, []string{"a.wav", "vox.wav"}, ctx.StemNames())

	got, err := ctx.Stem("vox.wav")
	require.NoError(t, err)
	assert.Same(t, extra, got)

	_, err = ctx.Stem("ghost.wav")
	require.ErrorIs(t, err, session.ErrUnknownStem)
}
