package audio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/audio"
)

func TestMixdown_SingleMonoStemDuplicated(t *testing.T) {
	t.Parallel()

	stem := audio.Sine("a.wav", testRate, 440, 0.5, 0.1)
	mix := audio.Mixdown(testRate, []*audio.Buffer{stem})

	require.Equal(t, audio.Stereo, mix.Channels())
	assert.Equal(t, stem.Frames(), mix.Frames())
	assert.Equal(t, mix.Samples[0], mix.Samples[1])
	assert.Equal(t, stem.Samples[0], mix.Samples[0])
}

func TestMixdown_PadsShorterStemAtTail(t *testing.T) {
	t.Parallel()

	long := audio.Sine("a.wav", testRate, 440, 0.5, 1.0)
	short := audio.Sine("b.wav", testRate, 880, 0.5, 0.5)

	mix := audio.Mixdown(testRate, []*audio.Buffer{long, short})

	require.Equal(t, long.Frames(), mix.Frames())

	// Head: both stems sum.
	assert.InDelta(t, long.Samples[0][0]+short.Samples[0][0], mix.Samples[0][0], 1e-12)

	// Tail beyond the short stem: only the long one contributes.
	tail := short.Frames() + 10
	assert.InDelta(t, long.Samples[0][tail], mix.Samples[0][tail], 1e-12)
}

func TestMixdown_TimeAlignedSum(t *testing.T) {
	t.Parallel()

	a := audio.Sine("a.wav", testRate, 440, 0.4, 0.2)
	b := audio.Sine("b.wav", testRate, 880, 0.3, 0.2)

	mix := audio.Mixdown(testRate, []*audio.Buffer{a, b})

	for i := range mix.Samples[0] {
		want := a.Samples[0][i] + b.Samples[0][i]
		assert.InDelta(t, want, mix.Samples[0][i], 1e-12)
		assert.InDelta(t, want, mix.Samples[1][i], 1e-12)
	}
}

func TestMixdown_StereoStemKeepsChannels(t *testing.T) {
	t.Parallel()

	stem, err := audio.NewBuffer("s.wav", audio.Stereo, testRate, 4)
	require.NoError(t, err)

	stem.Samples[0] = []float64{0.1, 0.2, 0.3, 0.4}
	stem.Samples[1] = []float64{-0.1, -0.2, -0.3, -0.4}

	mix := audio.Mixdown(testRate, []*audio.Buffer{stem})

	assert.Equal(t, stem.Samples[0], mix.Samples[0])
	assert.Equal(t, stem.Samples[1], mix.Samples[1])
}

func TestMixdown_NoStems(t *testing.T) {
	t.Parallel()

	mix := audio.Mixdown(testRate, nil)

	assert.Equal(t, audio.Stereo, mix.Channels())
	assert.Zero(t, mix.Frames())
}
