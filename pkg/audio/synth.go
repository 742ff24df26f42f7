package audio

import (
	"math"
	"math/rand/v2"
)

// Sine synthesizes a mono sine wave at the given frequency and amplitude.
func Sine(name string, rate int, freqHz, amplitude, durationSec float64) *Buffer {
	frames := int(durationSec * float64(rate))
	samples := make([]float64, frames)

	step := 2 * math.Pi * freqHz / float64(rate)
	for i := range samples {
		samples[i] = amplitude * math.Sin(step*float64(i))
	}

	return &Buffer{Name: name, Rate: rate, Samples: [][]float64{samples}}
}

// WhiteNoise synthesizes uniform white noise. Stereo output carries
// independent noise per channel. The seed makes output reproducible.
func WhiteNoise(name string, channels, rate int, amplitude, durationSec float64, seed uint64) *Buffer {
	rng := rand.New(rand.NewPCG(seed, seed))
	frames := int(durationSec * float64(rate))

	samples := make([][]float64, channels)
	for ch := range samples {
		chSamples := make([]float64, frames)
		for i := range chSamples {
			chSamples[i] = amplitude * (2*rng.Float64() - 1)
		}

		samples[ch] = chSamples
	}

	return &Buffer{Name: name, Rate: rate, Samples: samples}
}

// Click synthesizes a mono click track at the given BPM: a short decaying
// burst at every beat. Useful for tempo estimation tests.
func Click(name string, rate int, bpm, durationSec float64) *Buffer {
	frames := int(durationSec * float64(rate))
	samples := make([]float64, frames)

	beatFrames := int(float64(rate) * secondsPerMinute / bpm)
	clickFrames := rate / 100 // 10 ms burst.

	for start := 0; start < frames; start += beatFrames {
		for i := range clickFrames {
			if start+i >= frames {
				break
			}

			decay := 1 - float64(i)/float64(clickFrames)
			samples[start+i] = 0.9 * decay
		}
	}

	return &Buffer{Name: name, Rate: rate, Samples: [][]float64{samples}}
}
