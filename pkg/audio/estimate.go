package audio

import "math"

// Tempo estimation bounds in beats per minute.
const (
	minTempoBPM = 60.0
	maxTempoBPM = 200.0
)

// onsetEnvelopeHz is the sample rate of the decimated onset-energy envelope
// used for tempo autocorrelation.
const onsetEnvelopeHz = 200

// secondsPerMinute converts lag periods to BPM.
const secondsPerMinute = 60.0

// TempoBPM estimates the tempo via autocorrelation of the onset-energy
// envelope. Returns 0 when no periodicity is detectable.
func TempoBPM(b *Buffer) float64 {
	envelope := onsetEnvelope(b)
	if len(envelope) < 2 {
		return 0
	}

	minLag := int(onsetEnvelopeHz * secondsPerMinute / maxTempoBPM)
	maxLag := int(onsetEnvelopeHz * secondsPerMinute / minTempoBPM)
	maxLag = min(maxLag, len(envelope)-1)

	bestLag, bestScore := 0, 0.0

	for lag := minLag; lag <= maxLag; lag++ {
		score := 0.0
		for i := lag; i < len(envelope); i++ {
			score += envelope[i] * envelope[i-lag]
		}

		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	if bestLag == 0 || bestScore == 0 {
		return 0
	}

	return onsetEnvelopeHz * secondsPerMinute / float64(bestLag)
}

// Pitch class names in chromatic order from A.
var pitchClassNames = []string{"A", "A#", "B", "C", "C#", "D", "D#", "E", "F", "F#", "G", "G#"}

// Scale modes reported by key estimation.
const (
	ScaleMajor = "major"
	ScaleMinor = "minor"
)

// a4Hz is the reference tuning frequency.
const a4Hz = 440.0

// chromaOctaves is the number of octaves sampled per pitch class, centered
// around A4.
const chromaOctaves = 5

// Krumhansl key profiles, normalized ordering from the tonic.
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// Key estimates the musical key of the buffer. Returns the tonic pitch class
// and the scale (major or minor). Silent material reports ("", "").
func Key(b *Buffer) (key, scale string) {
	chroma := chromaVector(b)

	total := 0.0
	for _, v := range chroma {
		total += v
	}

	if total == 0 {
		return "", ""
	}

	bestScore := math.Inf(-1)

	for tonic := range len(pitchClassNames) {
		for _, mode := range []string{ScaleMajor, ScaleMinor} {
			profile := majorProfile
			if mode == ScaleMinor {
				profile = minorProfile
			}

			score := 0.0
			for i, weight := range profile {
				score += weight * chroma[(tonic+i)%len(chroma)]
			}

			if score > bestScore {
				bestScore = score
				key = pitchClassNames[tonic]
				scale = mode
			}
		}
	}

	return key, scale
}

// chromaVector accumulates Goertzel magnitudes per pitch class over several
// octaves.
func chromaVector(b *Buffer) []float64 {
	chroma := make([]float64, len(pitchClassNames))

	frames := b.Frames()
	if frames == 0 {
		return chroma
	}

	// Mix to mono for the detector.
	mono := make([]float64, frames)
	for _, ch := range b.Samples {
		for i, v := range ch {
			mono[i] += v
		}
	}

	for class := range pitchClassNames {
		for octave := range chromaOctaves {
			semitone := float64(class) + 12*float64(octave-chromaOctaves/2)
			freq := a4Hz * math.Pow(2, semitone/12)

			if freq >= float64(b.Rate)/2 {
				continue
			}

			chroma[class] += goertzel(mono, b.Rate, freq)
		}
	}

	return chroma
}

// goertzel returns the normalized magnitude of one frequency bin.
func goertzel(samples []float64, rate int, freq float64) float64 {
	omega := 2 * math.Pi * freq / float64(rate)
	coeff := 2 * math.Cos(omega)

	var s0, s1, s2 float64

	for _, v := range samples {
		s0 = v + coeff*s1 - s2
		s2, s1 = s1, s0
	}

	power := s1*s1 + s2*s2 - coeff*s1*s2

	return math.Sqrt(math.Abs(power)) / float64(len(samples))
}

// onsetEnvelope decimates the mono mix into an onset-energy envelope with
// mean removal, suitable for autocorrelation.
func onsetEnvelope(b *Buffer) []float64 {
	frames := b.Frames()
	if frames == 0 || b.Rate <= 0 {
		return nil
	}

	hop := max(b.Rate/onsetEnvelopeHz, 1)
	blocks := frames / hop

	if blocks == 0 {
		return nil
	}

	envelope := make([]float64, blocks)

	for blk := range blocks {
		sum := 0.0
		for _, ch := range b.Samples {
			for i := blk * hop; i < (blk+1)*hop && i < len(ch); i++ {
				sum += ch[i] * ch[i]
			}
		}

		envelope[blk] = sum
	}

	// Half-wave rectified first difference emphasizes onsets.
	diff := make([]float64, blocks)
	mean := 0.0

	for i := 1; i < blocks; i++ {
		diff[i] = max(envelope[i]-envelope[i-1], 0)
		mean += diff[i]
	}

	mean /= float64(blocks)
	for i := range diff {
		diff[i] -= mean
	}

	return diff
}
