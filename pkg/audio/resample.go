package audio

import "math"

// Resample converts the buffer to the target sample rate using linear
// interpolation. Returns the buffer itself when the rate already matches.
// Linear interpolation is adequate for session-format normalization; stages
// needing higher fidelity own their own conversion.
func Resample(b *Buffer, targetRate int) *Buffer {
	if b.Rate == targetRate || b.Rate <= 0 || targetRate <= 0 {
		return b
	}

	srcFrames := b.Frames()
	if srcFrames == 0 {
		clone := b.Clone()
		clone.Rate = targetRate

		return clone
	}

	ratio := float64(b.Rate) / float64(targetRate)
	dstFrames := int(math.Ceil(float64(srcFrames) * float64(targetRate) / float64(b.Rate)))

	samples := make([][]float64, b.Channels())

	for ch, src := range b.Samples {
		dst := make([]float64, dstFrames)

		for i := range dstFrames {
			pos := float64(i) * ratio
			lo := int(pos)

			if lo >= srcFrames-1 {
				dst[i] = src[srcFrames-1]

				continue
			}

			frac := pos - float64(lo)
			dst[i] = src[lo]*(1-frac) + src[lo+1]*frac
		}

		samples[ch] = dst
	}

	return &Buffer{Name: b.Name, Rate: targetRate, Samples: samples}
}
