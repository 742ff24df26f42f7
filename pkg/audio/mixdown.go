package audio

// MixdownName is the logical name carried by every mixdown buffer.
const MixdownName = "mixdown"

// Mixdown sums the given stems into a single stereo buffer. Shorter stems
// are zero-padded at the tail to the longest stem; mono stems contribute
// equally to both channels. No normalization is applied: DSP stages own
// level decisions.
func Mixdown(rate int, stems []*Buffer) *Buffer {
	frames := 0
	for _, stem := range stems {
		frames = max(frames, stem.Frames())
	}

	left := make([]float64, frames)
	right := make([]float64, frames)

	for _, stem := range stems {
		switch stem.Channels() {
		case Stereo:
			for i, v := range stem.Samples[0] {
				left[i] += v
			}

			for i, v := range stem.Samples[1] {
				right[i] += v
			}
		default:
			for i, v := range stem.Samples[0] {
				left[i] += v
				right[i] += v
			}
		}
	}

	return &Buffer{Name: MixdownName, Rate: rate, Samples: [][]float64{left, right}}
}
