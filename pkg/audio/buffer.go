// Package audio provides the PCM buffer model and measurement primitives
// shared by all pipeline stages: WAV encode/decode, mixdown summation,
// resampling, and level/spectral/stereo metrics.
package audio

import "errors"

// Channel layouts supported by the pipeline.
const (
	// Mono is a single-channel layout.
	Mono = 1

	// Stereo is a two-channel layout. The mixdown is always stereo.
	Stereo = 2
)

// ErrChannelCount is returned when a buffer is created with an unsupported
// channel layout.
var ErrChannelCount = errors.New("unsupported channel count")

// ErrEmptyBuffer is returned when an operation requires at least one frame.
var ErrEmptyBuffer = errors.New("empty audio buffer")

// Buffer is a planar PCM buffer. Samples are nominally in [-1.0, 1.0];
// the range is not enforced until WAV output, where peaks are clipped.
type Buffer struct {
	// Name is the immutable identifier of the buffer, the original file
	// name for stems.
	Name string

	// Rate is the sample rate in Hz.
	Rate int

	// Samples holds one slice per channel. All channels have equal length.
	Samples [][]float64
}

// NewBuffer allocates a zeroed buffer with the given layout.
func NewBuffer(name string, channels, rate, frames int) (*Buffer, error) {
	if channels != Mono && channels != Stereo {
		return nil, ErrChannelCount
	}

	samples := make([][]float64, channels)
	for ch := range samples {
		samples[ch] = make([]float64, frames)
	}

	return &Buffer{Name: name, Rate: rate, Samples: samples}, nil
}

// Channels returns the number of channels.
func (b *Buffer) Channels() int {
	return len(b.Samples)
}

// Frames returns the number of frames per channel.
func (b *Buffer) Frames() int {
	if len(b.Samples) == 0 {
		return 0
	}

	return len(b.Samples[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.Rate <= 0 {
		return 0
	}

	return float64(b.Frames()) / float64(b.Rate)
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	samples := make([][]float64, len(b.Samples))
	for ch, src := range b.Samples {
		dst := make([]float64, len(src))
		copy(dst, src)
		samples[ch] = dst
	}

	return &Buffer{Name: b.Name, Rate: b.Rate, Samples: samples}
}

// ToStereo returns the buffer itself when already stereo, or a new stereo
// buffer with the mono channel duplicated to both sides.
func (b *Buffer) ToStereo() *Buffer {
	if b.Channels() == Stereo {
		return b
	}

	left := make([]float64, b.Frames())
	right := make([]float64, b.Frames())
	copy(left, b.Samples[0])
	copy(right, b.Samples[0])

	return &Buffer{Name: b.Name, Rate: b.Rate, Samples: [][]float64{left, right}}
}

// Scale multiplies every sample by the given gain factor in place.
func (b *Buffer) Scale(gain float64) {
	for _, ch := range b.Samples {
		for i := range ch {
			ch[i] *= gain
		}
	}
}
