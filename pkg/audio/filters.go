package audio

import "math"

// Biquad is a direct-form-I second-order IIR filter section.
type Biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

// Process filters a single sample and advances the filter state.
func (f *Biquad) Process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2

	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y

	return y
}

// Reset clears the filter state.
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// ProcessInPlace filters a whole channel in place, resetting state first.
func (f *Biquad) ProcessInPlace(samples []float64) {
	f.Reset()

	for i, x := range samples {
		samples[i] = f.Process(x)
	}
}

// defaultQ is the Butterworth quality factor used when a filter design does
// not specify one.
const defaultQ = math.Sqrt2 / 2

// NewLowPass designs a second-order Butterworth low-pass biquad.
func NewLowPass(rate int, cutoffHz float64) *Biquad {
	w0 := 2 * math.Pi * cutoffHz / float64(rate)
	alpha := math.Sin(w0) / (2 * defaultQ)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha

	return &Biquad{
		b0: (1 - cosW0) / 2 / a0,
		b1: (1 - cosW0) / a0,
		b2: (1 - cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

// NewHighPass designs a second-order Butterworth high-pass biquad.
func NewHighPass(rate int, cutoffHz float64) *Biquad {
	w0 := 2 * math.Pi * cutoffHz / float64(rate)
	alpha := math.Sin(w0) / (2 * defaultQ)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha

	return &Biquad{
		b0: (1 + cosW0) / 2 / a0,
		b1: -(1 + cosW0) / a0,
		b2: (1 + cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

// NewLowShelf designs a low-shelf biquad with the given gain in dB.
func NewLowShelf(rate int, cutoffHz, gainDB float64) *Biquad {
	return newShelf(rate, cutoffHz, gainDB, true)
}

// NewHighShelf designs a high-shelf biquad with the given gain in dB.
func NewHighShelf(rate int, cutoffHz, gainDB float64) *Biquad {
	return newShelf(rate, cutoffHz, gainDB, false)
}

func newShelf(rate int, cutoffHz, gainDB float64, low bool) *Biquad {
	amp := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * cutoffHz / float64(rate)
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / 2 * math.Sqrt2

	sign := 1.0
	if !low {
		sign = -1.0
	}

	sqrtA2Alpha := 2 * math.Sqrt(amp) * alpha

	b0 := amp * ((amp + 1) - sign*(amp-1)*cosW0 + sqrtA2Alpha)
	b1 := sign * 2 * amp * ((amp - 1) - sign*(amp+1)*cosW0)
	b2 := amp * ((amp + 1) - sign*(amp-1)*cosW0 - sqrtA2Alpha)
	a0 := (amp + 1) + sign*(amp-1)*cosW0 + sqrtA2Alpha
	a1 := sign * -2 * ((amp - 1) + sign*(amp+1)*cosW0)
	a2 := (amp + 1) + sign*(amp-1)*cosW0 - sqrtA2Alpha

	return &Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// K-weighting filter constants per ITU-R BS.1770: a high-shelf modelling
// head response followed by a high-pass.
const (
	kWeightShelfHz   = 1681.97
	kWeightShelfGain = 4.0
	kWeightHighPass  = 38.13
)

// NewKWeighting returns the two-stage K-weighting chain for one channel.
func NewKWeighting(rate int) []*Biquad {
	return []*Biquad{
		NewHighShelf(rate, kWeightShelfHz, kWeightShelfGain),
		NewHighPass(rate, kWeightHighPass),
	}
}
