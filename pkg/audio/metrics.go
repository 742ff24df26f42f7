package audio

import (
	"math"
	"sort"
)

// silenceFloorDB is the dB value reported for silent material, following
// the -inf convention of loudness meters. Diff semantics treat two -inf
// readings as unchanged.
var silenceFloorDB = math.Inf(-1)

// Loudness measurement windows per ITU-R BS.1770 / EBU R 128.
const (
	// momentaryWindowSec is the momentary loudness block size.
	momentaryWindowSec = 0.4

	// shortTermWindowSec is the short-term loudness block size used for LRA.
	shortTermWindowSec = 3.0

	// blockOverlap is the fraction of a block that overlaps the next.
	blockOverlap = 0.75

	// absoluteGateLUFS is the absolute gating threshold.
	absoluteGateLUFS = -70.0

	// relativeGateLU is the relative gating offset below ungated loudness.
	relativeGateLU = -10.0

	// lraLowPercentile and lraHighPercentile bound the loudness range.
	lraLowPercentile  = 0.10
	lraHighPercentile = 0.95
)

// truePeakOversample is the oversampling factor for true-peak estimation.
const truePeakOversample = 4

// Peak returns the absolute sample peak across all channels.
func Peak(b *Buffer) float64 {
	peak := 0.0

	for _, ch := range b.Samples {
		for _, v := range ch {
			peak = max(peak, math.Abs(v))
		}
	}

	return peak
}

// RMS returns the linear root-mean-square level across all channels.
func RMS(b *Buffer) float64 {
	frames := b.Frames()
	if frames == 0 || b.Channels() == 0 {
		return 0
	}

	sum := 0.0

	for _, ch := range b.Samples {
		for _, v := range ch {
			sum += v * v
		}
	}

	return math.Sqrt(sum / float64(frames*b.Channels()))
}

// DB converts a linear amplitude to decibels. Zero maps to -inf.
func DB(linear float64) float64 {
	if linear <= 0 {
		return silenceFloorDB
	}

	return 20 * math.Log10(linear)
}

// TruePeakDB estimates the inter-sample peak in dBTP via linear
// oversampling.
func TruePeakDB(b *Buffer) float64 {
	peak := 0.0

	for _, ch := range b.Samples {
		for i := 0; i < len(ch)-1; i++ {
			for k := range truePeakOversample {
				frac := float64(k) / truePeakOversample
				v := ch[i]*(1-frac) + ch[i+1]*frac
				peak = max(peak, math.Abs(v))
			}
		}

		if n := len(ch); n > 0 {
			peak = max(peak, math.Abs(ch[n-1]))
		}
	}

	return DB(peak)
}

// LUFS returns the integrated loudness of the buffer per a gated BS.1770
// measurement.
func LUFS(b *Buffer) float64 {
	blocks := loudnessBlocks(b, momentaryWindowSec)
	if len(blocks) == 0 {
		return silenceFloorDB
	}

	// Absolute gate.
	gated := blocks[:0:0]
	for _, lk := range blocks {
		if lk > absoluteGateLUFS {
			gated = append(gated, lk)
		}
	}

	if len(gated) == 0 {
		return silenceFloorDB
	}

	// Relative gate at mean - 10 LU.
	threshold := meanLoudness(gated) + relativeGateLU

	final := gated[:0:0]
	for _, lk := range gated {
		if lk > threshold {
			final = append(final, lk)
		}
	}

	if len(final) == 0 {
		return silenceFloorDB
	}

	return meanLoudness(final)
}

// LRA returns the loudness range in LU from the short-term loudness
// distribution.
func LRA(b *Buffer) float64 {
	blocks := loudnessBlocks(b, shortTermWindowSec)

	gated := blocks[:0:0]
	for _, lk := range blocks {
		if lk > absoluteGateLUFS {
			gated = append(gated, lk)
		}
	}

	if len(gated) < 2 {
		return 0
	}

	sort.Float64s(gated)

	lo := gated[int(float64(len(gated)-1)*lraLowPercentile)]
	hi := gated[int(float64(len(gated)-1)*lraHighPercentile)]

	return hi - lo
}

// Correlation returns the inter-channel correlation coefficient in [-1, 1].
// Mono buffers report 1. Silent material reports 0.
func Correlation(b *Buffer) float64 {
	if b.Channels() < Stereo {
		return 1
	}

	left, right := b.Samples[0], b.Samples[1]
	n := min(len(left), len(right))

	var sumLR, sumLL, sumRR float64
	for i := range n {
		sumLR += left[i] * right[i]
		sumLL += left[i] * left[i]
		sumRR += right[i] * right[i]
	}

	denom := math.Sqrt(sumLL * sumRR)
	if denom == 0 {
		return 0
	}

	return sumLR / denom
}

// ChannelLoudnessDiffDB returns left RMS minus right RMS in dB. Mono buffers
// report 0.
func ChannelLoudnessDiffDB(b *Buffer) float64 {
	if b.Channels() < Stereo {
		return 0
	}

	left := channelRMS(b.Samples[0])
	right := channelRMS(b.Samples[1])

	if left == 0 && right == 0 {
		return 0
	}

	return DB(left) - DB(right)
}

// Band boundaries for the three-band spectral balance measurement.
const (
	lowBandHz  = 250.0
	highBandHz = 4000.0
)

// BandEnergy holds the relative energy of the low, mid, and high bands.
// The three fractions sum to 1 for non-silent material.
type BandEnergy struct {
	Low  float64
	Mid  float64
	High float64
}

// Bands splits the signal energy at 250 Hz and 4 kHz.
func Bands(b *Buffer) BandEnergy {
	if b.Frames() == 0 {
		return BandEnergy{}
	}

	var low, high, total float64

	for _, ch := range b.Samples {
		lp := NewLowPass(b.Rate, lowBandHz)
		hp := NewHighPass(b.Rate, highBandHz)

		for _, v := range ch {
			l := lp.Process(v)
			h := hp.Process(v)

			low += l * l
			high += h * h
			total += v * v
		}
	}

	if total == 0 {
		return BandEnergy{}
	}

	lowFrac := min(low/total, 1)
	highFrac := min(high/total, 1)
	midFrac := max(1-lowFrac-highFrac, 0)

	return BandEnergy{Low: lowFrac, Mid: midFrac, High: highFrac}
}

// loudnessBlocks computes per-block K-weighted loudness values.
func loudnessBlocks(b *Buffer, windowSec float64) []float64 {
	frames := b.Frames()
	blockLen := int(windowSec * float64(b.Rate))

	if frames == 0 || blockLen == 0 {
		return nil
	}

	// K-weight each channel once, then window.
	weighted := make([][]float64, b.Channels())
	for ch, src := range b.Samples {
		chain := NewKWeighting(b.Rate)
		dst := make([]float64, len(src))

		for i, v := range src {
			for _, f := range chain {
				v = f.Process(v)
			}

			dst[i] = v
		}

		weighted[ch] = dst
	}

	hop := max(int(float64(blockLen)*(1-blockOverlap)), 1)

	var blocks []float64

	for start := 0; start+blockLen <= frames || start == 0; start += hop {
		end := min(start+blockLen, frames)
		if end <= start {
			break
		}

		sum := 0.0
		for _, ch := range weighted {
			for i := start; i < end; i++ {
				sum += ch[i] * ch[i]
			}
		}

		meanSquare := sum / float64(end-start)
		if meanSquare <= 0 {
			blocks = append(blocks, silenceFloorDB)

			continue
		}

		// -0.691 is the BS.1770 calibration offset.
		blocks = append(blocks, -0.691+10*math.Log10(meanSquare))

		if end == frames {
			break
		}
	}

	return blocks
}

// meanLoudness averages loudness values in the energy domain.
func meanLoudness(blocks []float64) float64 {
	sum := 0.0
	for _, lk := range blocks {
		sum += math.Pow(10, (lk+0.691)/10)
	}

	return -0.691 + 10*math.Log10(sum/float64(len(blocks)))
}

func channelRMS(ch []float64) float64 {
	if len(ch) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range ch {
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(ch)))
}
