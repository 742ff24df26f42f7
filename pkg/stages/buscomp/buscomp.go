// Package buscomp implements the bus compression stage. A soft-knee
// feed-forward compressor with RMS detection runs over the mixdown only;
// gain reduction is bounded by the contract's limit. Stems are untouched.
package buscomp

import (
	"math"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "buscomp"

// Contract keys used by this stage.
const (
	thresholdMetric = "threshold_db"
	ratioMetric     = "ratio"
	reductionLimit  = "max_gain_reduction_db"
)

// Defaults applied when the contract omits a target.
const (
	defaultThresholdDB = -18.0
	defaultRatio       = 2.0
	defaultMaxGRDB     = 6.0
)

// Envelope follower time constants and knee width.
const (
	attackMS    = 10.0
	releaseMS   = 120.0
	kneeWidthDB = 6.0
)

// Stage compresses the mixdown bus.
type Stage struct {
	contract contract.Contract
}

// New creates the buscomp stage bound to its contract.
func New(c contract.Contract) *Stage {
	return &Stage{contract: c}
}

// ID implements stage.Stage.
func (s *Stage) ID() string {
	return ID
}

// Analyse measures mixdown level and estimates the gain reduction the
// compressor would apply at the loudest point.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	mix := ctx.Mixdown()
	if mix == nil {
		return rec, nil
	}

	threshold, ratio, maxGR := s.targets()

	rmsDB := audio.DB(audio.RMS(mix))
	peakDB := audio.DB(audio.Peak(mix))

	rec.Session["rms_db"] = rmsDB
	rec.Session["peak_db"] = peakDB
	rec.Session["estimated_max_reduction_db"] = math.Min(
		reductionAt(peakDB, threshold, ratio), maxGR)

	return rec, nil
}

// Process compresses the mixdown in place. Both channels share one detector
// so the stereo image is preserved.
func (s *Stage) Process(ctx *session.Context, _ *session.Record) error {
	mix := ctx.Mixdown()
	if mix == nil || mix.Frames() == 0 {
		return nil
	}

	if ctx.Cancelled() {
		return nil
	}

	threshold, ratio, maxGR := s.targets()

	attack := envelopeCoeff(mix.Rate, attackMS)
	release := envelopeCoeff(mix.Rate, releaseMS)

	var envelope float64

	for i := range mix.Frames() {
		// Linked RMS-style detector over all channels.
		var power float64
		for ch := range mix.Samples {
			x := mix.Samples[ch][i]
			power += x * x
		}

		power /= float64(len(mix.Samples))

		coeff := release
		if power > envelope {
			coeff = attack
		}

		envelope = coeff*envelope + (1-coeff)*power

		levelDB := audio.DB(math.Sqrt(envelope))
		grDB := math.Min(softKneeReduction(levelDB, threshold, ratio), maxGR)

		if grDB <= 0 {
			continue
		}

		gain := math.Pow(10, -grDB/20)
		for ch := range mix.Samples {
			mix.Samples[ch][i] *= gain
		}
	}

	return nil
}

// targets resolves threshold, ratio, and reduction limit from the contract.
func (s *Stage) targets() (threshold, ratio, maxGR float64) {
	threshold, ratio, maxGR = defaultThresholdDB, defaultRatio, defaultMaxGRDB

	if v, ok := s.contract.Metrics[thresholdMetric]; ok {
		threshold = v
	}

	if v, ok := s.contract.Metrics[ratioMetric]; ok && v >= 1 {
		ratio = v
	}

	if v, ok := s.contract.Limits[reductionLimit]; ok {
		maxGR = v
	}

	return threshold, ratio, maxGR
}

// softKneeReduction returns the dB of gain reduction for a detector level,
// with a quadratic knee of kneeWidthDB centered on the threshold.
func softKneeReduction(levelDB, thresholdDB, ratio float64) float64 {
	over := levelDB - thresholdDB

	switch {
	case over <= -kneeWidthDB/2:
		return 0
	case over >= kneeWidthDB/2:
		return over * (1 - 1/ratio)
	default:
		edge := over + kneeWidthDB/2

		return (1 - 1/ratio) * edge * edge / (2 * kneeWidthDB)
	}
}

// reductionAt is the hard-knee reduction at a given level, used for the
// analysis estimate.
func reductionAt(levelDB, thresholdDB, ratio float64) float64 {
	if levelDB <= thresholdDB {
		return 0
	}

	return (levelDB - thresholdDB) * (1 - 1/ratio)
}

// envelopeCoeff converts a time constant in milliseconds to a one-pole
// smoothing coefficient at the given rate.
func envelopeCoeff(rate int, ms float64) float64 {
	return math.Exp(-1 / (ms / 1000 * float64(rate)))
}
