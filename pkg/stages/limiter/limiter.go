// Package limiter implements the final loudness stage. Makeup gain moves the
// mixdown toward the contract's integrated loudness target, bounded by the
// makeup limit, and the result is pulled back if it would breach the true
// peak ceiling.
package limiter

import (
	"math"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "limiter"

// Contract keys used by this stage.
const (
	targetMetric  = "target_lufs"
	ceilingMetric = "true_peak_ceiling_db"
	makeupLimit   = "max_makeup_db"
)

// Defaults applied when the contract omits a target.
const (
	defaultTargetLUFS = -14.0
	defaultCeilingDB  = -1.0
	defaultMaxMakeup  = 12.0
)

// Stage brings the mixdown to delivery loudness.
type Stage struct {
	contract contract.Contract
}

// New creates the limiter stage bound to its contract.
func New(c contract.Contract) *Stage {
	return &Stage{contract: c}
}

// ID implements stage.Stage.
func (s *Stage) ID() string {
	return ID
}

// Analyse measures the mixdown's integrated loudness and true peak and
// computes the bounded makeup gain Process will apply.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	mix := ctx.Mixdown()
	if mix == nil {
		return rec, nil
	}

	target, ceiling, limit := s.targets()

	lufs := audio.LUFS(mix)
	truePeak := audio.TruePeakDB(mix)

	rec.Session["lufs"] = lufs
	rec.Session["true_peak_db"] = truePeak
	rec.Session["makeup_db"] = makeupGain(lufs, target, limit)
	rec.Session["ceiling_db"] = ceiling

	return rec, nil
}

// Process applies the makeup gain from the pre record, then rescales if the
// true peak would exceed the ceiling. Applying the ceiling after makeup
// keeps the peak guarantee even when the loudness target loses.
func (s *Stage) Process(ctx *session.Context, pre *session.Record) error {
	mix := ctx.Mixdown()
	if mix == nil || mix.Frames() == 0 {
		return nil
	}

	if ctx.Cancelled() {
		return nil
	}

	_, ceiling, _ := s.targets()

	if makeupDB, ok := pre.Session["makeup_db"].(float64); ok && makeupDB != 0 {
		mix.Scale(math.Pow(10, makeupDB/20))
	}

	truePeak := audio.TruePeakDB(mix)
	if truePeak > ceiling {
		mix.Scale(math.Pow(10, (ceiling-truePeak)/20))
	}

	return nil
}

// targets resolves the loudness target, peak ceiling, and makeup limit from
// the contract.
func (s *Stage) targets() (target, ceiling, limit float64) {
	target, ceiling, limit = defaultTargetLUFS, defaultCeilingDB, defaultMaxMakeup

	if v, ok := s.contract.Metrics[targetMetric]; ok {
		target = v
	}

	if v, ok := s.contract.Metrics[ceilingMetric]; ok {
		ceiling = v
	}

	if v, ok := s.contract.Limits[makeupLimit]; ok {
		limit = v
	}

	return target, ceiling, limit
}

// makeupGain returns the bounded dB gain moving lufs toward target. Silence
// is left untouched.
func makeupGain(lufs, target, limit float64) float64 {
	if math.IsInf(lufs, -1) {
		return 0
	}

	gain := target - lufs

	return math.Max(-limit, math.Min(limit, gain))
}
