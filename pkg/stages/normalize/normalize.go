// Package normalize implements the session format normalization stage. It
// is structural: stems whose native rate differs from the session rate are
// resampled in place, and an explicit target rate in the job metadata
// rewrites the session rate for the whole job. Subsequent stages observe the
// new rate without conversion.
package normalize

import (
	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "normalize"

// TargetRateKey is the metadata key carrying an explicit session rate.
const TargetRateKey = "target_sample_rate"

// Stage normalizes the session format.
type Stage struct {
	contract contract.Contract
}

// New creates the normalize stage bound to its contract.
func New(c contract.Contract) *Stage {
	return &Stage{contract: c}
}

// ID implements stage.Stage.
func (s *Stage) ID() string {
	return ID
}

// Analyse records the session layout: rate, stem count, channel layout, and
// each stem's native rate and length.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	rec.Session["sample_rate"] = ctx.SampleRate()
	rec.Session["stem_count"] = ctx.StemCount()
	rec.Session["pending_resample"] = len(ctx.PendingResample())

	for _, name := range ctx.StemNames() {
		stem, err := ctx.Stem(name)
		if err != nil {
			return nil, err
		}

		rec.AddStem(name, map[string]any{
			"native_rate": stem.Rate,
			"channels":    stem.Channels(),
			"frames":      stem.Frames(),
		})
	}

	return rec, nil
}

// Process resamples every stem to the session rate. An explicit target rate
// in the metadata rewrites the session rate first.
func (s *Stage) Process(ctx *session.Context, _ *session.Record) error {
	if target := targetRate(ctx); target > 0 && target != ctx.SampleRate() {
		ctx.SetSampleRate(target)
	}

	rate := ctx.SampleRate()

	for _, name := range ctx.StemNames() {
		if ctx.Cancelled() {
			return nil
		}

		stem, err := ctx.Stem(name)
		if err != nil {
			return err
		}

		if stem.Rate != rate {
			ctx.SetStem(name, audio.Resample(stem, rate))
		}
	}

	ctx.ClearPendingResample()

	return nil
}

// targetRate reads the explicit rate from metadata, tolerating the numeric
// types JSON and YAML decoders produce.
func targetRate(ctx *session.Context) int {
	v, ok := ctx.Metadata(TargetRateKey)
	if !ok {
		return 0
	}

	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
