// Package loudness implements the loudness measurement stage: integrated
// loudness, RMS, sample and true peak, and loudness range for the mixdown
// and every stem. Analysis-only.
package loudness

import (
	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "loudness"

// Stage measures loudness without mutating audio.
type Stage struct {
	contract contract.Contract
}

// New creates the loudness stage bound to its contract.
func New(c contract.Contract) *Stage {
	return &Stage{contract: c}
}

// ID implements stage.Stage.
func (s *Stage) ID() string {
	return ID
}

// Analyse measures the mixdown and every stem.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	if mix := ctx.Mixdown(); mix != nil {
		rec.Session["lufs"] = audio.LUFS(mix)
		rec.Session["rms_db"] = audio.DB(audio.RMS(mix))
		rec.Session["peak_db"] = audio.DB(audio.Peak(mix))
		rec.Session["true_peak_db"] = audio.TruePeakDB(mix)
		rec.Session["lra"] = audio.LRA(mix)
	}

	for _, name := range ctx.StemNames() {
		stem, err := ctx.Stem(name)
		if err != nil {
			return nil, err
		}

		rec.AddStem(name, map[string]any{
			"lufs":    audio.LUFS(stem),
			"rms_db":  audio.DB(audio.RMS(stem)),
			"peak_db": audio.DB(audio.Peak(stem)),
		})
	}

	return rec, nil
}

// Process is a no-op: the stage only measures.
func (s *Stage) Process(_ *session.Context, _ *session.Record) error {
	return nil
}
