// Package spectral implements the spectral balance analysis stage: relative
// low/mid/high band energy for the mixdown and every stem. Analysis-only.
package spectral

import (
	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "spectral"

// Stage measures spectral balance without mutating audio.
type Stage struct {
	contract contract.Contract
}

// New creates the spectral stage bound to its contract.
func New(c contract.Contract) *Stage {
	return &Stage{contract: c}
}

// ID implements stage.Stage.
func (s *Stage) ID() string {
	return ID
}

// Analyse splits signal energy at the band boundaries for the mixdown and
// each stem.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	if mix := ctx.Mixdown(); mix != nil {
		bands := audio.Bands(mix)
		rec.Session["low_fraction"] = bands.Low
		rec.Session["mid_fraction"] = bands.Mid
		rec.Session["high_fraction"] = bands.High
	}

	for _, name := range ctx.StemNames() {
		stem, err := ctx.Stem(name)
		if err != nil {
			return nil, err
		}

		bands := audio.Bands(stem)
		rec.AddStem(name, map[string]any{
			"low_fraction":  bands.Low,
			"mid_fraction":  bands.Mid,
			"high_fraction": bands.High,
		})
	}

	return rec, nil
}

// Process is a no-op: the stage only measures.
func (s *Stage) Process(_ *session.Context, _ *session.Record) error {
	return nil
}
