// Package tempokey implements the tempo and key detection stage. The tempo
// is estimated by autocorrelation of the onset-energy envelope; the key by
// matching a chroma vector against Krumhansl profiles. Analysis-only.
package tempokey

import (
	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "tempokey"

// Stage estimates tempo and key without mutating audio.
type Stage struct {
	contract contract.Contract
}

// New creates the tempokey stage bound to its contract.
func New(c contract.Contract) *Stage {
	return &Stage{contract: c}
}

// ID implements stage.Stage.
func (s *Stage) ID() string {
	return ID
}

// Analyse estimates tempo and key from the mixdown.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	mix := ctx.Mixdown()
	if mix == nil {
		return rec, nil
	}

	rec.Session["tempo_bpm"] = audio.TempoBPM(mix)

	key, scale := audio.Key(mix)
	rec.Session["key"] = key
	rec.Session["scale"] = scale

	return rec, nil
}

// Process is a no-op: the stage only measures.
func (s *Stage) Process(_ *session.Context, _ *session.Record) error {
	return nil
}
