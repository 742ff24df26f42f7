// Package stereoimage implements the stereo image analysis stage:
// inter-channel correlation, channel loudness difference, and mid/side
// width for the mixdown. Analysis-only.
package stereoimage

import (
	"math"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "stereoimage"

// Stage measures the stereo image without mutating audio.
type Stage struct {
	contract contract.Contract
}

// New creates the stereoimage stage bound to its contract.
func New(c contract.Contract) *Stage {
	return &Stage{contract: c}
}

// ID implements stage.Stage.
func (s *Stage) ID() string {
	return ID
}

// Analyse measures correlation, channel balance, and width of the mixdown.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	mix := ctx.Mixdown()
	if mix == nil {
		return rec, nil
	}

	rec.Session["correlation"] = audio.Correlation(mix)
	rec.Session["channel_loudness_diff_db"] = audio.ChannelLoudnessDiffDB(mix)
	rec.Session["width"] = width(mix)

	return rec, nil
}

// Process is a no-op: the stage only measures.
func (s *Stage) Process(_ *session.Context, _ *session.Record) error {
	return nil
}

// width returns the side-to-mid energy ratio in [0, 1]: 0 for dual-mono
// material, approaching 1 for fully decorrelated channels.
func width(mix *audio.Buffer) float64 {
	if mix.Channels() < audio.Stereo || mix.Frames() == 0 {
		return 0
	}

	left, right := mix.Samples[0], mix.Samples[1]

	var midEnergy, sideEnergy float64

	for i := range left {
		mid := (left[i] + right[i]) / 2
		side := (left[i] - right[i]) / 2

		midEnergy += mid * mid
		sideEnergy += side * side
	}

	total := midEnergy + sideEnergy
	if total == 0 {
		return 0
	}

	return math.Min(sideEnergy/total*2, 1)
}
