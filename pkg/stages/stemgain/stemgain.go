// Package stemgain implements the stem gain staging stage. Each stem is
// pushed toward the contract's target RMS level, bounded by the contract's
// per-run gain limit. Per-stem targets can be overridden by a profile
// document carried in the job metadata.
package stemgain

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "stemgain"

// ProfilesKey is the metadata key carrying per-stem profile overrides,
// either as a YAML document or a decoded mapping.
const ProfilesKey = "profiles_by_name"

// Contract keys used by this stage.
const (
	targetMetric = "stem_rms_db"
	gainLimit    = "max_gain_db"
)

// defaultTargetRMSDB applies when the contract omits the target.
const defaultTargetRMSDB = -18.0

// Profile carries per-stem overrides from the job metadata.
type Profile struct {
	TargetRMSDB *float64 `yaml:"target_rms_db"`
}

// Stage adjusts per-stem gain toward the target level.
type Stage struct {
	contract contract.Contract

	// workers bounds the per-stem fan-out. Defaults to NumCPU.
	workers int
}

// New creates the stemgain stage bound to its contract.
func New(c contract.Contract) *Stage {
	return &Stage{contract: c, workers: runtime.NumCPU()}
}

// WithWorkers overrides the fan-out bound. Values below one run serially.
func (s *Stage) WithWorkers(n int) *Stage {
	s.workers = max(n, 1)

	return s
}

// ID implements stage.Stage.
func (s *Stage) ID() string {
	return ID
}

// Analyse measures each stem's RMS and computes the bounded gain that would
// bring it to target. The gains are carried in the record for Process.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	profiles, err := parseProfiles(ctx)
	if err != nil {
		return nil, err
	}

	target := defaultTargetRMSDB
	if v, ok := s.contract.Metrics[targetMetric]; ok {
		target = v
	}

	limit := math.Inf(1)
	if v, ok := s.contract.Limits[gainLimit]; ok {
		limit = v
	}

	sum := 0.0

	for _, name := range ctx.StemNames() {
		stem, stemErr := ctx.Stem(name)
		if stemErr != nil {
			return nil, stemErr
		}

		stemTarget := target
		if p, ok := profiles[name]; ok && p.TargetRMSDB != nil {
			stemTarget = *p.TargetRMSDB
		}

		rmsDB := audio.DB(audio.RMS(stem))
		gainDB := boundedGain(rmsDB, stemTarget, limit)
		sum += rmsDB

		rec.AddStem(name, map[string]any{
			"rms_db":        rmsDB,
			"target_rms_db": stemTarget,
			"gain_db":       gainDB,
		})
	}

	if ctx.StemCount() > 0 {
		rec.Session["mean_stem_rms_db"] = sum / float64(ctx.StemCount())
	}

	return rec, nil
}

// Process applies each stem's computed gain in place, fanning out across a
// bounded worker pool. Cancellation is honored between stems.
func (s *Stage) Process(ctx *session.Context, pre *session.Record) error {
	var wg sync.WaitGroup

	sem := make(chan struct{}, s.workers)

	for _, m := range pre.Stems {
		if ctx.Cancelled() {
			break
		}

		gainDB, ok := m["gain_db"].(float64)
		if !ok || gainDB == 0 {
			continue
		}

		stem, err := ctx.Stem(m.FileName())
		if err != nil {
			return err
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(buf *audio.Buffer, db float64) {
			defer wg.Done()
			defer func() { <-sem }()

			buf.Scale(math.Pow(10, db/20))
		}(stem, gainDB)
	}

	wg.Wait()

	return nil
}

// boundedGain returns the dB gain moving rms toward target, clamped to
// ±limit. Silent stems are left untouched.
func boundedGain(rmsDB, targetDB, limit float64) float64 {
	if math.IsInf(rmsDB, -1) {
		return 0
	}

	gain := targetDB - rmsDB

	return math.Max(-limit, math.Min(limit, gain))
}

// parseProfiles reads per-stem overrides from the metadata. Accepts a YAML
// document string or an already-decoded mapping.
func parseProfiles(ctx *session.Context) (map[string]Profile, error) {
	raw, ok := ctx.Metadata(ProfilesKey)
	if !ok {
		return nil, nil
	}

	switch v := raw.(type) {
	case string:
		profiles := make(map[string]Profile)

		err := yaml.Unmarshal([]byte(v), &profiles)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", ProfilesKey, err)
		}

		return profiles, nil
	case map[string]Profile:
		return v, nil
	default:
		return nil, nil
	}
}
