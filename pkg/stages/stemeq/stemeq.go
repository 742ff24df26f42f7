// Package stemeq implements the corrective stem EQ stage. Each stem's band
// balance is measured against the session-wide balance and low/high shelf
// filters nudge outliers back, bounded by the contract's shelf limit.
package stemeq

import (
	"math"
	"runtime"
	"sync"

	"github.com/stemforge/stemforge/pkg/audio"
	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// ID is the stage id, matching the contract declaration.
const ID = "stemeq"

// shelfLimit is the contract key bounding shelf gain.
const shelfLimit = "max_shelf_db"

// Shelf corner frequencies, matching the band split in the spectral stage.
const (
	lowShelfHz  = 250.0
	highShelfHz = 4000.0
)

// defaultShelfLimitDB applies when the contract omits the limit.
const defaultShelfLimitDB = 6.0

// correctionSlope scales how aggressively a band deviation translates into
// shelf gain. Half-strength keeps the correction gentle.
const correctionSlope = 0.5

// Stage rebalances stems with shelving EQ.
type Stage struct {
	contract contract.Contract

	// workers bounds the per-stem fan-out. Defaults to NumCPU.
	workers int
}

// New creates the stemeq stage bound to its contract.
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

// Analyse measures each stem's band balance against the mixdown's and
// derives bounded shelf gains. The gains are carried in the record for
// Process.
func (s *Stage) Analyse(ctx *session.Context) (*session.Record, error) {
	rec := session.NewRecord(s.contract.ID, ID)
	rec.CopyTargets(s.contract.Metrics, s.contract.Limits)

	mix := ctx.Mixdown()
	if mix == nil {
		return rec, nil
	}

	limit := defaultShelfLimitDB
	if v, ok := s.contract.Limits[shelfLimit]; ok {
		limit = v
	}

	reference := audio.Bands(mix)
	rec.Session["low_fraction"] = reference.Low
	rec.Session["mid_fraction"] = reference.Mid
	rec.Session["high_fraction"] = reference.High

	for _, name := range ctx.StemNames() {
		stem, err := ctx.Stem(name)
		if err != nil {
			return nil, err
		}

		bands := audio.Bands(stem)
		rec.AddStem(name, map[string]any{
			"low_fraction":    bands.Low,
			"mid_fraction":    bands.Mid,
			"high_fraction":   bands.High,
			"low_shelf_gain":  shelfGain(bands.Low, reference.Low, limit),
			"high_shelf_gain": shelfGain(bands.High, reference.High, limit),
			"low_shelf_hz":    lowShelfHz,
			"high_shelf_hz":   highShelfHz,
		})
	}

	return rec, nil
}

// Process applies each stem's shelf corrections in place, fanning out across
// a bounded worker pool. Cancellation is honored between stems.
func (s *Stage) Process(ctx *session.Context, pre *session.Record) error {
	var wg sync.WaitGroup

	sem := make(chan struct{}, s.workers)

	for _, m := range pre.Stems {
		if ctx.Cancelled() {
			break
		}

		lowDB, _ := m["low_shelf_gain"].(float64)
		highDB, _ := m["high_shelf_gain"].(float64)

		if lowDB == 0 && highDB == 0 {
			continue
		}

		stem, err := ctx.Stem(m.FileName())
		if err != nil {
			return err
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(buf *audio.Buffer, low, high float64) {
			defer wg.Done()
			defer func() { <-sem }()

			applyShelves(buf, low, high)
		}(stem, lowDB, highDB)
	}

	wg.Wait()

	return nil
}

// applyShelves runs the low and high shelf filters over every channel. Each
// channel gets fresh filter instances so state never leaks between channels.
func applyShelves(buf *audio.Buffer, lowDB, highDB float64) {
	for ch := range buf.Samples {
		if lowDB != 0 {
			audio.NewLowShelf(buf.Rate, lowShelfHz, lowDB).ProcessInPlace(buf.Samples[ch])
		}

		if highDB != 0 {
			audio.NewHighShelf(buf.Rate, highShelfHz, highDB).ProcessInPlace(buf.Samples[ch])
		}
	}
}

// shelfGain converts a band-fraction deviation into a bounded shelf gain.
// Positive when the stem is deficient in the band relative to the session.
func shelfGain(fraction, reference, limit float64) float64 {
	if fraction <= 0 || reference <= 0 {
		return 0
	}

	deviationDB := 10 * math.Log10(reference/fraction)
	gain := deviationDB * correctionSlope

	return math.Max(-limit, math.Min(limit, gain))
}
