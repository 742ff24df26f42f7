// Package contract loads and serves the static per-stage declarations that
// drive the pipeline: stage ids, plan order, metric targets, change limits,
// and dependencies. The contract file is the sole source of truth for plan
// order; it is loaded once per process and immutable thereafter.
package contract

import "errors"

// Kind classifies how a stage interacts with the job context.
type Kind string

// Stage kinds.
const (
	// KindAnalysis stages measure without mutating audio.
	KindAnalysis Kind = "analysis"

	// KindStemsDSP stages rewrite stem buffers in place; the runtime
	// refreshes the mixdown afterwards.
	KindStemsDSP Kind = "stems-dsp"

	// KindMixdownDSP stages rewrite the mixdown in place; no automatic
	// refresh follows.
	KindMixdownDSP Kind = "mixdown-dsp"

	// KindStructural stages may replace or add stems and may change the
	// session sample rate.
	KindStructural Kind = "structural"
)

// ErrUnknownStage is returned when a contract lookup fails.
var ErrUnknownStage = errors.New("unknown stage")

// ErrInvalidContract is returned when a contract document fails validation.
var ErrInvalidContract = errors.New("invalid contract document")

// Contract is the static declaration of one stage. Read-only after load.
type Contract struct {
	// ID uniquely identifies the stage and matches its code registration.
	ID string `json:"id"`

	// Name is the human-readable stage name used in reports.
	Name string `json:"name"`

	// Ordinal gives the default plan position. Ties break by ID.
	Ordinal int `json:"ordinal"`

	// Kind classifies the stage's mutation rights.
	Kind Kind `json:"kind"`

	// DependsOn lists stage ids that must have produced an analysis
	// record before this stage runs.
	DependsOn []string `json:"depends_on"`

	// Metrics are the numeric targets the stage tries to achieve.
	Metrics map[string]float64 `json:"metrics"`

	// Limits are hard bounds on change per run.
	Limits map[string]float64 `json:"limits"`
}

// validKinds is the closed set of stage kinds.
var validKinds = map[Kind]struct{}{
	KindAnalysis:   {},
	KindStemsDSP:   {},
	KindMixdownDSP: {},
	KindStructural: {},
}

// Valid reports whether the kind is one of the declared stage kinds.
func (k Kind) Valid() bool {
	_, ok := validKinds[k]

	return ok
}

// MutatesStems reports whether stages of this kind rewrite stem buffers,
// requiring a mixdown refresh after process.
func (k Kind) MutatesStems() bool {
	return k == KindStemsDSP || k == KindStructural
}
