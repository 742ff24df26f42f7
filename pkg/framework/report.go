package framework

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/stemforge/stemforge/pkg/ports"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages/stage"
)

// Artifact names the orchestrator publishes.
const (
	ReportArtifact  = "report.json"
	MixdownArtifact = "full_song.wav"
	ChartArtifact   = "loudness.html"
)

// Per-stage report statuses.
const (
	StageAnalyzed = "analyzed"
	StageSkipped  = "skipped"
	StageFailed   = "failed"
)

// Report is the structured job summary published as report.json on success.
type Report struct {
	PipelineVersion string             `json:"pipeline_version"`
	GeneratedAtUTC  string             `json:"generated_at_utc"`
	StylePreset     string             `json:"style_preset,omitempty"`
	Stages          []StageReport      `json:"stages"`
	FinalMetrics    ports.FinalMetrics `json:"final_metrics"`
	Durations       PipelineDurations  `json:"pipeline_durations"`
}

// StageReport summarizes one executed stage.
type StageReport struct {
	ContractID string `json:"contract_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`

	// Session is the post-run session measurement block.
	Session map[string]any `json:"session,omitempty"`

	// Parameters echoes the contract's targets and limits.
	Parameters StageParameters `json:"parameters"`

	// Images lists artifact names the stage itself emitted.
	Images []string `json:"images,omitempty"`

	Diff *stage.Diff `json:"diff,omitempty"`
}

// StageParameters echoes the contract targets and limits a stage ran under.
type StageParameters struct {
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Limits  map[string]float64 `json:"limits,omitempty"`
}

// PipelineDurations carries per-stage and total wall-clock timings.
type PipelineDurations struct {
	Stages   []StageDuration `json:"stages"`
	TotalSec float64         `json:"total_duration_sec"`
}

// StageDuration is one stage's wall-clock timing.
type StageDuration struct {
	ContractID  string  `json:"contract_id"`
	DurationSec float64 `json:"duration_sec"`
}

// BuildReport assembles the report from the completed stage results and the
// job context.
func BuildReport(version string, now time.Time, jc *session.Context, results []*StageResult, metrics ports.FinalMetrics) *Report {
	report := &Report{
		PipelineVersion: version,
		GeneratedAtUTC:  now.UTC().Format(time.RFC3339),
		StylePreset:     jc.MetadataString("style_preset"),
		Stages:          make([]StageReport, 0, len(results)),
		FinalMetrics:    metrics,
	}

	for _, res := range results {
		entry := StageReport{
			ContractID: res.Contract.ID,
			Name:       res.Contract.Name,
			Status:     StageAnalyzed,
			Session:    summarize(res.Post),
			Parameters: StageParameters{
				Metrics: res.Contract.Metrics,
				Limits:  res.Contract.Limits,
			},
		}

		if res.Diff != nil && !res.Diff.Empty() {
			entry.Diff = res.Diff
		}

		report.Stages = append(report.Stages, entry)
	}

	total := 0.0

	for _, timing := range jc.Timings() {
		sec := timing.Duration.Seconds()
		total += sec
		report.Durations.Stages = append(report.Durations.Stages, StageDuration{
			ContractID:  timing.StageID,
			DurationSec: sec,
		})
	}

	report.Durations.TotalSec = total

	return report
}

// Encode serializes the report to indented JSON.
func (r *Report) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	return data, nil
}

// jsonSafe recursively rewrites values so encoding/json accepts them:
// non-finite floats become the strings "-inf"/"+inf" or null.
func jsonSafe(v any) any {
	switch n := v.(type) {
	case float64:
		return ports.JSONNumber(n)
	case float32:
		return ports.JSONNumber(float64(n))
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, inner := range n {
			out[k] = jsonSafe(inner)
		}

		return out
	case []any:
		out := make([]any, len(n))
		for i, inner := range n {
			out[i] = jsonSafe(inner)
		}

		return out
	default:
		return v
	}
}

// finiteOr replaces a non-finite float with the given fallback.
func finiteOr(v, fallback float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fallback
	}

	return v
}
