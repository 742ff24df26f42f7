package ports

import (
	"encoding/json"
	"math"
)

// Status is the job lifecycle state carried in a status blob.
type Status string

// Job lifecycle states. Success, failure, and cancelled are terminal.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends the job lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusCancelled
}

// StatusBlob is the JobStore value summarizing a job's current or terminal
// state. Always JSON-encodable.
type StatusBlob struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`

	StageIndex  int    `json:"stage_index"`
	TotalStages int    `json:"total_stages"`
	StageKey    string `json:"stage_key,omitempty"`
	Message     string `json:"message,omitempty"`

	// Progress is 0-100. 100 if and only if the status is success.
	Progress int `json:"progress"`

	// ErrorKind names the error taxonomy entry on terminal failure.
	ErrorKind string `json:"error_kind,omitempty"`

	// Metrics is set on terminal success only.
	Metrics *FinalMetrics `json:"metrics,omitempty"`
}

// FinalMetrics summarizes the delivered mixdown.
type FinalMetrics struct {
	LUFS                  float64 `json:"lufs"`
	TruePeakDB            float64 `json:"true_peak_db"`
	LRA                   float64 `json:"lra"`
	TempoBPM              float64 `json:"tempo_bpm"`
	Key                   string  `json:"key"`
	Scale                 string  `json:"scale"`
	ChannelLoudnessDiffDB float64 `json:"channel_loudness_diff_db"`
	Correlation           float64 `json:"correlation"`
}

// MarshalJSON keeps the blob encodable when a metric is infinite, which
// silence legitimately produces: infinities become the strings "-inf" and
// "+inf", NaN becomes null.
func (m FinalMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"lufs":                     JSONNumber(m.LUFS),
		"true_peak_db":             JSONNumber(m.TruePeakDB),
		"lra":                      JSONNumber(m.LRA),
		"tempo_bpm":                JSONNumber(m.TempoBPM),
		"key":                      m.Key,
		"scale":                    m.Scale,
		"channel_loudness_diff_db": JSONNumber(m.ChannelLoudnessDiffDB),
		"correlation":              JSONNumber(m.Correlation),
	})
}

// JSONNumber converts a float to a JSON-encodable value: infinities map to
// the strings "-inf" and "+inf", NaN maps to nil.
func JSONNumber(v float64) any {
	switch {
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsNaN(v):
		return nil
	default:
		return v
	}
}
