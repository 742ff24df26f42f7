package framework

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/stemforge/stemforge/pkg/session"
)

// chartFloorDB stands in for -inf when plotting silent measurements.
const chartFloorDB = -80.0

// RenderLoudnessChart plots the loudness trajectory across stages: one point
// per executed stage that measured the mix. Returns nil data when no stage
// produced a loudness measurement.
func RenderLoudnessChart(results []*StageResult) ([]byte, error) {
	var (
		stages []string
		lufs   []opts.LineData
		rms    []opts.LineData
	)

	for _, res := range results {
		lufsVal, hasLUFS := sessionNumber(res.Post, "lufs")
		rmsVal, hasRMS := sessionNumber(res.Post, "rms_db")

		if !hasLUFS && !hasRMS {
			continue
		}

		stages = append(stages, res.Contract.ID)

		if hasLUFS {
			lufs = append(lufs, opts.LineData{Value: finiteOr(lufsVal, chartFloorDB)})
		} else {
			lufs = append(lufs, opts.LineData{Value: nil})
		}

		if hasRMS {
			rms = append(rms, opts.LineData{Value: finiteOr(rmsVal, chartFloorDB)})
		} else {
			rms = append(rms, opts.LineData{Value: nil})
		}
	}

	if len(stages) == 0 {
		return nil, nil
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Loudness across pipeline stages",
			Subtitle: "Integrated loudness and RMS after each measuring stage",
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "dB / LUFS"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "stage"}),
	)

	line.SetXAxis(stages).
		AddSeries("LUFS", lufs).
		AddSeries("RMS dB", rms)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, fmt.Errorf("render loudness chart: %w", err)
	}

	return buf.Bytes(), nil
}

// sessionNumber reads a float from a record's session block.
func sessionNumber(rec *session.Record, key string) (float64, bool) {
	if rec == nil {
		return 0, false
	}

	v, ok := rec.Session[key].(float64)

	return v, ok
}
