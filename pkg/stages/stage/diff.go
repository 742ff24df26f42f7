package stage

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/stemforge/stemforge/pkg/session"
)

// changedEpsilon is the minimum absolute delta considered a change.
const changedEpsilon = 1e-3

// FieldDiff compares one numeric field across the pre and post records.
type FieldDiff struct {
	Key     string  `json:"key"`
	Before  float64 `json:"before"`
	After   float64 `json:"after"`
	Delta   float64 `json:"delta"`
	Changed bool    `json:"changed"`
}

// MarshalJSON encodes non-finite values as strings so diffs stay
// JSON-encodable (loudness measurements report -inf for silence).
func (d FieldDiff) MarshalJSON() ([]byte, error) {
	type alias struct {
		Key     string `json:"key"`
		Before  any    `json:"before"`
		After   any    `json:"after"`
		Delta   any    `json:"delta"`
		Changed bool   `json:"changed"`
	}

	return json.Marshal(alias{
		Key:     d.Key,
		Before:  jsonNumber(d.Before),
		After:   jsonNumber(d.After),
		Delta:   jsonNumber(d.Delta),
		Changed: d.Changed,
	})
}

// StemDiff holds the field diffs of one stem, identified by file name.
type StemDiff struct {
	FileName string      `json:"file_name"`
	Fields   []FieldDiff `json:"fields"`
}

// Diff is the pairwise numeric comparison of a stage's pre- and
// post-analysis records.
type Diff struct {
	StageID string      `json:"stage_id"`
	Session []FieldDiff `json:"session"`
	Stems   []StemDiff  `json:"stems"`
}

// NewDiff compares two records of the same stage. Session keys are emitted
// in lexicographic order; stems in file-name order. Only numeric fields
// present in both records participate.
func NewDiff(pre, post *session.Record) *Diff {
	diff := &Diff{StageID: pre.StageID}

	diff.Session = diffBlocks(pre.Session, post.Session)

	postStems := make(map[string]session.StemMeasurement, len(post.Stems))
	for _, m := range post.Stems {
		postStems[m.FileName()] = m
	}

	names := make([]string, 0, len(pre.Stems))
	preStems := make(map[string]session.StemMeasurement, len(pre.Stems))

	for _, m := range pre.Stems {
		names = append(names, m.FileName())
		preStems[m.FileName()] = m
	}

	sort.Strings(names)

	for _, name := range names {
		postBlock, ok := postStems[name]
		if !ok {
			continue
		}

		fields := diffBlocks(preStems[name], postBlock)
		if len(fields) == 0 {
			continue
		}

		diff.Stems = append(diff.Stems, StemDiff{FileName: name, Fields: fields})
	}

	return diff
}

// AnyChanged reports whether any field in the diff changed.
func (d *Diff) AnyChanged() bool {
	for _, f := range d.Session {
		if f.Changed {
			return true
		}
	}

	for _, stem := range d.Stems {
		for _, f := range stem.Fields {
			if f.Changed {
				return true
			}
		}
	}

	return false
}

// Empty reports whether the diff carries no fields at all.
func (d *Diff) Empty() bool {
	return len(d.Session) == 0 && len(d.Stems) == 0
}

func diffBlocks(pre, post map[string]any) []FieldDiff {
	keys := make([]string, 0, len(pre))

	for key, preVal := range pre {
		if key == session.StemMeasurementFileKey {
			continue
		}

		if _, preNum := asNumber(preVal); !preNum {
			continue
		}

		postVal, ok := post[key]
		if !ok {
			continue
		}

		if _, postNum := asNumber(postVal); !postNum {
			continue
		}

		keys = append(keys, key)
	}

	sort.Strings(keys)

	fields := make([]FieldDiff, 0, len(keys))

	for _, key := range keys {
		before, _ := asNumber(pre[key])
		after, _ := asNumber(post[key])
		fields = append(fields, diffField(key, before, after))
	}

	return fields
}

// diffField applies the diff numeric semantics: two -inf values are equal
// and unchanged; -inf against a finite value yields an infinite delta and a
// change.
func diffField(key string, before, after float64) FieldDiff {
	negInfBefore := math.IsInf(before, -1)
	negInfAfter := math.IsInf(after, -1)

	switch {
	case negInfBefore && negInfAfter:
		return FieldDiff{Key: key, Before: before, After: after, Delta: 0, Changed: false}
	case negInfBefore || negInfAfter:
		return FieldDiff{Key: key, Before: before, After: after, Delta: after - before, Changed: true}
	default:
		delta := after - before

		return FieldDiff{
			Key:     key,
			Before:  before,
			After:   after,
			Delta:   delta,
			Changed: math.Abs(delta) >= changedEpsilon,
		}
	}
}

// asNumber coerces the numeric types analysis records carry.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// jsonNumber maps non-finite floats onto JSON-encodable stand-ins.
func jsonNumber(v float64) any {
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
