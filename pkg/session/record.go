package session

// StemMeasurementFileKey is the required key carried by every per-stem
// measurement block.
const StemMeasurementFileKey = "file_name"

// StemMeasurement is one stem's measurement block within a record. It always
// carries StemMeasurementFileKey.
type StemMeasurement map[string]any

// FileName returns the stem file name the measurement belongs to.
func (m StemMeasurement) FileName() string {
	name, _ := m[StemMeasurementFileKey].(string)

	return name
}

// Record is the structured output of one analyse call. Records are
// append-only within a job and immutable after insertion.
type Record struct {
	// ContractID identifies the contract the stage ran under.
	ContractID string `json:"contract_id"`

	// StageID identifies the stage that produced the record.
	StageID string `json:"stage_id"`

	// Metrics is a copy of the contract's metric targets at run time.
	Metrics map[string]float64 `json:"metrics_from_contract"`

	// Limits is a copy of the contract's change limits at run time.
	Limits map[string]float64 `json:"limits_from_contract"`

	// Session holds aggregate measurements for the whole session.
	Session map[string]any `json:"session"`

	// Stems holds per-stem measurement blocks in stem-name order.
	Stems []StemMeasurement `json:"stems"`
}

// NewRecord creates an empty record for the given contract and stage.
func NewRecord(contractID, stageID string) *Record {
	return &Record{
		ContractID: contractID,
		StageID:    stageID,
		Session:    make(map[string]any),
	}
}

// CopyTargets copies metric targets and limits from a contract into the
// record, detaching from the source maps.
func (r *Record) CopyTargets(metrics, limits map[string]float64) {
	r.Metrics = make(map[string]float64, len(metrics))
	for k, v := range metrics {
		r.Metrics[k] = v
	}

	r.Limits = make(map[string]float64, len(limits))
	for k, v := range limits {
		r.Limits[k] = v
	}
}

// AddStem appends a per-stem measurement block carrying the stem file name.
func (r *Record) AddStem(fileName string, values map[string]any) {
	m := make(StemMeasurement, len(values)+1)
	for k, v := range values {
		m[k] = v
	}

	m[StemMeasurementFileKey] = fileName
	r.Stems = append(r.Stems, m)
}
