package models

// ValidationStatus classifies the outcome of a data-quality assessment.
type ValidationStatus string

const (
	ValidationValidated ValidationStatus = "VALIDATED"
	ValidationFailed    ValidationStatus = "FAILED"
	ValidationPending   ValidationStatus = "PENDING"
	ValidationAnomaly   ValidationStatus = "ANOMALY"
)

// QualityFlags is the derived quality assessment of a tick or candle.
// It is never the source of truth; flagged rows are still persisted.
type QualityFlags struct {
	Score            float64          `json:"score"` // 0..1
	HasGaps          bool             `json:"has_gaps"`
	HasSpikes        bool             `json:"has_spikes"`
	IsStale          bool             `json:"is_stale"`
	HasLatencyIssues bool             `json:"has_latency_issues"`
	Anomalies        []string         `json:"anomalies,omitempty"`
	LatencyMs        int64            `json:"latency_ms"`
	ValidationStatus ValidationStatus `json:"validation_status"`
}

// IsHighQuality reports score ≥ 0.9 with no anomalies.
func (q QualityFlags) IsHighQuality() bool {
	return q.Score >= 0.9 && len(q.Anomalies) == 0
}

// IsAcceptable reports score ≥ 0.7.
func (q QualityFlags) IsAcceptable() bool {
	return q.Score >= 0.7
}
