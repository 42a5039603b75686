package models

import "time"

// AlertType classifies operational alerts raised by the data services.
type AlertType string

const (
	AlertPriceAnomaly     AlertType = "PRICE_ANOMALY"
	AlertDataQualityIssue AlertType = "DATA_QUALITY_ISSUE"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityLow    AlertSeverity = "LOW"
	SeverityMedium AlertSeverity = "MEDIUM"
	SeverityHigh   AlertSeverity = "HIGH"
)

// Alert is an operational alert queued on the alerts topic.
type Alert struct {
	Type          AlertType     `json:"type"`
	Severity      AlertSeverity `json:"severity"`
	InstrumentKey string        `json:"instrument_key,omitempty"`
	Message       string        `json:"message"`
	TS            time.Time     `json:"ts"`
}
