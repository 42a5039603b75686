package models

import "time"

// SentimentLabel is the coarse sentiment classification.
type SentimentLabel string

const (
	SentimentBullish SentimentLabel = "Bullish"
	SentimentBearish SentimentLabel = "Bearish"
	SentimentNeutral SentimentLabel = "Neutral"
)

// LabelForScore maps a 0–100 sentiment score to its label.
func LabelForScore(score float64) SentimentLabel {
	switch {
	case score >= 60:
		return SentimentBullish
	case score <= 40:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// MarketSentimentSnapshot is a point-in-time blended sentiment reading.
// The latest row is read by the decision service; history is kept for display.
type MarketSentimentSnapshot struct {
	AsOf               time.Time      `json:"as_of"`
	Score              float64        `json:"score"` // 0..100
	Confidence         float64        `json:"confidence,omitempty"`
	PredictionAccuracy float64        `json:"prediction_accuracy,omitempty"`
	Sentiment          SentimentLabel `json:"sentiment"`
}

// NewsArticle is a headline pulled from a configured feed, scored by the
// sentiment providers.
type NewsArticle struct {
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
