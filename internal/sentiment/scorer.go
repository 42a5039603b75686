// Package sentiment blends keyword-scored market sentiment from news
// and social sources into a rolling 0–100 reading.
package sentiment

import (
	"math"
	"strings"
	"time"

	"github.com/seenimoa/tradecore/pkg/models"
)

// ------------------------------------------------------------------
// Keyword-based sentiment scorer (offline, deterministic).
// ------------------------------------------------------------------

// decayHalfLife halves an article's weight every 20 minutes.
const decayHalfLife = 20 * time.Minute

// bullish / bearish keyword dictionaries (lowercase).
var bullishWords = map[string]float64{
	"bullish": 0.7, "rally": 0.6, "surge": 0.7, "upbeat": 0.5,
	"positive": 0.4, "growth": 0.4, "upgrade": 0.6, "outperform": 0.6,
	"buy": 0.5, "strong": 0.4, "recovery": 0.5, "breakout": 0.6,
	"record high": 0.7, "all-time high": 0.7, "beat": 0.5,
	"exceeds": 0.5, "beats estimate": 0.6, "expansion": 0.4,
	"profit": 0.3, "dividend": 0.4, "accumulate": 0.5,
	"gains": 0.5, "jumps": 0.5,
}

var bearishWords = map[string]float64{
	"bearish": 0.7, "crash": 0.8, "plunge": 0.7, "slump": 0.6,
	"negative": 0.4, "downgrade": 0.6, "underperform": 0.6,
	"sell": 0.5, "weak": 0.4, "decline": 0.5, "loss": 0.4,
	"selloff": 0.7, "fall": 0.4, "correction": 0.5,
	"default": 0.7, "fraud": 0.8, "scam": 0.8, "investigation": 0.5,
	"cut": 0.3, "miss": 0.5, "warning": 0.5, "concern": 0.3,
	"drops": 0.5, "tanks": 0.7,
}

// ScoredArticle is one article with its sentiment score.
type ScoredArticle struct {
	Article    models.NewsArticle `json:"article"`
	Score      float64            `json:"score"`      // -1..+1
	Confidence float64            `json:"confidence"` // 0..1
}

// ScoreHeadline scores a single headline in -1..+1 with a confidence
// driven by keyword density.
func ScoreHeadline(headline string) (score float64, confidence float64) {
	lower := strings.ToLower(headline)

	bullScore := 0.0
	bearScore := 0.0
	matches := 0

	for word, weight := range bullishWords {
		if strings.Contains(lower, word) {
			bullScore += weight
			matches++
		}
	}
	for word, weight := range bearishWords {
		if strings.Contains(lower, word) {
			bearScore += weight
			matches++
		}
	}

	if matches == 0 || bullScore+bearScore == 0 {
		return 0, 0.1
	}

	score = (bullScore - bearScore) / (bullScore + bearScore)
	confidence = math.Min(float64(matches)*0.15+0.2, 0.85)
	return score, confidence
}

// ScoreArticle scores title plus summary.
func ScoreArticle(article models.NewsArticle) ScoredArticle {
	text := article.Title
	if article.Summary != "" {
		text += " " + article.Summary
	}
	score, confidence := ScoreHeadline(text)
	return ScoredArticle{Article: article, Score: score, Confidence: confidence}
}

// AggregateScores blends scored articles into a 0–100 reading with an
// exponential 20-minute half-life on article age. Returns 50 (neutral)
// with zero confidence when no articles carry signal.
func AggregateScores(scores []ScoredArticle, now time.Time) (score float64, confidence float64) {
	if len(scores) == 0 {
		return 50, 0
	}

	weightedSum := 0.0
	totalWeight := 0.0
	confSum := 0.0

	for _, s := range scores {
		age := now.Sub(s.Article.PublishedAt)
		if age < 0 {
			age = 0
		}
		timeWeight := math.Exp2(-age.Minutes() / decayHalfLife.Minutes())
		w := timeWeight * s.Confidence

		weightedSum += s.Score * w
		totalWeight += w
		confSum += s.Confidence
	}

	avg := 0.0
	if totalWeight > 0 {
		avg = weightedSum / totalWeight
	}

	// Map -1..+1 onto 0..100.
	return 50 + avg*50, confSum / float64(len(scores))
}
