package marketdata

import (
	"math"
	"time"

	"github.com/seenimoa/tradecore/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Tick Quality Assessment
// ════════════════════════════════════════════════════════════════════

const (
	staleTickAfter   = 5 * time.Second
	highLatencyAfter = 2 * time.Second
	tickGapAfter     = 60 * time.Second
	// spikeThresholdPct flags a tick-to-tick move as a spike.
	spikeThresholdPct = 5.0
	// poorQualityBelow is the score under which a tick reads POOR.
	poorQualityBelow = 0.5
)

// AssessTick scores a tick against its predecessor. Quality is advisory:
// flagged ticks are still persisted, callers decide what to act on.
func AssessTick(tick models.Tick, prev *models.Tick, now time.Time) models.QualityFlags {
	q := models.QualityFlags{
		Score:            1.0,
		ValidationStatus: models.ValidationValidated,
	}

	if tick.LTP <= 0 {
		q.Score = 0
		q.ValidationStatus = models.ValidationFailed
		q.Anomalies = append(q.Anomalies, "non_positive_price")
		return q
	}

	age := now.Sub(tick.TS)
	q.LatencyMs = age.Milliseconds()
	if age > staleTickAfter {
		q.IsStale = true
		q.Score -= 0.3
		q.Anomalies = append(q.Anomalies, "stale_tick")
	} else if age > highLatencyAfter {
		q.HasLatencyIssues = true
		q.Score -= 0.1
	}

	if prev != nil && prev.LTP > 0 {
		movePct := math.Abs(tick.LTP-prev.LTP) / prev.LTP * 100
		if movePct > spikeThresholdPct {
			q.HasSpikes = true
			q.Score -= 0.4
			q.Anomalies = append(q.Anomalies, "price_spike")
		}
		if tick.TS.Sub(prev.TS) > tickGapAfter {
			q.HasGaps = true
			q.Score -= 0.1
			q.Anomalies = append(q.Anomalies, "feed_gap")
		}
	}

	if q.Score < 0 {
		q.Score = 0
	}
	switch {
	case q.Score < poorQualityBelow:
		q.ValidationStatus = models.ValidationFailed
	case len(q.Anomalies) > 0:
		q.ValidationStatus = models.ValidationAnomaly
	}
	return q
}
