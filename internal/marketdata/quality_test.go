package marketdata

import (
	"testing"
	"time"

	"github.com/seenimoa/tradecore/pkg/models"
)

func TestAssessTickClean(t *testing.T) {
	now := time.Now()
	prev := models.Tick{Symbol: testKey, TS: now.Add(-time.Second), LTP: 100}
	tick := models.Tick{Symbol: testKey, TS: now, LTP: 100.5}

	q := AssessTick(tick, &prev, now)
	if !q.IsHighQuality() {
		t.Errorf("clean tick should be high quality: %+v", q)
	}
	if q.ValidationStatus != models.ValidationValidated {
		t.Errorf("status = %s, want VALIDATED", q.ValidationStatus)
	}
}

func TestAssessTickNonPositivePrice(t *testing.T) {
	now := time.Now()
	q := AssessTick(models.Tick{Symbol: testKey, TS: now, LTP: 0}, nil, now)
	if q.Score != 0 {
		t.Errorf("score = %v, want 0", q.Score)
	}
	if q.ValidationStatus != models.ValidationFailed {
		t.Errorf("status = %s, want FAILED", q.ValidationStatus)
	}
}

func TestAssessTickSpike(t *testing.T) {
	now := time.Now()
	prev := models.Tick{Symbol: testKey, TS: now.Add(-time.Second), LTP: 100}
	tick := models.Tick{Symbol: testKey, TS: now, LTP: 110} // +10%

	q := AssessTick(tick, &prev, now)
	if !q.HasSpikes {
		t.Error("10%% move should flag a spike")
	}
	if q.IsHighQuality() {
		t.Error("spiked tick should not be high quality")
	}
	if q.ValidationStatus != models.ValidationAnomaly {
		t.Errorf("status = %s, want ANOMALY", q.ValidationStatus)
	}
}

func TestAssessTickStale(t *testing.T) {
	now := time.Now()
	tick := models.Tick{Symbol: testKey, TS: now.Add(-6 * time.Second), LTP: 100}

	q := AssessTick(tick, nil, now)
	if !q.IsStale {
		t.Error("6s-old tick should be stale")
	}
	if !q.IsAcceptable() {
		t.Error("stale-only tick should still be acceptable")
	}

	fresh := AssessTick(models.Tick{Symbol: testKey, TS: now.Add(-4 * time.Second), LTP: 100}, nil, now)
	if fresh.IsStale {
		t.Error("4s-old tick should not be stale")
	}
}

func TestAssessTickFeedGap(t *testing.T) {
	now := time.Now()
	prev := models.Tick{Symbol: testKey, TS: now.Add(-2 * time.Minute), LTP: 100}
	tick := models.Tick{Symbol: testKey, TS: now, LTP: 100.2}

	q := AssessTick(tick, &prev, now)
	if !q.HasGaps {
		t.Error("2-minute gap should be flagged")
	}
}
