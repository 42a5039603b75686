// Package signals holds the signal templates that turn option chain
// analytics into directional trading signals.
package signals

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/tradecore/pkg/models"
)

// Template evaluates one strategy against the latest chain analytics.
// Returns (nil, false) when the setup is absent.
type Template interface {
	// Name identifies the template in signal payloads.
	Name() string
	// Evaluate inspects the analytics at the given spot and emits a
	// signal when its setup triggers.
	Evaluate(a *models.OptionChainAnalytics, spot float64, now time.Time) (*models.TradingSignal, bool)
}

// ════════════════════════════════════════════════════════════════════
// PCR Template
// ════════════════════════════════════════════════════════════════════

// Put/call ratio thresholds. A market-wide put overhang reads
// contrarian-bullish; call overhang reads bearish. The extreme bands
// sit at threshold², where a single crowded metric triggers on its own.
const (
	oiBullishMax     = 0.80
	oiBearishMin     = 1.20
	volumeBullishMax = 0.75
	volumeBearishMin = 1.25

	pcrExtremeLow  = 0.64
	pcrExtremeHigh = 1.44
)

// Stop and target distances for PCR entries.
const (
	pcrStopPct   = 2.0
	pcrTargetPct = 3.0
)

// PCRTemplate signals when the OI and volume put/call ratios lean the
// same way, or when a single ratio reaches an extreme band.
type PCRTemplate struct {
	// Thresholds override the defaults when non-zero.
	OiBullishMax     float64
	OiBearishMin     float64
	VolumeBullishMax float64
	VolumeBearishMin float64
}

// NewPCRTemplate creates the template with default thresholds.
func NewPCRTemplate() *PCRTemplate {
	return &PCRTemplate{
		OiBullishMax:     oiBullishMax,
		OiBearishMin:     oiBearishMin,
		VolumeBullishMax: volumeBullishMax,
		VolumeBearishMin: volumeBearishMin,
	}
}

// Name returns "PCR".
func (t *PCRTemplate) Name() string { return "PCR" }

// Evaluate triggers when both ratios lean the same way or a single
// ratio is extreme. Direction is the majority across the two metrics;
// a bullish/bearish tie reads neutral and never signals. Threshold
// boundaries are inclusive: an OI PCR of exactly 0.80 votes bullish.
// Zero analytics (no chain data) never signal.
func (t *PCRTemplate) Evaluate(a *models.OptionChainAnalytics, spot float64, now time.Time) (*models.TradingSignal, bool) {
	if a == nil || a.OiPcr <= 0 || spot <= 0 {
		return nil, false
	}

	oiVote := pcrVote(a.OiPcr, t.OiBullishMax, t.OiBearishMin)
	volVote := 0
	if a.VolumePcr > 0 {
		volVote = pcrVote(a.VolumePcr, t.VolumeBullishMax, t.VolumeBearishMin)
	}
	bothAgree := oiVote != 0 && oiVote == volVote
	extreme := pcrExtreme(a.OiPcr) || (a.VolumePcr > 0 && pcrExtreme(a.VolumePcr))
	if !bothAgree && !extreme {
		return nil, false
	}
	dir := oiVote + volVote
	if dir == 0 {
		return nil, false
	}
	action := models.ActionBuy
	if dir < 0 {
		action = models.ActionSell
	}

	// Strength is the average of the two normalised threshold
	// distances scaled to [0,10]. Each distance is measured from the
	// metric's threshold relative to the gap between that threshold
	// and the neutral ratio 1.0, clamped to [0,1].
	var dOi, dVol float64
	if dir > 0 {
		dOi = normDistance(t.OiBullishMax-a.OiPcr, 1-t.OiBullishMax)
		if a.VolumePcr > 0 {
			dVol = normDistance(t.VolumeBullishMax-a.VolumePcr, 1-t.VolumeBullishMax)
		}
	} else {
		dOi = normDistance(a.OiPcr-t.OiBearishMin, t.OiBearishMin-1)
		if a.VolumePcr > 0 {
			dVol = normDistance(a.VolumePcr-t.VolumeBearishMin, t.VolumeBearishMin-1)
		}
	}
	strength := (dOi + dVol) / 2 * 10

	confidence := strength / 10
	if bothAgree {
		confidence *= 1.2
	}
	if confidence > 1 {
		confidence = 1
	}

	sig := &models.TradingSignal{
		ID:               uuid.NewString(),
		Kind:             t.Name(),
		Action:           action,
		Strength:         strength,
		Confidence:       confidence,
		RiskAdjustedSize: 0.5 + strength/10,
		EntryPrice:       spot,
		Reason: fmt.Sprintf("OI PCR %.2f, volume PCR %.2f (extreme=%v, both agree=%v)",
			a.OiPcr, a.VolumePcr, extreme, bothAgree),
		CreatedAt: now,
	}
	if action == models.ActionBuy {
		sig.StopLoss = spot * (1 - pcrStopPct/100)
		sig.TakeProfit = spot * (1 + pcrTargetPct/100)
	} else {
		sig.StopLoss = spot * (1 + pcrStopPct/100)
		sig.TakeProfit = spot * (1 - pcrTargetPct/100)
	}
	return sig, true
}

// pcrVote reads one ratio against its thresholds: +1 bullish,
// -1 bearish, 0 neutral. Boundaries are inclusive.
func pcrVote(value, bullishMax, bearishMin float64) int {
	switch {
	case value <= bullishMax:
		return 1
	case value >= bearishMin:
		return -1
	}
	return 0
}

func pcrExtreme(value float64) bool {
	return value <= pcrExtremeLow || value >= pcrExtremeHigh
}

// normDistance clamps dist/span to [0,1]; non-positive inputs read 0.
func normDistance(dist, span float64) float64 {
	if dist <= 0 || span <= 0 {
		return 0
	}
	if dist >= span {
		return 1
	}
	return dist / span
}
