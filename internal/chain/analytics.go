// Package chain derives option chain analytics: max pain, put/call
// ratios, IV skew, gamma exposure, and delta-neutral levels for a
// single (underlying, expiry) pair.
package chain

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/pkg/models"
)

// analyticsCacheTTL bounds how often a chain is re-derived.
const analyticsCacheTTL = 30 * time.Second

// topOICount is the number of strikes reported in TopOiIncreases.
const topOICount = 5

// ════════════════════════════════════════════════════════════════════
// Service
// ════════════════════════════════════════════════════════════════════

// Service fetches chains from the gateway and serves cached analytics.
type Service struct {
	gw  broker.Gateway
	kv  *infra.KV
	log *logrus.Entry

	now func() time.Time
}

// New creates the chain analytics service.
func New(gw broker.Gateway, kv *infra.KV, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		gw:  gw,
		kv:  kv,
		log: log.WithField("component", "chain"),
		now: time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Analytics returns the derived analytics for an (underlying, expiry),
// recomputing at most every 30 seconds.
func (s *Service) Analytics(ctx context.Context, underlyingKey, expiry string) (*models.OptionChainAnalytics, error) {
	cacheKey := fmt.Sprintf("analytics:%s:%s", underlyingKey, expiry)
	var cached models.OptionChainAnalytics
	if s.kv.GetJSON(cacheKey, &cached) {
		return &cached, nil
	}

	oc, err := s.gw.GetOptionChain(ctx, underlyingKey, expiry)
	if err != nil {
		return nil, err
	}
	analytics, err := Analyze(oc, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.kv.PutJSON(cacheKey, analytics, analyticsCacheTTL); err != nil {
		s.log.WithError(err).Warn("cache analytics")
	}
	return analytics, nil
}

// ════════════════════════════════════════════════════════════════════
// Derivations
// ════════════════════════════════════════════════════════════════════

// Analyze derives the full analytics snapshot from a chain.
func Analyze(oc *models.OptionChain, now time.Time) (*models.OptionChainAnalytics, error) {
	if oc == nil || len(oc.Contracts) == 0 {
		return nil, errs.New(errs.NotFound, "empty option chain")
	}

	greeks := summarizeGreeks(oc.Contracts)
	a := &models.OptionChainAnalytics{
		UnderlyingKey:     oc.UnderlyingKey,
		Expiry:            oc.Expiry,
		CalculatedAt:      now,
		MaxPain:           ComputeMaxPain(oc.Contracts),
		OiPcr:             ComputeOIPCR(oc.Contracts),
		VolumePcr:         ComputeVolumePCR(oc.Contracts),
		GammaExposure:     computeGammaExposure(oc.Contracts),
		DeltaNeutralLevel: computeDeltaNeutral(greeks),
		IVSkew:            computeIVSkew(greeks),
		TopOiIncreases:    topOIStrikes(oc.Contracts, topOICount),
		GreeksSummary:     greeks,
		LiquidityMetrics:  summarizeLiquidity(oc.Contracts),
	}

	atm := findATMStrike(oc.Contracts, oc.SpotPrice)
	a.VolatilityMetrics = summarizeVolatility(oc.Contracts, atm)

	return a, nil
}

// ComputeMaxPain returns the strike minimizing total option buyers'
// intrinsic value at expiry.
func ComputeMaxPain(contracts []models.OptionContract) float64 {
	if len(contracts) == 0 {
		return 0
	}

	strikeSet := map[float64]bool{}
	ceOI := map[float64]int64{}
	peOI := map[float64]int64{}
	for _, c := range contracts {
		strikeSet[c.StrikePrice] = true
		if c.OptionType == models.CE {
			ceOI[c.StrikePrice] += c.OI
		} else {
			peOI[c.StrikePrice] += c.OI
		}
	}

	strikes := make([]float64, 0, len(strikeSet))
	for s := range strikeSet {
		strikes = append(strikes, s)
	}
	sort.Float64s(strikes)

	minPain := math.MaxFloat64
	maxPainStrike := 0.0
	for _, settle := range strikes {
		totalPain := 0.0
		for _, s := range strikes {
			// Calls ITM below the settlement strike.
			if s < settle && ceOI[s] > 0 {
				totalPain += (settle - s) * float64(ceOI[s])
			}
			// Puts ITM above it.
			if s > settle && peOI[s] > 0 {
				totalPain += (s - settle) * float64(peOI[s])
			}
		}
		if totalPain < minPain {
			minPain = totalPain
			maxPainStrike = settle
		}
	}
	return maxPainStrike
}

// ComputeOIPCR is total put OI over total call OI. Zero call OI reads
// as 0.
func ComputeOIPCR(contracts []models.OptionContract) float64 {
	var putOI, callOI int64
	for _, c := range contracts {
		if c.OptionType == models.PE {
			putOI += c.OI
		} else {
			callOI += c.OI
		}
	}
	if callOI == 0 {
		return 0
	}
	return float64(putOI) / float64(callOI)
}

// ComputeVolumePCR is total put volume over total call volume.
func ComputeVolumePCR(contracts []models.OptionContract) float64 {
	var putVol, callVol int64
	for _, c := range contracts {
		if c.OptionType == models.PE {
			putVol += c.Volume
		} else {
			callVol += c.Volume
		}
	}
	if callVol == 0 {
		return 0
	}
	return float64(putVol) / float64(callVol)
}

// computeIVSkew is the mean put IV minus the mean call IV across the
// chain. Positive skew means downside protection is bid.
func computeIVSkew(g models.GreeksSummary) float64 {
	if g.AvgCallIV <= 0 || g.AvgPutIV <= 0 {
		return 0
	}
	return g.AvgPutIV - g.AvgCallIV
}

// computeGammaExposure sums gamma·OI with calls positive and puts
// negative, the dealer-short convention.
func computeGammaExposure(contracts []models.OptionContract) float64 {
	var gex float64
	for _, c := range contracts {
		exposure := c.Greeks.Gamma * float64(c.OI)
		if c.OptionType == models.PE {
			exposure = -exposure
		}
		gex += exposure
	}
	return gex
}

// computeDeltaNeutral is the chain's net delta positioning:
// Σ(delta·OI) on calls minus Σ(delta·OI) on puts.
func computeDeltaNeutral(g models.GreeksSummary) float64 {
	return g.CallDeltaOI - g.PutDeltaOI
}

// topOIStrikes returns the n contracts carrying the largest absolute
// current OI.
func topOIStrikes(contracts []models.OptionContract, n int) []models.StrikeOI {
	entries := make([]models.StrikeOI, 0, len(contracts))
	for _, c := range contracts {
		if c.OI <= 0 {
			continue
		}
		entries = append(entries, models.StrikeOI{
			Strike:     c.StrikePrice,
			OptionType: c.OptionType,
			OI:         c.OI,
			OIChange:   c.OIChange,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OI > entries[j].OI })
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// summarizeGreeks aggregates chain-wide greek exposure per side.
func summarizeGreeks(contracts []models.OptionContract) models.GreeksSummary {
	var g models.GreeksSummary
	var ceIVSum, peIVSum float64
	var ceN, peN int
	for _, c := range contracts {
		oi := float64(c.OI)
		if c.OptionType == models.CE {
			g.CallDeltaOI += c.Greeks.Delta * oi
			g.CallGammaOI += c.Greeks.Gamma * oi
			if c.IV > 0 {
				ceIVSum += c.IV
				ceN++
			}
		} else {
			g.PutDeltaOI += c.Greeks.Delta * oi
			g.PutGammaOI += c.Greeks.Gamma * oi
			if c.IV > 0 {
				peIVSum += c.IV
				peN++
			}
		}
	}
	if ceN > 0 {
		g.AvgCallIV = ceIVSum / float64(ceN)
	}
	if peN > 0 {
		g.AvgPutIV = peIVSum / float64(peN)
	}
	return g
}

// summarizeVolatility captures the IV surface around the ATM strike.
func summarizeVolatility(contracts []models.OptionContract, atmStrike float64) models.VolatilityMetrics {
	m := models.VolatilityMetrics{ATMStrike: atmStrike}
	var atmSum float64
	var atmN int
	for _, c := range contracts {
		if c.IV <= 0 {
			continue
		}
		if m.MinIV == 0 || c.IV < m.MinIV {
			m.MinIV = c.IV
		}
		if c.IV > m.MaxIV {
			m.MaxIV = c.IV
		}
		if c.StrikePrice == atmStrike {
			atmSum += c.IV
			atmN++
		}
	}
	if atmN > 0 {
		m.ATMIV = atmSum / float64(atmN)
	}
	return m
}

// summarizeLiquidity totals volume and OI and averages quoted spreads.
func summarizeLiquidity(contracts []models.OptionContract) models.LiquidityMetrics {
	var m models.LiquidityMetrics
	var spreadSum float64
	for _, c := range contracts {
		m.TotalVolume += c.Volume
		m.TotalOI += c.OI
		if c.BidPrice > 0 && c.AskPrice > c.BidPrice {
			mid := (c.BidPrice + c.AskPrice) / 2
			spreadSum += (c.AskPrice - c.BidPrice) / mid * 100
			m.QuotedContracts++
		}
	}
	if m.QuotedContracts > 0 {
		m.AvgSpreadPct = spreadSum / float64(m.QuotedContracts)
	}
	return m
}

// findATMStrike is the strike closest to spot.
func findATMStrike(contracts []models.OptionContract, spot float64) float64 {
	if len(contracts) == 0 || spot <= 0 {
		return 0
	}
	closest := contracts[0].StrikePrice
	minDiff := math.Abs(closest - spot)
	for _, c := range contracts {
		if diff := math.Abs(c.StrikePrice - spot); diff < minDiff {
			minDiff = diff
			closest = c.StrikePrice
		}
	}
	return closest
}
