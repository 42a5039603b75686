// Package marketdata computes price, momentum, regime, and volatility
// state for the traded instrument from stored candles and live broker
// quotes. All analytics are read-side derivations; candles and ticks in
// the store remain the source of truth.
package marketdata

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Constants
// ════════════════════════════════════════════════════════════════════

const (
	// momentumMinCloses is the minimum closes required for a z-score.
	momentumMinCloses = 10
	// momentumMaxWindow caps the z-score lookback.
	momentumMaxWindow = 60
	// regimeThreshold splits bullish/bearish from neutral.
	regimeThreshold = 0.5

	ltpCacheTTL     = 2 * time.Second
	atrCacheTTL     = 15 * time.Second
	vixCacheTTL     = 60 * time.Second
	tickFreshWindow = 3 * time.Second

	// atrJumpGapBars separates the recent ATR window from its baseline.
	atrJumpGapBars = 5
	// atrJumpPeriod is the ATR period on each side of the gap.
	atrJumpPeriod = 20
)

// ════════════════════════════════════════════════════════════════════
// Service
// ════════════════════════════════════════════════════════════════════

// RegimeState is the tracked regime for one timeframe.
type RegimeState struct {
	Regime     models.Regime `json:"regime"`
	Z          float64       `json:"z"`
	Confidence float64       `json:"confidence"`
	FlippedAt  time.Time     `json:"flipped_at,omitempty"`
}

// Service provides market data analytics for a single instrument.
type Service struct {
	store *storage.Store
	gw    broker.Gateway
	kv    *infra.KV
	log   *logrus.Entry

	instrumentKey string
	// volSpikeJumpPct is the ATR jump threshold for a volatility spike.
	volSpikeJumpPct float64

	mu      sync.Mutex
	regimes map[int]RegimeState // timeframe minutes → state

	now func() time.Time
}

// New creates the market data service.
func New(store *storage.Store, gw broker.Gateway, kv *infra.KV, log *logrus.Logger, instrumentKey string, volSpikeJumpPct float64) *Service {
	if log == nil {
		log = logrus.New()
	}
	if volSpikeJumpPct <= 0 {
		volSpikeJumpPct = 50
	}
	return &Service{
		store:           store,
		gw:              gw,
		kv:              kv,
		log:             log.WithField("component", "marketdata"),
		instrumentKey:   instrumentKey,
		volSpikeJumpPct: volSpikeJumpPct,
		regimes:         make(map[int]RegimeState),
		now:             time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// InstrumentKey returns the instrument this service tracks.
func (s *Service) InstrumentKey() string { return s.instrumentKey }

// ════════════════════════════════════════════════════════════════════
// Price
// ════════════════════════════════════════════════════════════════════

// GetLTP returns the last traded price, cached for 2 seconds. The
// fetched quote is scored against the last stored tick; a POOR reading
// raises a DATA_QUALITY_ISSUE alert but the price is still returned.
func (s *Service) GetLTP(ctx context.Context, instrumentKey string) (float64, error) {
	cacheKey := "ltp:" + instrumentKey
	var cached float64
	if s.kv.GetJSON(cacheKey, &cached) {
		return cached, nil
	}

	quote, err := s.gw.GetLTPQuote(ctx, instrumentKey)
	if err != nil {
		return 0, err
	}
	if quote.LTP <= 0 {
		return 0, errs.Newf(errs.DataQuality, "non-positive LTP %.2f for %s", quote.LTP, instrumentKey)
	}

	tick := models.Tick{Symbol: instrumentKey, TS: quote.TS, LTP: quote.LTP}
	var prev *models.Tick
	if p, ok := s.store.LatestTick(instrumentKey); ok {
		prev = &p
	}
	if q := AssessTick(tick, prev, s.now()); q.Score < poorQualityBelow {
		s.emitAlert(models.Alert{
			Type:          models.AlertDataQualityIssue,
			Severity:      models.SeverityMedium,
			InstrumentKey: instrumentKey,
			Message:       fmt.Sprintf("poor tick quality %.2f (%s)", q.Score, strings.Join(q.Anomalies, ",")),
			TS:            s.now(),
		})
	}

	_ = s.kv.PutJSON(cacheKey, quote.LTP, ltpCacheTTL)
	return quote.LTP, nil
}

// GetLTPSmart prefers a stored tick no older than 3 seconds and falls
// back to the broker quote.
func (s *Service) GetLTPSmart(ctx context.Context, instrumentKey string) (float64, error) {
	if tick, ok := s.store.LatestTick(instrumentKey); ok {
		if s.now().Sub(tick.TS) <= tickFreshWindow && tick.LTP > 0 {
			return tick.LTP, nil
		}
	}
	return s.GetLTP(ctx, instrumentKey)
}

// ════════════════════════════════════════════════════════════════════
// Momentum & Regime
// ════════════════════════════════════════════════════════════════════

// MomentumOn returns the momentum z-score of the last close against the
// rolling mean over the given timeframe in minutes. Requires at least
// 10 closes; the window caps at 60. Rounded to 4 decimals.
func (s *Service) MomentumOn(timeframeMin int) (float64, error) {
	closes := s.timeframeCloses(timeframeMin, momentumMaxWindow)
	if len(closes) < momentumMinCloses {
		return 0, errs.Newf(errs.NotFound,
			"insufficient closes for %dm momentum: have %d, need %d",
			timeframeMin, len(closes), momentumMinCloses)
	}
	return zScore(closes), nil
}

// RegimeOn classifies the timeframe's momentum into a regime.
func (s *Service) RegimeOn(timeframeMin int) (models.Regime, float64, error) {
	z, err := s.MomentumOn(timeframeMin)
	if err != nil {
		return models.RegimeNeutral, 0, err
	}
	return regimeForZ(z), z, nil
}

// RegimeNow returns the tracked regime state for a timeframe without
// recomputation.
func (s *Service) RegimeNow(timeframeMin int) (RegimeState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.regimes[timeframeMin]
	return st, ok
}

// RefreshRegime recomputes the regime for a timeframe and records a
// flip when the classification changed. On a flip a REGIME_CHANGE
// signal is persisted and queued for publication.
func (s *Service) RefreshRegime(timeframeMin int) (RegimeState, error) {
	regime, z, err := s.RegimeOn(timeframeMin)
	if err != nil {
		return RegimeState{}, err
	}

	now := s.now()
	state := RegimeState{
		Regime:     regime,
		Z:          z,
		Confidence: flipConfidence(z),
	}

	s.mu.Lock()
	prev, had := s.regimes[timeframeMin]
	flipped := had && prev.Regime != regime
	if flipped {
		state.FlippedAt = now
	} else if had {
		state.FlippedAt = prev.FlippedAt
	}
	s.regimes[timeframeMin] = state
	s.mu.Unlock()

	if flipped {
		s.log.WithFields(logrus.Fields{
			"timeframe_min": timeframeMin,
			"from":          prev.Regime,
			"to":            regime,
			"z":             z,
			"confidence":    state.Confidence,
		}).Info("regime flip")

		s.emitAlert(models.Alert{
			Type:          models.AlertPriceAnomaly,
			Severity:      models.SeverityMedium,
			InstrumentKey: s.instrumentKey,
			Message:       fmt.Sprintf("%dm regime flip %s -> %s (z=%.4f)", timeframeMin, prev.Regime, regime, z),
			TS:            now,
		})

		sig := models.TradingSignal{
			ID:            fmt.Sprintf("regime-%d-%d", timeframeMin, now.UnixMilli()),
			Kind:          "REGIME_CHANGE",
			InstrumentKey: s.instrumentKey,
			Action:        actionForRegime(regime),
			Strength:      math.Min(math.Abs(z)*2, 10),
			Confidence:    state.Confidence,
			Reason:        fmt.Sprintf("%dm regime %s → %s (z=%.4f)", timeframeMin, prev.Regime, regime, z),
			CreatedAt:     now,
		}
		s.store.AppendSignal(sig)
		if err := s.store.EnqueueOutbox(models.TopicSignals, s.instrumentKey, sig); err != nil {
			s.log.WithError(err).Warn("enqueue regime signal")
		}
	}

	return state, nil
}

// LastRegimeFlip returns the most recent flip time across timeframes.
func (s *Service) LastRegimeFlip() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	for _, st := range s.regimes {
		if st.FlippedAt.After(last) {
			last = st.FlippedAt
		}
	}
	return last
}

// ════════════════════════════════════════════════════════════════════
// Volatility
// ════════════════════════════════════════════════════════════════════

// ATRPct returns the mean true range over period bars of the timeframe
// as a percentage of the last close. Rounded to 2 decimals and cached
// for 15 seconds.
func (s *Service) ATRPct(timeframeMin, period int) (float64, error) {
	cacheKey := fmt.Sprintf("atr:%s:%d:%d", s.instrumentKey, timeframeMin, period)
	var cached float64
	if s.kv.GetJSON(cacheKey, &cached) {
		return cached, nil
	}

	bars := s.timeframeBars(timeframeMin, period+1)
	if len(bars) < period+1 {
		return 0, errs.Newf(errs.NotFound,
			"insufficient bars for %dm ATR(%d): have %d", timeframeMin, period, len(bars))
	}

	atr := meanTrueRange(bars[len(bars)-period-1:])
	lastClose := bars[len(bars)-1].Close
	if lastClose <= 0 {
		return 0, errs.New(errs.DataQuality, "non-positive close for ATR")
	}

	pct := round2(atr / lastClose * 100)
	_ = s.kv.PutJSON(cacheKey, pct, atrCacheTTL)
	return pct, nil
}

// ATRJump5mPct compares ATR(20) over the last 20 closed 5-minute bars
// against ATR(20) over the 20 bars preceding a 5-bar gap. Returns the
// jump as a percentage, cached for 15 seconds; positive values mean
// expanding ranges.
func (s *Service) ATRJump5mPct() (float64, error) {
	cacheKey := "atrjump:" + s.instrumentKey
	var cached float64
	if s.kv.GetJSON(cacheKey, &cached) {
		return cached, nil
	}

	// baseline window + gap + recent window, plus one seed bar for TR.
	need := atrJumpPeriod*2 + atrJumpGapBars + 1
	bars := s.timeframeBars(5, need)
	if len(bars) < need {
		return 0, errs.Newf(errs.NotFound,
			"insufficient 5m bars for ATR jump: have %d, need %d", len(bars), need)
	}

	recent := meanTrueRange(bars[len(bars)-atrJumpPeriod-1:])
	baseEnd := len(bars) - atrJumpPeriod - atrJumpGapBars
	baseline := meanTrueRange(bars[baseEnd-atrJumpPeriod-1 : baseEnd])
	if baseline <= 0 {
		return 0, errs.New(errs.DataQuality, "zero baseline ATR")
	}

	jump := round2((recent/baseline - 1) * 100)
	_ = s.kv.PutJSON(cacheKey, jump, atrCacheTTL)
	return jump, nil
}

// IsVolatilitySpikeNow reports whether the 5m ATR jump exceeds the
// configured spike threshold. A spike raises a HIGH-severity
// PRICE_ANOMALY alert; the verdict is cached for 15 seconds. Data
// shortfalls read as no spike.
func (s *Service) IsVolatilitySpikeNow() bool {
	cacheKey := "volspike:" + s.instrumentKey
	var cached bool
	if s.kv.GetJSON(cacheKey, &cached) {
		return cached
	}

	jump, err := s.ATRJump5mPct()
	if err != nil {
		return false
	}
	spike := jump >= s.volSpikeJumpPct
	_ = s.kv.PutJSON(cacheKey, spike, atrCacheTTL)

	if spike {
		s.emitAlert(models.Alert{
			Type:          models.AlertPriceAnomaly,
			Severity:      models.SeverityHigh,
			InstrumentKey: s.instrumentKey,
			Message:       fmt.Sprintf("5m ATR jump %.2f%% >= %.2f%% spike threshold", jump, s.volSpikeJumpPct),
			TS:            s.now(),
		})
	}
	return spike
}

// VixProxyPct is an annualized volatility proxy from 5-minute log
// returns: σ·√75·√252·100. Cached for 60 seconds.
func (s *Service) VixProxyPct() (float64, error) {
	cacheKey := "vix:" + s.instrumentKey
	var cached float64
	if s.kv.GetJSON(cacheKey, &cached) {
		return cached, nil
	}

	closes := s.timeframeCloses(5, momentumMaxWindow)
	if len(closes) < momentumMinCloses {
		return 0, errs.Newf(errs.NotFound,
			"insufficient 5m closes for VIX proxy: have %d", len(closes))
	}

	logReturns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(closes[i]/closes[i-1]))
	}
	if len(logReturns) < 2 {
		return 0, errs.New(errs.DataQuality, "too few usable log returns")
	}

	sigma := stddev(logReturns)
	// 75 five-minute bars per 6.25h session, 252 sessions per year.
	proxy := round2(sigma * math.Sqrt(75) * math.Sqrt(252) * 100)
	_ = s.kv.PutJSON(cacheKey, proxy, vixCacheTTL)
	return proxy, nil
}

// ════════════════════════════════════════════════════════════════════
// Ingestion & Broadcast
// ════════════════════════════════════════════════════════════════════

// IngestLatest1mCandle fetches intraday 1-minute candles and appends
// the penultimate bar — the most recent CLOSED one. Already-ingested
// bars are skipped.
func (s *Service) IngestLatest1mCandle(ctx context.Context) error {
	candles, err := s.gw.GetIntradayCandles(ctx, s.instrumentKey, "1minute")
	if err != nil {
		return err
	}
	if len(candles) < 2 {
		return errs.New(errs.NotFound, "no closed 1m candle available")
	}

	// The last bar is still forming; take the one before it.
	closed := candles[len(candles)-2]
	closed.Symbol = s.instrumentKey

	if last, ok := s.store.LastCandleTime(s.instrumentKey); ok && !closed.OpenTime.After(last) {
		return nil // already ingested
	}

	if !closed.SaneOHLC() {
		s.log.WithField("open_time", closed.OpenTime).Warn("ingesting candle with insane OHLC")
	}
	return s.store.AppendCandle(closed)
}

// BroadcastSignalsTick assembles the multi-timeframe envelope and
// queues it on the signals channel. Missing timeframes degrade health
// rather than failing the broadcast.
func (s *Service) BroadcastSignalsTick() (models.SignalsEnvelope, error) {
	env := models.SignalsEnvelope{
		AsOf:          s.now(),
		InstrumentKey: s.instrumentKey,
		SystemHealth:  "ok",
	}

	z5, err5 := s.MomentumOn(5)
	z15, err15 := s.MomentumOn(15)
	z60, err60 := s.MomentumOn(60)
	env.Z5, env.Z15, env.Z60 = z5, z15, z60

	if st, err := s.RefreshRegime(5); err == nil {
		env.Regime5 = st.Regime
	} else {
		env.Regime5 = models.RegimeNeutral
	}
	if st, err := s.RefreshRegime(60); err == nil {
		env.Regime60 = st.Regime
	} else {
		env.Regime60 = models.RegimeNeutral
	}

	if err5 != nil || err15 != nil || err60 != nil {
		env.SystemHealth = "degraded"
	}
	if last, ok := s.store.LastCandleTime(s.instrumentKey); !ok || s.now().Sub(last) > 3*time.Minute {
		env.SystemHealth = "degraded"
	}
	env.LastRegimeFlip = s.LastRegimeFlip()

	if err := s.store.EnqueueOutbox(models.TopicSignals, s.instrumentKey, env); err != nil {
		return env, err
	}
	return env, nil
}

// ════════════════════════════════════════════════════════════════════
// Internal Helpers
// ════════════════════════════════════════════════════════════════════

// emitAlert logs the alert and queues it on the alerts topic.
func (s *Service) emitAlert(a models.Alert) {
	s.log.WithFields(logrus.Fields{
		"type":     a.Type,
		"severity": a.Severity,
	}).Warn(a.Message)
	if err := s.store.EnqueueOutbox(models.TopicAlerts, a.InstrumentKey, a); err != nil {
		s.log.WithError(err).Warn("enqueue alert")
	}
}

// timeframeBars aggregates stored 1m candles into timeframe buckets and
// returns the last n complete-or-partial buckets, oldest first.
func (s *Service) timeframeBars(timeframeMin, n int) []models.Candle {
	if timeframeMin <= 0 {
		timeframeMin = 1
	}
	// Pull enough 1m bars to fill n buckets.
	raw := s.store.LatestCandles(s.instrumentKey, n*timeframeMin)
	if len(raw) == 0 {
		return nil
	}
	if timeframeMin == 1 {
		if len(raw) > n {
			raw = raw[len(raw)-n:]
		}
		return raw
	}

	bucket := time.Duration(timeframeMin) * time.Minute
	var out []models.Candle
	for _, c := range raw {
		slot := c.OpenTime.Truncate(bucket)
		if len(out) == 0 || !out[len(out)-1].OpenTime.Equal(slot) {
			out = append(out, models.Candle{
				Symbol: c.Symbol, OpenTime: slot,
				Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
			})
			continue
		}
		last := &out[len(out)-1]
		last.High = math.Max(last.High, c.High)
		last.Low = math.Min(last.Low, c.Low)
		last.Close = c.Close
		last.Volume += c.Volume
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// timeframeCloses returns up to maxN closes for the timeframe.
func (s *Service) timeframeCloses(timeframeMin, maxN int) []float64 {
	bars := s.timeframeBars(timeframeMin, maxN)
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// zScore computes (last − mean)/σ over the window, rounded to 4
// decimals. A degenerate σ reads as zero momentum.
func zScore(closes []float64) float64 {
	n := len(closes)
	if n > momentumMaxWindow {
		closes = closes[n-momentumMaxWindow:]
		n = momentumMaxWindow
	}

	var sum float64
	for _, c := range closes {
		sum += c
	}
	mean := sum / float64(n)

	var ss float64
	for _, c := range closes {
		d := c - mean
		ss += d * d
	}
	sigma := math.Sqrt(ss / float64(n))
	if sigma <= 1e-8 {
		return 0
	}
	return round4((closes[n-1] - mean) / sigma)
}

// regimeForZ maps a z-score onto a regime at the ±0.5 thresholds,
// boundaries inclusive.
func regimeForZ(z float64) models.Regime {
	switch {
	case z >= regimeThreshold:
		return models.RegimeBullish
	case z <= -regimeThreshold:
		return models.RegimeBearish
	default:
		return models.RegimeNeutral
	}
}

// flipConfidence maps |z| onto a confidence ladder.
func flipConfidence(z float64) float64 {
	abs := math.Abs(z)
	switch {
	case abs >= 2:
		return 0.95
	case abs >= 1.5:
		return 0.85
	case abs >= 1:
		return 0.70
	case abs >= 0.5:
		return 0.55
	default:
		return 0.30
	}
}

func actionForRegime(r models.Regime) models.SignalAction {
	switch r {
	case models.RegimeBullish:
		return models.ActionBuy
	case models.RegimeBearish:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

// meanTrueRange averages the TR of bars[1:] seeded by bars[0].Close.
func meanTrueRange(bars []models.Candle) float64 {
	if len(bars) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(bars); i++ {
		sum += bars[i].TrueRange(bars[i-1].Close)
	}
	return sum / float64(len(bars)-1)
}

func stddev(xs []float64) float64 {
	n := float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / n)
}

func round4(v float64) float64 {
	d, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return d
}

func round2(v float64) float64 {
	d, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return d
}
