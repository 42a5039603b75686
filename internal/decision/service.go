// Package decision turns the per-cycle market picture (regime,
// sentiment, momentum, chain signals) into actionable advices.
package decision

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
)

// Scoring constants. The composite score lives in [-1, +1]; readings
// inside the deadband produce no advice.
const (
	defaultDeadband  = 0.15
	defaultTTLMin    = 10
	atrStopMult      = 1.0
	atrTargetMult    = 2.0
	atrPeriod        = 14
	volSpikePenalty  = 10.0
	signalAgreeBonus = 5.0
)

// MarketReader is the slice of the market data service the decision
// service consumes.
type MarketReader interface {
	InstrumentKey() string
	RegimeOn(timeframeMin int) (models.Regime, float64, error)
	MomentumOn(timeframeMin int) (float64, error)
	ATRPct(timeframeMin, period int) (float64, error)
	IsVolatilitySpikeNow() bool
	GetLTPSmart(ctx context.Context, instrumentKey string) (float64, error)
}

// SignalSource produces the latest template signal for the given spot,
// if any setup is currently live.
type SignalSource interface {
	Latest(ctx context.Context, spot float64, now time.Time) (*models.TradingSignal, bool)
}

// Config holds the decision parameters.
type Config struct {
	AdviceTTL           time.Duration
	Deadband            float64
	Qty                 int
	MinAccuracyForBoost float64
	Weights             models.StrategyWeights
}

// Service scores each cycle and emits advices through the store.
type Service struct {
	store   *storage.Store
	market  MarketReader
	signals SignalSource
	kv      *infra.KV
	log     *logrus.Entry
	cfg     Config

	mu          sync.Mutex
	lastScore   float64
	lastEvalAt  time.Time
	emitted     int
	suppressed  int
	riskSkipped int
	deadbanded  int

	now func() time.Time
}

// New creates the decision service. A nil signal source disables the
// template leg; SL/TP then always derive from ATR.
func New(store *storage.Store, market MarketReader, sigs SignalSource, kv *infra.KV, log *logrus.Logger, cfg Config) *Service {
	if log == nil {
		log = logrus.New()
	}
	if cfg.Deadband <= 0 {
		cfg.Deadband = defaultDeadband
	}
	if cfg.AdviceTTL <= 0 {
		cfg.AdviceTTL = defaultTTLMin * time.Minute
	}
	if cfg.Weights == (models.StrategyWeights{}) {
		cfg.Weights = models.StrategyWeights{Sentiment: 0.4, Regime: 0.35, Momentum: 0.25}
	}
	return &Service{
		store:   store,
		market:  market,
		signals: sigs,
		kv:      kv,
		log:     log.WithField("component", "decision"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ════════════════════════════════════════════════════════════════════
// Per-cycle evaluation
// ════════════════════════════════════════════════════════════════════

// Evaluate scores the current cycle and emits at most one advice.
// Returns (nil, nil) when the reading sits inside the deadband, risk
// headroom is exhausted, or an open advice already covers the
// direction.
func (s *Service) Evaluate(ctx context.Context) (*models.Advice, error) {
	now := s.now()
	w := s.ActiveWeights()

	sentimentNorm := 0.0
	if snap, ok := s.store.LatestSentiment(); ok {
		sentimentNorm = (snap.Score - 50) / 50
	}

	regimeNorm := 0.0
	if regime, _, err := s.market.RegimeOn(5); err == nil {
		switch regime {
		case models.RegimeBullish:
			regimeNorm = 1
		case models.RegimeBearish:
			regimeNorm = -1
		}
	}

	momentumNorm := 0.0
	if z5, err := s.market.MomentumOn(5); err == nil {
		momentumNorm = clamp(z5/2, -1, 1)
	}

	score := w.Sentiment*sentimentNorm + w.Regime*regimeNorm + w.Momentum*momentumNorm

	s.mu.Lock()
	s.lastScore = score
	s.lastEvalAt = now
	s.mu.Unlock()

	if math.Abs(score) < s.cfg.Deadband {
		s.bump(&s.deadbanded)
		return nil, nil
	}

	if risk, ok := s.store.LatestRiskSnapshot(); ok {
		if !risk.RiskHeadroomOk || risk.KillSwitchOpenNew {
			s.bump(&s.riskSkipped)
			s.log.WithField("score", score).Debug("advice suppressed by risk posture")
			return nil, nil
		}
	}

	txn := models.Buy
	if score < 0 {
		txn = models.Sell
	}

	key := s.market.InstrumentKey()
	if s.store.HasOpenAdvice(key, txn) {
		s.bump(&s.suppressed)
		return nil, nil
	}

	spot, err := s.market.GetLTPSmart(ctx, key)
	if err != nil {
		return nil, err
	}

	confidence := clamp(math.Abs(score)*100, 0, 100)
	advice := &models.Advice{
		ID:              uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
		Symbol:          key,
		InstrumentToken: key,
		OrderType:       models.Market,
		TxnType:         txn,
		Qty:             s.cfg.Qty,
		Product:         models.MIS,
		Validity:        models.Day,
		Status:          models.AdvicePending,
		RiskCategory:    riskCategoryFor(confidence),
		ExecutionContext: models.ContextAuto,
		ExpiresAt:       now.Add(s.cfg.AdviceTTL),
		Strategy:        "composite",
		Reason: fmt.Sprintf("score %.3f (sent %.2f·%.2f, regime %.2f·%.2f, mom %.2f·%.2f)",
			score, w.Sentiment, sentimentNorm, w.Regime, regimeNorm, w.Momentum, momentumNorm),
	}

	// SL/TP come from the originating template signal when one is live
	// and agrees with the composite direction; otherwise fall back to an
	// ATR band around spot.
	var sig *models.TradingSignal
	if s.signals != nil {
		if cand, ok := s.signals.Latest(ctx, spot, now); ok && cand.Action == models.SignalAction(txn) {
			sig = cand
		}
	}
	if sig != nil {
		advice.StopLoss = sig.StopLoss
		advice.TakeProfit = sig.TakeProfit
		advice.Strategy = sig.Kind
		advice.Reason = advice.Reason + "; " + sig.Reason
	} else {
		advice.StopLoss, advice.TakeProfit = s.atrBand(spot, txn)
	}

	advice.PriorityScore = s.priority(confidence, sig != nil)

	if err := s.store.SaveAdviceAndEnqueue(advice, models.TopicAdvice, advice.Symbol); err != nil {
		return nil, err
	}
	s.bump(&s.emitted)
	s.log.WithFields(logrus.Fields{
		"advice_id": advice.ID,
		"txn":       txn,
		"score":     score,
		"priority":  advice.PriorityScore,
	}).Info("advice emitted")
	return advice, nil
}

// priority = 50 + 0.4·confidence + bonus, clamped to [0, 100]. A live
// agreeing template signal adds a structure bonus; a volatility spike
// subtracts, deprioritizing entries into an expanding market.
func (s *Service) priority(confidence float64, signalAgrees bool) float64 {
	p := 50 + 0.4*confidence
	if signalAgrees {
		p += signalAgreeBonus
	}
	if s.market.IsVolatilitySpikeNow() {
		p -= volSpikePenalty
	}
	return clamp(p, 0, 100)
}

// atrBand derives a 1×ATR stop and 2×ATR target around spot.
func (s *Service) atrBand(spot float64, txn models.TxnType) (sl, tp float64) {
	atrPct, err := s.market.ATRPct(5, atrPeriod)
	if err != nil || atrPct <= 0 {
		atrPct = 0.5 // conservative default band when ATR is unavailable
	}
	atr := spot * atrPct / 100
	if txn == models.Buy {
		return spot - atrStopMult*atr, spot + atrTargetMult*atr
	}
	return spot + atrStopMult*atr, spot - atrTargetMult*atr
}

func riskCategoryFor(confidence float64) models.RiskCategory {
	switch {
	case confidence >= 70:
		return models.RiskLow
	case confidence >= 40:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

func (s *Service) bump(counter *int) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ════════════════════════════════════════════════════════════════════
// Quality card
// ════════════════════════════════════════════════════════════════════

// QualityCard summarizes decision behavior for the ops surface.
type QualityCard struct {
	AsOf          time.Time              `json:"as_of"`
	LastScore     float64                `json:"last_score"`
	LastEvalAt    time.Time              `json:"last_eval_at"`
	Weights       models.StrategyWeights `json:"weights"`
	Deadband      float64                `json:"deadband"`
	Emitted       int                    `json:"emitted"`
	Deadbanded    int                    `json:"deadbanded"`
	Suppressed    int                    `json:"suppressed_duplicates"`
	RiskSkipped   int                    `json:"risk_skipped"`
	AdviceStats   storage.AdviceStats    `json:"advice_stats"`
	AccuracyToday float64                `json:"accuracy_today"`
}

// Card returns the current decision-quality card.
func (s *Service) Card() QualityCard {
	stats := s.store.AdviceStatistics()
	s.mu.Lock()
	defer s.mu.Unlock()
	return QualityCard{
		AsOf:          s.now(),
		LastScore:     s.lastScore,
		LastEvalAt:    s.lastEvalAt,
		Weights:       s.ActiveWeights(),
		Deadband:      s.cfg.Deadband,
		Emitted:       s.emitted,
		Deadbanded:    s.deadbanded,
		Suppressed:    s.suppressed,
		RiskSkipped:   s.riskSkipped,
		AdviceStats:   stats,
		AccuracyToday: accuracyFrom(stats),
	}
}

// accuracyFrom reports executed / (executed + failed); no resolved
// advices reads as zero.
func accuracyFrom(st storage.AdviceStats) float64 {
	resolved := st.Executed + st.Failed
	if resolved == 0 {
		return 0
	}
	return float64(st.Executed) / float64(resolved)
}
