// Package risk gates every order intent against the configured limits
// and keeps the daily risk posture.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
	"github.com/seenimoa/tradecore/pkg/utils"
)

// ordersMinKey is the rolling 60 s order-placement counter.
const ordersMinKey = "risk:orders:min"

// Broker circuit breaker tuning: five straight failures open the
// circuit for 30 s, one probe allowed half-open.
const (
	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = 30 * time.Second
)

// Service is the risk gate. All order write paths pass through
// CheckOrder before reaching the broker.
type Service struct {
	store    *storage.Store
	kv       *infra.KV
	log      *logrus.Entry
	baseline models.RiskConfig
	lotSize  int
	breaker  *gobreaker.CircuitBreaker

	mu                sync.Mutex
	killSwitchOpenNew bool
	circuit           models.CircuitState
	realizedPnl       float64
	lotsUsed          int
	restrikes         int
	lastSlAt          time.Time
	day               string
	positions         map[string]*position

	now func() time.Time
}

// position is one instrument's open book entry. Quantity is signed,
// buys positive.
type position struct {
	qty      int
	avgPrice float64
}

// New creates the risk service. The baseline config applies until an
// operator writes a RiskConfig row; the stored row always wins.
func New(store *storage.Store, kv *infra.KV, log *logrus.Logger, baseline models.RiskConfig, lotSize int) *Service {
	if log == nil {
		log = logrus.New()
	}
	if lotSize <= 0 {
		lotSize = 75
	}
	entry := log.WithField("component", "risk")
	s := &Service{
		store:     store,
		kv:        kv,
		log:       entry,
		baseline:  baseline,
		lotSize:   lotSize,
		positions: make(map[string]*position),
		now:       time.Now,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
				Warn("broker circuit state change")
		},
	})
	s.day = utils.FormatDateIST(s.now())
	return s
}

// SetClock overrides the service clock. The next posture read performs
// any day rollover the jump implies.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Config returns the active limits: the stored operator row when
// present, else the baseline.
func (s *Service) Config() models.RiskConfig {
	if row, ok := s.store.RiskConfigRow(); ok {
		return row
	}
	return s.baseline
}

// UpdateConfig persists new limits; they apply from the next check.
func (s *Service) UpdateConfig(cfg models.RiskConfig) {
	cfg.AsOf = s.now()
	s.store.SaveRiskConfig(cfg)
	s.log.WithFields(logrus.Fields{
		"enabled":        cfg.Enabled,
		"max_daily_loss": utils.FormatINRCompact(cfg.MaxDailyLoss),
		"lots_cap":       cfg.LotsCap,
	}).Info("risk config updated")
}

// ════════════════════════════════════════════════════════════════════
// Order gate
// ════════════════════════════════════════════════════════════════════

// CheckOrder runs the gate checks in order; the first failure wins and
// is recorded as a breached RiskEvent. A pass records a PASS event.
func (s *Service) CheckOrder(intent models.OrderIntent) error {
	now := s.now()
	cfg := s.Config()

	s.mu.Lock()
	s.rolloverLocked(now)
	killSwitch := s.killSwitchOpenNew
	tripped := s.circuit.Tripped
	realized := s.realizedPnl
	lotsUsed := s.lotsUsed
	s.mu.Unlock()

	lots := intent.Lots
	if lots == 0 && intent.Qty > 0 {
		lots = s.lotsFor(intent.Qty)
	}
	lossAbs := dailyLossAbs(realized)
	lossPct := dailyLossPct(lossAbs, cfg.MaxDailyLoss)
	budgetLeft := cfg.MaxDailyLoss - lossAbs
	if budgetLeft < 0 {
		budgetLeft = 0
	}

	fail := func(kind errs.Kind, reason string, value float64) error {
		s.store.AppendRiskEvent(models.RiskEvent{
			TS: now, Type: string(kind), Reason: reason,
			OrderRef: intent.Ref, Value: value, Breached: true,
		})
		s.log.WithFields(logrus.Fields{"kind": kind, "reason": reason, "ref": intent.Ref}).
			Warn("order intent blocked")
		return errs.New(kind, reason)
	}

	if !cfg.Enabled {
		return fail(errs.RiskDisabled, "risk engine disabled, no orders admitted", 0)
	}
	if killSwitch && intent.OpensNew {
		return fail(errs.KillSwitch, "kill switch blocks new-open intents", 0)
	}
	if s.breaker.State() == gobreaker.StateOpen || tripped {
		return fail(errs.CircuitLockout, "circuit breaker lockout", 0)
	}
	if lossPct >= 100 {
		s.TripCircuit("daily loss budget exhausted")
		return fail(errs.DailyLossBreach,
			fmt.Sprintf("daily loss %.0f of %.0f budget", lossAbs, cfg.MaxDailyLoss), lossPct)
	}
	if risked := intent.Notional() * cfg.PerOrderRiskPct / 100; risked > budgetLeft {
		return fail(errs.PerOrderRisk,
			fmt.Sprintf("order risks %.0f against %.0f budget left", risked, budgetLeft), risked)
	}
	if lotsUsed+lots > cfg.LotsCap {
		return fail(errs.LotsCap,
			fmt.Sprintf("%d lots held + %d requested exceeds cap %d", lotsUsed, lots, cfg.LotsCap),
			float64(lotsUsed+lots))
	}
	if count := s.ordersLastMinute(); count+1 > int64(cfg.OrdersPerMinCap) {
		return fail(errs.RateLimit,
			fmt.Sprintf("%d orders in the last minute, cap %d", count, cfg.OrdersPerMinCap),
			float64(count))
	}

	s.store.AppendRiskEvent(models.RiskEvent{
		TS: now, Type: "PASS", Reason: "all checks passed",
		OrderRef: intent.Ref, Value: intent.Notional(),
	})
	return nil
}

// NoteOrderPlaced bumps the rolling 60 s placement counter. The TTL is
// applied only when the window opens.
func (s *Service) NoteOrderPlaced() {
	s.kv.Incr(ordersMinKey, time.Minute)
}

func (s *Service) ordersLastMinute() int64 {
	v, ok := s.kv.Get(ordersMinKey)
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return n
}

// NoteBrokerResult feeds a broker call outcome to the circuit breaker.
// Consecutive failures open it, locking out new orders until the probe
// window.
func (s *Service) NoteBrokerResult(err error) {
	s.breaker.Execute(func() (any, error) { return nil, err })
}

// ════════════════════════════════════════════════════════════════════
// Fill feedback
// ════════════════════════════════════════════════════════════════════

// ApplyFill folds an executed fill into the position book. Opening
// quantity consumes lots; closing quantity releases them and realizes
// the round-trip PnL net of brokerage charges.
func (s *Service) ApplyFill(instrument string, txn models.TxnType, qty int, price float64, product models.Product) {
	if qty <= 0 || price <= 0 {
		return
	}
	signed := qty
	if txn == models.Sell {
		signed = -qty
	}

	var lotsDelta int
	var realized float64
	var closedQty int

	s.mu.Lock()
	pos := s.positions[instrument]
	if pos == nil {
		pos = &position{}
		s.positions[instrument] = pos
	}
	if pos.qty == 0 || (pos.qty > 0) == (signed > 0) {
		// Opening or adding: blend the average entry price.
		held := absInt(pos.qty)
		pos.avgPrice = (pos.avgPrice*float64(held) + price*float64(qty)) / float64(held+qty)
		pos.qty += signed
		lotsDelta = s.lotsFor(qty)
	} else {
		closed := qty
		if closed > absInt(pos.qty) {
			closed = absInt(pos.qty)
		}
		buyPrice, sellPrice := pos.avgPrice, price
		if pos.qty < 0 { // covering a short
			buyPrice, sellPrice = price, pos.avgPrice
		}
		charges := broker.CalculateBrokerage(buyPrice, sellPrice, closed, product)
		realized = charges.NetPnL
		closedQty = closed
		lotsDelta = -s.lotsFor(closed)
		if pos.qty > 0 {
			pos.qty -= closed
		} else {
			pos.qty += closed
		}
		if rem := qty - closed; rem > 0 {
			// The fill flips the position; the remainder opens anew.
			pos.qty = rem * sign(signed)
			pos.avgPrice = price
			lotsDelta += s.lotsFor(rem)
		}
		if pos.qty == 0 {
			delete(s.positions, instrument)
		}
	}
	s.mu.Unlock()

	if lotsDelta != 0 {
		s.AddLots(lotsDelta)
	}
	if closedQty > 0 {
		s.AddRealizedPnl(realized)
		s.log.WithFields(logrus.Fields{
			"instrument": instrument,
			"closed_qty": closedQty,
			"net_pnl":    realized,
		}).Info("realized pnl applied")
	}
}

// OpenPosition returns the signed held quantity for an instrument.
func (s *Service) OpenPosition(instrument string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos := s.positions[instrument]; pos != nil {
		return pos.qty
	}
	return 0
}

func (s *Service) lotsFor(qty int) int {
	return (qty + s.lotSize - 1) / s.lotSize
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}

// ════════════════════════════════════════════════════════════════════
// Posture
// ════════════════════════════════════════════════════════════════════

// AddRealizedPnl folds a realized fill PnL into today's total. Crossing
// the loss budget trips the daily circuit.
func (s *Service) AddRealizedPnl(delta float64) {
	cfg := s.Config()
	s.mu.Lock()
	s.rolloverLocked(s.now())
	s.realizedPnl += delta
	lossAbs := dailyLossAbs(s.realizedPnl)
	s.mu.Unlock()
	if cfg.MaxDailyLoss > 0 && lossAbs >= cfg.MaxDailyLoss {
		s.TripCircuit("daily loss budget exhausted")
	}
}

// AddLots adjusts the open-lots count (negative on close).
func (s *Service) AddLots(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lotsUsed += delta
	if s.lotsUsed < 0 {
		s.lotsUsed = 0
	}
}

// RecordStopLossHit notes a stop-loss execution for the posture card.
func (s *Service) RecordStopLossHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSlAt = s.now()
	s.restrikes++
}

// SetKillSwitch toggles the new-open kill switch.
func (s *Service) SetKillSwitch(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitchOpenNew = on
}

// TripCircuit trips the daily circuit. Idempotent.
func (s *Service) TripCircuit(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.circuit.Tripped {
		return
	}
	s.circuit = models.CircuitState{Tripped: true, Reason: reason, AsOf: s.now()}
	s.log.WithField("reason", reason).Warn("daily circuit tripped")
}

// ResetCircuit clears the daily circuit (admin action; the midnight IST
// rollover does this automatically).
func (s *Service) ResetCircuit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuit = models.CircuitState{AsOf: s.now()}
}

// CircuitState returns the daily circuit state.
func (s *Service) CircuitState() models.CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(s.now())
	return s.circuit
}

// Snapshot computes and persists the current risk posture.
func (s *Service) Snapshot() models.RiskSnapshot {
	now := s.now()
	cfg := s.Config()

	s.mu.Lock()
	s.rolloverLocked(now)
	realized := s.realizedPnl
	lotsUsed := s.lotsUsed
	killSwitch := s.killSwitchOpenNew
	tripped := s.circuit.Tripped
	lastSl := s.lastSlAt
	restrikes := s.restrikes
	s.mu.Unlock()

	lossAbs := dailyLossAbs(realized)
	lossPct := dailyLossPct(lossAbs, cfg.MaxDailyLoss)
	budgetLeft := cfg.MaxDailyLoss - lossAbs
	if budgetLeft < 0 {
		budgetLeft = 0
	}
	ordersMin := s.ordersLastMinute()
	ordersPct := 0.0
	if cfg.OrdersPerMinCap > 0 {
		ordersPct = float64(ordersMin) / float64(cfg.OrdersPerMinCap) * 100
	}
	minsSinceSl := 0
	if !lastSl.IsZero() {
		minsSinceSl = int(now.Sub(lastSl).Minutes())
	}
	lockout := s.breaker.State() == gobreaker.StateOpen

	snap := models.RiskSnapshot{
		AsOf:                  now,
		RiskHeadroomOk:        cfg.Enabled && !tripped && !lockout && lossPct < 100 && lotsUsed < cfg.LotsCap,
		KillSwitchOpenNew:     killSwitch,
		CircuitBreakerLockout: lockout,
		DailyCircuitTripped:   tripped,
		RealizedPnlToday:      realized,
		DailyLossAbs:          lossAbs,
		DailyLossPct:          lossPct,
		RiskBudgetLeft:        budgetLeft,
		LotsUsed:              lotsUsed,
		LotsCap:               cfg.LotsCap,
		OrdersPerMin:          int(ordersMin),
		OrdersPerMinPct:       ordersPct,
		MinutesSinceLastSl:    minsSinceSl,
		RestrikesToday:        restrikes,
	}
	s.store.SaveRiskSnapshot(snap)
	return snap
}

// rolloverLocked resets the daily counters and circuit at midnight IST.
// Caller holds s.mu.
func (s *Service) rolloverLocked(now time.Time) {
	day := utils.FormatDateIST(now)
	if day == s.day {
		return
	}
	s.day = day
	s.realizedPnl = 0
	s.restrikes = 0
	s.lastSlAt = time.Time{}
	s.circuit = models.CircuitState{AsOf: now}
}

func dailyLossAbs(realized float64) float64 {
	if realized >= 0 {
		return 0
	}
	return -realized
}

func dailyLossPct(lossAbs, budget float64) float64 {
	if budget <= 0 {
		return 0
	}
	return lossAbs / budget * 100
}
