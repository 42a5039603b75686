// Package storage provides the engine's repositories: candles, ticks,
// advices, orders, risk records, sentiment snapshots, signals, and the
// transactional outbox.
//
// The Store is an in-memory repository with optional JSON snapshot
// persistence. Writes use atomic file replacement (write to .tmp, then
// rename) so a crash mid-save never leaves a corrupt snapshot. All
// methods are safe for concurrent use.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/pkg/models"
)

const (
	maxTicksPerSymbol   = 2000
	maxRiskEvents       = 5000
	maxSnapshots        = 1000
	maxSignals          = 1000
	maxSentimentHistory = 1000
)

// Store holds all repositories behind one lock so multi-entity writes
// (domain write + outbox row) are atomic.
type Store struct {
	mu   sync.RWMutex
	path string // empty = memory only
	data snapshot
}

type snapshot struct {
	Candles       map[string][]models.Candle          `json:"candles"`
	Ticks         map[string][]models.Tick            `json:"ticks"`
	Advices       map[string]*models.Advice           `json:"advices"`
	Orders        map[string]*models.Order            `json:"orders"`
	RiskConfig    *models.RiskConfig                  `json:"risk_config,omitempty"`
	RiskEvents    []models.RiskEvent                  `json:"risk_events"`
	RiskSnapshots []models.RiskSnapshot               `json:"risk_snapshots"`
	Sentiments    []models.MarketSentimentSnapshot    `json:"sentiments"`
	Signals       []models.TradingSignal              `json:"signals"`
	Outbox        []models.OutboxEvent                `json:"outbox"`
}

// New creates a store. When path is non-empty an existing snapshot is
// loaded from it and subsequent Save calls persist to it.
func New(path string) (*Store, error) {
	s := &Store{path: path, data: emptySnapshot()}
	if path == "" {
		return s, nil
	}
	if err := s.Load(); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

func emptySnapshot() snapshot {
	return snapshot{
		Candles: make(map[string][]models.Candle),
		Ticks:   make(map[string][]models.Tick),
		Advices: make(map[string]*models.Advice),
		Orders:  make(map[string]*models.Order),
	}
}

// Save atomically persists the snapshot. No-op for memory-only stores.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	raw, err := json.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Load replaces in-memory state from the snapshot file.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var data snapshot
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if data.Candles == nil {
		data.Candles = make(map[string][]models.Candle)
	}
	if data.Ticks == nil {
		data.Ticks = make(map[string][]models.Tick)
	}
	if data.Advices == nil {
		data.Advices = make(map[string]*models.Advice)
	}
	if data.Orders == nil {
		data.Orders = make(map[string]*models.Order)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// ─── Candles ───

// AppendCandle persists a bar. Writes with openTime at or before the
// symbol's latest bar are rejected — candle history is strictly
// monotonic per symbol.
func (s *Store) AppendCandle(c models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.data.Candles[c.Symbol]
	if n := len(rows); n > 0 && !c.OpenTime.After(rows[n-1].OpenTime) {
		return errs.Newf(errs.DataQuality, "non-monotonic candle for %s: %s <= %s",
			c.Symbol, c.OpenTime.Format(time.RFC3339), rows[n-1].OpenTime.Format(time.RFC3339))
	}
	s.data.Candles[c.Symbol] = append(rows, c)
	return nil
}

// LastCandleTime returns the latest persisted openTime for symbol.
func (s *Store) LastCandleTime(symbol string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.data.Candles[symbol]
	if len(rows) == 0 {
		return time.Time{}, false
	}
	return rows[len(rows)-1].OpenTime, true
}

// LatestCandles returns up to n most recent bars for symbol, ascending.
func (s *Store) LatestCandles(symbol string, n int) []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.data.Candles[symbol]
	if n <= 0 || n >= len(rows) {
		n = len(rows)
	}
	out := make([]models.Candle, n)
	copy(out, rows[len(rows)-n:])
	return out
}

// ─── Ticks ───

// AppendTick records a trade print, keeping a bounded recent window.
func (s *Store) AppendTick(t models.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := append(s.data.Ticks[t.Symbol], t)
	if len(rows) > maxTicksPerSymbol {
		rows = rows[len(rows)-maxTicksPerSymbol:]
	}
	s.data.Ticks[t.Symbol] = rows
}

// LatestTick returns the most recent tick for symbol.
func (s *Store) LatestTick(symbol string) (models.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.data.Ticks[symbol]
	if len(rows) == 0 {
		return models.Tick{}, false
	}
	return rows[len(rows)-1], true
}

// ─── Advices ───

// SaveAdvice inserts or replaces an advice.
func (s *Store) SaveAdvice(a *models.Advice) {
	cp := *a
	s.mu.Lock()
	s.data.Advices[a.ID] = &cp
	s.mu.Unlock()
}

// GetAdvice returns a copy of the advice, or NOT_FOUND.
func (s *Store) GetAdvice(id string) (*models.Advice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data.Advices[id]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "advice %s", id)
	}
	cp := *a
	return &cp, nil
}

// TransitionAdvice applies a status transition under the lifecycle
// rules, running mutate (may be nil) on the stored copy first.
func (s *Store) TransitionAdvice(id string, to models.AdviceStatus, now time.Time, mutate func(*models.Advice)) (*models.Advice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.Advices[id]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "advice %s", id)
	}
	if a.Status != to && !models.CanTransition(a.Status, to) {
		return nil, errs.Newf(errs.BadRequest, "illegal advice transition %s -> %s", a.Status, to)
	}
	if mutate != nil {
		mutate(a)
	}
	a.Status = to
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

// PendingAdvices returns up to limit PENDING advices that are not
// expired and whose retry backoff has elapsed, newest first.
func (s *Store) PendingAdvices(limit int, now time.Time) []models.Advice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Advice
	for _, a := range s.data.Advices {
		if a.Status != models.AdvicePending {
			continue
		}
		if a.IsExpired(now) {
			continue
		}
		if !a.NextRetryAt.IsZero() && now.Before(a.NextRetryAt) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HasOpenAdvice reports whether a non-terminal advice exists for the
// instrument in the given direction.
func (s *Store) HasOpenAdvice(instrumentToken string, txn models.TxnType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.data.Advices {
		if a.InstrumentToken != instrumentToken || a.TxnType != txn {
			continue
		}
		switch a.Status {
		case models.AdvicePending, models.AdviceValidated, models.AdviceQueued,
			models.AdviceExecuted, models.AdvicePartiallyFilled:
			return true
		}
	}
	return false
}

// ExpireStaleAdvices marks advices past expiry in a non-terminal waiting
// state as EXPIRED and returns them.
func (s *Store) ExpireStaleAdvices(now time.Time) []models.Advice {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Advice
	for _, a := range s.data.Advices {
		switch a.Status {
		case models.AdvicePending, models.AdviceValidated, models.AdviceQueued:
		default:
			continue
		}
		if !a.IsExpired(now) {
			continue
		}
		a.Status = models.AdviceExpired
		a.UpdatedAt = now
		out = append(out, *a)
	}
	return out
}

// AdviceStats summarizes advice outcomes for the decision-quality card.
type AdviceStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Executed int `json:"executed"`
	Failed   int `json:"failed"`
	Expired  int `json:"expired"`
}

// AdviceStatistics counts advices by outcome.
func (s *Store) AdviceStatistics() AdviceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st AdviceStats
	for _, a := range s.data.Advices {
		st.Total++
		switch a.Status {
		case models.AdvicePending:
			st.Pending++
		case models.AdviceExecuted, models.AdviceCompleted:
			st.Executed++
		case models.AdviceFailed:
			st.Failed++
		case models.AdviceExpired:
			st.Expired++
		}
	}
	return st
}

// ─── Orders ───

// SaveOrder inserts or replaces an order record.
func (s *Store) SaveOrder(o *models.Order) {
	cp := *o
	s.mu.Lock()
	s.data.Orders[o.BrokerOrderID] = &cp
	s.mu.Unlock()
}

// GetOrder returns a copy of an order by broker order id.
func (s *Store) GetOrder(brokerOrderID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data.Orders[brokerOrderID]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "order %s", brokerOrderID)
	}
	cp := *o
	return &cp, nil
}

// ─── Risk ───

// SaveRiskConfig replaces the active risk limits (hot reload).
func (s *Store) SaveRiskConfig(cfg models.RiskConfig) {
	s.mu.Lock()
	s.data.RiskConfig = &cfg
	s.mu.Unlock()
}

// RiskConfigRow returns the active risk config, if any.
func (s *Store) RiskConfigRow() (models.RiskConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.RiskConfig == nil {
		return models.RiskConfig{}, false
	}
	return *s.data.RiskConfig, true
}

// AppendRiskEvent records a risk-gate evaluation.
func (s *Store) AppendRiskEvent(e models.RiskEvent) {
	s.mu.Lock()
	s.data.RiskEvents = append(s.data.RiskEvents, e)
	if len(s.data.RiskEvents) > maxRiskEvents {
		s.data.RiskEvents = s.data.RiskEvents[len(s.data.RiskEvents)-maxRiskEvents:]
	}
	s.mu.Unlock()
}

// RiskEventsSince returns risk events at or after ts.
func (s *Store) RiskEventsSince(ts time.Time) []models.RiskEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RiskEvent
	for _, e := range s.data.RiskEvents {
		if !e.TS.Before(ts) {
			out = append(out, e)
		}
	}
	return out
}

// SaveRiskSnapshot appends a per-tick risk snapshot.
func (s *Store) SaveRiskSnapshot(snap models.RiskSnapshot) {
	s.mu.Lock()
	s.data.RiskSnapshots = append(s.data.RiskSnapshots, snap)
	if len(s.data.RiskSnapshots) > maxSnapshots {
		s.data.RiskSnapshots = s.data.RiskSnapshots[len(s.data.RiskSnapshots)-maxSnapshots:]
	}
	s.mu.Unlock()
}

// LatestRiskSnapshot returns the most recent risk snapshot.
func (s *Store) LatestRiskSnapshot() (models.RiskSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.data.RiskSnapshots) == 0 {
		return models.RiskSnapshot{}, false
	}
	return s.data.RiskSnapshots[len(s.data.RiskSnapshots)-1], true
}

// ─── Sentiment ───

// AppendSentiment records a sentiment snapshot.
func (s *Store) AppendSentiment(snap models.MarketSentimentSnapshot) {
	s.mu.Lock()
	s.data.Sentiments = append(s.data.Sentiments, snap)
	if len(s.data.Sentiments) > maxSentimentHistory {
		s.data.Sentiments = s.data.Sentiments[len(s.data.Sentiments)-maxSentimentHistory:]
	}
	s.mu.Unlock()
}

// LatestSentiment returns the most recent sentiment snapshot.
func (s *Store) LatestSentiment() (models.MarketSentimentSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.data.Sentiments) == 0 {
		return models.MarketSentimentSnapshot{}, false
	}
	return s.data.Sentiments[len(s.data.Sentiments)-1], true
}

// ─── Signals ───

// AppendSignal persists a generated trading signal.
func (s *Store) AppendSignal(sig models.TradingSignal) {
	s.mu.Lock()
	s.data.Signals = append(s.data.Signals, sig)
	if len(s.data.Signals) > maxSignals {
		s.data.Signals = s.data.Signals[len(s.data.Signals)-maxSignals:]
	}
	s.mu.Unlock()
}

// RecentSignals returns up to n most recent signals, newest first.
func (s *Store) RecentSignals(n int) []models.TradingSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.data.Signals
	if n <= 0 || n > len(rows) {
		n = len(rows)
	}
	out := make([]models.TradingSignal, 0, n)
	for i := len(rows) - 1; i >= len(rows)-n; i-- {
		out = append(out, rows[i])
	}
	return out
}

// ─── Outbox ───

// EnqueueOutbox inserts an outbox row. Use the combined helpers when the
// row must be atomic with a domain write.
func (s *Store) EnqueueOutbox(topic, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	s.mu.Lock()
	s.appendOutboxLocked(topic, key, raw)
	s.mu.Unlock()
	return nil
}

func (s *Store) appendOutboxLocked(topic, key string, payload json.RawMessage) {
	s.data.Outbox = append(s.data.Outbox, models.OutboxEvent{
		ID:        uuid.NewString(),
		Topic:     topic,
		Key:       key,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}

// SaveAdviceAndEnqueue writes the advice and its outbox row in one
// critical section.
func (s *Store) SaveAdviceAndEnqueue(a *models.Advice, topic, key string) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal advice: %w", err)
	}
	cp := *a
	s.mu.Lock()
	s.data.Advices[a.ID] = &cp
	s.appendOutboxLocked(topic, key, raw)
	s.mu.Unlock()
	return nil
}

// SaveOrderAndEnqueue writes the order and its outbox row in one
// critical section.
func (s *Store) SaveOrderAndEnqueue(o *models.Order, topic, key string) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	cp := *o
	s.mu.Lock()
	s.data.Orders[o.BrokerOrderID] = &cp
	s.appendOutboxLocked(topic, key, raw)
	s.mu.Unlock()
	return nil
}

// UnpublishedOutbox returns up to limit unpublished rows, oldest first.
func (s *Store) UnpublishedOutbox(limit int) []models.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OutboxEvent
	for _, e := range s.data.Outbox {
		if e.Published {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// MarkPublished flags an outbox row as delivered.
func (s *Store) MarkPublished(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Outbox {
		if s.data.Outbox[i].ID == id {
			if s.data.Outbox[i].Published {
				return nil
			}
			s.data.Outbox[i].Published = true
			s.data.Outbox[i].PublishedAt = &at
			return nil
		}
	}
	return errs.Newf(errs.NotFound, "outbox row %s", id)
}

// OutboxBacklog returns the number of unpublished rows.
func (s *Store) OutboxBacklog() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.data.Outbox {
		if !e.Published {
			n++
		}
	}
	return n
}
