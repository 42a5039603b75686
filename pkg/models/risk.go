package models

import "time"

// RiskConfig holds the operator-set risk limits. Singleton-most-recent;
// hot-reloaded on write.
type RiskConfig struct {
	MaxDailyLoss    float64   `json:"max_daily_loss"`     // absolute rupee budget
	LotsCap         int       `json:"lots_cap"`           // max lots open at once
	OrdersPerMinCap int       `json:"orders_per_min_cap"` // rolling 60s placement cap
	PerOrderRiskPct float64   `json:"per_order_risk_pct"` // 0..100
	Enabled         bool      `json:"enabled"`
	AsOf            time.Time `json:"as_of"`
}

// RiskSnapshot is the per-tick risk posture. Drives advice admission.
type RiskSnapshot struct {
	AsOf                  time.Time `json:"as_of"`
	RiskHeadroomOk        bool      `json:"risk_headroom_ok"`
	KillSwitchOpenNew     bool      `json:"kill_switch_open_new"`
	CircuitBreakerLockout bool      `json:"circuit_breaker_lockout"`
	DailyCircuitTripped   bool      `json:"daily_circuit_tripped"`
	RealizedPnlToday      float64   `json:"realized_pnl_today"`
	DailyLossAbs          float64   `json:"daily_loss_abs"`
	DailyLossPct          float64   `json:"daily_loss_pct"` // % of budget consumed
	RiskBudgetLeft        float64   `json:"risk_budget_left"`
	LotsUsed              int       `json:"lots_used"`
	LotsCap               int       `json:"lots_cap"`
	OrdersPerMin          int       `json:"orders_per_min"`
	OrdersPerMinPct       float64   `json:"orders_per_min_pct"`
	MinutesSinceLastSl    int       `json:"minutes_since_last_sl"`
	RestrikesToday        int       `json:"restrikes_today"`
}

// RiskEvent is an append-only audit row for every risk evaluation.
// Breached events always correspond to a blocked intent.
type RiskEvent struct {
	TS       time.Time `json:"ts"`
	Type     string    `json:"type"` // errs.Kind for breaches, "PASS" otherwise
	Reason   string    `json:"reason"`
	OrderRef string    `json:"order_ref,omitempty"`
	Value    float64   `json:"value"`
	Breached bool      `json:"breached"`
}

// CircuitState describes the daily circuit breaker.
type CircuitState struct {
	Tripped bool      `json:"tripped"`
	Reason  string    `json:"reason,omitempty"`
	AsOf    time.Time `json:"as_of"`
}

// OrderIntent is the normalized view of a write intent submitted to the
// risk gate.
type OrderIntent struct {
	InstrumentToken string  `json:"instrument_token"`
	Symbol          string  `json:"symbol"`
	TxnType         TxnType `json:"txn_type"`
	Qty             int     `json:"qty"`
	Price           float64 `json:"price"` // best-known reference price
	Lots            int     `json:"lots"`
	OpensNew        bool    `json:"opens_new"`
	Ref             string  `json:"ref,omitempty"` // advice or tag reference
}

// Notional returns the rupee value of the intent.
func (i OrderIntent) Notional() float64 {
	return i.Price * float64(i.Qty)
}
