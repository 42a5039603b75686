package models

import "time"

// AdviceStatus is the closed set of advice lifecycle states.
type AdviceStatus string

const (
	AdvicePending         AdviceStatus = "PENDING"
	AdviceValidated       AdviceStatus = "VALIDATED"
	AdviceQueued          AdviceStatus = "QUEUED"
	AdviceExecuted        AdviceStatus = "EXECUTED"
	AdvicePartiallyFilled AdviceStatus = "PARTIALLY_FILLED"
	AdviceFailed          AdviceStatus = "FAILED"
	AdviceDismissed       AdviceStatus = "DISMISSED"
	AdviceExpired         AdviceStatus = "EXPIRED"
	AdviceCompleted       AdviceStatus = "COMPLETED"
)

// adviceTransitions enumerates the legal lifecycle edges:
// PENDING → (VALIDATED|QUEUED) → (EXECUTED|PARTIALLY_FILLED|FAILED|DISMISSED|EXPIRED) → COMPLETED.
// FAILED advices with retries left re-enter PENDING.
var adviceTransitions = map[AdviceStatus][]AdviceStatus{
	AdvicePending:         {AdviceValidated, AdviceQueued, AdviceExecuted, AdviceFailed, AdviceDismissed, AdviceExpired},
	AdviceValidated:       {AdviceQueued, AdviceExecuted, AdvicePartiallyFilled, AdviceFailed, AdviceDismissed, AdviceExpired},
	AdviceQueued:          {AdviceExecuted, AdvicePartiallyFilled, AdviceFailed, AdviceDismissed, AdviceExpired},
	AdviceExecuted:        {AdviceCompleted},
	AdvicePartiallyFilled: {AdviceExecuted, AdviceCompleted},
	AdviceFailed:          {AdvicePending, AdviceCompleted},
}

// CanTransition reports whether from → to is a legal advice transition.
// Terminal states never regress.
func CanTransition(from, to AdviceStatus) bool {
	for _, next := range adviceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RiskCategory classifies the risk profile of an advice.
type RiskCategory string

const (
	RiskLow      RiskCategory = "LOW"
	RiskMedium   RiskCategory = "MEDIUM"
	RiskHigh     RiskCategory = "HIGH"
	RiskCritical RiskCategory = "CRITICAL"
)

// ExecutionContext records what produced an advice.
type ExecutionContext string

const (
	ContextManual        ExecutionContext = "MANUAL"
	ContextAuto          ExecutionContext = "AUTO"
	ContextRiskTriggered ExecutionContext = "RISK_TRIGGERED"
	ContextStrategy      ExecutionContext = "STRATEGY"
)

// MaxAdviceRetries bounds the execute retry count per advice.
const MaxAdviceRetries = 3

// Advice is a trading recommendation produced by the decision service and
// executed through the orders service. Created by Decision, mutated by the
// advice service; terminal states are immutable except RealizedPnl and
// PerformanceNotes.
type Advice struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Symbol          string    `json:"symbol"`
	InstrumentToken string    `json:"instrument_token"`
	OrderType       OrderType `json:"order_type"`
	TxnType         TxnType   `json:"txn_type"`
	Qty             int       `json:"qty"`
	Product         Product   `json:"product"`
	Validity        Validity  `json:"validity"`
	Price           float64   `json:"price,omitempty"`
	TriggerPrice    float64   `json:"trigger_price,omitempty"`
	Tag             string    `json:"tag,omitempty"`
	IsAMO           bool      `json:"is_amo"`

	Status           AdviceStatus     `json:"status"`
	PriorityScore    float64          `json:"priority_score"` // 0..100
	RiskCategory     RiskCategory     `json:"risk_category"`
	ExecutionContext ExecutionContext `json:"execution_context"`
	ExpiresAt        time.Time        `json:"expires_at,omitempty"`
	RetryCount       int              `json:"retry_count"`
	NextRetryAt      time.Time        `json:"next_retry_at,omitempty"`
	LastError        string           `json:"last_error,omitempty"`

	StopLoss          float64 `json:"stop_loss,omitempty"`
	TakeProfit        float64 `json:"take_profit,omitempty"`
	MaxHoldingMinutes int     `json:"max_holding_minutes,omitempty"`

	Strategy       string `json:"strategy"`
	Reason         string `json:"reason"`
	ParentAdviceID string `json:"parent_advice_id,omitempty"`
	BrokerOrderID  string `json:"broker_order_id,omitempty"`

	ExecutionPrice     float64 `json:"execution_price,omitempty"`
	ExecutionLatencyMs int64   `json:"execution_latency_ms,omitempty"`
	RealizedPnl        float64 `json:"realized_pnl,omitempty"`
	PerformanceNotes   string  `json:"performance_notes,omitempty"`
}

// IsExpired reports whether the advice has passed its expiry.
func (a *Advice) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// IsTerminal reports whether the advice is in a terminal state.
func (a *Advice) IsTerminal() bool {
	switch a.Status {
	case AdviceExecuted, AdviceDismissed, AdviceExpired, AdviceCompleted:
		return true
	case AdviceFailed:
		return !a.CanRetry()
	}
	return false
}

// CanRetry reports whether a failed advice may be re-attempted.
func (a *Advice) CanRetry() bool {
	return a.RetryCount < MaxAdviceRetries
}
