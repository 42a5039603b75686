package models

import "time"

// SignalAction is the directional action a signal recommends.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// TradingSignal is a generated market signal persisted for audit and
// consumed by the decision service.
type TradingSignal struct {
	ID               string       `json:"id"`
	Kind             string       `json:"kind"` // e.g. "PCR", "REGIME_CHANGE"
	InstrumentKey    string       `json:"instrument_key"`
	Action           SignalAction `json:"action"`
	Strength         float64      `json:"strength"`   // 0..10
	Confidence       float64      `json:"confidence"` // 0..1
	RiskAdjustedSize float64      `json:"risk_adjusted_size"`
	EntryPrice       float64      `json:"entry_price,omitempty"`
	StopLoss         float64      `json:"stop_loss,omitempty"`
	TakeProfit       float64      `json:"take_profit,omitempty"`
	Reason           string       `json:"reason,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// StrategyWeights are the per-strategy blend weights for decision scoring.
// Ws + Wr + Wm is expected (not enforced) to sum to 1.
type StrategyWeights struct {
	Sentiment float64 `json:"ws"`
	Regime    float64 `json:"wr"`
	Momentum  float64 `json:"wm"`
}

// SignalsEnvelope is the payload broadcast on the signals.enhanced channel.
type SignalsEnvelope struct {
	AsOf           time.Time `json:"asOf"`
	InstrumentKey  string    `json:"instrumentKey"`
	Regime5        Regime    `json:"regime5"`
	Regime60       Regime    `json:"regime60"`
	Z5             float64   `json:"z5"`
	Z15            float64   `json:"z15"`
	Z60            float64   `json:"z60"`
	SystemHealth   string    `json:"system_health"`
	LastRegimeFlip time.Time `json:"last_regime_flip,omitempty"`
}
