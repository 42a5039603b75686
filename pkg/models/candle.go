// Package models defines the domain entities shared by the trading engine:
// candles, ticks, advices, orders, risk records, sentiment snapshots,
// option-chain analytics, and outbox events.
package models

import (
	"math"
	"time"
)

// Candle is an OHLC bar for a symbol. Unique by (Symbol, OpenTime) and
// immutable after write. Timeframe is carried separately where needed.
type Candle struct {
	Symbol   string    `json:"symbol"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
}

// SaneOHLC reports whether the bar satisfies high ≥ max(open,close),
// low ≤ min(open,close) and all prices > 0. Violating rows are flagged
// POOR quality but still persisted.
func (c Candle) SaneOHLC() bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	if c.High < math.Max(c.Open, c.Close) {
		return false
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return false
	}
	return true
}

// TrueRange returns max(H-L, |H-prevClose|, |L-prevClose|).
func (c Candle) TrueRange(prevClose float64) float64 {
	tr := c.High - c.Low
	if prevClose > 0 {
		tr = math.Max(tr, math.Abs(c.High-prevClose))
		tr = math.Max(tr, math.Abs(c.Low-prevClose))
	}
	return tr
}

// Tick is a single trade print. Append-only; used as a low-latency price
// fallback when candles are stale.
type Tick struct {
	Symbol   string    `json:"symbol"`
	TS       time.Time `json:"ts"`
	LTP      float64   `json:"ltp"`
	Quantity int64     `json:"quantity"`
}

// OHLCQuote is a live OHLC snapshot from the broker.
type OHLCQuote struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	TS     time.Time `json:"ts"`
}

// Regime is the coarse market state derived from the momentum z-score.
type Regime string

const (
	RegimeBullish Regime = "BULLISH"
	RegimeBearish Regime = "BEARISH"
	RegimeNeutral Regime = "NEUTRAL"
)
