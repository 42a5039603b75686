package models

import "time"

// OptionType distinguishes calls from puts. A typed field, never inferred.
type OptionType string

const (
	CE OptionType = "CE"
	PE OptionType = "PE"
)

// Greeks holds the first-order sensitivities for an option contract.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho,omitempty"`
}

// OptionContract is a single CE or PE contract at a strike.
type OptionContract struct {
	InstrumentKey string     `json:"instrument_key"`
	StrikePrice   float64    `json:"strike_price"`
	OptionType    OptionType `json:"option_type"`
	ExpiryDate    string     `json:"expiry_date"`
	LTP           float64    `json:"ltp"`
	Volume        int64      `json:"volume"`
	OI            int64      `json:"oi"`
	OIChange      int64      `json:"oi_change"`
	BidPrice      float64    `json:"bid_price"`
	AskPrice      float64    `json:"ask_price"`
	IV            float64    `json:"iv"`
	Greeks        Greeks     `json:"greeks"`
}

// OptionChain is the full chain for an underlying on one expiry.
type OptionChain struct {
	UnderlyingKey string           `json:"underlying_key"`
	SpotPrice     float64          `json:"spot_price"`
	Expiry        string           `json:"expiry"`
	Contracts     []OptionContract `json:"contracts"`
	FetchedAt     time.Time        `json:"fetched_at"`
}

// StrikeOI pairs a strike with its open interest, for top-OI rankings.
type StrikeOI struct {
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	OI         int64      `json:"oi"`
	OIChange   int64      `json:"oi_change"`
}

// GreeksSummary aggregates chain-wide greek exposure per side.
type GreeksSummary struct {
	CallDeltaOI float64 `json:"call_delta_oi"`
	PutDeltaOI  float64 `json:"put_delta_oi"`
	CallGammaOI float64 `json:"call_gamma_oi"`
	PutGammaOI  float64 `json:"put_gamma_oi"`
	AvgCallIV   float64 `json:"avg_call_iv"`
	AvgPutIV    float64 `json:"avg_put_iv"`
}

// VolatilityMetrics summarizes the chain's IV surface.
type VolatilityMetrics struct {
	ATMStrike float64 `json:"atm_strike"`
	ATMIV     float64 `json:"atm_iv"`
	MinIV     float64 `json:"min_iv"`
	MaxIV     float64 `json:"max_iv"`
}

// LiquidityMetrics summarizes chain tradability.
type LiquidityMetrics struct {
	TotalVolume    int64   `json:"total_volume"`
	TotalOI        int64   `json:"total_oi"`
	AvgSpreadPct   float64 `json:"avg_spread_pct"`
	QuotedContracts int    `json:"quoted_contracts"`
}

// OptionChainAnalytics is the derived analytics snapshot for one
// (underlying, expiry). Cached for ~30 seconds.
type OptionChainAnalytics struct {
	UnderlyingKey     string            `json:"underlying_key"`
	Expiry            string            `json:"expiry"`
	CalculatedAt      time.Time         `json:"calculated_at"`
	MaxPain           float64           `json:"max_pain"`
	OiPcr             float64           `json:"oi_pcr"`
	VolumePcr         float64           `json:"volume_pcr"`
	IVSkew            float64           `json:"iv_skew"`
	GammaExposure     float64           `json:"gamma_exposure"`
	DeltaNeutralLevel float64           `json:"delta_neutral_level"`
	TopOiIncreases    []StrikeOI        `json:"top_oi_increases"`
	GreeksSummary     GreeksSummary     `json:"greeks_summary"`
	VolatilityMetrics VolatilityMetrics `json:"volatility_metrics"`
	LiquidityMetrics  LiquidityMetrics  `json:"liquidity_metrics"`
}
