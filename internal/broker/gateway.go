// Package broker provides the broker gateway abstraction and its
// implementations: the Upstox HTTP gateway for live trading and an
// in-memory paper gateway for simulation and tests.
package broker

import (
	"context"
	"time"

	"github.com/seenimoa/tradecore/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Gateway Interface
// ════════════════════════════════════════════════════════════════════

// Gateway is the single seam between the engine and the broker. All
// methods take a context and must honor its deadline; implementations
// cap outbound calls at 10 seconds.
type Gateway interface {
	// Name returns the gateway provider name ("upstox", "paper").
	Name() string

	// --- Orders ---

	// PlaceOrder submits a new order to the exchange.
	PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error)

	// ModifyOrder modifies an open order's price, trigger, quantity, or validity.
	ModifyOrder(ctx context.Context, req models.ModifyOrderRequest) (*models.ModifyOrderResponse, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, orderID string) (*models.CancelOrderResponse, error)

	// GetOrderDetails returns the broker-side view of an order.
	GetOrderDetails(ctx context.Context, orderID string) (*models.Order, error)

	// IsOrderWorking reports whether the order is still open or
	// partially filled at the broker.
	IsOrderWorking(ctx context.Context, orderID string) (bool, error)

	// --- Quotes & Candles ---

	// GetLTPQuote returns the last traded price for an instrument.
	GetLTPQuote(ctx context.Context, instrumentKey string) (*Quote, error)

	// GetOHLCQuote returns a live OHLC snapshot for the given interval
	// ("1d", "I1", "I30").
	GetOHLCQuote(ctx context.Context, instrumentKey, interval string) (*models.OHLCQuote, error)

	// GetIntradayCandles returns today's candles for the interval.
	GetIntradayCandles(ctx context.Context, instrumentKey, interval string) ([]models.Candle, error)

	// GetHistoricalCandles returns candles in [from, to].
	GetHistoricalCandles(ctx context.Context, instrumentKey, interval string, from, to time.Time) ([]models.Candle, error)

	// GetBestBidAsk returns top-of-book depth for an instrument.
	GetBestBidAsk(ctx context.Context, instrumentKey string) (*BidAsk, error)

	// --- Option Chain ---

	// GetOptionChain returns the full chain for an underlying and expiry.
	GetOptionChain(ctx context.Context, underlyingKey, expiry string) (*models.OptionChain, error)

	// GetOptionGreeks returns greeks for the given contract keys.
	GetOptionGreeks(ctx context.Context, instrumentKeys []string) (map[string]models.Greeks, error)

	// --- Auth ---

	// RefreshAccessToken obtains a fresh access token.
	RefreshAccessToken(ctx context.Context) error

	// IsAuthenticated reports whether a usable token is held.
	IsAuthenticated() bool
}

// ════════════════════════════════════════════════════════════════════
// Quote Types
// ════════════════════════════════════════════════════════════════════

// Quote is a last-traded-price snapshot.
type Quote struct {
	InstrumentKey string    `json:"instrument_key"`
	LTP           float64   `json:"ltp"`
	TS            time.Time `json:"ts"`
}

// BidAsk is top-of-book depth for an instrument.
type BidAsk struct {
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	BidQty int64     `json:"bid_qty"`
	AskQty int64     `json:"ask_qty"`
	TS     time.Time `json:"ts"`
}

// Mid returns the bid/ask midpoint, or 0 when the book is one-sided.
func (b BidAsk) Mid() float64 {
	if b.Bid <= 0 || b.Ask <= 0 {
		return 0
	}
	return (b.Bid + b.Ask) / 2
}

// SpreadPct returns the bid/ask spread as a percentage of the midpoint.
// Returns 0 when the book is one-sided or crossed.
func (b BidAsk) SpreadPct() float64 {
	mid := b.Mid()
	if mid <= 0 || b.Ask < b.Bid {
		return 0
	}
	return (b.Ask - b.Bid) / mid * 100
}
