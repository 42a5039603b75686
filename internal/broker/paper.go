package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Paper Trading Gateway
// ════════════════════════════════════════════════════════════════════

// PaperGateway is an in-memory gateway simulator implementing Gateway.
// It fills market orders deterministically at the seeded LTP plus a
// fixed slippage, tracks margin, and serves seeded quotes, candles and
// option chains. This is the DEFAULT gateway mode.
type PaperGateway struct {
	mu sync.RWMutex

	// Account state
	initialCapital float64
	cash           float64
	usedMargin     float64

	// Order management
	orders       map[string]*models.Order
	orderCounter int

	// Seeded market data
	ltps    map[string]float64
	bidAsks map[string]BidAsk
	candles map[string][]models.Candle       // key: "instrument|interval"
	chains  map[string]*models.OptionChain   // key: "underlying|expiry"
	greeks  map[string]models.Greeks

	// Configuration
	slippagePct float64

	// Error injection for failure-path tests
	placeErr error

	session *SessionState
	now     func() time.Time
}

// PaperConfig holds configuration for the paper gateway.
type PaperConfig struct {
	InitialCapital float64 // starting capital in INR (default: ₹10,00,000)
	SlippagePct    float64 // deterministic fill slippage (default: 0.05%)
}

// NewPaperGateway creates a paper gateway.
func NewPaperGateway(cfg *PaperConfig) *PaperGateway {
	if cfg == nil {
		cfg = &PaperConfig{}
	}
	capital := cfg.InitialCapital
	if capital <= 0 {
		capital = 1_000_000
	}
	slippage := cfg.SlippagePct
	if slippage <= 0 {
		slippage = 0.05
	}

	g := &PaperGateway{
		initialCapital: capital,
		cash:           capital,
		orders:         make(map[string]*models.Order),
		ltps:           make(map[string]float64),
		bidAsks:        make(map[string]BidAsk),
		candles:        make(map[string][]models.Candle),
		chains:         make(map[string]*models.OptionChain),
		greeks:         make(map[string]models.Greeks),
		slippagePct:    slippage,
		session:        NewSessionState(""),
		now:            time.Now,
	}
	// Paper mode is always authenticated.
	g.session.SetToken("paper-token", g.now().Add(365*24*time.Hour))
	return g
}

// Name returns "paper".
func (g *PaperGateway) Name() string { return "paper" }

// ════════════════════════════════════════════════════════════════════
// Seeding Helpers
// ════════════════════════════════════════════════════════════════════

// SetLTP seeds the last traded price for an instrument.
func (g *PaperGateway) SetLTP(instrumentKey string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ltps[instrumentKey] = price
}

// SetBidAsk seeds top-of-book depth for an instrument.
func (g *PaperGateway) SetBidAsk(instrumentKey string, ba BidAsk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bidAsks[instrumentKey] = ba
}

// SetCandles seeds candles for an (instrument, interval) pair.
func (g *PaperGateway) SetCandles(instrumentKey, interval string, candles []models.Candle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := make([]models.Candle, len(candles))
	copy(cp, candles)
	g.candles[instrumentKey+"|"+interval] = cp
}

// SetChain seeds an option chain for an (underlying, expiry) pair.
func (g *PaperGateway) SetChain(underlyingKey, expiry string, chain *models.OptionChain) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chains[underlyingKey+"|"+expiry] = chain
}

// SetGreeks seeds greeks for a contract key.
func (g *PaperGateway) SetGreeks(instrumentKey string, gr models.Greeks) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.greeks[instrumentKey] = gr
}

// SetPlaceError injects an error for the next placements (nil clears).
func (g *PaperGateway) SetPlaceError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placeErr = err
}

// SetClock overrides the gateway clock.
func (g *PaperGateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// ════════════════════════════════════════════════════════════════════
// Orders
// ════════════════════════════════════════════════════════════════════

// PlaceOrder simulates a placement. Market orders fill immediately at
// LTP plus slippage; limit and trigger orders rest OPEN.
func (g *PaperGateway) PlaceOrder(_ context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
	if v := ValidateOrder(req); !v.IsValid() {
		return nil, v.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.placeErr != nil {
		return nil, g.placeErr
	}

	g.orderCounter++
	orderID := fmt.Sprintf("PAPER-%d-%d", g.now().UnixMilli(), g.orderCounter)
	now := g.now()

	order := &models.Order{
		BrokerOrderID:   orderID,
		InstrumentToken: req.InstrumentToken,
		Symbol:          req.Symbol,
		OrderType:       req.OrderType,
		TxnType:         req.TxnType,
		Qty:             req.Quantity,
		PendingQty:      req.Quantity,
		Product:         req.Product,
		Validity:        req.Validity,
		Price:           req.Price,
		TriggerPrice:    req.TriggerPrice,
		Status:          models.OrderOpen,
		PlacedAt:        now,
		UpdatedAt:       now,
	}

	if req.OrderType == models.Market {
		fillPrice, err := g.fillPriceLocked(req)
		if err != nil {
			return nil, err
		}
		required := g.requiredMargin(req.Product, fillPrice, req.Quantity)
		if available := g.cash - g.usedMargin; required > available {
			order.Status = models.OrderRejected
			order.Message = fmt.Sprintf("insufficient margin: need ₹%.2f, available ₹%.2f", required, available)
			g.orders[orderID] = order
			return nil, errs.New(errs.BrokerError, order.Message)
		}
		order.Status = models.OrderComplete
		order.AveragePrice = fillPrice
		order.FilledQty = req.Quantity
		order.PendingQty = 0
		g.usedMargin += required
	}

	g.orders[orderID] = order

	return &models.PlaceOrderResponse{
		OrderIDs:  []string{orderID},
		LatencyMs: 1,
	}, nil
}

// ModifyOrder applies a modification to a resting order.
func (g *PaperGateway) ModifyOrder(_ context.Context, req models.ModifyOrderRequest) (*models.ModifyOrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[req.OrderID]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "order %s not found", req.OrderID)
	}
	if err := ValidateModifyOrder(order, req); err != nil {
		return nil, err
	}

	if req.Quantity > 0 {
		order.Qty = req.Quantity
		order.PendingQty = req.Quantity - order.FilledQty
	}
	if req.Price > 0 {
		order.Price = req.Price
	}
	if req.TriggerPrice > 0 {
		order.TriggerPrice = req.TriggerPrice
	}
	if req.OrderType != "" {
		order.OrderType = req.OrderType
	}
	if req.Validity != "" {
		order.Validity = req.Validity
	}
	order.UpdatedAt = g.now()

	return &models.ModifyOrderResponse{OrderID: req.OrderID, LatencyMs: 1}, nil
}

// CancelOrder cancels a resting order.
func (g *PaperGateway) CancelOrder(_ context.Context, orderID string) (*models.CancelOrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "order %s not found", orderID)
	}
	if order.Status != models.OrderOpen && order.Status != models.OrderPartial {
		return nil, errs.Newf(errs.BadRequest, "order cannot be cancelled: order is %s", order.Status)
	}

	order.Status = models.OrderCancelled
	order.Message = "cancelled"
	order.UpdatedAt = g.now()

	return &models.CancelOrderResponse{OrderID: orderID, LatencyMs: 1}, nil
}

// GetOrderDetails returns the simulated order.
func (g *PaperGateway) GetOrderDetails(_ context.Context, orderID string) (*models.Order, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order, ok := g.orders[orderID]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "order %s not found", orderID)
	}
	out := *order
	return &out, nil
}

// IsOrderWorking reports whether the order is still open.
func (g *PaperGateway) IsOrderWorking(ctx context.Context, orderID string) (bool, error) {
	order, err := g.GetOrderDetails(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Status == models.OrderOpen || order.Status == models.OrderPartial, nil
}

// ════════════════════════════════════════════════════════════════════
// Quotes & Candles
// ════════════════════════════════════════════════════════════════════

// GetLTPQuote returns the seeded LTP for an instrument.
func (g *PaperGateway) GetLTPQuote(_ context.Context, instrumentKey string) (*Quote, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ltp, ok := g.ltps[instrumentKey]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no quote for %s", instrumentKey)
	}
	return &Quote{InstrumentKey: instrumentKey, LTP: ltp, TS: g.now()}, nil
}

// GetOHLCQuote derives a live OHLC snapshot from the seeded candles.
func (g *PaperGateway) GetOHLCQuote(_ context.Context, instrumentKey, interval string) (*models.OHLCQuote, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	candles := g.candles[instrumentKey+"|"+interval]
	if len(candles) == 0 {
		return nil, errs.Newf(errs.NotFound, "no %s candles for %s", interval, instrumentKey)
	}
	last := candles[len(candles)-1]
	return &models.OHLCQuote{
		Open: last.Open, High: last.High, Low: last.Low, Close: last.Close,
		Volume: last.Volume, TS: last.OpenTime,
	}, nil
}

// GetIntradayCandles returns the seeded candles.
func (g *PaperGateway) GetIntradayCandles(_ context.Context, instrumentKey, interval string) ([]models.Candle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	candles, ok := g.candles[instrumentKey+"|"+interval]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no %s candles for %s", interval, instrumentKey)
	}
	out := make([]models.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// GetHistoricalCandles filters the seeded candles to [from, to].
func (g *PaperGateway) GetHistoricalCandles(ctx context.Context, instrumentKey, interval string, from, to time.Time) ([]models.Candle, error) {
	candles, err := g.GetIntradayCandles(ctx, instrumentKey, interval)
	if err != nil {
		return nil, err
	}
	out := candles[:0]
	for _, c := range candles {
		if c.OpenTime.Before(from) || c.OpenTime.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// GetBestBidAsk returns the seeded depth, or a synthetic book around LTP.
func (g *PaperGateway) GetBestBidAsk(_ context.Context, instrumentKey string) (*BidAsk, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if ba, ok := g.bidAsks[instrumentKey]; ok {
		if ba.TS.IsZero() {
			ba.TS = g.now()
		}
		return &ba, nil
	}
	ltp, ok := g.ltps[instrumentKey]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no depth for %s", instrumentKey)
	}
	half := ltp * g.slippagePct / 100
	return &BidAsk{Bid: ltp - half, Ask: ltp + half, BidQty: 75, AskQty: 75, TS: g.now()}, nil
}

// ════════════════════════════════════════════════════════════════════
// Option Chain
// ════════════════════════════════════════════════════════════════════

// GetOptionChain returns the seeded chain.
func (g *PaperGateway) GetOptionChain(_ context.Context, underlyingKey, expiry string) (*models.OptionChain, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	chain, ok := g.chains[underlyingKey+"|"+expiry]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no option chain for %s %s", underlyingKey, expiry)
	}
	return chain, nil
}

// GetOptionGreeks returns the seeded greeks for the requested contracts.
func (g *PaperGateway) GetOptionGreeks(_ context.Context, instrumentKeys []string) (map[string]models.Greeks, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]models.Greeks, len(instrumentKeys))
	for _, key := range instrumentKeys {
		if gr, ok := g.greeks[key]; ok {
			out[key] = gr
		}
	}
	return out, nil
}

// ════════════════════════════════════════════════════════════════════
// Auth
// ════════════════════════════════════════════════════════════════════

// RefreshAccessToken reissues the synthetic paper token.
func (g *PaperGateway) RefreshAccessToken(_ context.Context) error {
	g.session.SetToken("paper-token", g.now().Add(365*24*time.Hour))
	return nil
}

// IsAuthenticated always reports true for paper mode.
func (g *PaperGateway) IsAuthenticated() bool {
	return g.session.IsAuthenticated()
}

// ════════════════════════════════════════════════════════════════════
// Paper-specific Methods
// ════════════════════════════════════════════════════════════════════

// Reset restores the gateway to its initial state. Seeded market data
// is kept.
func (g *PaperGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cash = g.initialCapital
	g.usedMargin = 0
	g.orders = make(map[string]*models.Order)
	g.orderCounter = 0
	g.placeErr = nil
}

// OrderCount returns the number of simulated orders.
func (g *PaperGateway) OrderCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.orders)
}

// fillPriceLocked computes the deterministic fill price for a market
// order. Buyers pay LTP plus slippage; sellers receive LTP minus it.
func (g *PaperGateway) fillPriceLocked(req models.PlaceOrderRequest) (float64, error) {
	ltp, ok := g.ltps[req.InstrumentToken]
	if !ok || ltp <= 0 {
		return 0, errs.Newf(errs.NotFound, "no quote for %s", req.InstrumentToken)
	}
	slip := ltp * g.slippagePct / 100
	if req.TxnType == models.Buy {
		return ltp + slip, nil
	}
	return ltp - slip, nil
}

// requiredMargin is the margin blocked for an order. Option buys block
// full premium; MIS gets intraday leverage on the rest.
func (g *PaperGateway) requiredMargin(product models.Product, price float64, qty int) float64 {
	value := price * float64(qty)
	switch product {
	case models.CNC:
		return value
	case models.MIS:
		return value * 0.20
	case models.NRML:
		return value
	default:
		return value
	}
}
