// Package brokertest provides a programmable Gateway fake for service
// tests. Each method delegates to an optional function field and falls
// back to a benign default.
package brokertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/pkg/models"
)

// Fake implements broker.Gateway with overridable function fields.
type Fake struct {
	mu sync.Mutex

	PlaceFunc      func(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error)
	ModifyFunc     func(ctx context.Context, req models.ModifyOrderRequest) (*models.ModifyOrderResponse, error)
	CancelFunc     func(ctx context.Context, orderID string) (*models.CancelOrderResponse, error)
	DetailsFunc    func(ctx context.Context, orderID string) (*models.Order, error)
	WorkingFunc    func(ctx context.Context, orderID string) (bool, error)
	LTPFunc        func(ctx context.Context, instrumentKey string) (*broker.Quote, error)
	OHLCFunc       func(ctx context.Context, instrumentKey, interval string) (*models.OHLCQuote, error)
	IntradayFunc   func(ctx context.Context, instrumentKey, interval string) ([]models.Candle, error)
	HistoricalFunc func(ctx context.Context, instrumentKey, interval string, from, to time.Time) ([]models.Candle, error)
	BidAskFunc     func(ctx context.Context, instrumentKey string) (*broker.BidAsk, error)
	ChainFunc      func(ctx context.Context, underlyingKey, expiry string) (*models.OptionChain, error)
	GreeksFunc     func(ctx context.Context, instrumentKeys []string) (map[string]models.Greeks, error)
	RefreshFunc    func(ctx context.Context) error
	Authed         bool

	placed  []models.PlaceOrderRequest
	counter int
}

// New returns an authenticated fake with default behaviors.
func New() *Fake {
	return &Fake{Authed: true}
}

func (f *Fake) Name() string { return "fake" }

// PlacedOrders returns a copy of every placement seen.
func (f *Fake) PlacedOrders() []models.PlaceOrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PlaceOrderRequest, len(f.placed))
	copy(out, f.placed)
	return out
}

// PlaceCount returns the number of placements seen.
func (f *Fake) PlaceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func (f *Fake) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
	f.mu.Lock()
	f.placed = append(f.placed, req)
	f.counter++
	n := f.counter
	f.mu.Unlock()

	if f.PlaceFunc != nil {
		return f.PlaceFunc(ctx, req)
	}
	return &models.PlaceOrderResponse{OrderIDs: []string{fmt.Sprintf("FAKE-%d", n)}, LatencyMs: 1}, nil
}

func (f *Fake) ModifyOrder(ctx context.Context, req models.ModifyOrderRequest) (*models.ModifyOrderResponse, error) {
	if f.ModifyFunc != nil {
		return f.ModifyFunc(ctx, req)
	}
	return &models.ModifyOrderResponse{OrderID: req.OrderID, LatencyMs: 1}, nil
}

func (f *Fake) CancelOrder(ctx context.Context, orderID string) (*models.CancelOrderResponse, error) {
	if f.CancelFunc != nil {
		return f.CancelFunc(ctx, orderID)
	}
	return &models.CancelOrderResponse{OrderID: orderID, LatencyMs: 1}, nil
}

func (f *Fake) GetOrderDetails(ctx context.Context, orderID string) (*models.Order, error) {
	if f.DetailsFunc != nil {
		return f.DetailsFunc(ctx, orderID)
	}
	return &models.Order{BrokerOrderID: orderID, Status: models.OrderComplete}, nil
}

func (f *Fake) IsOrderWorking(ctx context.Context, orderID string) (bool, error) {
	if f.WorkingFunc != nil {
		return f.WorkingFunc(ctx, orderID)
	}
	return false, nil
}

func (f *Fake) GetLTPQuote(ctx context.Context, instrumentKey string) (*broker.Quote, error) {
	if f.LTPFunc != nil {
		return f.LTPFunc(ctx, instrumentKey)
	}
	return &broker.Quote{InstrumentKey: instrumentKey, LTP: 100, TS: time.Now()}, nil
}

func (f *Fake) GetOHLCQuote(ctx context.Context, instrumentKey, interval string) (*models.OHLCQuote, error) {
	if f.OHLCFunc != nil {
		return f.OHLCFunc(ctx, instrumentKey, interval)
	}
	return &models.OHLCQuote{Open: 100, High: 101, Low: 99, Close: 100, TS: time.Now()}, nil
}

func (f *Fake) GetIntradayCandles(ctx context.Context, instrumentKey, interval string) ([]models.Candle, error) {
	if f.IntradayFunc != nil {
		return f.IntradayFunc(ctx, instrumentKey, interval)
	}
	return nil, nil
}

func (f *Fake) GetHistoricalCandles(ctx context.Context, instrumentKey, interval string, from, to time.Time) ([]models.Candle, error) {
	if f.HistoricalFunc != nil {
		return f.HistoricalFunc(ctx, instrumentKey, interval, from, to)
	}
	return nil, nil
}

func (f *Fake) GetBestBidAsk(ctx context.Context, instrumentKey string) (*broker.BidAsk, error) {
	if f.BidAskFunc != nil {
		return f.BidAskFunc(ctx, instrumentKey)
	}
	return &broker.BidAsk{Bid: 99.9, Ask: 100.1, BidQty: 75, AskQty: 75, TS: time.Now()}, nil
}

func (f *Fake) GetOptionChain(ctx context.Context, underlyingKey, expiry string) (*models.OptionChain, error) {
	if f.ChainFunc != nil {
		return f.ChainFunc(ctx, underlyingKey, expiry)
	}
	return nil, nil
}

func (f *Fake) GetOptionGreeks(ctx context.Context, instrumentKeys []string) (map[string]models.Greeks, error) {
	if f.GreeksFunc != nil {
		return f.GreeksFunc(ctx, instrumentKeys)
	}
	return map[string]models.Greeks{}, nil
}

func (f *Fake) RefreshAccessToken(ctx context.Context) error {
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx)
	}
	return nil
}

func (f *Fake) IsAuthenticated() bool { return f.Authed }
