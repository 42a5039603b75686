package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/internal/broker/brokertest"
	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
	"github.com/seenimoa/tradecore/pkg/utils"
)

// marketOpen is a regular trading Tuesday, 11:00 IST.
var marketOpen = time.Date(2026, 8, 25, 11, 0, 0, 0, utils.IST)

// fakeRisk satisfies RiskGate with programmable outcomes.
type fakeRisk struct {
	mu     sync.Mutex
	err    error
	placed int
	fills  []models.TxnType
	slHits int
}

func (r *fakeRisk) CheckOrder(models.OrderIntent) error { return r.err }
func (r *fakeRisk) NoteOrderPlaced() {
	r.mu.Lock()
	r.placed++
	r.mu.Unlock()
}
func (r *fakeRisk) NoteBrokerResult(error) {}
func (r *fakeRisk) ApplyFill(_ string, txn models.TxnType, _ int, _ float64, _ models.Product) {
	r.mu.Lock()
	r.fills = append(r.fills, txn)
	r.mu.Unlock()
}
func (r *fakeRisk) RecordStopLossHit() {
	r.mu.Lock()
	r.slHits++
	r.mu.Unlock()
}
func (r *fakeRisk) Placed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.placed
}
func (r *fakeRisk) Fills() []models.TxnType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TxnType(nil), r.fills...)
}
func (r *fakeRisk) SlHits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slHits
}

func newTestService(t *testing.T, gw broker.Gateway, risk RiskGate) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.New("")
	if err != nil {
		t.Fatal(err)
	}
	svc := New(store, gw, risk, infra.NewKV("test:"), nil, 1.0)
	svc.SetClock(func() time.Time { return marketOpen })
	return svc, store
}

func marketReq() models.PlaceOrderRequest {
	return models.PlaceOrderRequest{
		InstrumentToken: "NSE_FO|12345",
		Symbol:          "NIFTY26AUG25000CE",
		TxnType:         models.Buy,
		OrderType:       models.Market,
		Quantity:        75,
		Product:         models.MIS,
		Validity:        models.Day,
		Tag:             "adv-1",
	}
}

func TestPlaceOrderHappyPath(t *testing.T) {
	gw := brokertest.New()
	risk := &fakeRisk{}
	svc, store := newTestService(t, gw, risk)

	resp, err := svc.PlaceOrder(context.Background(), marketReq())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if resp.BrokerOrderID() == "" || resp.Duplicate {
		t.Fatalf("resp = %+v, want fresh order id", resp)
	}
	if risk.Placed() != 1 {
		t.Errorf("placements noted = %d, want 1", risk.Placed())
	}
	order, err := store.GetOrder(resp.BrokerOrderID())
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if order.Status != models.OrderOpen || order.Qty != 75 {
		t.Errorf("order = %+v, want OPEN qty 75", order)
	}
	if store.OutboxBacklog() != 1 {
		t.Errorf("backlog = %d, want order.placed queued", store.OutboxBacklog())
	}
}

func TestPlaceOrderFeedsRiskPosture(t *testing.T) {
	gw := brokertest.New()
	risk := &fakeRisk{}
	svc, _ := newTestService(t, gw, risk)

	if _, err := svc.PlaceOrder(context.Background(), marketReq()); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if fills := risk.Fills(); len(fills) != 1 || fills[0] != models.Buy {
		t.Fatalf("fills = %v, want one BUY", risk.Fills())
	}
	if risk.SlHits() != 0 {
		t.Error("plain entry should not count as a stop-loss hit")
	}

	exit := marketReq()
	exit.TxnType = models.Sell
	exit.OrderType = models.SL
	exit.TriggerPrice = 95
	exit.Tag = "exit-adv-1"
	if _, err := svc.PlaceOrder(context.Background(), exit); err != nil {
		t.Fatalf("exit PlaceOrder: %v", err)
	}
	if fills := risk.Fills(); len(fills) != 2 || fills[1] != models.Sell {
		t.Fatalf("fills = %v, want BUY then SELL", fills)
	}
	if risk.SlHits() != 1 {
		t.Errorf("sl hits = %d, want 1 for the stop exit", risk.SlHits())
	}
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	gw := brokertest.New()
	svc, _ := newTestService(t, gw, &fakeRisk{})

	first, err := svc.PlaceOrder(context.Background(), marketReq())
	if err != nil {
		t.Fatalf("first PlaceOrder: %v", err)
	}
	second, err := svc.PlaceOrder(context.Background(), marketReq())
	if err != nil {
		t.Fatalf("replay PlaceOrder: %v", err)
	}
	if !second.Duplicate {
		t.Error("replay should be flagged as duplicate")
	}
	if second.BrokerOrderID() != first.BrokerOrderID() {
		t.Errorf("replay id = %s, want original %s", second.BrokerOrderID(), first.BrokerOrderID())
	}
	if gw.PlaceCount() != 1 {
		t.Errorf("broker placements = %d, want 1", gw.PlaceCount())
	}
}

func TestPlaceOrderRiskRejectionFreesKey(t *testing.T) {
	gw := brokertest.New()
	risk := &fakeRisk{err: errs.New(errs.LotsCap, "cap")}
	svc, _ := newTestService(t, gw, risk)

	if _, err := svc.PlaceOrder(context.Background(), marketReq()); errs.KindOf(err) != errs.LotsCap {
		t.Fatalf("kind = %s, want LOTS_CAP", errs.KindOf(err))
	}
	if gw.PlaceCount() != 0 {
		t.Fatal("broker must not see a risk-rejected order")
	}

	// The same request goes through once risk headroom returns.
	risk.err = nil
	if _, err := svc.PlaceOrder(context.Background(), marketReq()); err != nil {
		t.Fatalf("retry after risk recovery: %v", err)
	}
}

func TestPlaceOrderMarketClosed(t *testing.T) {
	gw := brokertest.New()
	svc, _ := newTestService(t, gw, &fakeRisk{})
	// One second past the 15:30:00 close.
	svc.SetClock(func() time.Time {
		return time.Date(2026, 8, 25, 15, 30, 1, 0, utils.IST)
	})

	if _, err := svc.PlaceOrder(context.Background(), marketReq()); errs.KindOf(err) != errs.MarketClosed {
		t.Fatalf("kind = %s, want MARKET_CLOSED", errs.KindOf(err))
	}

	amo := marketReq()
	amo.IsAMO = true
	if _, err := svc.PlaceOrder(context.Background(), amo); err != nil {
		t.Fatalf("AMO after close: %v", err)
	}
}

func TestPlaceOrderUnauthenticated(t *testing.T) {
	gw := brokertest.New()
	gw.Authed = false
	svc, _ := newTestService(t, gw, &fakeRisk{})

	if _, err := svc.PlaceOrder(context.Background(), marketReq()); errs.KindOf(err) != errs.Unauthenticated {
		t.Fatalf("kind = %s, want UNAUTHENTICATED", errs.KindOf(err))
	}
}

func TestPlaceOrderValidatesFirst(t *testing.T) {
	gw := brokertest.New()
	svc, _ := newTestService(t, gw, &fakeRisk{})

	bad := marketReq()
	bad.Price = 100 // market orders carry no price
	if _, err := svc.PlaceOrder(context.Background(), bad); errs.KindOf(err) != errs.BadRequest {
		t.Fatalf("kind = %s, want BAD_REQUEST", errs.KindOf(err))
	}
	if gw.PlaceCount() != 0 {
		t.Error("invalid order must not reach the broker")
	}
}

func TestPlaceOrderBrokerFailureFreesKey(t *testing.T) {
	gw := brokertest.New()
	gw.PlaceFunc = func(context.Context, models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
		return nil, errs.New(errs.BrokerError, "rejected")
	}
	svc, _ := newTestService(t, gw, &fakeRisk{})

	if _, err := svc.PlaceOrder(context.Background(), marketReq()); errs.KindOf(err) != errs.BrokerError {
		t.Fatalf("kind = %s, want BROKER_ERROR", errs.KindOf(err))
	}

	gw.PlaceFunc = nil
	if _, err := svc.PlaceOrder(context.Background(), marketReq()); err != nil {
		t.Fatalf("retry after broker recovery: %v", err)
	}
}

func TestModifyAndCancelRequireMarketOpen(t *testing.T) {
	gw := brokertest.New()
	svc, _ := newTestService(t, gw, &fakeRisk{})
	svc.SetClock(func() time.Time {
		return time.Date(2026, 8, 25, 18, 0, 0, 0, utils.IST)
	})

	_, err := svc.ModifyOrder(context.Background(), models.ModifyOrderRequest{OrderID: "X1", Quantity: 75})
	if errs.KindOf(err) != errs.MarketClosed {
		t.Errorf("modify kind = %s, want MARKET_CLOSED", errs.KindOf(err))
	}
	if _, err := svc.CancelOrder(context.Background(), "X1"); errs.KindOf(err) != errs.MarketClosed {
		t.Errorf("cancel kind = %s, want MARKET_CLOSED", errs.KindOf(err))
	}
}

func TestCancelOrderUpdatesLocalState(t *testing.T) {
	gw := brokertest.New()
	svc, store := newTestService(t, gw, &fakeRisk{})

	resp, err := svc.PlaceOrder(context.Background(), marketReq())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if _, err := svc.CancelOrder(context.Background(), resp.BrokerOrderID()); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	order, err := store.GetOrder(resp.BrokerOrderID())
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != models.OrderCancelled {
		t.Errorf("status = %s, want CANCELLED", order.Status)
	}
}

func TestPreflightSlippageGuard(t *testing.T) {
	tests := []struct {
		name   string
		bidAsk *broker.BidAsk
		bars   []models.Candle
		want   bool
	}{
		{"tight book", &broker.BidAsk{Bid: 99.9, Ask: 100.1}, nil, true},
		{"wide book", &broker.BidAsk{Bid: 98, Ask: 102}, nil, false},
		{"bar fallback tight", nil, []models.Candle{{High: 100.5, Low: 100.0, Close: 100.2}}, true},
		{"bar fallback wide", nil, []models.Candle{{High: 103, Low: 99, Close: 100}}, false},
		{"nothing to evaluate", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := brokertest.New()
			gw.BidAskFunc = func(context.Context, string) (*broker.BidAsk, error) {
				if tt.bidAsk == nil {
					return nil, errors.New("no depth")
				}
				return tt.bidAsk, nil
			}
			svc, store := newTestService(t, gw, &fakeRisk{})
			for _, c := range tt.bars {
				c.Symbol = "NSE_FO|12345"
				c.OpenTime = marketOpen
				if err := store.AppendCandle(c); err != nil {
					t.Fatal(err)
				}
			}

			got := svc.PreflightSlippageGuard(context.Background(), "NSE_FO|12345", 1.0)
			if got != tt.want {
				t.Errorf("guard = %v, want %v", got, tt.want)
			}
		})
	}
}
