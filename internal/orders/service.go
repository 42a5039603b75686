// Package orders owns the order write path: validation, idempotency,
// the risk gate, market-hours enforcement, and the broker round trip.
package orders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
	"github.com/seenimoa/tradecore/pkg/utils"
)

const (
	idempPrefix   = "order:idemp:"
	workingPrefix = "order:working:"
	idempTTL      = 120 * time.Second
	workingTTL    = 120 * time.Minute
	brokerTimeout = 10 * time.Second

	// idempPending marks a placement still in flight under its key.
	idempPending = "pending"
)

// RiskGate is the slice of the risk service the order path uses.
type RiskGate interface {
	CheckOrder(intent models.OrderIntent) error
	NoteOrderPlaced()
	NoteBrokerResult(err error)
	ApplyFill(instrument string, txn models.TxnType, qty int, price float64, product models.Product)
	RecordStopLossHit()
}

// Service routes order writes through the gate to the broker gateway.
type Service struct {
	store        *storage.Store
	gw           broker.Gateway
	risk         RiskGate
	kv           *infra.KV
	log          *logrus.Entry
	maxSpreadPct float64

	now func() time.Time
}

// New creates the orders service.
func New(store *storage.Store, gw broker.Gateway, risk RiskGate, kv *infra.KV, log *logrus.Logger, maxSpreadPct float64) *Service {
	if log == nil {
		log = logrus.New()
	}
	if maxSpreadPct <= 0 {
		maxSpreadPct = 1.0
	}
	return &Service{
		store:        store,
		gw:           gw,
		risk:         risk,
		kv:           kv,
		log:          log.WithField("component", "orders"),
		maxSpreadPct: maxSpreadPct,
		now:          time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// MaxSpreadPct returns the configured slippage guard threshold.
func (s *Service) MaxSpreadPct() float64 { return s.maxSpreadPct }

// ════════════════════════════════════════════════════════════════════
// Placement
// ════════════════════════════════════════════════════════════════════

// PlaceOrder runs the full placement pipeline: validation, auth,
// idempotency, the risk gate, market hours, then the broker call. A
// replay of an already-completed placement returns the original order
// id with Duplicate set; a replay racing an in-flight placement errors
// with DUPLICATE.
func (s *Service) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
	if err := broker.ValidateOrder(req).Err(); err != nil {
		return nil, err
	}
	if !s.gw.IsAuthenticated() {
		return nil, errs.New(errs.Unauthenticated, "no usable broker session")
	}

	idempKey := idempPrefix + IdempotencyKey(req)
	if !s.kv.SetIfAbsent(idempKey, idempPending, idempTTL) {
		if v, ok := s.kv.GetString(idempKey); ok && v != idempPending {
			// The earlier placement completed; hand back its order id.
			return &models.PlaceOrderResponse{OrderIDs: []string{v}, Duplicate: true}, nil
		}
		return nil, errs.New(errs.Duplicate, "identical placement already in flight")
	}

	intent := s.intentFor(ctx, req)
	if err := s.risk.CheckOrder(intent); err != nil {
		s.kv.Delete(idempKey)
		return nil, err
	}

	now := s.now()
	if !utils.IsMarketOpenAt(now) && !req.IsAMO {
		s.kv.Delete(idempKey)
		return nil, errs.New(errs.MarketClosed, "market closed and order is not AMO")
	}

	cctx, cancel := context.WithTimeout(ctx, brokerTimeout)
	defer cancel()
	start := s.now()
	resp, err := s.gw.PlaceOrder(cctx, req)
	s.risk.NoteBrokerResult(err)
	if err != nil {
		s.kv.Delete(idempKey)
		return nil, err
	}
	resp.LatencyMs = s.now().Sub(start).Milliseconds()

	orderID := resp.BrokerOrderID()
	s.kv.Put(idempKey, orderID, idempTTL)
	s.kv.Put(workingPrefix+orderID, true, workingTTL)
	s.risk.NoteOrderPlaced()

	// Feed the fill back into the risk posture at the reference price:
	// lots on opens, realized PnL net of charges on exits.
	s.risk.ApplyFill(req.InstrumentToken, req.TxnType, req.Quantity, intent.Price, req.Product)
	if !intent.OpensNew && (req.OrderType == models.SL || req.OrderType == models.SLLimit) {
		s.risk.RecordStopLossHit()
	}

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
	if err := s.store.SaveOrderAndEnqueue(order, models.TopicOrder, orderKey(order)); err != nil {
		s.log.WithError(err).Warn("enqueue order.placed")
	}
	s.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"symbol":   req.Symbol,
		"txn":      req.TxnType,
		"qty":      req.Quantity,
	}).Info("order placed")
	return resp, nil
}

// ModifyOrder forwards a modification to the broker. Requires market
// open; modifications carry no idempotency key since they target a
// specific broker order.
func (s *Service) ModifyOrder(ctx context.Context, req models.ModifyOrderRequest) (*models.ModifyOrderResponse, error) {
	if req.OrderID == "" {
		return nil, errs.New(errs.BadRequest, "order id required")
	}
	if !s.gw.IsAuthenticated() {
		return nil, errs.New(errs.Unauthenticated, "no usable broker session")
	}
	if !utils.IsMarketOpenAt(s.now()) {
		return nil, errs.New(errs.MarketClosed, "market closed")
	}
	if current, err := s.store.GetOrder(req.OrderID); err == nil {
		if err := broker.ValidateModifyOrder(current, req); err != nil {
			return nil, err
		}
	}

	cctx, cancel := context.WithTimeout(ctx, brokerTimeout)
	defer cancel()
	resp, err := s.gw.ModifyOrder(cctx, req)
	s.risk.NoteBrokerResult(err)
	if err != nil {
		return nil, err
	}

	if order, gerr := s.store.GetOrder(req.OrderID); gerr == nil {
		if req.Quantity > 0 {
			order.Qty = req.Quantity
		}
		if req.Price > 0 {
			order.Price = req.Price
		}
		if req.TriggerPrice > 0 {
			order.TriggerPrice = req.TriggerPrice
		}
		order.UpdatedAt = s.now()
		if err := s.store.SaveOrderAndEnqueue(order, models.TopicOrder, orderKey(order)); err != nil {
			s.log.WithError(err).Warn("enqueue order.modified")
		}
	}
	return resp, nil
}

// CancelOrder cancels an open order at the broker. Requires market open.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*models.CancelOrderResponse, error) {
	if orderID == "" {
		return nil, errs.New(errs.BadRequest, "order id required")
	}
	if !s.gw.IsAuthenticated() {
		return nil, errs.New(errs.Unauthenticated, "no usable broker session")
	}
	if !utils.IsMarketOpenAt(s.now()) {
		return nil, errs.New(errs.MarketClosed, "market closed")
	}

	cctx, cancel := context.WithTimeout(ctx, brokerTimeout)
	defer cancel()
	resp, err := s.gw.CancelOrder(cctx, orderID)
	s.risk.NoteBrokerResult(err)
	if err != nil {
		return nil, err
	}

	s.kv.Delete(workingPrefix + orderID)
	if order, gerr := s.store.GetOrder(orderID); gerr == nil {
		order.Status = models.OrderCancelled
		order.UpdatedAt = s.now()
		if err := s.store.SaveOrderAndEnqueue(order, models.TopicOrder, orderKey(order)); err != nil {
			s.log.WithError(err).Warn("enqueue order.cancelled")
		}
	}
	return resp, nil
}

// ════════════════════════════════════════════════════════════════════
// Slippage preflight
// ════════════════════════════════════════════════════════════════════

// PreflightSlippageGuard reports whether an instrument's spread is
// tight enough to trade. Top-of-book depth is preferred; the latest
// one-minute bar's range stands in when depth is unavailable. The guard
// is permissive when it cannot evaluate at all.
func (s *Service) PreflightSlippageGuard(ctx context.Context, instrumentKey string, maxSpreadPct float64) bool {
	if maxSpreadPct <= 0 {
		maxSpreadPct = s.maxSpreadPct
	}

	cctx, cancel := context.WithTimeout(ctx, brokerTimeout)
	defer cancel()
	if ba, err := s.gw.GetBestBidAsk(cctx, instrumentKey); err == nil && ba.Mid() > 0 {
		return ba.SpreadPct() <= maxSpreadPct
	}

	bars := s.store.LatestCandles(instrumentKey, 1)
	if len(bars) == 0 || bars[0].Close <= 0 {
		return true
	}
	proxy := (bars[0].High - bars[0].Low) / bars[0].Close * 100
	return proxy <= maxSpreadPct
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

// IdempotencyKey hashes the canonical identity of a placement.
func IdempotencyKey(req models.PlaceOrderRequest) string {
	canonical := fmt.Sprintf("%s|%s|%s|%.2f|%d",
		req.InstrumentToken, req.TxnType, req.OrderType, req.Price, req.Quantity)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// intentFor normalizes a placement for the risk gate. Market orders
// carry no price, so the last traded price stands in as the reference.
func (s *Service) intentFor(ctx context.Context, req models.PlaceOrderRequest) models.OrderIntent {
	price := req.Price
	if price <= 0 {
		price = req.TriggerPrice
	}
	if price <= 0 {
		cctx, cancel := context.WithTimeout(ctx, brokerTimeout)
		defer cancel()
		if q, err := s.gw.GetLTPQuote(cctx, req.InstrumentToken); err == nil {
			price = q.LTP
		}
	}
	return models.OrderIntent{
		InstrumentToken: req.InstrumentToken,
		Symbol:          req.Symbol,
		TxnType:         req.TxnType,
		Qty:             req.Quantity,
		Price:           price,
		OpensNew:        opensNew(req.Tag),
		Ref:             req.Tag,
	}
}

// opensNew treats every placement as a new open unless its tag marks it
// as an exit, keeping the kill switch conservative.
func opensNew(tag string) bool {
	t := strings.ToLower(tag)
	return !strings.HasPrefix(t, "exit") && !strings.HasPrefix(t, "close")
}

// orderKey picks the outbox routing key for an order.
func orderKey(o *models.Order) string {
	if o.Symbol != "" {
		return o.Symbol
	}
	if o.InstrumentToken != "" {
		return o.InstrumentToken
	}
	return o.BrokerOrderID
}
