// Package advice drives advices through their lifecycle: execution
// against the order path, retry with backoff, and expiry sweeping.
package advice

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
)

// wideSpreadError marks a preflight rejection on the advice row.
const wideSpreadError = "WIDE_SPREAD"

// retryBackoff returns the delay before retry n (1-based): 1s, 4s, 16s.
func retryBackoff(retryCount int) time.Duration {
	d := time.Second
	for i := 1; i < retryCount; i++ {
		d *= 4
	}
	return d
}

// OrderPlacer is the slice of the orders service the executor uses.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error)
	PreflightSlippageGuard(ctx context.Context, instrumentKey string, maxSpreadPct float64) bool
	MaxSpreadPct() float64
}

// Service executes advices and sweeps expired ones.
type Service struct {
	store  *storage.Store
	orders OrderPlacer
	log    *logrus.Entry

	now func() time.Time
}

// New creates the advice service.
func New(store *storage.Store, orders OrderPlacer, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		store:  store,
		orders: orders,
		log:    log.WithField("component", "advice"),
		now:    time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ════════════════════════════════════════════════════════════════════
// Execution
// ════════════════════════════════════════════════════════════════════

// Execute runs one advice through the order path. Terminal and expired
// advices are a no-op returning their current state. A wide spread or a
// failed placement moves the advice to FAILED and, while retries
// remain, back to PENDING with an exponential backoff. A DUPLICATE from
// the idempotency layer reads as a benign replay.
func (s *Service) Execute(ctx context.Context, adviceID string) (*models.Advice, error) {
	a, err := s.store.GetAdvice(adviceID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if a.IsTerminal() {
		return a, nil
	}
	if a.IsExpired(now) {
		expired, terr := s.store.TransitionAdvice(a.ID, models.AdviceExpired, now, nil)
		if terr != nil {
			return a, nil
		}
		s.enqueue(expired)
		return expired, nil
	}

	if !s.orders.PreflightSlippageGuard(ctx, a.InstrumentToken, s.orders.MaxSpreadPct()) {
		return s.fail(a, now, wideSpreadError)
	}

	req := models.PlaceOrderRequest{
		InstrumentToken: a.InstrumentToken,
		Symbol:          a.Symbol,
		TxnType:         a.TxnType,
		OrderType:       a.OrderType,
		Quantity:        a.Qty,
		Product:         a.Product,
		Validity:        a.Validity,
		Price:           a.Price,
		TriggerPrice:    a.TriggerPrice,
		IsAMO:           a.IsAMO,
		Tag:             a.ID,
	}

	start := s.now()
	resp, err := s.orders.PlaceOrder(ctx, req)
	if err != nil {
		if errs.IsKind(err, errs.Duplicate) {
			// Idempotent replay of an execution that already went through.
			return s.executed(a, now, "", 0)
		}
		return s.fail(a, now, err.Error())
	}

	latency := s.now().Sub(start).Milliseconds()
	if resp.LatencyMs > 0 {
		latency = resp.LatencyMs
	}
	return s.executed(a, now, resp.BrokerOrderID(), latency)
}

// ProcessDue scans up to scanLimit due advices, newest first, and
// executes at most maxExec of them. Individual failures are absorbed
// and do not consume the execution budget; the batch continues.
func (s *Service) ProcessDue(ctx context.Context, scanLimit, maxExec int) int {
	now := s.now()
	due := s.store.PendingAdvices(scanLimit, now)
	executed := 0
	for i := range due {
		if executed >= maxExec {
			break
		}
		a, err := s.Execute(ctx, due[i].ID)
		if err != nil {
			s.log.WithError(err).WithField("advice_id", due[i].ID).Warn("advice execution error")
			continue
		}
		if a.Status == models.AdviceExecuted {
			executed++
		}
	}
	return executed
}

// SweepExpired marks overdue waiting advices EXPIRED and publishes the
// transitions.
func (s *Service) SweepExpired() int {
	now := s.now()
	expired := s.store.ExpireStaleAdvices(now)
	for i := range expired {
		s.enqueue(&expired[i])
		s.log.WithField("advice_id", expired[i].ID).Info("advice expired")
	}
	return len(expired)
}

// ════════════════════════════════════════════════════════════════════
// Transitions
// ════════════════════════════════════════════════════════════════════

func (s *Service) executed(a *models.Advice, now time.Time, brokerOrderID string, latencyMs int64) (*models.Advice, error) {
	out, err := s.store.TransitionAdvice(a.ID, models.AdviceExecuted, now, func(row *models.Advice) {
		if brokerOrderID != "" {
			row.BrokerOrderID = brokerOrderID
		}
		row.ExecutionLatencyMs = latencyMs
		if row.Price > 0 {
			row.ExecutionPrice = row.Price
		}
	})
	if err != nil {
		return nil, err
	}
	s.enqueue(out)
	s.log.WithFields(logrus.Fields{
		"advice_id":  out.ID,
		"order_id":   out.BrokerOrderID,
		"latency_ms": out.ExecutionLatencyMs,
	}).Info("advice executed")
	return out, nil
}

// fail moves the advice to FAILED and requeues it while retries remain.
func (s *Service) fail(a *models.Advice, now time.Time, reason string) (*models.Advice, error) {
	failed, err := s.store.TransitionAdvice(a.ID, models.AdviceFailed, now, func(row *models.Advice) {
		row.RetryCount++
		row.LastError = reason
		row.NextRetryAt = now.Add(retryBackoff(row.RetryCount))
	})
	if err != nil {
		return nil, err
	}
	s.enqueue(failed)

	if failed.CanRetry() {
		requeued, rerr := s.store.TransitionAdvice(a.ID, models.AdvicePending, now, nil)
		if rerr != nil {
			return failed, nil
		}
		s.log.WithFields(logrus.Fields{
			"advice_id": requeued.ID,
			"retry":     requeued.RetryCount,
			"next_at":   requeued.NextRetryAt,
			"reason":    reason,
		}).Warn("advice failed, requeued")
		return requeued, nil
	}
	s.log.WithFields(logrus.Fields{"advice_id": failed.ID, "reason": reason}).
		Error("advice failed terminally")
	return failed, nil
}

func (s *Service) enqueue(a *models.Advice) {
	if err := s.store.EnqueueOutbox(models.TopicAdvice, adviceKey(a), a); err != nil {
		s.log.WithError(err).Warn("enqueue advice event")
	}
}

func adviceKey(a *models.Advice) string {
	if a.Symbol != "" {
		return a.Symbol
	}
	if a.InstrumentToken != "" {
		return a.InstrumentToken
	}
	return a.ID
}
