// Package engine runs the trading loop: a fixed-cadence tick that
// refreshes the market picture, evaluates decisions, and executes due
// advices, plus the independent background workers.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/advice"
	"github.com/seenimoa/tradecore/internal/bus"
	"github.com/seenimoa/tradecore/internal/config"
	"github.com/seenimoa/tradecore/internal/decision"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/jobs"
	"github.com/seenimoa/tradecore/internal/marketdata"
	"github.com/seenimoa/tradecore/internal/outbox"
	"github.com/seenimoa/tradecore/internal/risk"
	"github.com/seenimoa/tradecore/internal/sentiment"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
	"github.com/seenimoa/tradecore/pkg/utils"
)

// Engine states.
const (
	StateRunning = "RUNNING"
	StateStopped = "STOPPED"
)

// KV keys for the ops cards refreshed each tick.
const (
	cardRiskKey      = "card:risk"
	cardSentimentKey = "card:sentiment"
	cardDecisionKey  = "card:decision"
	cardTTL          = 5 * time.Minute

	sweepInterval = 30 * time.Second
)

// State is the engine.state payload published after every tick.
type State struct {
	State         string    `json:"state"`
	AsOf          time.Time `json:"as_of"`
	Ticks         int64     `json:"ticks"`
	SkippedClosed int64     `json:"skipped_closed"`
	SkippedBusy   int64     `json:"skipped_busy"`
	Executed      int64     `json:"executed"`
	OutboxBacklog int       `json:"outbox_backlog"`
	LastError     string    `json:"last_error,omitempty"`
}

// Deps are the wired services the engine drives.
type Deps struct {
	Store     *storage.Store
	KV        *infra.KV
	Bus       *bus.Bus
	Market    *marketdata.Service
	Sentiment *sentiment.Service
	Decision  *decision.Service
	Risk      *risk.Service
	Advices   *advice.Service
	Relay     *outbox.Relay
	TokenJob  *jobs.TokenRefreshJob
}

// Engine is the scheduler. A single logical worker owns the tick; if a
// tick is still running when the cadence fires again, that firing is
// skipped.
type Engine struct {
	cfg config.Config
	d   Deps
	log *logrus.Entry

	running  atomic.Bool
	tickBusy atomic.Bool

	ticks         atomic.Int64
	skippedClosed atomic.Int64
	skippedBusy   atomic.Int64
	executed      atomic.Int64

	mu        sync.Mutex
	lastError string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates the engine around wired dependencies.
func New(cfg config.Config, d Deps, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		cfg: cfg,
		d:   d,
		log: log.WithField("component", "engine"),
		now: time.Now,
	}
}

// SetClock overrides the engine clock.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// StateName returns RUNNING or STOPPED.
func (e *Engine) StateName() string {
	if e.running.Load() {
		return StateRunning
	}
	return StateStopped
}

// ════════════════════════════════════════════════════════════════════
// Lifecycle
// ════════════════════════════════════════════════════════════════════

// Start launches the tick loop and all background workers. Idempotent
// while running.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.spawn(e.tickLoop)
	e.spawnEvery(e.cfg.Signals.Interval(), "signals", func(ctx context.Context) error {
		_, err := e.d.Market.BroadcastSignalsTick()
		return err
	})
	e.spawnEvery(e.cfg.Candles1m.Interval(), "candles", e.d.Market.IngestLatest1mCandle)
	e.spawnEvery(e.cfg.Sentiment.Interval(), "sentiment", func(ctx context.Context) error {
		_, err := e.d.Sentiment.Refresh(ctx)
		return err
	})
	e.spawnEvery(sweepInterval, "advice-sweeper", func(context.Context) error {
		e.d.Advices.SweepExpired()
		return nil
	})
	e.spawnEvery(24*time.Hour, "weights-optimizer", func(context.Context) error {
		e.d.Decision.OptimizeDaily()
		return nil
	})
	if e.d.Relay != nil {
		e.spawn(e.d.Relay.Run)
	}
	if e.d.TokenJob != nil {
		e.spawn(e.d.TokenJob.Run)
	}

	e.publishState()
	e.log.WithField("tick_ms", e.cfg.Engine.TickMs).Info("engine started")
}

// Stop cancels the workers and waits for the in-flight tick to finish.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.publishState()
	e.log.Info("engine stopped")
}

func (e *Engine) spawn(run func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		run(e.ctx)
	}()
}

// spawnEvery runs fn on a fixed cadence until shutdown; errors are
// logged, never propagated.
func (e *Engine) spawnEvery(every time.Duration, name string, fn func(ctx context.Context) error) {
	if every <= 0 {
		return
	}
	e.spawn(func(ctx context.Context) {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					e.log.WithError(err).WithField("worker", name).Debug("background refresh failed")
				}
			}
		}
	})
}

func (e *Engine) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Engine.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.TickNow(ctx)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// Tick
// ════════════════════════════════════════════════════════════════════

// TickNow runs one tick immediately. Re-entrant calls are skipped.
func (e *Engine) TickNow(ctx context.Context) {
	if !e.running.Load() {
		return
	}
	if !e.tickBusy.CompareAndSwap(false, true) {
		e.skippedBusy.Add(1)
		return
	}
	defer e.tickBusy.Store(false)
	defer e.publishState()

	e.ticks.Add(1)
	now := e.now()

	if !utils.IsMarketOpenAt(now) {
		e.skippedClosed.Add(1)
		return
	}

	snap := e.d.Risk.Snapshot()
	e.d.KV.PutJSON(cardRiskKey, snap, cardTTL)
	if snap.CircuitBreakerLockout || snap.DailyCircuitTripped {
		e.setLastError("circuit lockout, tick suspended")
		return
	}
	e.setLastError("")

	if _, err := e.d.Market.RefreshRegime(5); err != nil {
		e.log.WithError(err).Debug("regime refresh failed")
	}
	if _, err := e.d.Decision.Evaluate(ctx); err != nil {
		e.log.WithError(err).Warn("decision evaluation failed")
	}

	e.refreshCards()

	executed := e.d.Advices.ProcessDue(ctx, e.cfg.Engine.ScanLimit, e.cfg.Engine.MaxExecPerTick)
	e.executed.Add(int64(executed))
}

// refreshCards snapshots the ops cards into the KV for the API surface.
func (e *Engine) refreshCards() {
	if sent, ok := e.d.Store.LatestSentiment(); ok {
		e.d.KV.PutJSON(cardSentimentKey, sent, cardTTL)
	}
	e.d.KV.PutJSON(cardDecisionKey, e.d.Decision.Card(), cardTTL)
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
}

// Snapshot returns the current engine counters.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	lastErr := e.lastError
	e.mu.Unlock()
	return State{
		State:         e.StateName(),
		AsOf:          e.now(),
		Ticks:         e.ticks.Load(),
		SkippedClosed: e.skippedClosed.Load(),
		SkippedBusy:   e.skippedBusy.Load(),
		Executed:      e.executed.Load(),
		OutboxBacklog: e.d.Store.OutboxBacklog(),
		LastError:     lastErr,
	}
}

func (e *Engine) publishState() {
	st := e.Snapshot()
	if err := e.d.Bus.PublishJSON(models.TopicEngineState, "engine", st); err != nil {
		e.log.WithError(err).Warn("publish engine state")
	}
}
