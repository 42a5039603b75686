package marketdata

import (
	"context"
	"math"
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

const testKey = utils.NiftyIndexKey

func newTestService(t *testing.T, gw broker.Gateway) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.New("")
	if err != nil {
		t.Fatal(err)
	}
	if gw == nil {
		gw = brokertest.New()
	}
	svc := New(store, gw, infra.NewKV(""), nil, testKey, 50)
	return svc, store
}

// seedCloses appends one 1m candle per close, one minute apart.
func seedCloses(t *testing.T, store *storage.Store, closes []float64) {
	t.Helper()
	base := time.Date(2026, 8, 25, 9, 15, 0, 0, time.UTC)
	for i, c := range closes {
		candle := models.Candle{
			Symbol:   testKey,
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1000,
		}
		if err := store.AppendCandle(candle); err != nil {
			t.Fatalf("AppendCandle: %v", err)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// Momentum Tests
// ════════════════════════════════════════════════════════════════════

func TestMomentumInsufficientCloses(t *testing.T) {
	svc, store := newTestService(t, nil)
	seedCloses(t, store, []float64{100, 101, 100, 101, 100, 101, 100, 101, 100}) // 9 closes

	_, err := svc.MomentumOn(1)
	if err == nil {
		t.Fatal("expected error with 9 closes")
	}
	if errs.KindOf(err) != errs.NotFound {
		t.Errorf("kind = %s, want NOT_FOUND", errs.KindOf(err))
	}
}

func TestMomentumDegenerateSigma(t *testing.T) {
	svc, store := newTestService(t, nil)
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	seedCloses(t, store, closes)

	z, err := svc.MomentumOn(1)
	if err != nil {
		t.Fatalf("MomentumOn: %v", err)
	}
	if z != 0 {
		t.Errorf("z = %v, want 0 for flat closes", z)
	}
}

func TestMomentumZScore(t *testing.T) {
	svc, store := newTestService(t, nil)
	// Alternating 99/101 with the last close pushed up.
	closes := []float64{99, 101, 99, 101, 99, 101, 99, 101, 99, 102}
	seedCloses(t, store, closes)

	z, err := svc.MomentumOn(1)
	if err != nil {
		t.Fatalf("MomentumOn: %v", err)
	}
	if z <= 0 {
		t.Errorf("z = %v, want positive", z)
	}
	// 4-decimal rounding.
	if z != math.Round(z*10000)/10000 {
		t.Errorf("z = %v not rounded to 4 decimals", z)
	}
}

// ════════════════════════════════════════════════════════════════════
// Regime Tests
// ════════════════════════════════════════════════════════════════════

func TestRegimeThresholds(t *testing.T) {
	tests := []struct {
		z    float64
		want models.Regime
	}{
		{0.2, models.RegimeNeutral},
		{0.49, models.RegimeNeutral},
		{0.5, models.RegimeBullish}, // boundary is inclusive
		{-0.49, models.RegimeNeutral},
		{-0.5, models.RegimeBearish},
		{2.3, models.RegimeBullish},
	}
	for _, tt := range tests {
		if got := regimeForZ(tt.z); got != tt.want {
			t.Errorf("regimeForZ(%v) = %s, want %s", tt.z, got, tt.want)
		}
	}
}

func TestFlipConfidenceLadder(t *testing.T) {
	tests := []struct {
		z    float64
		want float64
	}{
		{2.5, 0.95},
		{2.0, 0.95},
		{1.7, 0.85},
		{1.2, 0.70},
		{0.7, 0.55},
		{-0.7, 0.55},
		{0.3, 0.30},
	}
	for _, tt := range tests {
		if got := flipConfidence(tt.z); got != tt.want {
			t.Errorf("flipConfidence(%v) = %v, want %v", tt.z, got, tt.want)
		}
	}
}

func TestRefreshRegimeFlip(t *testing.T) {
	svc, store := newTestService(t, nil)
	// Near-zero momentum first: NEUTRAL.
	seedCloses(t, store, []float64{99, 101, 99, 101, 99, 101, 99, 101, 99, 100})

	st, err := svc.RefreshRegime(1)
	if err != nil {
		t.Fatalf("RefreshRegime: %v", err)
	}
	if st.Regime != models.RegimeNeutral {
		t.Fatalf("regime = %s, want NEUTRAL", st.Regime)
	}
	if !st.FlippedAt.IsZero() {
		t.Error("first refresh should not record a flip")
	}

	// One more bar pushes z into the moderate-bullish band.
	base := time.Date(2026, 8, 25, 9, 15, 0, 0, time.UTC)
	if err := store.AppendCandle(models.Candle{
		Symbol: testKey, OpenTime: base.Add(10 * time.Minute),
		Open: 100, High: 101.3, Low: 100, Close: 100.8, Volume: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	st, err = svc.RefreshRegime(1)
	if err != nil {
		t.Fatalf("RefreshRegime: %v", err)
	}
	if st.Regime != models.RegimeBullish {
		t.Fatalf("regime = %s (z=%v), want BULLISH", st.Regime, st.Z)
	}
	if st.FlippedAt.IsZero() {
		t.Error("flip time should be recorded")
	}
	if st.Confidence != 0.55 {
		t.Errorf("confidence = %v (z=%v), want 0.55 for a moderate flip", st.Confidence, st.Z)
	}

	// A flip queues a REGIME_CHANGE signal.
	signals := store.RecentSignals(5)
	if len(signals) != 1 || signals[0].Kind != "REGIME_CHANGE" {
		t.Fatalf("signals = %+v, want one REGIME_CHANGE", signals)
	}
	if signals[0].Action != models.ActionBuy {
		t.Errorf("action = %s, want BUY", signals[0].Action)
	}
	if store.OutboxBacklog() == 0 {
		t.Error("flip should enqueue an outbox event")
	}
}

// ════════════════════════════════════════════════════════════════════
// Volatility Tests
// ════════════════════════════════════════════════════════════════════

// seed5mBars appends bars spaced five minutes apart so each lands in
// its own 5m bucket.
func seed5mBars(t *testing.T, store *storage.Store, halfRanges []float64) {
	t.Helper()
	base := time.Date(2026, 8, 25, 9, 15, 0, 0, time.UTC)
	for i, hr := range halfRanges {
		candle := models.Candle{
			Symbol:   testKey,
			OpenTime: base.Add(time.Duration(i*5) * time.Minute),
			Open:     100, High: 100 + hr, Low: 100 - hr, Close: 100,
			Volume: 1000,
		}
		if err := store.AppendCandle(candle); err != nil {
			t.Fatal(err)
		}
	}
}

// atrJumpRanges builds 46 half-ranges: a seed bar plus a 20-bar
// baseline window, a 5-bar gap, and a 20-bar recent window.
func atrJumpRanges(baselineHR, recentHR float64) []float64 {
	ranges := make([]float64, 46)
	for i := 0; i <= 25; i++ {
		ranges[i] = baselineHR
	}
	for i := 26; i < 46; i++ {
		ranges[i] = recentHR
	}
	return ranges
}

func TestATRJumpDetectsExpansion(t *testing.T) {
	svc, store := newTestService(t, nil)
	// Baseline ATR(20) = 1.0, recent ATR(20) = 2.4.
	seed5mBars(t, store, atrJumpRanges(0.5, 1.2))

	jump, err := svc.ATRJump5mPct()
	if err != nil {
		t.Fatalf("ATRJump5mPct: %v", err)
	}
	if math.Abs(jump-140) > 0.01 {
		t.Errorf("jump = %v, want 140 (2.4 vs 1.0)", jump)
	}
	if !svc.IsVolatilitySpikeNow() {
		t.Error("140%% jump should register as a volatility spike")
	}
	// The spike raises one HIGH-severity anomaly alert.
	if store.OutboxBacklog() != 1 {
		t.Errorf("backlog = %d, want 1 alert queued", store.OutboxBacklog())
	}
	// The verdict is cached: a repeat call emits no second alert.
	if !svc.IsVolatilitySpikeNow() {
		t.Error("cached verdict should still read spike")
	}
	if store.OutboxBacklog() != 1 {
		t.Errorf("backlog = %d, want alert emitted once per cache window", store.OutboxBacklog())
	}
}

func TestATRJumpQuietMarket(t *testing.T) {
	svc, store := newTestService(t, nil)
	seed5mBars(t, store, atrJumpRanges(0.5, 0.5))

	jump, err := svc.ATRJump5mPct()
	if err != nil {
		t.Fatalf("ATRJump5mPct: %v", err)
	}
	if jump != 0 {
		t.Errorf("jump = %v, want 0 for constant ranges", jump)
	}
	if svc.IsVolatilitySpikeNow() {
		t.Error("flat ranges should not be a spike")
	}
	if store.OutboxBacklog() != 0 {
		t.Errorf("backlog = %d, want no alert without a spike", store.OutboxBacklog())
	}
}

func TestATRJumpInsufficientBars(t *testing.T) {
	svc, store := newTestService(t, nil)
	seed5mBars(t, store, atrJumpRanges(0.5, 1.2)[:30])

	if _, err := svc.ATRJump5mPct(); errs.KindOf(err) != errs.NotFound {
		t.Errorf("kind = %s, want NOT_FOUND with 30 bars", errs.KindOf(err))
	}
}

func TestATRPct(t *testing.T) {
	svc, store := newTestService(t, nil)
	ranges := make([]float64, 16)
	for i := range ranges {
		ranges[i] = 1.0 // TR 2.0 on close 100 → 2%
	}
	seed5mBars(t, store, ranges)

	pct, err := svc.ATRPct(5, 14)
	if err != nil {
		t.Fatalf("ATRPct: %v", err)
	}
	if pct != 2.0 {
		t.Errorf("ATR%% = %v, want 2.00", pct)
	}
}

func TestVixProxyFlat(t *testing.T) {
	svc, store := newTestService(t, nil)
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	seedCloses(t, store, closes)

	proxy, err := svc.VixProxyPct()
	if err != nil {
		t.Fatalf("VixProxyPct: %v", err)
	}
	if proxy != 0 {
		t.Errorf("proxy = %v, want 0 for flat closes", proxy)
	}
}

func TestVixProxyUsesFiveMinuteCloses(t *testing.T) {
	svc, store := newTestService(t, nil)
	// 1-minute closes oscillate inside each 5m bucket, but every bucket
	// closes at 100: the 5m return series is flat.
	closes := make([]float64, 60)
	for i := range closes {
		if i%5 == 4 {
			closes[i] = 100
		} else {
			closes[i] = 101
		}
	}
	seedCloses(t, store, closes)

	proxy, err := svc.VixProxyPct()
	if err != nil {
		t.Fatalf("VixProxyPct: %v", err)
	}
	if proxy != 0 {
		t.Errorf("proxy = %v, want 0 from flat 5m closes", proxy)
	}
}

// ════════════════════════════════════════════════════════════════════
// Price Tests
// ════════════════════════════════════════════════════════════════════

func TestGetLTPCaches(t *testing.T) {
	fake := brokertest.New()
	price := 100.0
	fake.LTPFunc = func(_ context.Context, key string) (*broker.Quote, error) {
		return &broker.Quote{InstrumentKey: key, LTP: price, TS: time.Now()}, nil
	}
	svc, _ := newTestService(t, fake)

	got, err := svc.GetLTP(context.Background(), testKey)
	if err != nil {
		t.Fatalf("GetLTP: %v", err)
	}
	if got != 100 {
		t.Fatalf("ltp = %v, want 100", got)
	}

	// Underlying price moves, but the 2s cache still serves the old one.
	price = 200
	got, err = svc.GetLTP(context.Background(), testKey)
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Errorf("ltp = %v, want cached 100", got)
	}
}

func TestGetLTPPoorQualityStillReturnsPrice(t *testing.T) {
	fake := brokertest.New()
	fake.LTPFunc = func(_ context.Context, key string) (*broker.Quote, error) {
		// Stale quote with a 20% jump off the last tick: POOR.
		return &broker.Quote{InstrumentKey: key, LTP: 120, TS: time.Now().Add(-10 * time.Second)}, nil
	}
	svc, store := newTestService(t, fake)
	store.AppendTick(models.Tick{Symbol: testKey, TS: time.Now().Add(-12 * time.Second), LTP: 100})

	got, err := svc.GetLTP(context.Background(), testKey)
	if err != nil {
		t.Fatalf("GetLTP: %v", err)
	}
	if got != 120 {
		t.Errorf("ltp = %v, want 120 despite poor quality", got)
	}
	if store.OutboxBacklog() != 1 {
		t.Errorf("backlog = %d, want one data-quality alert", store.OutboxBacklog())
	}
}

func TestGetLTPCleanQuoteRaisesNoAlert(t *testing.T) {
	fake := brokertest.New()
	fake.LTPFunc = func(_ context.Context, key string) (*broker.Quote, error) {
		return &broker.Quote{InstrumentKey: key, LTP: 100, TS: time.Now()}, nil
	}
	svc, store := newTestService(t, fake)

	if _, err := svc.GetLTP(context.Background(), testKey); err != nil {
		t.Fatalf("GetLTP: %v", err)
	}
	if store.OutboxBacklog() != 0 {
		t.Errorf("backlog = %d, want no alert for a clean quote", store.OutboxBacklog())
	}
}

func TestGetLTPSmartPrefersFreshTick(t *testing.T) {
	fake := brokertest.New()
	fake.LTPFunc = func(_ context.Context, key string) (*broker.Quote, error) {
		return &broker.Quote{InstrumentKey: key, LTP: 500, TS: time.Now()}, nil
	}
	svc, store := newTestService(t, fake)

	store.AppendTick(models.Tick{Symbol: testKey, TS: time.Now(), LTP: 123, Quantity: 50})

	got, err := svc.GetLTPSmart(context.Background(), testKey)
	if err != nil {
		t.Fatalf("GetLTPSmart: %v", err)
	}
	if got != 123 {
		t.Errorf("ltp = %v, want fresh tick 123", got)
	}
}

func TestGetLTPSmartFallsBackOnStaleTick(t *testing.T) {
	fake := brokertest.New()
	fake.LTPFunc = func(_ context.Context, key string) (*broker.Quote, error) {
		return &broker.Quote{InstrumentKey: key, LTP: 500, TS: time.Now()}, nil
	}
	svc, store := newTestService(t, fake)

	store.AppendTick(models.Tick{Symbol: testKey, TS: time.Now().Add(-10 * time.Second), LTP: 123})

	got, err := svc.GetLTPSmart(context.Background(), testKey)
	if err != nil {
		t.Fatalf("GetLTPSmart: %v", err)
	}
	if got != 500 {
		t.Errorf("ltp = %v, want broker quote 500", got)
	}
}

// ════════════════════════════════════════════════════════════════════
// Ingestion & Broadcast Tests
// ════════════════════════════════════════════════════════════════════

func TestIngestLatest1mCandleTakesPenultimate(t *testing.T) {
	base := time.Date(2026, 8, 25, 9, 15, 0, 0, time.UTC)
	fake := brokertest.New()
	fake.IntradayFunc = func(_ context.Context, key, interval string) ([]models.Candle, error) {
		return []models.Candle{
			{Symbol: key, OpenTime: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10},
			{Symbol: key, OpenTime: base.Add(time.Minute), Open: 100, High: 102, Low: 100, Close: 101, Volume: 20},
			{Symbol: key, OpenTime: base.Add(2 * time.Minute), Open: 101, High: 103, Low: 101, Close: 102, Volume: 5}, // forming
		}, nil
	}
	svc, store := newTestService(t, fake)

	if err := svc.IngestLatest1mCandle(context.Background()); err != nil {
		t.Fatalf("IngestLatest1mCandle: %v", err)
	}
	last, ok := store.LastCandleTime(testKey)
	if !ok {
		t.Fatal("expected an ingested candle")
	}
	if !last.Equal(base.Add(time.Minute)) {
		t.Errorf("last = %v, want penultimate bar %v", last, base.Add(time.Minute))
	}

	// Re-ingest is a no-op.
	if err := svc.IngestLatest1mCandle(context.Background()); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if got := len(store.LatestCandles(testKey, 10)); got != 1 {
		t.Errorf("candle count = %d, want 1", got)
	}
}

func TestBroadcastSignalsTickDegradedWithoutData(t *testing.T) {
	svc, store := newTestService(t, nil)

	env, err := svc.BroadcastSignalsTick()
	if err != nil {
		t.Fatalf("BroadcastSignalsTick: %v", err)
	}
	if env.SystemHealth != "degraded" {
		t.Errorf("health = %s, want degraded with no candles", env.SystemHealth)
	}
	if env.Regime5 != models.RegimeNeutral || env.Regime60 != models.RegimeNeutral {
		t.Error("missing data should default regimes to NEUTRAL")
	}
	if store.OutboxBacklog() != 1 {
		t.Errorf("backlog = %d, want 1 envelope queued", store.OutboxBacklog())
	}
}
