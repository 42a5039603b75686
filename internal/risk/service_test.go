package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
)

func baseline() models.RiskConfig {
	return models.RiskConfig{
		Enabled:         true,
		MaxDailyLoss:    25000,
		LotsCap:         10,
		OrdersPerMinCap: 10,
		PerOrderRiskPct: 25,
	}
}

func newTestService(t *testing.T, cfg models.RiskConfig) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.New("")
	if err != nil {
		t.Fatal(err)
	}
	return New(store, infra.NewKV("test:"), nil, cfg, 75), store
}

func intent() models.OrderIntent {
	return models.OrderIntent{
		InstrumentToken: "NSE_FO|12345",
		Symbol:          "NIFTY26AUG25000CE",
		TxnType:         models.Buy,
		Qty:             75,
		Price:           100,
		Lots:            1,
		OpensNew:        true,
		Ref:             "adv-1",
	}
}

func TestCheckOrderPasses(t *testing.T) {
	svc, store := newTestService(t, baseline())
	if err := svc.CheckOrder(intent()); err != nil {
		t.Fatalf("CheckOrder: %v", err)
	}
	events := store.RiskEventsSince(time.Time{})
	if len(events) != 1 || events[0].Type != "PASS" || events[0].Breached {
		t.Errorf("events = %+v, want one PASS", events)
	}
}

func TestCheckOrderDisabledWinsFirst(t *testing.T) {
	cfg := baseline()
	cfg.Enabled = false
	svc, store := newTestService(t, cfg)
	svc.SetKillSwitch(true) // later check must not mask the first failure

	err := svc.CheckOrder(intent())
	if errs.KindOf(err) != errs.RiskDisabled {
		t.Fatalf("kind = %s, want RISK_DISABLED", errs.KindOf(err))
	}
	events := store.RiskEventsSince(time.Time{})
	if len(events) != 1 || !events[0].Breached || events[0].Type != string(errs.RiskDisabled) {
		t.Errorf("events = %+v, want one breached RISK_DISABLED", events)
	}
}

func TestCheckOrderKillSwitchOnlyBlocksNewOpens(t *testing.T) {
	svc, _ := newTestService(t, baseline())
	svc.SetKillSwitch(true)

	if err := svc.CheckOrder(intent()); errs.KindOf(err) != errs.KillSwitch {
		t.Errorf("new-open kind = %s, want KILL_SWITCH", errs.KindOf(err))
	}

	closing := intent()
	closing.OpensNew = false
	closing.TxnType = models.Sell
	if err := svc.CheckOrder(closing); err != nil {
		t.Errorf("closing intent blocked: %v", err)
	}
}

func TestDailyLossTripsCircuit(t *testing.T) {
	svc, _ := newTestService(t, baseline())
	svc.AddRealizedPnl(-26000)

	if !svc.CircuitState().Tripped {
		t.Fatal("circuit should trip when the loss budget is exhausted")
	}
	if err := svc.CheckOrder(intent()); errs.KindOf(err) != errs.CircuitLockout {
		t.Errorf("kind = %s, want CIRCUIT_LOCKOUT while tripped", errs.KindOf(err))
	}

	// An admin reset with the loss still on the book re-breaches on the
	// daily-loss check and re-trips.
	svc.ResetCircuit()
	if err := svc.CheckOrder(intent()); errs.KindOf(err) != errs.DailyLossBreach {
		t.Errorf("kind = %s, want DAILY_LOSS_BREACH after reset", errs.KindOf(err))
	}
	if !svc.CircuitState().Tripped {
		t.Error("circuit should re-trip")
	}
}

func TestCheckOrderPerOrderRisk(t *testing.T) {
	svc, _ := newTestService(t, baseline())

	big := intent()
	big.Price = 2000 // notional 150000, 25% = 37500 > 25000 budget
	if err := svc.CheckOrder(big); errs.KindOf(err) != errs.PerOrderRisk {
		t.Errorf("kind = %s, want PER_ORDER_RISK", errs.KindOf(err))
	}
}

func TestCheckOrderLotsCap(t *testing.T) {
	svc, _ := newTestService(t, baseline())
	svc.AddLots(9)

	two := intent()
	two.Qty = 150
	two.Lots = 2
	if err := svc.CheckOrder(two); errs.KindOf(err) != errs.LotsCap {
		t.Errorf("kind = %s, want LOTS_CAP", errs.KindOf(err))
	}

	one := intent()
	if err := svc.CheckOrder(one); err != nil {
		t.Errorf("one lot within cap blocked: %v", err)
	}
}

func TestCheckOrderDerivesLotsFromQty(t *testing.T) {
	svc, _ := newTestService(t, baseline())
	svc.AddLots(9)

	in := intent()
	in.Lots = 0
	in.Qty = 150 // 2 lots at lot size 75
	if err := svc.CheckOrder(in); errs.KindOf(err) != errs.LotsCap {
		t.Errorf("kind = %s, want LOTS_CAP from derived lots", errs.KindOf(err))
	}
}

func TestCheckOrderRateLimit(t *testing.T) {
	cfg := baseline()
	cfg.OrdersPerMinCap = 3
	svc, _ := newTestService(t, cfg)

	for i := 0; i < 3; i++ {
		if err := svc.CheckOrder(intent()); err != nil {
			t.Fatalf("order %d: %v", i+1, err)
		}
		svc.NoteOrderPlaced()
	}
	if err := svc.CheckOrder(intent()); errs.KindOf(err) != errs.RateLimit {
		t.Errorf("kind = %s, want RATE_LIMIT on the fourth order", errs.KindOf(err))
	}
}

func TestBrokerFailuresOpenBreaker(t *testing.T) {
	svc, _ := newTestService(t, baseline())
	for i := 0; i < 5; i++ {
		svc.NoteBrokerResult(errors.New("connection reset"))
	}

	if err := svc.CheckOrder(intent()); errs.KindOf(err) != errs.CircuitLockout {
		t.Errorf("kind = %s, want CIRCUIT_LOCKOUT with the breaker open", errs.KindOf(err))
	}
	snap := svc.Snapshot()
	if !snap.CircuitBreakerLockout || snap.RiskHeadroomOk {
		t.Errorf("snapshot = %+v, want breaker lockout without headroom", snap)
	}
}

func TestStoredConfigOverridesBaseline(t *testing.T) {
	svc, _ := newTestService(t, baseline())
	svc.UpdateConfig(models.RiskConfig{Enabled: false})

	if err := svc.CheckOrder(intent()); errs.KindOf(err) != errs.RiskDisabled {
		t.Errorf("kind = %s, want RISK_DISABLED from the stored row", errs.KindOf(err))
	}
}

func TestMidnightRolloverResetsPosture(t *testing.T) {
	svc, _ := newTestService(t, baseline())

	day1 := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return day1 })
	svc.AddRealizedPnl(-26000)
	svc.RecordStopLossHit()
	if !svc.CircuitState().Tripped {
		t.Fatal("circuit should trip on day one")
	}

	day2 := day1.Add(24 * time.Hour)
	svc.SetClock(func() time.Time { return day2 })
	if svc.CircuitState().Tripped {
		t.Error("circuit should reset after the IST rollover")
	}
	snap := svc.Snapshot()
	if snap.RealizedPnlToday != 0 || snap.RestrikesToday != 0 {
		t.Errorf("snapshot = %+v, want daily counters reset", snap)
	}
	if !snap.RiskHeadroomOk {
		t.Error("headroom should recover on the new day")
	}
}

func TestApplyFillOpensAndClosesRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, baseline())

	svc.ApplyFill("NSE_FO|12345", models.Buy, 75, 100, models.MIS)
	if got := svc.OpenPosition("NSE_FO|12345"); got != 75 {
		t.Fatalf("position = %d, want 75 after entry", got)
	}
	if snap := svc.Snapshot(); snap.LotsUsed != 1 || snap.RealizedPnlToday != 0 {
		t.Fatalf("snapshot = %+v, want 1 lot held and nothing realized", snap)
	}

	svc.ApplyFill("NSE_FO|12345", models.Sell, 75, 110, models.MIS)
	if got := svc.OpenPosition("NSE_FO|12345"); got != 0 {
		t.Errorf("position = %d, want flat after exit", got)
	}
	snap := svc.Snapshot()
	if snap.LotsUsed != 0 {
		t.Errorf("lots used = %d, want 0 after exit", snap.LotsUsed)
	}
	want := broker.CalculateBrokerage(100, 110, 75, models.MIS).NetPnL
	if snap.RealizedPnlToday != want {
		t.Errorf("realized = %.2f, want %.2f net of charges", snap.RealizedPnlToday, want)
	}
}

func TestApplyFillLossTripsDailyCircuit(t *testing.T) {
	cfg := baseline()
	cfg.MaxDailyLoss = 500
	svc, _ := newTestService(t, cfg)

	svc.ApplyFill("NSE_FO|12345", models.Buy, 75, 110, models.MIS)
	svc.ApplyFill("NSE_FO|12345", models.Sell, 75, 100, models.MIS)

	if !svc.CircuitState().Tripped {
		t.Error("realized loss past the budget should trip the circuit")
	}
}

func TestApplyFillAveragesAddOns(t *testing.T) {
	svc, _ := newTestService(t, baseline())

	svc.ApplyFill("NSE_FO|12345", models.Buy, 75, 100, models.MIS)
	svc.ApplyFill("NSE_FO|12345", models.Buy, 75, 120, models.MIS)
	if got := svc.OpenPosition("NSE_FO|12345"); got != 150 {
		t.Fatalf("position = %d, want 150", got)
	}
	if snap := svc.Snapshot(); snap.LotsUsed != 2 {
		t.Fatalf("lots used = %d, want 2", snap.LotsUsed)
	}

	// Exit at the blended entry of 110: gross zero, net is the charges.
	svc.ApplyFill("NSE_FO|12345", models.Sell, 150, 110, models.MIS)
	want := broker.CalculateBrokerage(110, 110, 150, models.MIS).NetPnL
	if snap := svc.Snapshot(); snap.RealizedPnlToday != want {
		t.Errorf("realized = %.2f, want %.2f", snap.RealizedPnlToday, want)
	}
}

func TestSnapshotPersistsAndReports(t *testing.T) {
	svc, store := newTestService(t, baseline())
	svc.AddRealizedPnl(-5000)
	svc.AddLots(3)
	svc.NoteOrderPlaced()
	svc.NoteOrderPlaced()

	snap := svc.Snapshot()
	if snap.DailyLossAbs != 5000 || snap.DailyLossPct != 20 {
		t.Errorf("loss = (%.0f, %.0f%%), want (5000, 20%%)", snap.DailyLossAbs, snap.DailyLossPct)
	}
	if snap.RiskBudgetLeft != 20000 {
		t.Errorf("budget left = %.0f, want 20000", snap.RiskBudgetLeft)
	}
	if snap.LotsUsed != 3 || snap.OrdersPerMin != 2 {
		t.Errorf("usage = (%d lots, %d/min), want (3, 2)", snap.LotsUsed, snap.OrdersPerMin)
	}
	if !snap.RiskHeadroomOk {
		t.Error("headroom should remain with 20% loss")
	}

	stored, ok := store.LatestRiskSnapshot()
	if !ok || stored.DailyLossAbs != snap.DailyLossAbs {
		t.Error("snapshot should persist")
	}
}
