package signals

import (
	"context"
	"testing"
	"time"

	"github.com/seenimoa/tradecore/internal/errs"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
)

type stubAnalytics struct {
	a   *models.OptionChainAnalytics
	err error
}

func (s *stubAnalytics) Analytics(_ context.Context, _, _ string) (*models.OptionChainAnalytics, error) {
	return s.a, s.err
}

func TestChainSourcePersistsGeneratedSignals(t *testing.T) {
	store, err := storage.New("")
	if err != nil {
		t.Fatal(err)
	}
	src := NewChainSource(&stubAnalytics{a: analyticsWith(0.70, 0.70)}, store, NewPCRTemplate(), "NSE_INDEX|Nifty 50", nil)

	sig, ok := src.Latest(context.Background(), 25000, time.Now())
	if !ok {
		t.Fatal("expected a signal from crowded put/call ratios")
	}
	if sig.Action != models.ActionBuy {
		t.Errorf("action = %s, want BUY", sig.Action)
	}

	rows := store.RecentSignals(10)
	if len(rows) != 1 {
		t.Fatalf("stored signals = %d, want 1", len(rows))
	}
	if rows[0].ID != sig.ID || rows[0].Kind != "PCR" {
		t.Errorf("stored signal = %+v, want the generated PCR signal", rows[0])
	}
}

func TestChainSourceQuietMarketStoresNothing(t *testing.T) {
	store, err := storage.New("")
	if err != nil {
		t.Fatal(err)
	}
	src := NewChainSource(&stubAnalytics{a: analyticsWith(1.00, 1.00)}, store, NewPCRTemplate(), "NSE_INDEX|Nifty 50", nil)

	if _, ok := src.Latest(context.Background(), 25000, time.Now()); ok {
		t.Fatal("neutral ratios should not signal")
	}
	if rows := store.RecentSignals(10); len(rows) != 0 {
		t.Errorf("stored signals = %d, want 0", len(rows))
	}
}

func TestChainSourceAnalyticsFailure(t *testing.T) {
	store, err := storage.New("")
	if err != nil {
		t.Fatal(err)
	}
	stub := &stubAnalytics{err: errs.New(errs.BrokerError, "chain fetch failed")}
	src := NewChainSource(stub, store, NewPCRTemplate(), "NSE_INDEX|Nifty 50", nil)

	if _, ok := src.Latest(context.Background(), 25000, time.Now()); ok {
		t.Fatal("analytics failure should read as no setup")
	}
	if rows := store.RecentSignals(10); len(rows) != 0 {
		t.Errorf("stored signals = %d, want 0", len(rows))
	}
}
