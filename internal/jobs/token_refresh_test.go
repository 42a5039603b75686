package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/seenimoa/tradecore/internal/broker/brokertest"
	"github.com/seenimoa/tradecore/internal/bus"
	"github.com/seenimoa/tradecore/pkg/models"
	"github.com/seenimoa/tradecore/pkg/utils"
)

func TestNextRunAfter(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		at   string
		want time.Time
	}{
		{
			"before today's slot",
			time.Date(2026, 8, 25, 2, 0, 0, 0, utils.IST),
			"03:20",
			time.Date(2026, 8, 25, 3, 20, 0, 0, utils.IST),
		},
		{
			"after today's slot rolls to tomorrow",
			time.Date(2026, 8, 25, 9, 0, 0, 0, utils.IST),
			"03:20",
			time.Date(2026, 8, 26, 3, 20, 0, 0, utils.IST),
		},
		{
			"exactly at the slot rolls to tomorrow",
			time.Date(2026, 8, 25, 3, 20, 0, 0, utils.IST),
			"03:20",
			time.Date(2026, 8, 26, 3, 20, 0, 0, utils.IST),
		},
		{
			"bad schedule falls back to 03:20",
			time.Date(2026, 8, 25, 2, 0, 0, 0, utils.IST),
			"half past three",
			time.Date(2026, 8, 25, 3, 20, 0, 0, utils.IST),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRunAfter(tt.now, tt.at); !got.Equal(tt.want) {
				t.Errorf("NextRunAfter = %v, want %v", got, tt.want)
			}
		})
	}
}

func statusOf(t *testing.T, ev bus.Event) TokenStatus {
	t.Helper()
	var st TokenStatus
	if err := json.Unmarshal(ev.Payload, &st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestRefreshNowPublishesOutcome(t *testing.T) {
	gw := brokertest.New()
	b := bus.New()
	events, cancel := b.Subscribe(models.TopicAuthToken, 8)
	defer cancel()
	job := NewTokenRefreshJob(gw, b, nil, true, false, "03:20")

	if err := job.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	if st := statusOf(t, <-events); st.Status != "ok:refreshed" {
		t.Errorf("status = %s, want ok:refreshed", st.Status)
	}

	gw.RefreshFunc = func(context.Context) error { return errors.New("invalid client secret") }
	if err := job.RefreshNow(context.Background()); err == nil {
		t.Fatal("want error from failed refresh")
	}
	st := statusOf(t, <-events)
	if st.Status != "error" || st.Detail == "" {
		t.Errorf("status = %+v, want error with detail", st)
	}
}

func TestRunDisabledAnnouncesAndExits(t *testing.T) {
	gw := brokertest.New()
	b := bus.New()
	events, cancel := b.Subscribe(models.TopicAuthToken, 8)
	defer cancel()
	job := NewTokenRefreshJob(gw, b, nil, false, true, "03:20")

	done := make(chan struct{})
	go func() {
		job.Run(context.Background())
		close(done)
	}()

	select {
	case ev := <-events:
		if st := statusOf(t, ev); st.Status != "disabled" {
			t.Errorf("status = %s, want disabled", st.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no disabled announcement")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled job should exit immediately")
	}
}

func TestRunOnStartupRefreshes(t *testing.T) {
	gw := brokertest.New()
	refreshed := make(chan struct{}, 1)
	gw.RefreshFunc = func(context.Context) error {
		refreshed <- struct{}{}
		return nil
	}
	b := bus.New()
	job := NewTokenRefreshJob(gw, b, nil, true, true, "03:20")

	ctx, cancel := context.WithCancel(context.Background())
	go job.Run(ctx)

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("startup refresh did not run")
	}
	cancel()
}
