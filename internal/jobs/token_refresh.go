// Package jobs holds the engine's scheduled background jobs.
package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/internal/bus"
	"github.com/seenimoa/tradecore/pkg/models"
	"github.com/seenimoa/tradecore/pkg/utils"
)

const refreshCallTimeout = 10 * time.Second

// TokenStatus is the payload published on the auth.token topic.
type TokenStatus struct {
	Status string    `json:"status"` // "ok:refreshed", "error", "disabled"
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// TokenRefreshJob refreshes the broker access token daily at a fixed
// IST wall-clock time, optionally once at startup.
type TokenRefreshJob struct {
	gw        broker.Gateway
	bus       *bus.Bus
	log       *logrus.Entry
	enabled   bool
	onStartup bool
	at        string // "HH:MM" IST

	now func() time.Time
}

// NewTokenRefreshJob creates the job. An unparsable schedule falls back
// to 03:20, just before the daily token expiry.
func NewTokenRefreshJob(gw broker.Gateway, b *bus.Bus, log *logrus.Logger, enabled, onStartup bool, at string) *TokenRefreshJob {
	if log == nil {
		log = logrus.New()
	}
	if _, _, err := parseDailyTime(at); err != nil {
		at = "03:20"
	}
	return &TokenRefreshJob{
		gw:        gw,
		bus:       b,
		log:       log.WithField("component", "token-refresh"),
		enabled:   enabled,
		onStartup: onStartup,
		at:        at,
		now:       time.Now,
	}
}

// SetClock overrides the job clock.
func (j *TokenRefreshJob) SetClock(now func() time.Time) { j.now = now }

// Run executes the schedule until the context is cancelled. A disabled
// job announces itself once and exits.
func (j *TokenRefreshJob) Run(ctx context.Context) {
	if !j.enabled {
		j.publish("disabled", "token refresh disabled by config")
		return
	}
	if j.onStartup {
		j.RefreshNow(ctx)
	}
	for {
		next := NextRunAfter(j.now(), j.at)
		timer := time.NewTimer(next.Sub(j.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.RefreshNow(ctx)
		}
	}
}

// RefreshNow performs one refresh and publishes the outcome.
func (j *TokenRefreshJob) RefreshNow(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, refreshCallTimeout)
	defer cancel()
	if err := j.gw.RefreshAccessToken(cctx); err != nil {
		j.log.WithError(err).Error("token refresh failed")
		j.publish("error", err.Error())
		return err
	}
	j.log.Info("access token refreshed")
	j.publish("ok:refreshed", "")
	return nil
}

func (j *TokenRefreshJob) publish(status, detail string) {
	if j.bus == nil {
		return
	}
	if err := j.bus.PublishJSON(models.TopicAuthToken, "token", TokenStatus{
		Status: status, Detail: detail, At: j.now(),
	}); err != nil {
		j.log.WithError(err).Warn("publish token status")
	}
}

// NextRunAfter returns the next IST occurrence of the "HH:MM" schedule
// strictly after now.
func NextRunAfter(now time.Time, at string) time.Time {
	hh, mm, err := parseDailyTime(at)
	if err != nil {
		hh, mm = 3, 20
	}
	n := now.In(utils.IST)
	run := time.Date(n.Year(), n.Month(), n.Day(), hh, mm, 0, 0, utils.IST)
	if !run.After(n) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

func parseDailyTime(at string) (hh, mm int, err error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule %q is not HH:MM", at)
	}
	hh, err = strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("schedule %q has a bad hour", at)
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("schedule %q has a bad minute", at)
	}
	return hh, mm, nil
}
