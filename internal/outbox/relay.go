// Package outbox drains the transactional outbox to the event bus.
package outbox

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/bus"
	"github.com/seenimoa/tradecore/internal/storage"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 100
)

// Relay is the single reader of the outbox. It polls unpublished events
// oldest first, publishes each to the bus, and marks it published.
// Rows that fail to mark stay behind for the next poll, so delivery is
// at-least-once and consumers must dedupe by event id.
type Relay struct {
	store *storage.Store
	bus   *bus.Bus
	log   *logrus.Entry

	pollInterval time.Duration
	batchSize    int

	now func() time.Time
}

// NewRelay creates the relay with the default cadence.
func NewRelay(store *storage.Store, b *bus.Bus, log *logrus.Logger) *Relay {
	if log == nil {
		log = logrus.New()
	}
	return &Relay{
		store:        store,
		bus:          b,
		log:          log.WithField("component", "outbox-relay"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		now:          time.Now,
	}
}

// SetClock overrides the relay clock.
func (r *Relay) SetClock(now func() time.Time) { r.now = now }

// SetPollInterval overrides the poll cadence.
func (r *Relay) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// Run drains the outbox until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.DrainOnce()
		}
	}
}

// DrainOnce publishes one batch of unpublished events and returns how
// many were delivered.
func (r *Relay) DrainOnce() int {
	pending := r.store.UnpublishedOutbox(r.batchSize)
	delivered := 0
	for _, ev := range pending {
		r.bus.Publish(bus.Event{
			Topic:   ev.Topic,
			Key:     ev.Key,
			Payload: ev.Payload,
			At:      ev.CreatedAt,
		})
		if err := r.store.MarkPublished(ev.ID, r.now()); err != nil {
			// Left unmarked; the next poll republishes it.
			r.log.WithError(err).WithField("event_id", ev.ID).Warn("mark published failed")
			continue
		}
		delivered++
	}
	if delivered > 0 {
		r.log.WithField("delivered", delivered).Debug("outbox drained")
	}
	return delivered
}

// Backlog reports the number of unpublished events.
func (r *Relay) Backlog() int {
	return r.store.OutboxBacklog()
}
