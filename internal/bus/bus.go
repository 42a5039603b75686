// Package bus is the in-process event bus. Publishers fan events out to
// topic subscribers over buffered channels; a full subscriber drops the
// event and counts it rather than blocking the publisher.
package bus

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event is a keyed message on a topic. Payload is JSON.
type Event struct {
	Topic   string          `json:"topic"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

type subscriber struct {
	topic string
	ch    chan Event
}

// Bus routes events to topic subscribers. The empty topic subscribes to
// every event.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscriber
	dropped atomic.Int64
}

// New creates an event bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a buffered subscription to topic ("" for all
// topics). The returned cancel func closes the channel and must be
// called exactly once.
func (b *Bus) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{topic: topic, ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(s.ch)
				break
			}
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the event to all matching subscribers without
// blocking; events to full subscribers are dropped and counted.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.topic != "" && s.topic != ev.Topic {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishJSON marshals payload and publishes it on topic with key.
func (b *Bus) PublishJSON(topic, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Topic: topic, Key: key, Payload: raw})
	return nil
}

// Dropped returns the number of events dropped due to slow subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
