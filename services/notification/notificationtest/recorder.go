// Package notificationtest records bus traffic for assertions in tests.
package notificationtest

import (
	"context"
	"sync"
	"time"

	"github.com/sahilchouksey/booklet-evaluation/services/notification"
)

// Recorder wraps a Bus and keeps every event published through it.
type Recorder struct {
	notification.Bus

	mu      sync.Mutex
	history map[string][]notification.Event
}

// NewRecorder records on top of an in-memory bus.
func NewRecorder() *Recorder {
	return &Recorder{
		Bus:     notification.NewMemoryBus(),
		history: make(map[string][]notification.Event),
	}
}

func (r *Recorder) Publish(ctx context.Context, topic string, ev notification.Event) error {
	r.record(topic, ev)
	return r.Bus.Publish(ctx, topic, ev)
}

func (r *Recorder) Close(ctx context.Context, topic string) error {
	r.record(topic, notification.Event{Kind: notification.KindClose})
	return r.Bus.Close(ctx, topic)
}

func (r *Recorder) record(topic string, ev notification.Event) {
	ev.Topic = topic
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	r.mu.Lock()
	r.history[topic] = append(r.history[topic], ev)
	r.mu.Unlock()
}

// History returns a copy of the events published on topic.
func (r *Recorder) History(topic string) []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.Event, len(r.history[topic]))
	copy(out, r.history[topic])
	return out
}
