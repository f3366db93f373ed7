package notification

import (
	"context"
	"sync"
)

// fanout delivers events to the local subscribers of each topic.
type fanout struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

func newFanout(buffer int) *fanout {
	return &fanout{subs: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// add registers a subscriber and reports whether it is the first one on
// the topic.
func (f *fanout) add(ctx context.Context, topic string) (<-chan Event, func(), bool) {
	sub := &subscriber{ch: make(chan Event, f.buffer), done: make(chan struct{})}

	f.mu.Lock()
	first := len(f.subs[topic]) == 0
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[*subscriber]struct{})
	}
	f.subs[topic][sub] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		f.remove(topic, sub)
		f.mu.Unlock()
		sub.close()
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.ch, cancel, first
}

// deliver sends ev to every subscriber of topic. A close event ends the
// subscriptions after delivery.
func (f *fanout) deliver(topic string, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs[topic] {
		select {
		case sub.ch <- ev:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
		if ev.Kind == KindClose {
			sub.close()
			f.remove(topic, sub)
		}
	}
}

// remove drops sub and forgets the topic once nobody listens. Callers hold mu.
func (f *fanout) remove(topic string, sub *subscriber) {
	delete(f.subs[topic], sub)
	if len(f.subs[topic]) == 0 {
		delete(f.subs, topic)
	}
}

func (f *fanout) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[topic])
}

// MemoryBus delivers events in-process. Events published with no
// subscriber are dropped; nothing is retained per topic.
type MemoryBus struct {
	fan *fanout
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{fan: newFanout(256)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, ev Event) error {
	b.fan.deliver(topic, stamp(topic, ev))
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (<-chan Event, func(), error) {
	ch, cancel, _ := b.fan.add(ctx, topic)
	return ch, cancel, nil
}

func (b *MemoryBus) Close(ctx context.Context, topic string) error {
	return b.Publish(ctx, topic, Event{Kind: KindClose})
}
