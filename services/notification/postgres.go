package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgChannelPrefix = "booklet_events_"

// PostgresBus uses LISTEN/NOTIFY so deployments without Redis still get
// cross-instance progress events. A single connection listens for every
// topic that has a local subscriber.
type PostgresBus struct {
	db       *gorm.DB
	listener *pq.Listener
	fan      *fanout

	mu       sync.Mutex
	channels map[string]string // pg channel -> topic
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPostgresBus opens the listener connection with dsn. db is used for
// pg_notify on publish.
func NewPostgresBus(db *gorm.DB, dsn string) (*PostgresBus, error) {
	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warnf("[EVENTS] postgres listener event %d: %v", ev, err)
		}
	})
	if err := listener.Ping(); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to reach postgres listener: %w", err)
	}

	b := &PostgresBus{
		db:       db,
		listener: listener,
		fan:      newFanout(64),
		channels: make(map[string]string),
		stop:     make(chan struct{}),
	}
	go b.dispatch()
	return b, nil
}

func pgChannel(topic string) string {
	return pgChannelPrefix + topic
}

func (b *PostgresBus) dispatch() {
	for {
		select {
		case <-b.stop:
			return
		case n, ok := <-b.listener.Notify:
			if !ok {
				return
			}
			// nil is sent after a reconnect; events in between are lost.
			if n == nil {
				continue
			}
			b.mu.Lock()
			topic, known := b.channels[n.Channel]
			b.mu.Unlock()
			if !known {
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				log.Warnf("[EVENTS] dropping malformed notification on %s: %v", n.Channel, err)
				continue
			}
			b.fan.deliver(topic, ev)
		}
	}
}

func (b *PostgresBus) Publish(ctx context.Context, topic string, ev Event) error {
	payload, err := json.Marshal(stamp(topic, ev))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", pgChannel(topic), string(payload)).Error
}

func (b *PostgresBus) Subscribe(ctx context.Context, topic string) (<-chan Event, func(), error) {
	channel := pgChannel(topic)

	b.mu.Lock()
	_, listening := b.channels[channel]
	if !listening {
		if err := b.listener.Listen(channel); err != nil && err != pq.ErrChannelAlreadyOpen {
			b.mu.Unlock()
			return nil, nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
		}
		b.channels[channel] = topic
	}
	b.mu.Unlock()

	ch, cancel, _ := b.fan.add(ctx, topic)
	return ch, cancel, nil
}

func (b *PostgresBus) Close(ctx context.Context, topic string) error {
	return b.Publish(ctx, topic, Event{Kind: KindClose})
}

// Shutdown stops dispatching and closes the listener connection.
func (b *PostgresBus) Shutdown() error {
	b.stopOnce.Do(func() { close(b.stop) })
	return b.listener.Close()
}
