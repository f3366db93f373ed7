package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
)

// KeepAliveInterval is how often an idle stream is pinged.
const KeepAliveInterval = 15 * time.Second

// Event represents an SSE event to be sent to clients
type Event struct {
	// Event is the SSE event type (e.g., "status", "error", "close")
	// If empty, no "event:" line will be written
	Event string

	// Data is the payload to send (will be JSON-encoded if not a string)
	Data interface{}

	// ID is an optional event ID for reconnection support
	ID string

	// Retry is an optional reconnection time in milliseconds
	Retry int
}

// Send writes an SSE event to the given writer and flushes immediately
func Send(w *bufio.Writer, event Event) error {
	// Write event ID if provided
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}

	// Write retry time if provided
	if event.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return fmt.Errorf("failed to write retry: %w", err)
		}
	}

	// Write event type if provided
	if event.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Event); err != nil {
			return fmt.Errorf("failed to write event type: %w", err)
		}
	}

	// Write data
	var dataStr string
	switch v := event.Data.(type) {
	case string:
		dataStr = v
	case []byte:
		dataStr = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		dataStr = string(data)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", dataStr); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	return w.Flush()
}

// SendError sends an error event
func SendError(w *bufio.Writer, err error) error {
	return Send(w, Event{
		Event: "error",
		Data: map[string]interface{}{
			"type":    "error",
			"message": err.Error(),
		},
	})
}

// SendKeepAlive sends a comment (: ping) to keep the connection alive
// Useful for long-running operations to prevent proxy timeouts
func SendKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
		return fmt.Errorf("failed to write keepalive: %w", err)
	}
	return w.Flush()
}

// FromBus converts a bus event into an SSE event named after its kind.
func FromBus(ev notification.Event) Event {
	return Event{Event: ev.Kind, Data: ev}
}

// Stream writes events from ch until it is closed or a write fails. A
// keepalive comment is sent whenever nothing was written for keepAlive.
func Stream(w *bufio.Writer, ch <-chan notification.Event, keepAlive time.Duration) error {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := Send(w, FromBus(ev)); err != nil {
				return err
			}
			ticker.Reset(keepAlive)
		case <-ticker.C:
			if err := SendKeepAlive(w); err != nil {
				return err
			}
		}
	}
}

// ServeTopic subscribes to topic and streams its events to the client until
// the topic closes or the client goes away. The subscription is taken
// before the handler returns so no event published afterwards is missed.
func ServeTopic(c *fiber.Ctx, bus notification.Bus, topic string) error {
	ctx, cancel := context.WithCancel(context.Background())
	ch, unsubscribe, err := bus.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer unsubscribe()

		if err := Send(w, Event{Event: "connected", Data: map[string]string{"topic": topic}}); err != nil {
			return
		}
		if err := Stream(w, ch, KeepAliveInterval); err != nil {
			log.Debugf("[EVENTS] stream for %s ended: %v", topic, err)
		}
	})
	return nil
}
