package notification

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func collect(t *testing.T, ch <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("Timed out waiting for channel close, got %d events", len(events))
		}
	}
}

func exerciseBus(t *testing.T, bus Bus) {
	ctx := context.Background()

	ch, cancel, err := bus.Subscribe(ctx, "CS101")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer cancel()

	other, cancelOther, err := bus.Subscribe(ctx, "MA201")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer cancelOther()

	pub := NewPublisher(bus, "CS101")
	pub.Status(ctx, StatusStarting)
	pub.Status(ctx, FileOutcome{Status: StatusProcessed, PdfFile: "A.pdf", TotalPages: 10})
	pub.Error(ctx, "Failed to process C.pdf")
	pub.Close(ctx)

	events := collect(t, ch, 2*time.Second)
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d: %+v", len(events), events)
	}
	wantKinds := []string{KindStatus, KindStatus, KindError, KindClose}
	for i, kind := range wantKinds {
		if events[i].Kind != kind {
			t.Fatalf("Event %d: expected kind %s, got %s", i, kind, events[i].Kind)
		}
		if events[i].Topic != "CS101" {
			t.Fatalf("Event %d: expected topic CS101, got %s", i, events[i].Topic)
		}
	}

	select {
	case ev := <-other:
		t.Fatalf("Expected no events on another topic, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus(t *testing.T) {
	bus := NewMemoryBus()
	exerciseBus(t, bus)

	// A closed topic leaves nothing behind.
	bus.fan.mu.Lock()
	_, kept := bus.fan.subs["CS101"]
	bus.fan.mu.Unlock()
	if kept {
		t.Fatalf("Expected CS101 to be dropped after close")
	}
}

func TestMemoryBusDropsUnobservedEvents(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		bus.Publish(ctx, FoldersTopic, Event{Kind: KindFolderUpdate, Data: i})
	}

	ch, cancel, err := bus.Subscribe(ctx, FoldersTopic)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	bus.Publish(ctx, FoldersTopic, Event{Kind: KindFolderList, Data: "latest"})
	cancel()

	events := collect(t, ch, time.Second)
	if len(events) != 1 || events[0].Data != "latest" {
		t.Fatalf("Expected only the event published after subscribing, got %+v", events)
	}
	if n := bus.fan.count(FoldersTopic); n != 0 {
		t.Fatalf("Expected no subscribers after cancel, got %d", n)
	}
}

func TestMemoryBusSubscriberCancel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancelCtx := context.WithCancel(context.Background())

	ch, _, err := bus.Subscribe(ctx, "CS101")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	cancelCtx()

	collect(t, ch, time.Second)

	// Publishing after the subscriber went away must not block or panic.
	if err := bus.Publish(context.Background(), "CS101", Event{Kind: KindStatus, Data: "late"}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
}

func TestRedisBus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseBus(t, NewRedisBus(client))
}
