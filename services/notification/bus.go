package notification

import (
	"context"
	"errors"
	"time"
)

// Event kinds carried on a topic.
const (
	KindStatus       = "status"
	KindError        = "error"
	KindClose        = "close"
	KindFolderAdd    = "folder-add"
	KindFolderUpdate = "folder-update"
	KindFolderRemove = "folder-remove"
	KindFolderList   = "folder-list"
)

// FoldersTopic carries SubjectFolder changes.
const FoldersTopic = "folders"

// Status lines published by classification runs.
const (
	StatusStarting   = "Starting verification..."
	StatusVerified   = "Verification completed. Processing PDFs..."
	StatusNoPDFs     = "No PDFs found in the scanned folder. Terminating process."
	StatusCompleted  = "Processing completed!"
	StatusCancelled  = "Processing cancelled"
	StatusProcessed  = "Processed"
	StatusRejected   = "Rejected"
	StatusExtracting = "Extracting images"
)

var ErrBusClosed = errors.New("event bus closed")

// Event is one message on a topic. Data is a string for free-text status
// and error lines, or a struct such as FileOutcome.
type Event struct {
	Topic string      `json:"topic"`
	Kind  string      `json:"kind"`
	Data  interface{} `json:"data"`
	Time  time.Time   `json:"time"`
}

// FileOutcome is the per-booklet result of a classification run.
type FileOutcome struct {
	Status     string `json:"status"`
	PdfFile    string `json:"pdfFile"`
	TotalPages int    `json:"totalPages"`
}

// Bus is a publish/subscribe channel with one topic per subject code.
//
// Subscribe returns a channel that receives events published after the
// call, and a cancel func that must be called to release it. The channel
// is closed after a KindClose event is delivered, when ctx ends, or on
// cancel. Close publishes KindClose on the topic.
type Bus interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topic string) (<-chan Event, func(), error)
	Close(ctx context.Context, topic string) error
}

// Publisher is the write half of a Bus, bound to one topic. Classification
// runs receive one of these rather than the whole bus.
type Publisher struct {
	bus   Bus
	topic string
}

func NewPublisher(bus Bus, topic string) *Publisher {
	return &Publisher{bus: bus, topic: topic}
}

func (p *Publisher) Topic() string {
	return p.topic
}

func (p *Publisher) Status(ctx context.Context, data interface{}) error {
	return p.bus.Publish(ctx, p.topic, Event{Kind: KindStatus, Data: data})
}

func (p *Publisher) Error(ctx context.Context, message string) error {
	return p.bus.Publish(ctx, p.topic, Event{Kind: KindError, Data: message})
}

func (p *Publisher) Publish(ctx context.Context, kind string, data interface{}) error {
	return p.bus.Publish(ctx, p.topic, Event{Kind: kind, Data: data})
}

func (p *Publisher) Close(ctx context.Context) error {
	return p.bus.Close(ctx, p.topic)
}

func stamp(topic string, ev Event) Event {
	ev.Topic = topic
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	return ev
}
