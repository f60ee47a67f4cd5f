package jobs

import (
	"sync"
	"time"
)

// EventType classifies job lifecycle messages.
type EventType string

const (
	EventStarted   EventType = "started"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
)

// Event is a sequenced lifecycle record consumed by the UI.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"jobId"`
	Category  Category  `json:"category"`
	Type      EventType `json:"type"`
	Message   string    `json:"message,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// DefaultMaxEvents bounds a bus created without an explicit size.
const DefaultMaxEvents = 200

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Last returns up to n most recent events, oldest first.
func (b *EventBus) Last(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || len(b.events) == 0 {
		return nil
	}
	if n > len(b.events) {
		n = len(b.events)
	}
	return append([]Event(nil), b.events[len(b.events)-n:]...)
}
