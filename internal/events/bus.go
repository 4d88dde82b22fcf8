package events

import (
	"sync"
	"time"
)

// Kind distinguishes the event families the pipeline emits.
type Kind string

const (
	KindJobTransition Kind = "job_transition"
	KindPostingUpsert Kind = "posting_upsert"
)

// UpsertOutcome is the result of pushing one posting through the dedup/sink stage.
type UpsertOutcome string

const (
	OutcomeNew       UpsertOutcome = "new"
	OutcomeDuplicate UpsertOutcome = "duplicate"
	OutcomeError     UpsertOutcome = "error"
)

// Event is a single operator-facing pipeline event. Job transition events
// carry From/To/Attempt; posting upsert events carry CanonicalID/Fingerprint/
// Outcome. The CRUD layer consumes these to render a status view without the
// core exposing HTTP itself.
type Event struct {
	Kind        Kind          `json:"kind"`
	Site        string        `json:"site"`
	JobID       string        `json:"job_id,omitempty"`
	From        string        `json:"from,omitempty"`
	To          string        `json:"to,omitempty"`
	Attempt     int           `json:"attempt,omitempty"`
	CanonicalID string        `json:"canonical_id,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Outcome     UpsertOutcome `json:"outcome,omitempty"`
	Error       string        `json:"error,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Bus fans pipeline events out to subscribers. Publish never blocks: a
// subscriber that falls behind misses events rather than stalling workers.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its receive channel.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	return ch
}

// Publish delivers the event to every subscriber that has buffer capacity.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
