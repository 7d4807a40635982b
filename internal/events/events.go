// Package events fans synchronization progress out to in-process
// subscribers, Server-Sent Events clients and NATS.
package events

import (
	"sync"
	"time"
)

// Type names an event
type Type string

const (
	SyncStarted   Type = "sync.started"
	SyncProgress  Type = "sync.progress"
	SyncCompleted Type = "sync.completed"
	SyncFailed    Type = "sync.failed"
	JobKilled     Type = "job.killed"
	SeedReloaded  Type = "seed.reloaded"
)

// Event is one occurrence published on the bus
type Event struct {
	Type    Type      `json:"type"`
	JobID   string    `json:"job_id,omitempty"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// Progress is published after each provider of a run finishes
type Progress struct {
	ProviderID string `json:"provider_id"`
	Group      string `json:"group"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Results    int    `json:"results"`
}

// Completion is published once when a run ends
type Completion struct {
	Mode      string `json:"mode"`
	Steps     int    `json:"steps"`
	Results   int    `json:"results"`
	Errors    int    `json:"errors"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Publisher accepts events
type Publisher interface {
	Publish(Event)
}

// Bus delivers events to subscribers without blocking the publisher. A
// subscriber that is not keeping up misses events.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds a subscriber
func (b *Bus) Subscribe(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, ch)
}

// Unsubscribe removes a subscriber. The channel is not closed.
func (b *Bus) Unsubscribe(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to every subscriber. A zero Time is set to now.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(Event) {}
