package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventEngineStarted      EventType = "EngineStarted"
	EventEngineStopped      EventType = "EngineStopped"
	EventRegistryRefreshed  EventType = "RegistryRefreshed"
	EventHeartbeatFetchFail EventType = "HeartbeatFetchFail"
	EventBindingUnresolved  EventType = "BindingUnresolved"
	EventPinDriveFail       EventType = "PinDriveFail"
)

type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"ts"`
	Monitor   string         `json:"monitor,omitempty"`
	Pin       int            `json:"pin,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New stamps an event with a fresh id and timestamp.
func New(t EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

type Recorder interface {
	Record(event Event)
}

type NoopRecorder struct{}

func (NoopRecorder) Record(event Event) {}

type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(event Event) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(event)
		}
	}
}

// LogRecorder writes one line per event to the daemon log.
type LogRecorder struct {
	Logger *log.Logger
}

func (r LogRecorder) Record(event Event) {
	if r.Logger == nil {
		return
	}
	r.Logger.Printf("event %s monitor=%q pin=%d details=%v", event.Type, event.Monitor, event.Pin, event.Details)
}

// Ring keeps the most recent events for the debug endpoint.
type Ring struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 64
	}
	return &Ring{events: make([]Event, capacity)}
}

func (r *Ring) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = event
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.full = true
	}
}

// Snapshot returns the buffered events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Event, r.next)
		copy(out, r.events[:r.next])
		return out
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	out = append(out, r.events[:r.next]...)
	return out
}
