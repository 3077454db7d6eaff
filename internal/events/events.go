package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSlotBooked    = "slot_booked"
	EventSlotCancelled = "slot_cancelled"
	EventSlotConflict  = "slot_conflict"
	EventSyncCompleted = "sync_completed"
)

// SlotEventPayload — минимальный снимок слота для подписчиков.
type SlotEventPayload struct {
	SlotID       int64     `json:"slot_id"`
	CalendarID   string    `json:"calendar_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Summary      string    `json:"summary,omitempty"`
	OwningUserID int64     `json:"owning_user_id,omitempty"`
	ClientData   string    `json:"client_data,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// SyncEventPayload публикуется после каждого прохода синхронизации.
type SyncEventPayload struct {
	CalendarID string `json:"calendar_id"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Stale      int    `json:"stale"`
	Flagged    int    `json:"flagged"`
	Failures   int    `json:"failures"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
