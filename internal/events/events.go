package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationCreated       = "reservation_created"
	EventReservationStatusChanged = "reservation_status_changed"
	EventOverrideChanged          = "override_changed"
	EventServiceChanged           = "service_changed"
	EventProfessionalChanged      = "professional_changed"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// ReservationEventPayload is the reservation snapshot carried by change events.
type ReservationEventPayload struct {
	ReservationID  int64     `json:"reservation_id"`
	ProfessionalID int64     `json:"professional_id"`
	ClientID       int64     `json:"client_id,omitempty"`
	ClientName     string    `json:"client_name"`
	ServiceID      int64     `json:"service_id,omitempty"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Guest          bool      `json:"guest"`
	ChangedByID    int64     `json:"changed_by_id,omitempty"`
}

// OverrideEventPayload describes an override write or removal.
type OverrideEventPayload struct {
	OverrideID     int64     `json:"override_id"`
	ProfessionalID int64     `json:"professional_id"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Status         string    `json:"status,omitempty"`
	Action         string    `json:"action"`
}

// CatalogEventPayload describes a professional or service change.
type CatalogEventPayload struct {
	ID             int64  `json:"id"`
	ProfessionalID int64  `json:"professional_id"`
	Action         string `json:"action"`
}

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event represents a lightweight domain event.
type Event struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	ProfessionalID int64           `json:"professional_id"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	// Origin is set on events received from another instance.
	Origin string `json:"origin,omitempty"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]subscription
	nextID      uint64
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]subscription)}
}

// Subscribe registers a handler for a given event type (or AllEvents) and
// returns a function that removes it.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish notifies subscribers of the event type and wildcard subscribers.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	subs = append(subs, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	for _, s := range subs {
		// Handlers run synchronously; caller decides concurrency model.
		_ = s.handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event scoped to a professional.
func (b *EventBus) PublishJSON(eventType string, professionalID int64, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, professionalID, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, professionalID int64, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		ProfessionalID: professionalID,
		Payload:        raw,
		CreatedAt:      time.Now(),
	}, nil
}
