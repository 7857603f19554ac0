// Package events carries domain notifications between the services and
// their side-channel consumers (SMS, manager alerts, the message broker).
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationCancelled = "reservation_cancelled"
	EventUserRegistered       = "user_registered"
	EventDashboardUpdated     = "dashboard_updated"
)

// ReservationEventPayload is the reservation snapshot published on create and cancel.
type ReservationEventPayload struct {
	ReservationID int64  `json:"reservation_id"`
	ResourceID    string `json:"resource_id"`
	AssociationID string `json:"association_id"`
	UserID        int64  `json:"user_id"`
	Date          string `json:"date"`
	Kind          string `json:"kind"`
	TimeSlot      string `json:"time_slot,omitempty"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	ChangedByID   int64  `json:"changed_by_id,omitempty"`
}

type UserEventPayload struct {
	UserID       int64  `json:"user_id"`
	Fullname     string `json:"fullname"`
	MobileNumber string `json:"mobilenumber"`
	Role         string `json:"role"`
}

type DashboardEventPayload struct {
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy int64     `json:"updated_by,omitempty"`
}

type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the event payload into T.
func Decode[T any](event *Event) (T, error) {
	var v T
	if err := json.Unmarshal(event.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return v, nil
}

type EventHandler func(event *Event) error

// ErrorHook observes handler failures; Publish never returns them.
type ErrorHook func(event *Event, err error)

// EventBus is a synchronous in-process pub/sub. Handlers run on the
// publisher's goroutine in subscription order.
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[string][]EventHandler
	onError   ErrorHook
	delivered uint64
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[string][]EventHandler)}
}

func (b *EventBus) OnError(hook ErrorHook) {
	b.mu.Lock()
	b.onError = hook
	b.mu.Unlock()
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// Delivered is the number of handler invocations so far.
func (b *EventBus) Delivered() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.delivered
}

func (b *EventBus) Publish(event *Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	b.mu.Lock()
	subs := b.handlers[event.Type]
	hook := b.onError
	b.delivered += uint64(len(subs))
	b.mu.Unlock()

	// subs is never mutated in place; Subscribe only appends.
	for _, h := range subs {
		if err := h(event); err != nil && hook != nil {
			hook(event, err)
		}
	}
}

// PublishJSON is a no-op on a nil bus so services can run without one.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}
	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
