package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is an in-process domain event carrying an order reference and a
// JSON payload.
type Event struct {
	ID         uuid.UUID
	Topic      string
	OrderID    string
	Payload    json.RawMessage
	OccurredAt time.Time
}

// Notifier reacts to emitted events (e.g. order bookkeeping, metrics).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

// Bus fans events out to registered notifiers. Subscription is expected to
// happen during startup; Emit may be called concurrently afterwards.
type Bus struct {
	mu        sync.RWMutex
	notifiers map[string][]Notifier
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{notifiers: make(map[string][]Notifier)}
}

// Subscribe registers a notifier for the given topic.
func (b *Bus) Subscribe(topic string, notifier Notifier) {
	if notifier == nil {
		return
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifiers[topic] = append(b.notifiers[topic], notifier)
}

// Emit builds the event and dispatches it to all notifiers subscribed to the
// topic. Notifier errors are joined and returned but do not stop dispatch.
func (b *Bus) Emit(ctx context.Context, topic, orderID string, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Event{}, errors.New("events: order id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev := Event{
		ID:         uuid.New(),
		Topic:      topic,
		OrderID:    orderID,
		Payload:    encoded,
		OccurredAt: time.Now().UTC(),
	}

	b.mu.RLock()
	subscribers := append([]Notifier(nil), b.notifiers[topic]...)
	b.mu.RUnlock()

	var joined error
	for _, notifier := range subscribers {
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		return encodePayload([]byte(v))
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		return encodePayload([]byte(v))
	default:
		return json.Marshal(v)
	}
}
