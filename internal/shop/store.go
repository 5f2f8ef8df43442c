package shop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/abilian/taler-go/internal/events"
)

// Order status values tracked by the storefront.
const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"
)

// ErrOrderNotFound is returned when a lookup misses.
var ErrOrderNotFound = errors.New("shop: order not found")

// Order is the storefront's view of a purchase.
type Order struct {
	OrderID    string          `json:"order_id"`
	ProductID  string          `json:"product_id"`
	Status     string          `json:"status"`
	PaymentURI string          `json:"payment_uri,omitempty"`
	RefundID   string          `json:"refund_id,omitempty"`
	LastEvent  json.RawMessage `json:"last_event,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Store keeps orders in memory, keyed by backend order id.
type Store struct {
	mu     sync.RWMutex
	orders map[string]Order
}

// NewStore constructs an empty order store.
func NewStore() *Store {
	return &Store{orders: make(map[string]Order)}
}

// Put inserts or replaces an order record.
func (s *Store) Put(order Order) {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.OrderID] = order
}

// Get returns the order for the given id.
func (s *Store) Get(orderID string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// SetStatus updates the status of an existing order. Unknown orders are
// created on the fly so webhook events arriving before the local record do
// not get lost.
func (s *Store) SetStatus(orderID, status string, lastEvent json.RawMessage) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	order, ok := s.orders[orderID]
	if !ok {
		order = Order{OrderID: orderID, CreatedAt: now}
	}
	order.Status = status
	if len(lastEvent) > 0 {
		order.LastEvent = append(json.RawMessage(nil), lastEvent...)
	}
	order.UpdatedAt = now
	s.orders[orderID] = order
	return order
}

// SetRefunded marks an order refunded and records the refund id.
func (s *Store) SetRefunded(orderID, refundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	order, ok := s.orders[orderID]
	if !ok {
		order = Order{OrderID: orderID, CreatedAt: now}
	}
	order.Status = StatusRefunded
	order.RefundID = strings.TrimSpace(refundID)
	order.UpdatedAt = now
	s.orders[orderID] = order
}

// BindBus subscribes the store to payment events so order status tracks the
// backend's notifications.
func (s *Store) BindBus(bus *events.Bus) {
	if bus == nil {
		return
	}
	bus.Subscribe(events.TopicPaymentSucceeded, events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		s.SetStatus(ev.OrderID, StatusPaid, ev.Payload)
		return nil
	}))
	bus.Subscribe(events.TopicPaymentFailed, events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		s.SetStatus(ev.OrderID, StatusFailed, ev.Payload)
		return nil
	}))
}
