package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventCreated         EventType = "order.created"
	EventPaymentPending  EventType = "order.payment_pending"
	EventPaid            EventType = "order.paid"
	EventDelivered       EventType = "order.delivered"
	EventPaymentReleased EventType = "order.payment_released"
)

type Event struct {
	ID            string          `json:"event_id"`
	Type          EventType       `json:"event_type"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Status        Status          `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewEvent(t EventType, o *Order, now time.Time) Event {
	ev := Event{
		ID:            uuid.NewString(),
		Type:          t,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status(),
		PaymentMethod: o.PaymentMethod,
		TotalPrice:    o.TotalPrice,
		OccurredAt:    now.UTC(),
	}
	switch {
	case o.Payment != nil:
		ev.TransactionID = o.Payment.Details().TransactionID
	case o.Intent != nil:
		ev.TransactionID = o.Intent.TransactionID
	}
	return ev
}

// Publisher delivers lifecycle events after the order change is stored.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
