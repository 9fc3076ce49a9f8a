package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	OrderCreatedEvent       EventType = "order.created"
	OrderStatusChangedEvent EventType = "order.status_changed"
	PaymentCompletedEvent   EventType = "payment.completed"
	PaymentFailedEvent      EventType = "payment.failed"
	PaymentAnomalyEvent     EventType = "payment.callback.anomaly"
)

type Event struct {
	ID            uuid.UUID   `json:"id"`
	OrderID       uuid.UUID   `json:"order_id,omitempty"` // Business ID
	EventType     EventType   `json:"event_type"`
	Payload       interface{} `json:"payload"`
	Timestamp     time.Time   `json:"timestamp"`
	Service       string      `json:"service"`
	CorrelationID string      `json:"correlation_id,omitempty"` // e.g. checkout request id
}

type OrderPayload struct {
	OrderID     uuid.UUID `json:"order_id"`
	OwnerID     string    `json:"owner_id"`
	Status      string    `json:"status"`
	Payment     string    `json:"payment_status"`
	TotalAmount float64   `json:"total_amount"`
}

type StatusChangedPayload struct {
	OrderID        uuid.UUID `json:"order_id"`
	OwnerID        string    `json:"owner_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Actor          string    `json:"actor"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	RefundRequired bool      `json:"refund_required"`
}

type PaymentPayload struct {
	OrderID        uuid.UUID `json:"order_id"`
	OwnerID        string    `json:"owner_id"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	ResultCode     int       `json:"result_code"`
	ResultDesc     string    `json:"result_desc"`
	RefundRequired bool      `json:"refund_required"`
}

type AnomalyPayload struct {
	Reason            string `json:"reason"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	Detail            string `json:"detail,omitempty"`
	RawBody           string `json:"raw_body,omitempty"`
}
