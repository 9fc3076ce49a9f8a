package notification

import (
	"sync"

	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/sirupsen/logrus"
)

const serviceName = "notification"

type Publisher interface {
	PublishWithRetry(event events.Event, maxRetries int) error
}

// Notifier publishes customer-facing notifications in the background.
// Failures are logged and never reach the caller.
type Notifier struct {
	publisher Publisher
	retries   int
	wg        sync.WaitGroup
}

func NewNotifier(publisher Publisher, retries int) *Notifier {
	if retries < 1 {
		retries = 1
	}
	return &Notifier{publisher: publisher, retries: retries}
}

func (n *Notifier) OrderCreated(order *domain.Order) {
	n.send(events.Event{
		OrderID:   order.ID,
		EventType: events.OrderCreatedEvent,
		Payload:   orderPayload(order),
	})
}

func (n *Notifier) StatusChanged(order *domain.Order, change domain.StatusChange) {
	n.send(events.Event{
		OrderID:   order.ID,
		EventType: events.OrderStatusChangedEvent,
		Timestamp: change.At,
		Payload: events.StatusChangedPayload{
			OrderID:        order.ID,
			OwnerID:        order.OwnerID,
			From:           string(change.From),
			To:             string(change.To),
			Actor:          change.Actor,
			TransactionID:  order.TransactionID,
			RefundRequired: order.RefundRequired,
		},
	})
}

func (n *Notifier) PaymentSettled(order *domain.Order) {
	eventType := events.PaymentFailedEvent
	if order.PaymentStatus == domain.PaymentStatusCompleted {
		eventType = events.PaymentCompletedEvent
	}

	payload := events.PaymentPayload{
		OrderID:        order.ID,
		OwnerID:        order.OwnerID,
		TransactionID:  order.TransactionID,
		ResultDesc:     order.PaymentResultDesc,
		RefundRequired: order.RefundRequired,
	}
	if order.PaymentResultCode != nil {
		payload.ResultCode = *order.PaymentResultCode
	}

	n.send(events.Event{
		OrderID:       order.ID,
		EventType:     eventType,
		CorrelationID: order.CheckoutRequestID,
		Payload:       payload,
	})
}

// Wait blocks until in-flight notifications are done.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(event events.Event) {
	event.Service = serviceName
	if n.publisher == nil {
		logrus.WithFields(logrus.Fields{
			"event_type": event.EventType,
			"order_id":   event.OrderID,
		}).Debug("Notification skipped, no publisher")
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.publisher.PublishWithRetry(event, n.retries); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"event_type": event.EventType,
				"order_id":   event.OrderID,
			}).Error("Notification publish error")
		}
	}()
}

func orderPayload(order *domain.Order) events.OrderPayload {
	return events.OrderPayload{
		OrderID:     order.ID,
		OwnerID:     order.OwnerID,
		Status:      string(order.Status),
		Payment:     string(order.PaymentStatus),
		TotalAmount: order.TotalAmount,
	}
}
