package notification

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) PublishWithRetry(event events.Event, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func sampleOrder() *domain.Order {
	code := 0
	return &domain.Order{
		ID:                uuid.New(),
		OwnerID:           "user-1",
		Status:            domain.OrderStatusPending,
		PaymentStatus:     domain.PaymentStatusCompleted,
		TransactionID:     "QK1",
		PaymentResultCode: &code,
		CheckoutRequestID: "ws_CO_1",
		TotalAmount:       250,
	}
}

func TestNotifier_Events(t *testing.T) {
	publisher := &recordingPublisher{}
	notifier := NewNotifier(publisher, 3)
	order := sampleOrder()

	notifier.OrderCreated(order)
	notifier.Wait()
	notifier.PaymentSettled(order)
	notifier.Wait()
	notifier.StatusChanged(order, domain.StatusChange{
		From:  domain.OrderStatusPendingPayment,
		To:    domain.OrderStatusPending,
		Actor: "payment-gateway",
		At:    time.Now(),
	})
	notifier.Wait()

	got := publisher.published()
	require.Len(t, got, 3)
	assert.Equal(t, events.OrderCreatedEvent, got[0].EventType)
	assert.Equal(t, events.PaymentCompletedEvent, got[1].EventType)
	assert.Equal(t, "ws_CO_1", got[1].CorrelationID)
	assert.Equal(t, events.OrderStatusChangedEvent, got[2].EventType)
	for _, event := range got {
		assert.Equal(t, "notification", event.Service)
		assert.Equal(t, order.ID, event.OrderID)
	}

	payload, ok := got[2].Payload.(events.StatusChangedPayload)
	require.True(t, ok)
	assert.Equal(t, "pending", payload.To)
	assert.False(t, payload.RefundRequired)
}

func TestNotifier_StatusChangedCarriesRefundFlag(t *testing.T) {
	publisher := &recordingPublisher{}
	notifier := NewNotifier(publisher, 1)
	order := sampleOrder()
	order.Status = domain.OrderStatusCancelled
	order.RefundRequired = true

	notifier.StatusChanged(order, domain.StatusChange{
		From:  domain.OrderStatusPending,
		To:    domain.OrderStatusCancelled,
		Actor: "user-1",
		At:    time.Now(),
	})
	notifier.Wait()

	got := publisher.published()
	require.Len(t, got, 1)
	payload, ok := got[0].Payload.(events.StatusChangedPayload)
	require.True(t, ok)
	assert.True(t, payload.RefundRequired)
	assert.Equal(t, "QK1", payload.TransactionID)
}

func TestNotifier_PaymentFailed(t *testing.T) {
	publisher := &recordingPublisher{}
	notifier := NewNotifier(publisher, 1)
	order := sampleOrder()
	order.PaymentStatus = domain.PaymentStatusFailed

	notifier.PaymentSettled(order)
	notifier.Wait()

	got := publisher.published()
	require.Len(t, got, 1)
	assert.Equal(t, events.PaymentFailedEvent, got[0].EventType)
}

func TestNotifier_ErrorsAreSwallowed(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	notifier := NewNotifier(publisher, 1)

	assert.NotPanics(t, func() {
		notifier.OrderCreated(sampleOrder())
		notifier.Wait()
	})
	assert.Len(t, publisher.published(), 1)

	assert.NotPanics(t, func() {
		NewNotifier(nil, 1).OrderCreated(sampleOrder())
	})
}
