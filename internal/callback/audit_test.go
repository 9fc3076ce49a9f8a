package callback

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip mimics an event read back off the broker.
func roundTrip(t *testing.T, event events.Event) events.Event {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	var decoded events.Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	return decoded
}

func TestAudit(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	tests := []struct {
		name      string
		event     events.Event
		wantError bool
	}{
		{
			name: "anomaly",
			event: events.Event{EventType: events.PaymentAnomalyEvent, Payload: events.AnomalyPayload{
				Reason: ReasonUnknownCheckout, CheckoutRequestID: "ws_CO_9",
			}},
			wantError: true,
		},
		{
			name: "refund required",
			event: events.Event{EventType: events.PaymentCompletedEvent, Payload: events.PaymentPayload{
				OrderID: uuid.New(), TransactionID: "QK1", RefundRequired: true,
			}},
			wantError: true,
		},
		{
			name: "plain payment",
			event: events.Event{EventType: events.PaymentCompletedEvent, Payload: events.PaymentPayload{
				OrderID: uuid.New(), TransactionID: "QK2",
			}},
		},
		{
			name: "paid order cancelled",
			event: events.Event{EventType: events.OrderStatusChangedEvent, Payload: events.StatusChangedPayload{
				OrderID: uuid.New(), From: "confirmed", To: "cancelled", Actor: "admin-1", TransactionID: "QK3", RefundRequired: true,
			}},
			wantError: true,
		},
		{
			name: "unpaid order cancelled",
			event: events.Event{EventType: events.OrderStatusChangedEvent, Payload: events.StatusChangedPayload{
				OrderID: uuid.New(), From: "pending", To: "cancelled",
			}},
		},
		{
			name: "ordinary status change",
			event: events.Event{EventType: events.OrderStatusChangedEvent, Payload: events.StatusChangedPayload{
				OrderID: uuid.New(), From: "confirmed", To: "preparing", RefundRequired: true,
			}},
		},
		{
			name:  "unrelated event",
			event: events.Event{EventType: events.OrderCreatedEvent},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()

			require.NoError(t, Audit(roundTrip(t, tt.event)))

			entry := hook.LastEntry()
			if !tt.wantError {
				assert.Nil(t, entry)
				return
			}
			require.NotNil(t, entry)
			assert.Equal(t, logrus.ErrorLevel, entry.Level)
		})
	}
}

func TestAudit_BadPayload(t *testing.T) {
	event := events.Event{EventType: events.PaymentAnomalyEvent, Payload: "not an object"}

	assert.Error(t, Audit(roundTrip(t, event)))
}
