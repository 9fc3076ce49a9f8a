package callback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 213.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const cancelledBody = `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`

func TestParse_Success(t *testing.T) {
	result, err := Parse([]byte(successBody))

	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", result.CheckoutRequestID)
	assert.Equal(t, "29115-34620561-1", result.MerchantRequestID)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "NLJ7RT61SV", result.TransactionID)
	assert.Equal(t, 213.0, result.Amount)
	assert.Equal(t, "254708374149", result.Phone)
	require.NotNil(t, result.TransactionDate)
	assert.Equal(t, time.Date(2019, 12, 19, 7, 21, 15, 0, time.UTC), *result.TransactionDate)
}

func TestParse_Failure(t *testing.T) {
	result, err := Parse([]byte(cancelledBody))

	require.NoError(t, err)
	assert.Equal(t, domain.ResultCodeCancelledByUser, result.ResultCode)
	assert.Empty(t, result.TransactionID)
	assert.Nil(t, result.TransactionDate)
}

func TestParse_StringTypedMetadata(t *testing.T) {
	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_3","ResultCode":"0","ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"QK1"},{"Name":"Amount","Value":"150"},{"Name":"PhoneNumber","Value":"254712345678"},{"Name":"TransactionDate","Value":"garbage"}]}}}}`

	result, err := Parse([]byte(body))

	require.NoError(t, err)
	assert.Equal(t, 150.0, result.Amount)
	assert.Equal(t, "254712345678", result.Phone)
	assert.Nil(t, result.TransactionDate)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"Body":`},
		{"missing body", `{}`},
		{"missing callback", `{"Body":{}}`},
		{"missing checkout id", `{"Body":{"stkCallback":{"ResultCode":0}}}`},
		{"missing result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1"}}}`},
		{"non integer result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1.5}}}`},
		{"success without receipt", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"Amount","Value":10}]}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

type fakeApplier struct {
	order  *domain.Order
	replay bool
	err    error
	got    []domain.PaymentResult
}

func (f *fakeApplier) SettlePayment(_ context.Context, result domain.PaymentResult) (*domain.Order, bool, error) {
	f.got = append(f.got, result)
	if f.err != nil {
		return nil, false, f.err
	}
	return f.order, !f.replay, nil
}

type memoryRecorder struct {
	mu        sync.Mutex
	anomalies []Anomaly
}

func (m *memoryRecorder) Record(_ context.Context, anomaly Anomaly) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies = append(m.anomalies, anomaly)
}

func TestReceiver_Handle(t *testing.T) {
	order := &domain.Order{TotalAmount: 212.5, Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusCompleted}
	applier := &fakeApplier{order: order}
	recorder := &memoryRecorder{}
	receiver := NewReceiver(applier, recorder)

	got, err := receiver.Handle(context.Background(), []byte(successBody))

	require.NoError(t, err)
	assert.Same(t, order, got)
	require.Len(t, applier.got, 1)
	assert.Equal(t, "NLJ7RT61SV", applier.got[0].TransactionID)
	assert.Empty(t, recorder.anomalies)
}

func TestReceiver_RecordsAnomalies(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		applier    *fakeApplier
		wantReason string
		wantErr    bool
	}{
		{
			name:       "malformed",
			body:       `not json`,
			applier:    &fakeApplier{},
			wantReason: ReasonMalformed,
			wantErr:    true,
		},
		{
			name:       "unknown checkout",
			body:       cancelledBody,
			applier:    &fakeApplier{err: domain.NotFoundError("order not found")},
			wantReason: ReasonUnknownCheckout,
			wantErr:    true,
		},
		{
			name:       "store failure",
			body:       cancelledBody,
			applier:    &fakeApplier{err: errors.New("connection reset")},
			wantReason: ReasonApplyFailed,
			wantErr:    true,
		},
		{
			name:       "amount mismatch",
			body:       successBody,
			applier:    &fakeApplier{order: &domain.Order{TotalAmount: 500}},
			wantReason: ReasonAmountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &memoryRecorder{}
			receiver := NewReceiver(tt.applier, recorder)

			_, err := receiver.Handle(context.Background(), []byte(tt.body))

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, recorder.anomalies, 1)
			assert.Equal(t, tt.wantReason, recorder.anomalies[0].Reason)
		})
	}
}

func TestReceiver_ReplayedMismatchNotRecordedAgain(t *testing.T) {
	recorder := &memoryRecorder{}
	applier := &fakeApplier{order: &domain.Order{TotalAmount: 500, PaymentStatus: domain.PaymentStatusCompleted}, replay: true}
	receiver := NewReceiver(applier, recorder)

	_, err := receiver.Handle(context.Background(), []byte(successBody))

	require.NoError(t, err)
	assert.Empty(t, recorder.anomalies)
}

type fakePublisher struct {
	events []events.Event
	err    error
}

func (f *fakePublisher) PublishEvent(event events.Event) error {
	f.events = append(f.events, event)
	return f.err
}

func TestEventRecorder_Record(t *testing.T) {
	publisher := &fakePublisher{}
	recorder := NewEventRecorder(publisher)

	recorder.Record(context.Background(), Anomaly{
		Reason:            ReasonUnknownCheckout,
		CheckoutRequestID: "ws_CO_9",
		Err:               errors.New("order not found"),
		Body:              []byte(`{"Body":{}}`),
	})

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, events.PaymentAnomalyEvent, event.EventType)
	assert.Equal(t, "ws_CO_9", event.CorrelationID)
	payload, ok := event.Payload.(events.AnomalyPayload)
	require.True(t, ok)
	assert.Equal(t, "order not found", payload.Detail)
	assert.Equal(t, `{"Body":{}}`, payload.RawBody)

	publisher.err = errors.New("broker down")
	assert.NotPanics(t, func() {
		recorder.Record(context.Background(), Anomaly{Reason: ReasonMalformed})
	})
	assert.NotPanics(t, func() {
		NewEventRecorder(nil).Record(context.Background(), Anomaly{Reason: ReasonMalformed})
	})
}
