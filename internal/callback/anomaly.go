package callback

import (
	"context"

	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/sirupsen/logrus"
)

const (
	ReasonMalformed       = "malformed_payload"
	ReasonUnknownCheckout = "unknown_checkout_request"
	ReasonApplyFailed     = "apply_failed"
	ReasonAmountMismatch  = "amount_mismatch"
)

const maxRecordedBody = 4096

type Anomaly struct {
	Reason            string
	CheckoutRequestID string
	Err               error
	Body              []byte
}

type AnomalyRecorder interface {
	Record(ctx context.Context, anomaly Anomaly)
}

type EventPublisher interface {
	PublishEvent(event events.Event) error
}

// EventRecorder logs anomalies and publishes them for reconciliation.
// A nil publisher only logs.
type EventRecorder struct {
	publisher EventPublisher
}

func NewEventRecorder(publisher EventPublisher) *EventRecorder {
	return &EventRecorder{publisher: publisher}
}

func (r *EventRecorder) Record(_ context.Context, anomaly Anomaly) {
	detail := ""
	if anomaly.Err != nil {
		detail = anomaly.Err.Error()
	}
	body := anomaly.Body
	if len(body) > maxRecordedBody {
		body = body[:maxRecordedBody]
	}

	logrus.WithFields(logrus.Fields{
		"reason":              anomaly.Reason,
		"checkout_request_id": anomaly.CheckoutRequestID,
		"detail":              detail,
	}).Warn("Payment callback anomaly")

	if r.publisher == nil {
		return
	}

	event := events.Event{
		EventType:     events.PaymentAnomalyEvent,
		Service:       "mpesa",
		CorrelationID: anomaly.CheckoutRequestID,
		Payload: events.AnomalyPayload{
			Reason:            anomaly.Reason,
			CheckoutRequestID: anomaly.CheckoutRequestID,
			Detail:            detail,
			RawBody:           string(body),
		},
	}
	if err := r.publisher.PublishEvent(event); err != nil {
		logrus.WithError(err).Error("Failed to publish callback anomaly")
	}
}
