package callback

import (
	"encoding/json"
	"fmt"

	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/sirupsen/logrus"
)

// AuditRoutingKeys are the events the reconciliation auditor listens to.
var AuditRoutingKeys = []string{
	"mpesa." + string(events.PaymentAnomalyEvent),
	"notification." + string(events.PaymentCompletedEvent),
	"notification." + string(events.OrderStatusChangedEvent),
}

// Audit surfaces callback anomalies and paid-but-cancelled orders in the
// operator log, whichever instance recorded them. A refund shows up either
// as a late payment on a cancelled order or as a cancel of a paid one.
func Audit(event events.Event) error {
	switch event.EventType {
	case events.PaymentAnomalyEvent:
		var payload events.AnomalyPayload
		if err := decodePayload(event.Payload, &payload); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"reason":              payload.Reason,
			"checkout_request_id": payload.CheckoutRequestID,
			"detail":              payload.Detail,
			"event_id":            event.ID,
		}).Error("Reconciliation needed: payment callback anomaly")
	case events.PaymentCompletedEvent:
		var payload events.PaymentPayload
		if err := decodePayload(event.Payload, &payload); err != nil {
			return err
		}
		if !payload.RefundRequired {
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"order_id":       payload.OrderID,
			"transaction_id": payload.TransactionID,
		}).Error("Reconciliation needed: refund required")
	case events.OrderStatusChangedEvent:
		var payload events.StatusChangedPayload
		if err := decodePayload(event.Payload, &payload); err != nil {
			return err
		}
		if payload.To != string(domain.OrderStatusCancelled) || !payload.RefundRequired {
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"order_id":       payload.OrderID,
			"transaction_id": payload.TransactionID,
			"actor":          payload.Actor,
		}).Error("Reconciliation needed: paid order cancelled, refund required")
	}
	return nil
}

// decodePayload re-reads a payload that arrived as a generic JSON map.
func decodePayload(raw interface{}, target interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("payload encode error: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("payload decode error: %w", err)
	}
	return nil
}
