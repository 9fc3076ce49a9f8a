package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

type Publisher struct {
	client *RabbitMQClient
	// backoff is the wait unit between retries; attempt n waits n*backoff.
	backoff time.Duration
}

func NewPublisher(client *RabbitMQClient) *Publisher {
	return &Publisher{
		client:  client,
		backoff: time.Second,
	}
}

// RoutingKey is <service>.<event type>, e.g. notification.order.created.
func RoutingKey(event events.Event) string {
	return fmt.Sprintf("%s.%s", event.Service, string(event.EventType))
}

func (p *Publisher) PublishEvent(event events.Event) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("there is no connection to RabbitMQ")
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event serialization error: %w", err)
	}

	routingKey := RoutingKey(event)

	channel := p.client.Channel()
	err = channel.Publish(
		p.client.Exchange(),
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID.String(),
			Timestamp:     event.Timestamp,
			CorrelationId: event.CorrelationID,
			Headers: amqp.Table{
				"order_id":   event.OrderID.String(),
				"service":    event.Service,
				"event_type": string(event.EventType),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("event publish error: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"routing_key": routingKey,
		"event_id":    event.ID,
	}).Debug("Event published")
	return nil
}

func (p *Publisher) PublishWithRetry(event events.Event, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := p.PublishEvent(event); err != nil {
			lastErr = err
			logrus.WithError(err).Warnf("Publish error (retry %d/%d)", i+1, maxRetries)

			if i < maxRetries-1 {
				time.Sleep(p.backoff * time.Duration(i+1))
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("event publish failed after %d attempts: %w", maxRetries, lastErr)
}
