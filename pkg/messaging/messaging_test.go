package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

func TestRabbitMQConfig_ConnectionURL(t *testing.T) {
	cfg := &RabbitMQConfig{Username: "guest", Password: "guest", Host: "mq", Port: 5672, VHost: "cafe"}
	assert.Equal(t, "amqp://guest:guest@mq:5672/cafe", cfg.ConnectionURL())

	cfg.VHost = "/"
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.ConnectionURL())

	cfg.Password = "p@ss:word"
	assert.Equal(t, "amqp://guest:p%40ss%3Aword@mq:5672/", cfg.ConnectionURL())
}

func TestNewRabbitMQClient_Defaults(t *testing.T) {
	client := NewRabbitMQClient(RabbitMQConfig{Host: "mq", Port: 5672, RetryCount: -2})

	assert.Equal(t, "cafe.events", client.Exchange())
	assert.Equal(t, "cafe-reconciliation-queue", client.AuditQueue())
	assert.Equal(t, 1, client.config.RetryCount)
	assert.Equal(t, 30*time.Second, client.config.ConnectionTimeout)
	assert.False(t, client.IsConnected())
}

func TestRoutingKey(t *testing.T) {
	event := events.Event{Service: "notification", EventType: events.OrderCreatedEvent}
	assert.Equal(t, "notification.order.created", RoutingKey(event))
}

func TestPublisher_NotConnected(t *testing.T) {
	publisher := NewPublisher(NewRabbitMQClient(RabbitMQConfig{Exchange: "cafe.events"}))
	publisher.backoff = 0

	err := publisher.PublishEvent(events.Event{OrderID: uuid.New(), EventType: events.PaymentFailedEvent})
	assert.Error(t, err)

	err = publisher.PublishWithRetry(events.Event{EventType: events.PaymentFailedEvent}, 3)
	assert.ErrorContains(t, err, "after 3 attempts")
}

type recordingAcker struct {
	acked, nacked int
	requeue       bool
}

func (a *recordingAcker) Ack(uint64, bool) error { a.acked++; return nil }

func (a *recordingAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *recordingAcker) Reject(uint64, bool) error { return nil }

func TestConsumer_HandleMessage(t *testing.T) {
	consumer := NewConsumer(NewRabbitMQClient(RabbitMQConfig{}), "audit", "audit")

	t.Run("acks handled events", func(t *testing.T) {
		acker := &recordingAcker{}
		var got events.Event
		consumer.handleMessage(amqp.Delivery{
			Acknowledger: acker,
			Body:         []byte(`{"event_type":"payment.failed","service":"notification"}`),
		}, func(event events.Event) error {
			got = event
			return nil
		})

		assert.Equal(t, 1, acker.acked)
		assert.Equal(t, events.PaymentFailedEvent, got.EventType)
	})

	t.Run("drops undecodable bodies", func(t *testing.T) {
		acker := &recordingAcker{}
		consumer.handleMessage(amqp.Delivery{Acknowledger: acker, Body: []byte(`{`)}, func(events.Event) error {
			t.Fatal("handler must not run")
			return nil
		})

		assert.Equal(t, 1, acker.nacked)
		assert.False(t, acker.requeue)
	})

	t.Run("dead letters after max redeliveries", func(t *testing.T) {
		acker := &recordingAcker{}
		consumer.handleMessage(amqp.Delivery{
			Acknowledger: acker,
			Body:         []byte(`{"event_type":"payment.failed"}`),
			Headers: amqp.Table{"x-death": []interface{}{
				amqp.Table{"count": int64(maxRedeliveries)},
			}},
		}, func(events.Event) error { return errors.New("boom") })

		assert.Equal(t, 1, acker.nacked)
		assert.Equal(t, 0, acker.acked)
	})
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(amqp.Delivery{}))
	assert.True(t, shouldRetry(amqp.Delivery{Headers: amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(1)}}}}))
	assert.False(t, shouldRetry(amqp.Delivery{Headers: amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(3)}}}}))
}

func TestConsumer_NotConnected(t *testing.T) {
	consumer := NewConsumer(NewRabbitMQClient(RabbitMQConfig{}), "audit", "audit")

	err := consumer.ConsumeEvents(context.Background(), []string{"mpesa.#"}, func(events.Event) error { return nil })

	assert.Error(t, err)
}
