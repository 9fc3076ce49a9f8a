package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hezron-sketch/cafe-backend/pkg/events"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

type EventHandler func(event events.Event) error

const maxRedeliveries = 3

type Consumer struct {
	client      *RabbitMQClient
	queueName   string
	serviceName string
	retryDelay  time.Duration
}

func NewConsumer(client *RabbitMQClient, queueName, serviceName string) *Consumer {
	return &Consumer{
		client:      client,
		queueName:   queueName,
		serviceName: serviceName,
		retryDelay:  2 * time.Second,
	}
}

// ConsumeEvents binds the queue to every routing key and handles deliveries
// until ctx is done or the channel closes.
func (c *Consumer) ConsumeEvents(ctx context.Context, routingKeys []string, handler EventHandler) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("there is no connection to RabbitMQ")
	}

	channel := c.client.Channel()

	queue, err := channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("queue declare error: %w", err)
	}

	for _, routingKey := range routingKeys {
		if err := channel.QueueBind(queue.Name, routingKey, c.client.Exchange(), false, nil); err != nil {
			return fmt.Errorf("queue bind error (%s): %w", routingKey, err)
		}
		logrus.WithFields(logrus.Fields{
			"queue":       queue.Name,
			"routing_key": routingKey,
		}).Info("Queue bound")
	}

	messages, err := channel.Consume(
		queue.Name,    // queue
		c.serviceName, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("consume start error: %w", err)
	}

	logrus.WithField("queue", queue.Name).Info("Consuming events")

	go func() {
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					logrus.WithField("consumer", c.serviceName).Warn("Delivery channel closed")
					return
				}
				c.handleMessage(msg, handler)
			case <-ctx.Done():
				logrus.WithField("consumer", c.serviceName).Info("Consumer stopped")
				return
			}
		}
	}()

	return nil
}

func (c *Consumer) handleMessage(msg amqp.Delivery, handler EventHandler) {
	var event events.Event

	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logrus.WithError(err).Warn("Event deserialize error")
		msg.Nack(false, false)
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"event_type": event.EventType,
		"service":    event.Service,
		"event_id":   event.ID,
	})
	log.Debug("Event received")

	if err := handler(event); err != nil {
		log.WithError(err).Warn("Event process error")

		if shouldRetry(msg) {
			c.republish(msg)
		} else {
			log.Error("Max retry reached, sending to dead letter")
			msg.Nack(false, false)
		}
		return
	}

	msg.Ack(false)
}

func shouldRetry(msg amqp.Delivery) bool {
	if xDeath, ok := msg.Headers["x-death"]; ok {
		if deathArray, ok := xDeath.([]interface{}); ok && len(deathArray) > 0 {
			if death, ok := deathArray[0].(amqp.Table); ok {
				if count, ok := death["count"].(int64); ok && count >= maxRedeliveries {
					return false
				}
			}
		}
	}
	return true
}

func (c *Consumer) republish(msg amqp.Delivery) {
	time.Sleep(c.retryDelay)

	err := c.client.Channel().Publish(
		msg.Exchange,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			DeliveryMode: msg.DeliveryMode,
			Headers:      msg.Headers,
		},
	)
	if err != nil {
		logrus.WithError(err).Error("Retry publish error")
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
}
