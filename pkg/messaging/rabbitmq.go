package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

type RabbitMQClient struct {
	config     *RabbitMQConfig
	connection *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	isClosing  bool
}

func NewRabbitMQClient(config RabbitMQConfig) *RabbitMQClient {
	cfg := config.withDefaults()
	return &RabbitMQClient{config: &cfg}
}

func (r *RabbitMQClient) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for i := 0; i < r.config.RetryCount; i++ {
		r.connection, err = amqp.DialConfig(r.config.ConnectionURL(), amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(r.config.ConnectionTimeout),
		})
		if err != nil {
			logrus.WithError(err).Warnf("RabbitMQ connection error (attempt %d/%d)", i+1, r.config.RetryCount)
			if i < r.config.RetryCount-1 {
				time.Sleep(r.config.RetryDelay)
				continue
			}
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}

		r.channel, err = r.connection.Channel()
		if err != nil {
			r.connection.Close()
			return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
		}

		err = r.channel.ExchangeDeclare(
			r.config.Exchange, // name
			"topic",           // type
			true,              // durable
			false,             // auto-deleted
			false,             // internal
			false,             // no-wait
			nil,               // arguments
		)
		if err != nil {
			r.channel.Close()
			r.connection.Close()
			return fmt.Errorf("failed to create exchange: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"host":     r.config.Host,
			"exchange": r.config.Exchange,
		}).Info("Connected to RabbitMQ")

		go r.handleReconnection(r.connection)

		return nil
	}

	return err
}

func (r *RabbitMQClient) handleReconnection(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	err, ok := <-notifyClose
	if !ok {
		return
	}

	r.mu.RLock()
	closing := r.isClosing
	r.mu.RUnlock()
	if closing {
		return
	}

	logrus.WithError(err).Warn("RabbitMQ connection lost, reconnecting")
	time.Sleep(time.Second * 2)
	if reconnectErr := r.Connect(); reconnectErr != nil {
		logrus.WithError(reconnectErr).Error("RabbitMQ reconnect failed")
	}
}

func (r *RabbitMQClient) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

func (r *RabbitMQClient) Exchange() string {
	return r.config.Exchange
}

func (r *RabbitMQClient) AuditQueue() string {
	return r.config.AuditQueue
}

func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosing {
		return nil
	}
	r.isClosing = true

	var closeErr error

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			closeErr = fmt.Errorf("channel close error: %w", err)
		}
	}

	if r.connection != nil {
		if err := r.connection.Close(); err != nil {
			if closeErr != nil {
				closeErr = fmt.Errorf("%v; connection close error: %w", closeErr, err)
			} else {
				closeErr = fmt.Errorf("connection close error: %w", err)
			}
		}
	}

	if closeErr != nil {
		logrus.WithError(closeErr).Error("Failed to close RabbitMQ")
	} else {
		logrus.Info("RabbitMQ connection closed")
	}

	return closeErr
}

func (r *RabbitMQClient) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.connection != nil && !r.connection.IsClosed()
}
