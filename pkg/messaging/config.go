package messaging

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultExchange   = "cafe.events"
	defaultAuditQueue = "cafe-reconciliation-queue"
)

// RabbitMQConfig holds the broker settings; internal/config fills it from
// the environment.
type RabbitMQConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	VHost      string
	Exchange   string
	AuditQueue string

	RetryCount        int
	RetryDelay        time.Duration
	ConnectionTimeout time.Duration
}

// withDefaults fills zero values so a partially set config still connects
// at least once.
func (c RabbitMQConfig) withDefaults() RabbitMQConfig {
	if c.Exchange == "" {
		c.Exchange = defaultExchange
	}
	if c.AuditQueue == "" {
		c.AuditQueue = defaultAuditQueue
	}
	if c.RetryCount < 1 {
		c.RetryCount = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	return c
}

// ConnectionURL builds the amqp URI with escaped credentials.
func (c *RabbitMQConfig) ConnectionURL() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	if vhost[0] != '/' {
		vhost = "/" + vhost
	}

	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   vhost,
	}
	return u.String()
}
