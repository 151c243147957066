package messaging

import (
	"context"
	"strconv"
	"sync"
	"time"

	"interview-monitor/pkg/config"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// BindingKey routes every session event to the configured queue
const BindingKey = "session.#"

// AMQPConfig holds AMQP client configuration
type AMQPConfig struct {
	URL            string
	ExchangeName   string
	QueueName      string
	MessageTTL     time.Duration
	ConnectTimeout time.Duration
}

// ConfigFromSettings maps the messaging section onto an AMQPConfig
func ConfigFromSettings(cfg config.MessagingConfig) AMQPConfig {
	return AMQPConfig{
		URL:            cfg.AMQPUrl,
		ExchangeName:   cfg.Exchange,
		QueueName:      cfg.QueueName,
		MessageTTL:     cfg.MessageTTL,
		ConnectTimeout: cfg.ConnectTimeout,
	}
}

// AMQPClient publishes to a topic exchange and reconnects when the broker drops the connection
type AMQPClient struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPClient creates a new AMQP client
func NewAMQPClient(logger *logrus.Logger, config AMQPConfig) *AMQPClient {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &AMQPClient{
		logger:   logger,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Connect dials the broker, declares the exchange and queue, and binds them
func (c *AMQPClient) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}
	if c.config.URL == "" || c.config.ExchangeName == "" {
		return errors.NewInvalidInput("AMQP URL or exchange not configured")
	}

	conn, err := amqp.DialConfig(c.config.URL, amqp.Config{
		Dial: amqp.DefaultDial(c.config.ConnectTimeout),
	})
	if err != nil {
		metrics.SetAMQPConnectionStatus(false)
		return errors.Wrap(errors.ErrUnavailable, "failed to connect to AMQP server").WithField("cause", err.Error())
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to open AMQP channel")
	}

	if err := c.declare(channel); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	c.conn = conn
	c.channel = channel
	c.connected = true
	c.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	c.logger.WithFields(logrus.Fields{
		"exchange": c.config.ExchangeName,
		"queue":    c.config.QueueName,
	}).Info("Connected to AMQP server")

	go c.monitorConnection(conn, c.stopChan)
	return nil
}

func (c *AMQPClient) declare(channel *amqp.Channel) error {
	if err := channel.ExchangeDeclare(c.config.ExchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "failed to declare AMQP exchange").WithField("exchange", c.config.ExchangeName)
	}
	if c.config.QueueName == "" {
		return nil
	}

	var args amqp.Table
	if c.config.MessageTTL > 0 {
		args = amqp.Table{"x-message-ttl": int64(c.config.MessageTTL / time.Millisecond)}
	}
	if _, err := channel.QueueDeclare(c.config.QueueName, true, false, false, false, args); err != nil {
		return errors.Wrap(err, "failed to declare AMQP queue").WithField("queue", c.config.QueueName)
	}
	if err := channel.QueueBind(c.config.QueueName, BindingKey, c.config.ExchangeName, false, nil); err != nil {
		return errors.Wrap(err, "failed to bind AMQP queue").WithField("queue", c.config.QueueName)
	}
	return nil
}

// Disconnect closes the AMQP connection and stops reconnect attempts
func (c *AMQPClient) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}
	if !c.connected {
		return
	}

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
	metrics.SetAMQPConnectionStatus(false)
	c.logger.Info("Disconnected from AMQP server")
}

// Close implements io.Closer
func (c *AMQPClient) Close() error {
	c.Disconnect()
	return nil
}

// IsConnected returns the connection status
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// Publish sends a persistent JSON message with the given routing key
func (c *AMQPClient) Publish(ctx context.Context, routingKey string, body []byte) error {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	if !c.connected || c.channel == nil {
		return errors.Wrap(errors.ErrUnavailable, "not connected to AMQP server")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if c.config.MessageTTL > 0 {
		msg.Expiration = strconv.FormatInt(int64(c.config.MessageTTL/time.Millisecond), 10)
	}

	if err := c.channel.Publish(c.config.ExchangeName, routingKey, false, false, msg); err != nil {
		return errors.Wrap(err, "failed to publish to AMQP").WithField("routing_key", routingKey)
	}
	return nil
}

// monitorConnection reconnects with exponential backoff when the broker closes conn
func (c *AMQPClient) monitorConnection(conn *amqp.Connection, stop chan struct{}) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-stop:
		return
	case closeErr, ok := <-closeChan:
		if !ok {
			// Closed by Disconnect.
			return
		}
		c.connMutex.Lock()
		c.connected = false
		c.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)
		c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")
	}

	for attempt := 1; attempt <= 10; attempt++ {
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}

		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}

		err := c.Connect()
		if err == nil {
			c.logger.WithField("attempt", attempt).Info("Reconnected to AMQP server")
			return
		}
		c.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")
	}
	c.logger.Error("Giving up reconnecting to AMQP server")
}
