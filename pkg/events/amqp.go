package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fadedpez/wingo/internal/logging"
	"github.com/streadway/amqp"
)

// dialTimeout keeps a reconnect from holding the publisher lock for the
// library's 30s default
const dialTimeout = 5 * time.Second

// AMQPPublisher publishes events to a durable topic exchange
type AMQPPublisher struct {
	url      string
	exchange string
	logger   *logging.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the exchange
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:      url,
		exchange: exchange,
		logger:   logging.Default,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect must be called with mu held or before the publisher is shared
func (p *AMQPPublisher) connect() error {
	config := amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	}

	conn, err := amqp.DialConfig(p.url, config)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // delete when unused
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = channel
	p.logger.Info("Connected to AMQP exchange %s", p.exchange)
	return nil
}

// Publish implements Publisher. A closed channel triggers one reconnect.
func (p *AMQPPublisher) Publish(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Type:         string(event.Type),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(event.RoutingKey(), msg)
	if errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn("AMQP channel closed, reconnecting")
		if err := p.connect(); err != nil {
			return err
		}
		err = p.publishLocked(event.RoutingKey(), msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.RoutingKey(), err)
	}
	return nil
}

func (p *AMQPPublisher) publishLocked(routingKey string, msg amqp.Publishing) error {
	if p.channel == nil {
		return amqp.ErrClosed
	}
	return p.channel.Publish(p.exchange, routingKey, false, false, msg)
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
