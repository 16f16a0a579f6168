// Package bus implements the durable topic exchange that carries pipeline
// stage events between the gateway, the watcher, and the stage workers.
//
// One exchange ("hcc-extractor", topic, durable) fans out to one durable
// queue per stage worker, bound by the routing key that worker consumes.
// Publishing is at-least-once and non-transactional with the registry:
// callers must be able to tolerate redelivery, which is why every queue is
// declared with manual ack and QoS prefetch 1.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const exchangeName = "hcc-extractor"

// Routing keys for the five pipeline events (see §4.3 of the component design).
const (
	RoutingUploaded            = "document.uploaded"
	RoutingExtractionCompleted = "document.extraction.completed"
	RoutingAnalysisCompleted   = "document.analysis.completed"
	RoutingValidationCompleted = "document.validation.completed"
	RoutingError               = "document.error"
)

// Config holds the connection and topology parameters for the bus.
type Config struct {
	URL          string
	ExchangeName string
}

// DefaultConfig returns the standard exchange name with an empty URL; callers
// fill in URL from environment or flags.
func DefaultConfig(url string) Config {
	return Config{URL: url, ExchangeName: exchangeName}
}

// Bus wraps an AMQP connection and channel bound to the topic exchange.
// Collaborators are injected through AMQPDialer so tests can substitute a
// mock dialer instead of dialing a real broker.
type Bus struct {
	connection AMQPConnection
	channel    AMQPChannel
	config     Config
	log        *logrus.Entry
}

// New dials a real broker and declares the exchange.
func New(config Config, log *logrus.Entry) (*Bus, error) {
	return NewWithDialer(config, &RealAMQPDialer{}, log)
}

// NewWithDialer builds a Bus using an injected dialer, enabling tests to run
// against MockAMQPDialer without a live RabbitMQ instance.
func NewWithDialer(config Config, dialer AMQPDialer, log *logrus.Entry) (*Bus, error) {
	if config.ExchangeName == "" {
		config.ExchangeName = exchangeName
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	conn, err := dialer.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("bus: failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(config.ExchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: failed to declare exchange: %w", err)
	}

	return &Bus{connection: conn, channel: ch, config: config, log: log}, nil
}

// DeclareQueue declares a durable queue bound to this bus's exchange under
// the given routing key, and sets QoS prefetch 1 on the shared channel so
// any subsequent Consume on it respects single-flight delivery.
func (b *Bus) DeclareQueue(queueName, routingKey string) error {
	if _, err := b.channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: failed to declare queue %q: %w", queueName, err)
	}
	if err := b.channel.QueueBind(queueName, routingKey, b.config.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bus: failed to bind queue %q to %q: %w", queueName, routingKey, err)
	}
	if err := b.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("bus: failed to set QoS: %w", err)
	}
	return nil
}

// Publish marshals payload to JSON and publishes it to the exchange under
// routingKey as a persistent message. priority, when non-zero, is carried as
// an AMQP message priority (advisory only — no priority queue is declared).
func (b *Bus) Publish(routingKey string, payload any, priority uint8) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: failed to marshal payload: %w", err)
	}

	err = b.channel.Publish(b.config.ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Priority:     priority,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("bus: failed to publish to %q: %w", routingKey, err)
	}

	b.log.WithField("routing_key", routingKey).Debug("published message")
	return nil
}

// Consume starts a manual-ack consumer on queueName. Deliveries must be
// Ack'd or Nack'd by the caller; the stage worker skeleton does this once
// per message (see package pipeline).
func (b *Bus) Consume(queueName, consumerTag string) (<-chan amqp.Delivery, error) {
	deliveries, err := b.channel.Consume(queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: failed to consume from %q: %w", queueName, err)
	}
	return deliveries, nil
}

// Close closes the channel then the connection, swallowing individual close
// errors the way the teacher's queue service does — shutdown must not fail.
func (b *Bus) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.connection != nil {
		b.connection.Close()
	}
	return nil
}
