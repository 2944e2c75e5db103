/**
 * @description
 * This package provides a simple producer for publishing notification events to
 * RabbitMQ. Publishing is strictly best-effort: the ledger never depends on a
 * publish succeeding, and a no-op fallback producer keeps the service running
 * when the broker is unavailable at startup.
 *
 * @dependencies
 * - context, encoding/json, errors, log, net/url, strings, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// NotificationEvent is published whenever a user-facing notification record is
// created, so downstream consumers (e.g. an SMS or email relay) can fan it out.
type NotificationEvent struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	PublishNotificationEvent(ctx context.Context, event NotificationEvent) error
	Close()
}

const (
	notificationExchange   = "fees.events"
	notificationRoutingKey = "notification.created"
)

// EventProducer holds the RabbitMQ connection and channel for publishing.
type EventProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" exchange=%s routing_key=%s", exchange, routingKey)
	return nil
}

func (p *EventProducerFallback) PublishNotificationEvent(ctx context.Context, event NotificationEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"notification event publish skipped\" title=%q", event.Title)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from first occurrence of amqp
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates a new EventProducer and declares the notification
// topology up front: the topic exchange, the durable queue named by
// notificationQueue, and the binding between them, so events published before
// any consumer starts are not lost.
func NewEventProducer(amqpURL, notificationQueue string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := channel.ExchangeDeclare(notificationExchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	if _, err := channel.QueueDeclare(notificationQueue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	if err := channel.QueueBind(notificationQueue, notificationRoutingKey, notificationExchange, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: channel}, nil
}

// Publish marshals body as JSON and publishes it to the given exchange.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

// PublishNotificationEvent publishes a notification event on the standard
// exchange and routing key.
func (p *EventProducer) PublishNotificationEvent(ctx context.Context, event NotificationEvent) error {
	return p.Publish(ctx, notificationExchange, notificationRoutingKey, event)
}

// Close shuts down the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
