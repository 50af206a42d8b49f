package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// Config captures the settings for the RabbitMQ event bus.
type Config struct {
	URL      string
	Exchange string
}

// EventBus publishes domain events to a RabbitMQ topic exchange. The topic
// name doubles as the routing key, so consumers bind with patterns like
// "status-changed" or "#".
type EventBus struct {
	exchange string
	conn     *amqp.Connection
	log      zerolog.Logger

	mu     sync.RWMutex
	ch     *amqp.Channel
	closed bool
}

// Connect dials RabbitMQ, opens a channel, and declares the durable topic
// exchange.
func Connect(cfg Config, log zerolog.Logger) (*EventBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	return &EventBus{
		exchange: cfg.Exchange,
		conn:     conn,
		ch:       ch,
		log:      log,
	}, nil
}

// Publish marshals the payload and publishes it with the topic as routing key.
// The attempt is bounded so a stalled broker cannot hold a request hostage.
func (b *EventBus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	ch := b.ch
	b.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("publish %s: channel not available", topic)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish %s: marshal payload: %w", topic, err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		publishCtx,
		b.exchange,
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	b.log.Debug().Str("topic", topic).Int("bytes", len(body)).Msg("event published")
	return nil
}

// Close shuts down the channel and connection. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	if b.ch != nil {
		_ = b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.log.Info().Msg("event bus closed")
}
