package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/m3rciful/quizbot/core/netutil"
)

// publisher is the part of *amqp.Channel used for delivery.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQ publishes events to a durable topic exchange. The routing key is
// "quiz.<event>" in lower case, e.g. quiz.button_click.
type RabbitMQ struct {
	conn     *amqp.Connection
	ch       publisher
	closeCh  func() error
	exchange string
	// amqp channels are not safe for concurrent publishing.
	mu sync.Mutex
}

// DialRabbitMQ connects, opens a channel and declares the exchange.
func DialRabbitMQ(url, exchange string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", errors.New(netutil.SanitizeError(err)))
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &RabbitMQ{conn: conn, ch: ch, closeCh: ch.Close, exchange: exchange}, nil
}

// RoutingKey maps an event name to its routing key.
func RoutingKey(event string) string {
	return "quiz." + strings.ToLower(event)
}

// Publish sends e as a persistent JSON message.
func (r *RabbitMQ) Publish(ctx context.Context, e Event) error {
	msg, err := publishing(e)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ch.PublishWithContext(ctx, r.exchange, RoutingKey(e.Name), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Name, err)
	}
	return nil
}

// Retryable reports whether the broker marked err as recoverable.
func (r *RabbitMQ) Retryable(err error) bool {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover
	}
	return netutil.ShouldRetry(err)
}

// Close closes the channel and connection.
func (r *RabbitMQ) Close() error {
	var errs []error
	if r.closeCh != nil {
		errs = append(errs, r.closeCh())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}

func publishing(e Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event %s: %w", e.Name, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.At,
		Type:         e.Name,
		Body:         body,
	}, nil
}
