// Package queue is the RabbitMQ plumbing between the dispatcher and
// the email worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/studyloop/reminder-service/internal/config"
)

// Client wraps one AMQP connection and channel for the reminder email
// pipeline.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.RabbitMQConfig
}

// Dial connects to RabbitMQ and opens a channel.
func Dial(cfg config.RabbitMQConfig) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Client{conn: conn, channel: channel, cfg: cfg}, nil
}

// Close closes the channel and connection.
func (c *Client) Close() {
	_ = c.channel.Close()
	_ = c.conn.Close()
}

// Setup declares the durable direct exchange and binds the email and
// failed queues, with queue name as routing key.
func (c *Client) Setup() error {
	if err := c.channel.ExchangeDeclare(
		c.cfg.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	for _, name := range []string{c.cfg.EmailQueue, c.cfg.FailedQueue} {
		if _, err := c.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		if err := c.channel.QueueBind(name, name, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", name, err)
		}
	}
	return nil
}

// Publish sends a persistent JSON message to the exchange under the
// given routing key.
func (c *Client) Publish(ctx context.Context, routingKey string, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.channel.PublishWithContext(
		ctx,
		c.cfg.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	); err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	return nil
}

// PublishEmail queues a rendered reminder email for the worker.
func (c *Client) PublishEmail(ctx context.Context, message any) error {
	return c.Publish(ctx, c.cfg.EmailQueue, message)
}

// PublishFailed parks an undeliverable message on the failed queue.
func (c *Client) PublishFailed(ctx context.Context, message any) error {
	return c.Publish(ctx, c.cfg.FailedQueue, message)
}

// ConsumeEmail opens the delivery stream for the email queue.
func (c *Client) ConsumeEmail() (<-chan amqp.Delivery, error) {
	return c.channel.Consume(
		c.cfg.EmailQueue,
		"",    // consumer tag
		false, // auto-ack: the worker acks after the SMTP attempt
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}
