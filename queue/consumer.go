// Package queue consumes notification payloads from AMQP and hands them
// to the dispatcher. Delivery is at-least-once: messages are acked only
// after the dispatcher reports an outcome, and a rate-limited dispatch
// is requeued once so it retries against a cooled-down pool.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/prilive-com/despacho"
)

// Dispatcher is the part of despacho.Dispatcher the consumer needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, p despacho.Payload) error
}

// Consumer reads payloads from one AMQP queue.
type Consumer struct {
	url        string
	queueName  string
	dispatcher Dispatcher
	logger     *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer creates a consumer for the named queue.
func NewConsumer(url, queueName string, d Dispatcher, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		url:        url,
		queueName:  queueName,
		dispatcher: d,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects, declares the queue and processes messages until the
// context is canceled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // manual ack: a payload is acked only after dispatch
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("consumer running", "queue", q.Name)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

// handle processes one delivery. Malformed payloads and terminally
// failed dispatches are acked and dropped; only a pool-wide rate limit
// earns a single requeue.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var p despacho.Payload
	if err := json.Unmarshal(d.Body, &p); err != nil {
		c.logger.Warn("dropping malformed payload", "error", err)
		c.ack(d)
		return
	}

	err := c.dispatcher.Dispatch(ctx, p)
	if err == nil {
		c.ack(d)
		return
	}

	if despacho.IsRateLimited(err) && !d.Redelivered {
		c.logger.Warn("dispatch rate limited, requeueing once", "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("nack failed", "error", nackErr)
		}
		return
	}

	c.logger.Error("dispatch failed, dropping payload", "error", err)
	c.ack(d)
}

func (c *Consumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", "error", err)
	}
}
