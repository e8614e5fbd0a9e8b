// Package mq runs the translation pipeline behind RabbitMQ queues.
package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MimeLyc/subflow/pkg/log"
)

// Publisher sends a JSON body to a named queue
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Consumer reads unacknowledged deliveries from one durable queue
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// Producer publishes persistent JSON messages
type Producer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer connects and declares queue. Prefetch is one message, so a
// worker never holds more than the job it is running.
func NewConsumer(url, queue string) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{conn: conn, ch: ch, queue: queue}, nil
}

// Deliveries starts consuming with manual acknowledgement
func (c *Consumer) Deliveries() (<-chan amqp.Delivery, error) {
	return c.ch.Consume(c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() {
	closeAMQP(c.ch, c.conn)
	log.Debug("rabbitmq consumer closed: %s", c.queue)
}

// NewProducer connects to the broker
func NewProducer(url string) (*Producer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &Producer{conn: conn, ch: ch}, nil
}

func (p *Producer) Publish(ctx context.Context, queue string, body []byte) error {
	if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	err := p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func (p *Producer) Close() {
	closeAMQP(p.ch, p.conn)
}

func closeAMQP(ch *amqp.Channel, conn *amqp.Connection) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			log.Debug("close channel: %v", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Debug("close connection: %v", err)
		}
	}
}
