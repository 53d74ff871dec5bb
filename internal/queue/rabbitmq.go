package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient publishes and consumes task messages over a single AMQP
// connection. It implements both Publisher and Consumer.
type RabbitMQClient struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	prefetch int
	mu       sync.Mutex // Protects channel access for thread-safety
}

// NewRabbitMQClient connects, declares a durable topic exchange and a durable
// task queue bound to it, and caps in-flight deliveries at prefetch.
func NewRabbitMQClient(url, exchange, queueName string, prefetch int) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		queueName, // queue name
		queueName, // routing key (same as queue name)
		exchange,  // exchange
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	return &RabbitMQClient{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    queueName,
		prefetch: prefetch,
	}, nil
}

// Publish sends a task to the task queue as a persistent JSON message.
func (c *RabbitMQClient) Publish(ctx context.Context, msg TaskMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	err = c.ch.PublishWithContext(ctx,
		c.exchange, // exchange
		c.queue,    // routing key (queue name)
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		})
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish to RabbitMQ: %w", err)
	}

	return nil
}

// Consume delivers tasks to handler until ctx is cancelled or the channel
// closes. Each delivery is acked after the handler returns nil, nacked back
// onto the queue when the handler errors, and dropped when the payload does
// not parse.
func (c *RabbitMQClient) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := c.ch.Consume(
		c.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("RabbitMQ delivery channel closed")
			}

			var msg TaskMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				slog.Warn("Dropping malformed task message", "error", err)
				delivery.Nack(false, false)
				continue
			}

			wg.Add(1)
			go func(msg TaskMessage, delivery amqp.Delivery) {
				defer wg.Done()
				if err := handler(ctx, msg); err != nil {
					slog.Error("Task handler failed, requeueing", "job", msg.JobID, "error", err)
					delivery.Nack(false, true)
					return
				}
				delivery.Ack(false)
			}(msg, delivery)
		}
	}
}

// Close closes the RabbitMQ connection.
func (c *RabbitMQClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
