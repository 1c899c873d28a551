// Package exports dispatches asynchronous note-export jobs to a message
// queue. Delivery is fire-and-forget: the caller only waits for a
// successful enqueue, never for the consumer.
package exports

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher enqueues a message body on a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// AMQPPublisher publishes to a RabbitMQ broker. It dials per publish; export
// requests are rare enough that holding a connection open buys nothing.
type AMQPPublisher struct {
	url string
}

// NewAMQPPublisher constructs a publisher for the broker at url.
func NewAMQPPublisher(url string) *AMQPPublisher {
	return &AMQPPublisher{url: url}
}

// Publish declares the durable queue and enqueues body on it.
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}

	return channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}
