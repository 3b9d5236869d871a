package config

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrRejectMessage marks a message that can never be handled; it is dropped instead of requeued.
var ErrRejectMessage = errors.New("reject message")

type Consumer struct {
	channel *amqp.Channel
	queue   string
	log     *logrus.Entry
}

func NewConsumer(conn *amqp.Connection, queueName string, log *logrus.Entry) (*Consumer, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection not initialized")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	q, err := declareQueue(ch, queueName)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return &Consumer{channel: ch, queue: q.Name, log: log}, nil
}

// Consume delivers messages to handler until ctx is done or the channel closes.
// A handler error requeues the message unless it wraps ErrRejectMessage.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	msgs, err := c.channel.ConsumeWithContext(ctx,
		c.queue,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return err
	}

	c.log.Infof("Consumer is running on queue %s", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", c.queue)
			}
			if err := handler(ctx, msg.Body); err != nil {
				requeue := !errors.Is(err, ErrRejectMessage)
				c.log.WithField("requeue", requeue).Errorf("Handle msg failed: %v", err)
				msg.Nack(false, requeue)
				continue
			}
			msg.Ack(false)
		}
	}
}

func (c *Consumer) Close() error {
	return c.channel.Close()
}
