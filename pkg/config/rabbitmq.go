package config

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// DialRabbitMQ connects to RabbitMQ, retrying up to cfg.MaxRetries times.
func DialRabbitMQ(cfg RabbitMQConfig, log *logrus.Entry) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)

	for i := 0; i < cfg.MaxRetries; i++ {
		conn, err = amqp.Dial(cfg.URL())
		if err == nil {
			log.Infof("Connected to RabbitMQ at %s", cfg.Host)
			return conn, nil
		}

		if i < cfg.MaxRetries-1 {
			log.Warnf("Failed to connect to RabbitMQ (attempt %d/%d): %v. Retrying in %v...",
				i+1, cfg.MaxRetries, err, cfg.RetryDelay)
			time.Sleep(cfg.RetryDelay)
		}
	}

	return nil, fmt.Errorf("connect to RabbitMQ after %d attempts: %w", cfg.MaxRetries, err)
}

func declareQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
}
