package amqp

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"booking-saga/internal/broker"
)

// Transport is the RabbitMQ topic-exchange implementation of the saga
// channel transport. Delivery is at-least-once: a message is acked only
// after its handler returns nil, so a crash between receipt and the
// event-log append causes redelivery rather than loss.
type Transport struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func Dial(cfg broker.Config, logger *zap.Logger) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = broker.DefaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return &Transport{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

func (t *Transport) Close() error {
	if t == nil {
		return nil
	}
	if t.channel != nil {
		if err := t.channel.Close(); err != nil {
			return err
		}
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, routingKey string, body []byte) error {
	if t == nil || t.channel == nil {
		return fmt.Errorf("broker transport not configured")
	}
	return t.channel.Publish(t.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (t *Transport) Subscribe(queue, pattern string, handler broker.Handler) error {
	if _, err := t.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}
	if err := t.channel.QueueBind(queue, pattern, t.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q to %q: %w", queue, pattern, err)
	}

	deliveries, err := t.channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue %q: %w", queue, err)
	}

	go t.consume(queue, deliveries, handler)
	return nil
}

func (t *Transport) consume(queue string, deliveries <-chan amqp.Delivery, handler broker.Handler) {
	for d := range deliveries {
		msg := broker.Message{RoutingKey: d.RoutingKey, Body: d.Body}
		if err := handler(context.Background(), msg); err != nil {
			t.logger.Warn("handler failed, requeueing",
				zap.String("queue", queue),
				zap.String("routing_key", d.RoutingKey),
				zap.Error(err),
			)
			if nackErr := d.Nack(false, true); nackErr != nil {
				t.logger.Error("nack failed", zap.String("queue", queue), zap.Error(nackErr))
			}
			continue
		}
		if ackErr := d.Ack(false); ackErr != nil {
			t.logger.Error("ack failed", zap.String("queue", queue), zap.Error(ackErr))
		}
	}
	t.logger.Info("delivery channel closed", zap.String("queue", queue))
}
