package broker

import (
	"context"
	"fmt"
	"strings"
)

// Routing keys on the saga topic exchange.
const (
	// Outbound requests (orchestrator -> participants).
	TopicBookingRequested      = "saga.booking.requested"
	TopicPaymentRequested      = "saga.payment.requested"
	TopicRentalRequested       = "saga.rental.requested"
	TopicNotificationRequested = "saga.notification.requested"
	TopicBookingCompensate     = "saga.booking.compensate"
	TopicPaymentCompensate     = "saga.payment.compensate"

	// Terminal announcements.
	TopicSagaCompleted = "saga.completed"
	TopicSagaFailed    = "saga.failed"

	// Inbound events (participants -> orchestrator).
	TopicBookingCompleted       = "booking.timeslot.booked"
	TopicBookingFailed          = "booking.failed"
	TopicPaymentCompleted       = "payment.processed"
	TopicPaymentFailed          = "payment.failed"
	TopicRentalCompleted        = "rental.car.booked"
	TopicRentalFailed           = "rental.failed"
	TopicBookingCompensated     = "booking.compensated"
	TopicPaymentCompensated     = "payment.compensated"
	TopicNotificationsCompleted = "notifications.completed"

	// Per-notification outcomes, informational only.
	TopicNotificationSent   = "notification.sent"
	TopicNotificationFailed = "notification.failed"
)

type Config struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

const DefaultExchange = "saga.events"

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("broker.url is required")
	}
	return nil
}

type Message struct {
	RoutingKey string
	Body       []byte
}

// Handler processes one delivered message. A nil return acknowledges the
// delivery; an error requeues it (at-least-once, so handlers must be
// idempotent).
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Subscriber interface {
	// Subscribe binds pattern to a named queue and consumes it with
	// handler. The transport may deliver a message matching any of a
	// queue's bound patterns, so consumers keep one queue per pattern
	// and still verify message shape before acting.
	Subscribe(queue, pattern string, handler Handler) error
}

type NoopPublisher struct{}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	return nil
}
