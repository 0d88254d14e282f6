package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"booking-saga/internal/eventlog"
)

// The audit stream mirrors every appended event-log record onto a kafka
// topic for external consumers (dashboards, offline analysis). It is
// strictly best-effort and never part of the saga's correctness path.

type Config struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"events_topic"`
	ClientID    string   `yaml:"client_id"`
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("audit.brokers is required")
	}
	if strings.TrimSpace(c.EventsTopic) == "" {
		return fmt.Errorf("audit.events_topic is required")
	}
	return nil
}

type Message struct {
	Key   string
	Value []byte
}

type Producer interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

type NoopProducer struct{}

func (p *NoopProducer) Publish(ctx context.Context, topic string, msg Message) error {
	return nil
}

// Stream writes event-log records to the configured topic, keyed by
// aggregate id so one saga's records stay in partition order.
type Stream struct {
	topic    string
	producer Producer
}

func NewStream(cfg Config, producer Producer) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if producer == nil {
		producer = &NoopProducer{}
	}
	return &Stream{topic: cfg.EventsTopic, producer: producer}, nil
}

func (s *Stream) Mirror(ctx context.Context, rec eventlog.Record) error {
	if s == nil || s.producer == nil {
		return fmt.Errorf("audit stream not configured")
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return s.producer.Publish(ctx, s.topic, Message{Key: rec.AggregateID, Value: value})
}
