package orchestrator

import (
	"context"

	"booking-saga/internal/eventlog"
)

type Log interface {
	Append(ctx context.Context, aggregateID, eventType string, eventData any, version int) (eventID string, err error)
	EventsByAggregate(ctx context.Context, aggregateID string) ([]eventlog.Record, error)
	AggregateIDs(ctx context.Context) ([]string, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Auditor interface {
	Mirror(ctx context.Context, rec eventlog.Record) error
}
