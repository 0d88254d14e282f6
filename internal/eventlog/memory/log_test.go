package memory

import (
	"context"
	"errors"
	"testing"

	"booking-saga/internal/eventlog"
)

func TestAppendAndReadBack(t *testing.T) {
	l := New()
	ctx := context.Background()

	if _, err := l.Append(ctx, "agg-1", "SagaStarted", map[string]string{"SagaId": "agg-1"}, 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(ctx, "agg-1", "BookingCompleted", map[string]string{"BookingId": "b1"}, 2); err != nil {
		t.Fatalf("append: %v", err)
	}

	recs, err := l.EventsByAggregate(ctx, "agg-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].EventType != "SagaStarted" || recs[1].EventType != "BookingCompleted" {
		t.Fatalf("unexpected order: %q, %q", recs[0].EventType, recs[1].EventType)
	}
	if recs[0].Version != 1 || recs[1].Version != 2 {
		t.Fatalf("unexpected versions: %d, %d", recs[0].Version, recs[1].Version)
	}
	if recs[0].EventID == "" || recs[0].EventID == recs[1].EventID {
		t.Fatalf("event ids not unique: %q, %q", recs[0].EventID, recs[1].EventID)
	}
}

func TestAppendRejectsReusedVersion(t *testing.T) {
	l := New()
	ctx := context.Background()

	if _, err := l.Append(ctx, "agg-1", "SagaStarted", nil, 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, err := l.Append(ctx, "agg-1", "BookingCompleted", nil, 1)
	if !errors.Is(err, eventlog.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestEventsByAggregateNotFound(t *testing.T) {
	l := New()
	_, err := l.EventsByAggregate(context.Background(), "missing")
	if !errors.Is(err, eventlog.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAggregateIDsPreserveFirstSeenOrder(t *testing.T) {
	l := New()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if _, err := l.Append(ctx, id, "SagaStarted", nil, 1); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if _, err := l.Append(ctx, "a", "BookingCompleted", nil, 2); err != nil {
		t.Fatalf("append: %v", err)
	}

	ids, err := l.AggregateIDs(ctx)
	if err != nil {
		t.Fatalf("aggregate ids: %v", err)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
