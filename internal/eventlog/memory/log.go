package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"booking-saga/internal/eventlog"
)

// Log is an in-memory implementation of the orchestrator's event log
// interface, used by tests and the single-process demo wiring.
type Log struct {
	mu      sync.RWMutex
	records map[string][]eventlog.Record
	order   []string
	now     func() time.Time
}

func New() *Log {
	return &Log{
		records: make(map[string][]eventlog.Record),
		now:     time.Now,
	}
}

func (l *Log) Append(ctx context.Context, aggregateID, eventType string, eventData any, version int) (string, error) {
	data, err := json.Marshal(eventData)
	if err != nil {
		return "", fmt.Errorf("marshal event data: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records[aggregateID] {
		if rec.Version == version {
			return "", eventlog.ErrVersionConflict
		}
	}

	if _, known := l.records[aggregateID]; !known {
		l.order = append(l.order, aggregateID)
	}

	rec := eventlog.Record{
		EventID:     uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   eventType,
		EventData:   data,
		Timestamp:   l.now(),
		Version:     version,
	}
	l.records[aggregateID] = append(l.records[aggregateID], rec)
	return rec.EventID, nil
}

func (l *Log) EventsByAggregate(ctx context.Context, aggregateID string) ([]eventlog.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recs, ok := l.records[aggregateID]
	if !ok || len(recs) == 0 {
		return nil, eventlog.ErrNotFound
	}

	out := make([]eventlog.Record, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (l *Log) AggregateIDs(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.order))
	copy(out, l.order)
	return out, nil
}
