package eventlog

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("no events for aggregate")
	ErrVersionConflict = errors.New("version already used for aggregate")
	ErrLogUnavailable  = errors.New("event log unavailable")
)

// Record is one append-only entry. Versions are strictly increasing per
// aggregate and never reused; the log is the only durable entity.
type Record struct {
	EventID     string          `json:"eventId"`
	AggregateID string          `json:"aggregateId"`
	EventType   string          `json:"eventType"`
	EventData   json.RawMessage `json:"eventData"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
}
