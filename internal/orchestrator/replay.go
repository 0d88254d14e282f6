package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"booking-saga/internal/event"
	"booking-saga/internal/eventlog"
	"booking-saga/internal/saga"
	"booking-saga/internal/status"
)

// reconstruct rebuilds a saga instance from its ordered event history.
// Replay is state-only: no messages are published and no records are
// appended, so replaying a log any number of times yields the same
// instance.
//
// The pass over the history runs twice. The first pass pins the failure
// reason to the first genuine step failure, because the final SagaFailed
// record may carry a placeholder when compensation finished without a
// recorded reason. The second pass folds each record into the instance.
func (o *Orchestrator) reconstruct(ctx context.Context, sagaID string) (*saga.Instance, error) {
	records, err := o.log.EventsByAggregate(ctx, sagaID)
	if err != nil {
		if errors.Is(err, eventlog.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load events for %s: %w", sagaID, err)
	}

	inst := &saga.Instance{SagaID: sagaID}

	// Pass 1: first genuine failure reason wins.
	for _, rec := range records {
		if inst.FailureReason != nil {
			break
		}
		switch rec.EventType {
		case event.TypeBookingFailed, event.TypePaymentFailed, event.TypeRentalFailed:
			var failed struct {
				Reason string `json:"Reason"`
			}
			if err := json.Unmarshal(rec.EventData, &failed); err != nil {
				o.logger.Warn("skipping undecodable failure record during replay",
					zap.String("saga_id", sagaID), zap.Int("version", rec.Version), zap.Error(err))
				continue
			}
			if failed.Reason != "" && failed.Reason != "Compensation completed" {
				reason := failed.Reason
				inst.FailureReason = &reason
			}
		}
	}

	// Pass 2: fold state.
	for i := range records {
		rec := &records[i]
		if err := o.applyRecord(inst, rec); err != nil {
			o.logger.Warn("skipping undecodable record during replay",
				zap.String("saga_id", sagaID), zap.String("event_type", rec.EventType),
				zap.Int("version", rec.Version), zap.Error(err))
			continue
		}
		inst.Version = rec.Version
		ts := rec.Timestamp
		inst.UpdatedAt = &ts
	}

	if inst.CreatedAt.IsZero() && len(records) > 0 {
		inst.CreatedAt = records[0].Timestamp
	}

	o.instances.Store(sagaID, inst)
	return inst, nil
}

func (o *Orchestrator) applyRecord(inst *saga.Instance, rec *eventlog.Record) error {
	switch rec.EventType {
	case event.TypeSagaStarted:
		var ev event.SagaStarted
		if err := json.Unmarshal(rec.EventData, &ev); err != nil {
			return err
		}
		inst.CustomerID = ev.CustomerID
		inst.TimeSlot = ev.TimeSlot
		inst.ServiceType = ev.ServiceType
		inst.Price = ev.Price
		inst.CreatedAt = ev.StartedAt
		inst.Status = status.Started

	case event.TypeBookingCompleted:
		var ev event.BookingCompleted
		if err := json.Unmarshal(rec.EventData, &ev); err != nil {
			return err
		}
		inst.BookingID = &ev.BookingID
		inst.Status = status.BookingCompleted

	case event.TypePaymentCompleted:
		var ev event.PaymentCompleted
		if err := json.Unmarshal(rec.EventData, &ev); err != nil {
			return err
		}
		inst.PaymentID = &ev.PaymentID
		inst.Status = status.PaymentCompleted

	case event.TypeRentalCompleted:
		var ev event.RentalCompleted
		if err := json.Unmarshal(rec.EventData, &ev); err != nil {
			return err
		}
		inst.RentalID = &ev.RentalID
		inst.Status = status.RentalCompleted

	case event.TypeSagaCompensating:
		inst.Status = status.Compensating

	case event.TypeSagaFailed:
		inst.Status = status.Failed

	case event.TypeSagaCompleted:
		inst.Status = status.Completed

	case event.TypeBookingFailed, event.TypePaymentFailed, event.TypeRentalFailed,
		event.TypeBookingCompensated, event.TypePaymentCompensated,
		event.TypeNotificationsCompleted:
		// Step-level records carry no state beyond what their saga-level
		// companions already apply.

	default:
		o.logger.Warn("unknown event type during replay",
			zap.String("saga_id", inst.SagaID), zap.String("event_type", rec.EventType))
	}
	return nil
}
