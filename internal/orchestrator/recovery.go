package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-saga/internal/event"
	"booking-saga/internal/status"
)

// Manual recovery. These operations exist for sagas whose confirmation
// message was lost: an operator asserts that the work actually happened
// and feeds the missing event in by hand. They are administrative
// overrides, not safe automation: forcing payment completion on a saga
// whose payment never went through invents a payment id with no real
// payment behind it.

// RecoverStuckNotifications marks the notification step complete for a
// saga stuck waiting on notification confirmations. The saga must be in
// NotificationsInProgress, or reconstructed as RentalCompleted with a
// rental id recorded (notifications were triggered but the completion
// signal never arrived). Returns ErrNotRecoverable otherwise.
func (o *Orchestrator) RecoverStuckNotifications(ctx context.Context, sagaID string) error {
	mu := o.lockFor(sagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, sagaID)
	if err != nil {
		return err
	}

	stuck := inst.Status == status.NotificationsInProgress ||
		(inst.Status == status.RentalCompleted && inst.RentalID != nil)
	if !stuck {
		o.logger.Warn("refusing notification recovery",
			zap.String("saga_id", sagaID), zap.String("status", string(inst.Status)))
		return ErrNotRecoverable
	}

	o.logger.Info("manually completing notifications", zap.String("saga_id", sagaID))
	return o.applyNotificationsCompleted(ctx, inst, event.NotificationsCompleted{SagaID: sagaID})
}

// RecoverStuckPayment forces payment completion for a saga stuck waiting
// on the payment confirmation. The saga must be in PaymentInProgress, or
// reconstructed as BookingCompleted with no payment id, and must have a
// booking id recorded. A fresh payment id is fabricated and the record
// is flagged as recovered so the history shows the intervention.
func (o *Orchestrator) RecoverStuckPayment(ctx context.Context, sagaID string) error {
	mu := o.lockFor(sagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, sagaID)
	if err != nil {
		return err
	}

	stuck := inst.Status == status.PaymentInProgress ||
		(inst.Status == status.BookingCompleted && inst.PaymentID == nil)
	if !stuck || inst.BookingID == nil {
		o.logger.Warn("refusing payment recovery",
			zap.String("saga_id", sagaID), zap.String("status", string(inst.Status)))
		return ErrNotRecoverable
	}

	ev := event.PaymentCompleted{
		SagaID:    sagaID,
		PaymentID: uuid.NewString(),
		BookingID: inst.BookingID,
		Amount:    inst.Price,
		Recovered: true,
	}
	o.logger.Info("manually completing payment",
		zap.String("saga_id", sagaID), zap.String("payment_id", ev.PaymentID))
	return o.applyPaymentCompleted(ctx, inst, ev)
}
