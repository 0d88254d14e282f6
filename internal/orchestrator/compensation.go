package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"booking-saga/internal/broker"
	"booking-saga/internal/event"
	"booking-saga/internal/saga"
)

// routeCompensation emits the next owed compensation command, walking
// backward from the failed step. Which resource ids are set on the
// instance determines how far forward the saga got: a recorded payment
// must be refunded before the booking is cancelled.
func (o *Orchestrator) routeCompensation(ctx context.Context, inst *saga.Instance) error {
	if inst.PaymentID != nil {
		return o.compensatePayment(ctx, inst)
	}
	return o.compensateBooking(ctx, inst)
}

func (o *Orchestrator) compensatePayment(ctx context.Context, inst *saga.Instance) error {
	msg := event.PaymentCompensate{
		SagaID:    inst.SagaID,
		PaymentID: inst.PaymentID,
	}
	if err := o.publish(ctx, broker.TopicPaymentCompensate, msg); err != nil {
		return err
	}
	o.logger.Info("requested payment compensation", zap.String("saga_id", inst.SagaID))
	return nil
}

func (o *Orchestrator) compensateBooking(ctx context.Context, inst *saga.Instance) error {
	msg := event.BookingCompensate{
		SagaID:    inst.SagaID,
		BookingID: inst.BookingID,
	}
	if err := o.publish(ctx, broker.TopicBookingCompensate, msg); err != nil {
		return err
	}
	o.logger.Info("requested booking compensation", zap.String("saga_id", inst.SagaID))
	return nil
}
