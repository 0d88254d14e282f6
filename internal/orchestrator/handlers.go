package orchestrator

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"booking-saga/internal/broker"
	"booking-saga/internal/event"
	"booking-saga/internal/saga"
	"booking-saga/internal/status"
)

// Inbound handlers. Every handler classifies the message shape before
// trusting the channel it arrived on, takes the per-saga lock, and
// appends to the event log before returning nil (which acknowledges the
// delivery). A nil return on a dropped or unknown message is deliberate:
// misrouted messages are discarded, not requeued.

// BindChannels subscribes the orchestrator to its inbound channels, one
// queue per binding so the transport's any-matching-binding delivery
// behavior stays confined to a single logical topic per consumer.
func (o *Orchestrator) BindChannels(sub broker.Subscriber) error {
	bindings := []struct {
		queue   string
		pattern string
		handler broker.Handler
	}{
		{"saga-orchestrator-booking-completed-queue", broker.TopicBookingCompleted, o.asHandler(o.HandleBookingCompleted)},
		{"saga-orchestrator-booking-failed-queue", broker.TopicBookingFailed, o.asHandler(o.HandleBookingFailed)},
		{"saga-orchestrator-payment-processed-queue", broker.TopicPaymentCompleted, o.asHandler(o.HandlePaymentCompleted)},
		{"saga-orchestrator-payment-failed-queue", broker.TopicPaymentFailed, o.asHandler(o.HandlePaymentFailed)},
		{"saga-orchestrator-rental-booked-queue", broker.TopicRentalCompleted, o.asHandler(o.HandleRentalCompleted)},
		{"saga-orchestrator-rental-failed-queue", broker.TopicRentalFailed, o.asHandler(o.HandleRentalFailed)},
		{"saga-orchestrator-booking-compensated-queue", broker.TopicBookingCompensated, o.asHandler(o.HandleBookingCompensated)},
		{"saga-orchestrator-payment-compensated-queue", broker.TopicPaymentCompensated, o.asHandler(o.HandlePaymentCompensated)},
		{"saga-orchestrator-notifications-completed-queue", broker.TopicNotificationsCompleted, o.asHandler(o.HandleNotificationsCompleted)},
	}

	for _, b := range bindings {
		if err := sub.Subscribe(b.queue, b.pattern, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) asHandler(fn func(ctx context.Context, body []byte) error) broker.Handler {
	return func(ctx context.Context, msg broker.Message) error {
		return fn(ctx, msg.Body)
	}
}

func (o *Orchestrator) HandleBookingCompleted(ctx context.Context, body []byte) error {
	switch event.Classify(event.ChannelBookingCompleted, body) {
	case event.DecisionFailure:
		return o.HandleBookingFailed(ctx, body)
	case event.DecisionDrop, event.DecisionError:
		o.logger.Warn("dropping non-booking message on booking completed channel", zap.ByteString("body", body))
		return nil
	}

	var ev event.BookingCompleted
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable booking completed event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for booking completed", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if !status.CanTransition(inst.Status, status.BookingCompleted) {
		o.logger.Info("ignoring booking completed in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	if err := o.append(ctx, inst, event.TypeBookingCompleted, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++
	inst.BookingID = &ev.BookingID
	o.setStatus(inst, status.BookingCompleted)

	return o.triggerPayment(ctx, inst)
}

func (o *Orchestrator) HandleBookingFailed(ctx context.Context, body []byte) error {
	switch event.Classify(event.ChannelBookingFailed, body) {
	case event.DecisionDrop, event.DecisionError:
		o.logger.Warn("dropping non-booking message on booking failed channel", zap.ByteString("body", body))
		return nil
	}

	var ev event.BookingFailed
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable booking failed event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for booking failed", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if !status.CanTransition(inst.Status, status.Failed) || inst.Status != status.BookingInProgress {
		o.logger.Info("ignoring booking failed in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	// Booking is the first step; nothing succeeded, so the saga fails
	// directly with no compensation.
	if err := o.append(ctx, inst, event.TypeBookingFailed, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++
	sagaFailed := event.SagaFailed{SagaID: ev.SagaID, Reason: ev.Reason}
	if err := o.append(ctx, inst, event.TypeSagaFailed, sagaFailed, inst.Version+1); err != nil {
		return err
	}
	inst.Version++

	o.recordFailure(inst, ev.Reason)
	o.setStatus(inst, status.Failed)
	o.logger.Info("saga failed", zap.String("saga_id", ev.SagaID), zap.String("reason", ev.Reason))

	return o.publish(ctx, broker.TopicSagaFailed, sagaFailed)
}

func (o *Orchestrator) HandlePaymentCompleted(ctx context.Context, body []byte) error {
	switch event.Classify(event.ChannelPaymentCompleted, body) {
	case event.DecisionFailure:
		return o.HandlePaymentFailed(ctx, body)
	case event.DecisionDrop, event.DecisionError:
		o.logger.Warn("dropping non-payment message on payment completed channel", zap.ByteString("body", body))
		return nil
	}

	var ev event.PaymentCompleted
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable payment completed event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for payment completed", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if !status.CanTransition(inst.Status, status.PaymentCompleted) {
		o.logger.Info("ignoring payment completed in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	return o.applyPaymentCompleted(ctx, inst, ev)
}

// applyPaymentCompleted records a completed payment and moves on to the
// rental step. The caller holds the saga lock.
func (o *Orchestrator) applyPaymentCompleted(ctx context.Context, inst *saga.Instance, ev event.PaymentCompleted) error {
	if err := o.append(ctx, inst, event.TypePaymentCompleted, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++
	inst.PaymentID = &ev.PaymentID
	o.setStatus(inst, status.PaymentCompleted)

	return o.triggerRental(ctx, inst)
}

func (o *Orchestrator) HandlePaymentFailed(ctx context.Context, body []byte) error {
	switch event.Classify(event.ChannelPaymentFailed, body) {
	case event.DecisionDrop, event.DecisionError:
		o.logger.Warn("dropping non-payment message on payment failed channel", zap.ByteString("body", body))
		return nil
	}

	var ev event.PaymentFailed
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable payment failed event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for payment failed", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if inst.Status != status.PaymentInProgress {
		o.logger.Info("ignoring payment failed in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	if err := o.append(ctx, inst, event.TypePaymentFailed, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++
	compensating := event.SagaCompensating{SagaID: ev.SagaID, Reason: ev.Reason}
	if err := o.append(ctx, inst, event.TypeSagaCompensating, compensating, inst.Version+1); err != nil {
		return err
	}
	inst.Version++

	o.recordFailure(inst, ev.Reason)
	o.setStatus(inst, status.Compensating)

	return o.routeCompensation(ctx, inst)
}

func (o *Orchestrator) HandleRentalCompleted(ctx context.Context, body []byte) error {
	switch event.Classify(event.ChannelRentalCompleted, body) {
	case event.DecisionFailure:
		return o.HandleRentalFailed(ctx, body)
	case event.DecisionDrop, event.DecisionError:
		o.logger.Warn("dropping non-rental message on rental completed channel", zap.ByteString("body", body))
		return nil
	}

	var ev event.RentalCompleted
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable rental completed event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for rental completed", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if !status.CanTransition(inst.Status, status.RentalCompleted) {
		o.logger.Info("ignoring rental completed in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	if err := o.append(ctx, inst, event.TypeRentalCompleted, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++
	inst.RentalID = &ev.RentalID
	o.setStatus(inst, status.RentalCompleted)

	return o.triggerNotifications(ctx, inst)
}

func (o *Orchestrator) HandleRentalFailed(ctx context.Context, body []byte) error {
	var ev event.RentalFailed
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable rental failed event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for rental failed", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if inst.Status != status.RentalInProgress {
		o.logger.Info("ignoring rental failed in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	if err := o.append(ctx, inst, event.TypeRentalFailed, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++
	compensating := event.SagaCompensating{SagaID: ev.SagaID, Reason: ev.Reason}
	if err := o.append(ctx, inst, event.TypeSagaCompensating, compensating, inst.Version+1); err != nil {
		return err
	}
	inst.Version++

	o.recordFailure(inst, ev.Reason)
	o.setStatus(inst, status.Compensating)

	return o.routeCompensation(ctx, inst)
}

func (o *Orchestrator) HandlePaymentCompensated(ctx context.Context, body []byte) error {
	var ev event.PaymentCompensated
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable payment compensated event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for payment compensated", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if inst.Status != status.Compensating {
		o.logger.Info("ignoring payment compensated in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	if err := o.append(ctx, inst, event.TypePaymentCompensated, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++

	// Payment undone; continue walking backward to the booking.
	return o.compensateBooking(ctx, inst)
}

func (o *Orchestrator) HandleBookingCompensated(ctx context.Context, body []byte) error {
	var ev event.BookingCompensated
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable booking compensated event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for booking compensated", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if inst.Status != status.Compensating {
		o.logger.Info("ignoring booking compensated in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	if err := o.append(ctx, inst, event.TypeBookingCompensated, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++

	// Finalize with the reason recorded at the first genuine failure;
	// the compensation acknowledgment never overwrites it.
	finalReason := "Compensation completed"
	if inst.FailureReason != nil {
		finalReason = *inst.FailureReason
	}
	sagaFailed := event.SagaFailed{SagaID: ev.SagaID, Reason: finalReason}
	if err := o.append(ctx, inst, event.TypeSagaFailed, sagaFailed, inst.Version+1); err != nil {
		return err
	}
	inst.Version++

	o.setStatus(inst, status.Failed)
	o.logger.Info("compensation completed, saga failed",
		zap.String("saga_id", ev.SagaID), zap.String("reason", finalReason))

	return o.publish(ctx, broker.TopicSagaFailed, sagaFailed)
}

func (o *Orchestrator) HandleNotificationsCompleted(ctx context.Context, body []byte) error {
	var ev event.NotificationsCompleted
	if err := json.Unmarshal(body, &ev); err != nil {
		o.logger.Warn("undecodable notifications completed event", zap.Error(err))
		return nil
	}

	mu := o.lockFor(ev.SagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, ev.SagaID)
	if err != nil {
		o.logger.Warn("saga not found for notifications completed", zap.String("saga_id", ev.SagaID))
		return nil
	}
	if inst.Status == status.Completed {
		// Duplicate delivery of the completion signal is a no-op: no
		// record is appended and the version does not move.
		o.logger.Info("saga already completed, ignoring duplicate notifications completed",
			zap.String("saga_id", ev.SagaID))
		return nil
	}
	if !status.CanTransition(inst.Status, status.Completed) {
		o.logger.Info("ignoring notifications completed in current status",
			zap.String("saga_id", ev.SagaID), zap.String("status", string(inst.Status)))
		return nil
	}

	return o.applyNotificationsCompleted(ctx, inst, ev)
}

// applyNotificationsCompleted records the final step and completes the
// saga. The caller holds the saga lock.
func (o *Orchestrator) applyNotificationsCompleted(ctx context.Context, inst *saga.Instance, ev event.NotificationsCompleted) error {
	if err := o.append(ctx, inst, event.TypeNotificationsCompleted, ev, inst.Version+1); err != nil {
		return err
	}
	inst.Version++
	completed := event.SagaCompleted{SagaID: ev.SagaID, CompletedAt: o.now()}
	if err := o.append(ctx, inst, event.TypeSagaCompleted, completed, inst.Version+1); err != nil {
		return err
	}
	inst.Version++

	o.setStatus(inst, status.Completed)
	o.logger.Info("saga completed", zap.String("saga_id", ev.SagaID))

	return o.publish(ctx, broker.TopicSagaCompleted, completed)
}

// recordFailure keeps the first genuine failure reason.
func (o *Orchestrator) recordFailure(inst *saga.Instance, reason string) {
	if inst.FailureReason == nil {
		inst.FailureReason = &reason
	}
}
