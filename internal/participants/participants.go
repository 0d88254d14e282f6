package participants

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-saga/internal/broker"
	"booking-saga/internal/event"
	"booking-saga/internal/saga"
)

// Failure reasons the simulators report.
const (
	ReasonPastTimeSlot     = "Invalid time slot - cannot book in the past"
	ReasonSlotTaken        = "Time slot already booked"
	ReasonBookingTimeout   = "Booking service timeout - time slot validation took too long"
	ReasonInvalidAmount    = "Invalid amount - must be greater than zero"
	ReasonInsufficient     = "Insufficient funds"
	ReasonPaymentTimeout   = "Payment gateway timeout - external service took too long"
	ReasonInvalidDates     = "Invalid date range - end date must be after start date"
	ReasonNoCars           = "No cars available"
	ReasonRentalTimeout    = "Rental service timeout - availability check took too long"
	ReasonInvalidRecipient = "Invalid recipient email address"

	ReasonBookingCompensated = "Compensation - payment failed"
	ReasonNoBooking          = "Compensation - no booking to compensate (booking failed)"
	ReasonPaymentRefunded    = "Compensation - rental car booking failed"
	ReasonNoPayment          = "Compensation - no payment to compensate (payment failed)"
)

const defaultTimeoutDelay = 5 * time.Second

// Service simulates the four downstream participants: booking, payment,
// rental and notification. Each handler consumes a request from the
// exchange and answers with a completed, failed or compensated event on
// its own routing key. Handlers always ack (return nil); a malformed
// message is logged and discarded, never requeued.
type Service struct {
	pub     broker.Publisher
	counter NotificationCounter
	logger  *zap.Logger
	now     func() time.Time

	// timeoutDelay is how long a simulated timeout stalls before the
	// participant reports the failure.
	timeoutDelay time.Duration
}

func New(pub broker.Publisher, counter NotificationCounter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counter == nil {
		counter = NewMemoryCounter()
	}
	return &Service{
		pub:          pub,
		counter:      counter,
		logger:       logger,
		now:          time.Now,
		timeoutDelay: defaultTimeoutDelay,
	}
}

// Bind subscribes every simulator to its queue.
func (s *Service) Bind(sub broker.Subscriber) error {
	bindings := []struct {
		queue   string
		pattern string
		handler broker.Handler
	}{
		{"booking-service-queue", broker.TopicBookingRequested, s.asHandler(s.HandleBookingRequest)},
		{"booking-service-compensation-queue", broker.TopicBookingCompensate, s.asHandler(s.HandleBookingCompensate)},
		{"payment-service-queue", broker.TopicPaymentRequested, s.asHandler(s.HandlePaymentRequest)},
		{"payment-service-compensation-queue", broker.TopicPaymentCompensate, s.asHandler(s.HandlePaymentCompensate)},
		{"rental-service-queue", broker.TopicRentalRequested, s.asHandler(s.HandleRentalRequest)},
		{"notification-service-queue", broker.TopicNotificationRequested, s.asHandler(s.HandleNotificationRequest)},
	}

	for _, b := range bindings {
		if err := sub.Subscribe(b.queue, b.pattern, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) asHandler(fn func(ctx context.Context, body []byte) error) broker.Handler {
	return func(ctx context.Context, msg broker.Message) error {
		return fn(ctx, msg.Body)
	}
}

func (s *Service) HandleBookingRequest(ctx context.Context, body []byte) error {
	var req event.BookingRequested
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Warn("undecodable booking request", zap.Error(err))
		return nil
	}

	if req.SimulateTimeout {
		if err := s.stall(ctx); err != nil {
			return nil
		}
		return s.bookingFailed(ctx, req.SagaID, ReasonBookingTimeout)
	}
	if req.SimulateFailure {
		return s.bookingFailed(ctx, req.SagaID, ReasonSlotTaken)
	}
	if req.TimeSlot.Before(s.now()) {
		return s.bookingFailed(ctx, req.SagaID, ReasonPastTimeSlot)
	}

	ts := s.now()
	booked := event.BookingCompleted{
		SagaID:      req.SagaID,
		BookingID:   uuid.NewString(),
		CustomerID:  req.CustomerID,
		TimeSlot:    req.TimeSlot,
		ServiceType: req.ServiceType,
		CreatedAt:   &ts,
	}
	s.logger.Info("booked time slot",
		zap.String("saga_id", req.SagaID), zap.String("booking_id", booked.BookingID))
	return s.publish(ctx, broker.TopicBookingCompleted, booked)
}

func (s *Service) bookingFailed(ctx context.Context, sagaID, reason string) error {
	s.logger.Info("booking failed", zap.String("saga_id", sagaID), zap.String("reason", reason))
	return s.publish(ctx, broker.TopicBookingFailed, event.BookingFailed{SagaID: sagaID, Reason: reason})
}

func (s *Service) HandleBookingCompensate(ctx context.Context, body []byte) error {
	// The compensate queue can receive booking requests delivered by
	// pattern overlap. A request carries a customer id or simulation
	// flags; a compensate command never does.
	var env struct {
		SagaID          string          `json:"SagaId"`
		BookingID       *string         `json:"BookingId"`
		CustomerID      json.RawMessage `json:"CustomerId"`
		SimulateFailure json.RawMessage `json:"SimulateFailure"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		s.logger.Warn("undecodable booking compensate", zap.Error(err))
		return nil
	}
	if len(env.CustomerID) != 0 || len(env.SimulateFailure) != 0 {
		s.logger.Warn("ignoring booking request on compensation queue", zap.String("saga_id", env.SagaID))
		return nil
	}

	ts := s.now()
	reason := ReasonBookingCompensated
	if env.BookingID == nil || *env.BookingID == "" {
		// Nothing was booked; acknowledge anyway so compensation can
		// finish.
		env.BookingID = nil
		reason = ReasonNoBooking
	}
	compensated := event.BookingCompensated{
		SagaID:        env.SagaID,
		BookingID:     env.BookingID,
		Reason:        reason,
		CompensatedAt: &ts,
	}
	s.logger.Info("compensated booking", zap.String("saga_id", env.SagaID))
	return s.publish(ctx, broker.TopicBookingCompensated, compensated)
}

func (s *Service) HandlePaymentRequest(ctx context.Context, body []byte) error {
	var req event.PaymentRequested
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Warn("undecodable payment request", zap.Error(err))
		return nil
	}

	if req.SimulateTimeout {
		if err := s.stall(ctx); err != nil {
			return nil
		}
		return s.paymentFailed(ctx, req.SagaID, ReasonPaymentTimeout)
	}
	if req.SimulateFailure {
		return s.paymentFailed(ctx, req.SagaID, ReasonInsufficient)
	}
	if req.Amount <= 0 {
		return s.paymentFailed(ctx, req.SagaID, ReasonInvalidAmount)
	}

	processed := event.PaymentCompleted{
		SagaID:    req.SagaID,
		PaymentID: uuid.NewString(),
		BookingID: req.BookingID,
		Amount:    req.Amount,
	}
	s.logger.Info("processed payment",
		zap.String("saga_id", req.SagaID), zap.String("payment_id", processed.PaymentID))
	return s.publish(ctx, broker.TopicPaymentCompleted, processed)
}

func (s *Service) paymentFailed(ctx context.Context, sagaID, reason string) error {
	s.logger.Info("payment failed", zap.String("saga_id", sagaID), zap.String("reason", reason))
	return s.publish(ctx, broker.TopicPaymentFailed, event.PaymentFailed{SagaID: sagaID, Reason: reason})
}

func (s *Service) HandlePaymentCompensate(ctx context.Context, body []byte) error {
	var cmd event.PaymentCompensate
	if err := json.Unmarshal(body, &cmd); err != nil {
		s.logger.Warn("undecodable payment compensate", zap.Error(err))
		return nil
	}

	ts := s.now()
	reason := ReasonPaymentRefunded
	if cmd.PaymentID == nil || *cmd.PaymentID == "" {
		cmd.PaymentID = nil
		reason = ReasonNoPayment
	}
	compensated := event.PaymentCompensated{
		SagaID:     cmd.SagaID,
		PaymentID:  cmd.PaymentID,
		Reason:     reason,
		RefundedAt: &ts,
	}
	s.logger.Info("compensated payment", zap.String("saga_id", cmd.SagaID))
	return s.publish(ctx, broker.TopicPaymentCompensated, compensated)
}

func (s *Service) HandleRentalRequest(ctx context.Context, body []byte) error {
	var req event.RentalRequested
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Warn("undecodable rental request", zap.Error(err))
		return nil
	}

	if req.SimulateTimeout {
		if err := s.stall(ctx); err != nil {
			return nil
		}
		return s.rentalFailed(ctx, req.SagaID, ReasonRentalTimeout)
	}
	if req.SimulateFailure {
		return s.rentalFailed(ctx, req.SagaID, ReasonNoCars)
	}
	if !req.EndDate.After(req.StartDate) {
		return s.rentalFailed(ctx, req.SagaID, ReasonInvalidDates)
	}

	booked := event.RentalCompleted{
		SagaID:    req.SagaID,
		RentalID:  uuid.NewString(),
		BookingID: req.BookingID,
	}
	s.logger.Info("booked rental car",
		zap.String("saga_id", req.SagaID), zap.String("rental_id", booked.RentalID))
	return s.publish(ctx, broker.TopicRentalCompleted, booked)
}

func (s *Service) rentalFailed(ctx context.Context, sagaID, reason string) error {
	s.logger.Info("rental failed", zap.String("saga_id", sagaID), zap.String("reason", reason))
	return s.publish(ctx, broker.TopicRentalFailed, event.RentalFailed{SagaID: sagaID, Reason: reason})
}

func (s *Service) HandleNotificationRequest(ctx context.Context, body []byte) error {
	var req event.NotificationRequested
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Warn("undecodable notification request", zap.Error(err))
		return nil
	}

	// Notifications are non-critical: an invalid recipient is reported
	// but still counts toward completion so the saga is never wedged on
	// a bad email address.
	if strings.TrimSpace(req.Recipient) == "" || !strings.Contains(req.Recipient, "@") {
		failure := struct {
			SagaID    string `json:"SagaId"`
			Recipient string `json:"Recipient"`
			Reason    string `json:"Reason"`
		}{SagaID: req.SagaID, Recipient: req.Recipient, Reason: ReasonInvalidRecipient}
		if err := s.publish(ctx, broker.TopicNotificationFailed, failure); err != nil {
			return err
		}
		s.logger.Warn("invalid notification recipient",
			zap.String("saga_id", req.SagaID), zap.String("recipient", req.Recipient))
	} else {
		sent := struct {
			SagaID         string    `json:"SagaId"`
			NotificationID string    `json:"NotificationId"`
			Recipient      string    `json:"Recipient"`
			Type           string    `json:"Type"`
			Subject        string    `json:"Subject"`
			Message        string    `json:"Message"`
			SentAt         time.Time `json:"SentAt"`
		}{
			SagaID:         req.SagaID,
			NotificationID: uuid.NewString(),
			Recipient:      req.Recipient,
			Type:           req.Type,
			Subject:        req.Subject,
			Message:        req.Message,
			SentAt:         s.now(),
		}
		if err := s.publish(ctx, broker.TopicNotificationSent, sent); err != nil {
			return err
		}
		s.logger.Info("sent notification",
			zap.String("saga_id", req.SagaID), zap.String("recipient", req.Recipient))
	}

	count, err := s.counter.Increment(ctx, req.SagaID)
	if err != nil {
		// Requeue: without the count the completion signal could be
		// lost forever.
		return err
	}
	if count < saga.NotificationTarget {
		return nil
	}

	// Reset before announcing so a redelivered request starts a fresh
	// count instead of re-announcing completion.
	if err := s.counter.Reset(ctx, req.SagaID); err != nil {
		s.logger.Warn("notification counter reset failed",
			zap.String("saga_id", req.SagaID), zap.Error(err))
	}
	s.logger.Info("all notifications processed", zap.String("saga_id", req.SagaID))
	return s.publish(ctx, broker.TopicNotificationsCompleted, event.NotificationsCompleted{SagaID: req.SagaID})
}

// stall simulates a hung downstream call. Returns an error if the
// context was cancelled before the delay elapsed.
func (s *Service) stall(ctx context.Context) error {
	t := time.NewTimer(s.timeoutDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal payload", zap.String("topic", topic), zap.Error(err))
		return nil
	}
	return s.pub.Publish(ctx, topic, body)
}
