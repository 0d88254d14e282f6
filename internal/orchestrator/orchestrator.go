package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"booking-saga/internal/broker"
	"booking-saga/internal/event"
	"booking-saga/internal/eventlog"
	"booking-saga/internal/saga"
	"booking-saga/internal/status"
)

var (
	ErrNotFound       = errors.New("saga not found")
	ErrNotRecoverable = errors.New("saga not in a recoverable state")
)

// Orchestrator drives the booking saga: it owns the instance cache,
// funnels every mutation through transition handlers, and appends each
// accepted transition to the event log before the transport delivery is
// acknowledged.
type Orchestrator struct {
	log    Log
	pub    Publisher
	audit  Auditor
	logger *zap.Logger
	now    func() time.Time

	instances *xsync.MapOf[string, *saga.Instance]
	locks     *xsync.MapOf[string, *sync.Mutex]
}

func New(log Log, pub Publisher, audit Auditor, logger *zap.Logger) (*Orchestrator, error) {
	if log == nil {
		return nil, errors.New("event log is required")
	}
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		log:       log,
		pub:       pub,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
		instances: xsync.NewMapOf[string, *saga.Instance](),
		locks:     xsync.NewMapOf[string, *sync.Mutex](),
	}, nil
}

// lockFor serializes mutation per saga id: at most one in-flight
// transition per saga, while unrelated sagas progress concurrently.
func (o *Orchestrator) lockFor(sagaID string) *sync.Mutex {
	mu, _ := o.locks.LoadOrStore(sagaID, &sync.Mutex{})
	return mu
}

// Start creates a saga, appends SagaStarted, and triggers the booking
// step. It returns the new saga id.
func (o *Orchestrator) Start(ctx context.Context, req saga.StartRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	sagaID := uuid.NewString()
	now := o.now()
	inst := &saga.Instance{
		SagaID:                 sagaID,
		Status:                 status.Started,
		CustomerID:             req.CustomerID,
		TimeSlot:               req.TimeSlot,
		ServiceType:            req.ServiceType,
		Price:                  req.Price,
		CreatedAt:              now,
		Version:                1,
		SimulatePaymentFailure: req.SimulatePaymentFailure,
		SimulateRentalFailure:  req.SimulateRentalFailure,
		SimulateTimeout:        req.SimulateTimeout,
	}

	mu := o.lockFor(sagaID)
	mu.Lock()
	defer mu.Unlock()

	o.instances.Store(sagaID, inst)

	started := event.SagaStarted{
		SagaID:      sagaID,
		CustomerID:  req.CustomerID,
		TimeSlot:    req.TimeSlot,
		ServiceType: req.ServiceType,
		Price:       req.Price,
		Status:      string(status.Started),
		StartedAt:   now,
	}
	if err := o.append(ctx, inst, event.TypeSagaStarted, started, 1); err != nil {
		o.instances.Delete(sagaID)
		return "", err
	}

	if err := o.triggerBooking(ctx, inst, req); err != nil {
		return "", err
	}
	return sagaID, nil
}

func (o *Orchestrator) triggerBooking(ctx context.Context, inst *saga.Instance, req saga.StartRequest) error {
	o.setStatus(inst, status.BookingInProgress)

	msg := event.BookingRequested{
		SagaID:          inst.SagaID,
		CustomerID:      req.CustomerID,
		TimeSlot:        req.TimeSlot,
		ServiceType:     req.ServiceType,
		SimulateFailure: req.SimulateBookingFailure,
		SimulateTimeout: req.SimulateTimeout,
	}
	if err := o.publish(ctx, broker.TopicBookingRequested, msg); err != nil {
		return err
	}
	o.logger.Info("triggered booking request", zap.String("saga_id", inst.SagaID))
	return nil
}

func (o *Orchestrator) triggerPayment(ctx context.Context, inst *saga.Instance) error {
	o.setStatus(inst, status.PaymentInProgress)

	msg := event.PaymentRequested{
		SagaID:          inst.SagaID,
		BookingID:       inst.BookingID,
		Amount:          inst.Price,
		Currency:        "USD",
		SimulateFailure: inst.SimulatePaymentFailure,
		SimulateTimeout: inst.SimulateTimeout,
	}
	if err := o.publish(ctx, broker.TopicPaymentRequested, msg); err != nil {
		return err
	}
	o.logger.Info("triggered payment request", zap.String("saga_id", inst.SagaID))
	return nil
}

func (o *Orchestrator) triggerRental(ctx context.Context, inst *saga.Instance) error {
	o.setStatus(inst, status.RentalInProgress)

	msg := event.RentalRequested{
		SagaID:          inst.SagaID,
		BookingID:       inst.BookingID,
		CarType:         "Standard",
		StartDate:       inst.TimeSlot,
		EndDate:         inst.TimeSlot.Add(24 * time.Hour),
		SimulateFailure: inst.SimulateRentalFailure,
		SimulateTimeout: inst.SimulateTimeout,
	}
	if err := o.publish(ctx, broker.TopicRentalRequested, msg); err != nil {
		return err
	}
	o.logger.Info("triggered rental request", zap.String("saga_id", inst.SagaID))
	return nil
}

func (o *Orchestrator) triggerNotifications(ctx context.Context, inst *saga.Instance) error {
	o.setStatus(inst, status.NotificationsInProgress)

	shop := event.NotificationRequested{
		SagaID:    inst.SagaID,
		Recipient: "shop@example.com",
		Type:      "ShopNotification",
		Subject:   "New Service Booking",
		Message:   fmt.Sprintf("New booking for %s on %s", inst.ServiceType, inst.TimeSlot.Format(time.RFC3339)),
	}
	if err := o.publish(ctx, broker.TopicNotificationRequested, shop); err != nil {
		return err
	}

	customer := event.NotificationRequested{
		SagaID:    inst.SagaID,
		Recipient: fmt.Sprintf("customer%s@example.com", inst.CustomerID),
		Type:      "CustomerNotification",
		Subject:   "Service Booking Confirmed",
		Message:   fmt.Sprintf("Your %s service is booked for %s. Rental car booked.", inst.ServiceType, inst.TimeSlot.Format(time.RFC3339)),
	}
	if err := o.publish(ctx, broker.TopicNotificationRequested, customer); err != nil {
		return err
	}

	o.logger.Info("triggered notifications", zap.String("saga_id", inst.SagaID))
	return nil
}

func (o *Orchestrator) setStatus(inst *saga.Instance, s status.Status) {
	inst.Status = s
	ts := o.now()
	inst.UpdatedAt = &ts
}

// append writes one event-log record at the given version and mirrors it
// to the audit stream. The caller has already bumped inst.Version.
func (o *Orchestrator) append(ctx context.Context, inst *saga.Instance, eventType string, eventData any, version int) error {
	eventID, err := o.log.Append(ctx, inst.SagaID, eventType, eventData, version)
	if err != nil {
		return fmt.Errorf("append %s: %w", eventType, err)
	}
	if o.audit != nil {
		data, mErr := json.Marshal(eventData)
		if mErr == nil {
			rec := eventlog.Record{
				EventID:     eventID,
				AggregateID: inst.SagaID,
				EventType:   eventType,
				EventData:   data,
				Timestamp:   o.now(),
				Version:     version,
			}
			if aErr := o.audit.Mirror(ctx, rec); aErr != nil {
				o.logger.Warn("audit mirror failed", zap.String("saga_id", inst.SagaID), zap.Error(aErr))
			}
		}
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	if err := o.pub.Publish(ctx, topic, body); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// instance returns the cached instance for sagaID, reconstructing it
// from the event log on a cache miss.
func (o *Orchestrator) instance(ctx context.Context, sagaID string) (*saga.Instance, error) {
	if inst, ok := o.instances.Load(sagaID); ok {
		return inst, nil
	}
	return o.reconstruct(ctx, sagaID)
}

// GetSaga returns a read-only copy of one saga's current state,
// reconstructed from the log if it is not cached.
func (o *Orchestrator) GetSaga(ctx context.Context, sagaID string) (*saga.Instance, error) {
	mu := o.lockFor(sagaID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := o.instance(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	return inst.Clone(), nil
}

// GetAllSagas enumerates every aggregate in the event log and returns
// the (possibly reconstructed) state of each.
func (o *Orchestrator) GetAllSagas(ctx context.Context) ([]*saga.Instance, error) {
	ids, err := o.log.AggregateIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}

	out := make([]*saga.Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := o.GetSaga(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// GetEvents returns the raw ordered event history for one saga.
func (o *Orchestrator) GetEvents(ctx context.Context, sagaID string) ([]eventlog.Record, error) {
	records, err := o.log.EventsByAggregate(ctx, sagaID)
	if err != nil {
		if errors.Is(err, eventlog.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return records, nil
}
