package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"booking-saga/internal/broker"
	membus "booking-saga/internal/broker/memory"
	"booking-saga/internal/event"
	memlog "booking-saga/internal/eventlog/memory"
	"booking-saga/internal/orchestrator"
	"booking-saga/internal/participants"
	"booking-saga/internal/saga"
	"booking-saga/internal/status"
)

// The e2e suite wires the orchestrator and all four participant
// simulators over the in-process bus and a shared in-memory event log,
// then drives whole sagas end to end through the same routing keys and
// queues production uses.

type world struct {
	bus  *membus.Bus
	log  *memlog.Log
	orch *orchestrator.Orchestrator
}

func newWorld(t *testing.T) *world {
	t.Helper()
	bus := membus.New()
	t.Cleanup(bus.Close)
	log := memlog.New()

	orch, err := orchestrator.New(log, bus, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	if err := orch.BindChannels(bus); err != nil {
		t.Fatalf("BindChannels: %v", err)
	}

	svc := participants.New(bus, participants.NewMemoryCounter(), zap.NewNop())
	if err := svc.Bind(bus); err != nil {
		t.Fatalf("participants.Bind: %v", err)
	}

	return &world{bus: bus, log: log, orch: orch}
}

func (w *world) run(t *testing.T, req saga.StartRequest) string {
	t.Helper()
	sagaID, err := w.orch.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.bus.Wait()
	return sagaID
}

func (w *world) saga(t *testing.T, sagaID string) *saga.Instance {
	t.Helper()
	inst, err := w.orch.GetSaga(context.Background(), sagaID)
	if err != nil {
		t.Fatalf("GetSaga: %v", err)
	}
	return inst
}

// eventOrder returns the position of each event type in the saga's log.
func (w *world) eventOrder(t *testing.T, sagaID string) map[string]int {
	t.Helper()
	records, err := w.orch.GetEvents(context.Background(), sagaID)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	order := make(map[string]int, len(records))
	for i, rec := range records {
		if _, seen := order[rec.EventType]; !seen {
			order[rec.EventType] = i
		}
	}
	return order
}

func baseRequest() saga.StartRequest {
	return saga.StartRequest{
		CustomerID:  "42",
		TimeSlot:    time.Now().Add(48 * time.Hour),
		ServiceType: "Oil Change",
		Price:       50,
	}
}

func TestSagaCompletesEndToEnd(t *testing.T) {
	w := newWorld(t)
	sagaID := w.run(t, baseRequest())

	inst := w.saga(t, sagaID)
	if inst.Status != status.Completed {
		t.Fatalf("status = %s, want %s", inst.Status, status.Completed)
	}
	if inst.BookingID == nil || inst.PaymentID == nil || inst.RentalID == nil {
		t.Fatalf("resource ids missing: %+v", inst)
	}
	if inst.FailureReason != nil {
		t.Fatalf("failureReason = %q on success", *inst.FailureReason)
	}

	order := w.eventOrder(t, sagaID)
	sequence := []string{
		event.TypeSagaStarted,
		event.TypeBookingCompleted,
		event.TypePaymentCompleted,
		event.TypeRentalCompleted,
		event.TypeNotificationsCompleted,
		event.TypeSagaCompleted,
	}
	for i := 1; i < len(sequence); i++ {
		prev, ok1 := order[sequence[i-1]]
		cur, ok2 := order[sequence[i]]
		if !ok1 || !ok2 || prev >= cur {
			t.Fatalf("event order wrong: %v", order)
		}
	}
}

func TestBookingFailureFailsSagaWithoutCompensation(t *testing.T) {
	w := newWorld(t)
	req := baseRequest()
	req.SimulateBookingFailure = true
	sagaID := w.run(t, req)

	inst := w.saga(t, sagaID)
	if inst.Status != status.Failed {
		t.Fatalf("status = %s, want %s", inst.Status, status.Failed)
	}
	if inst.FailureReason == nil || *inst.FailureReason != participants.ReasonSlotTaken {
		t.Fatalf("failureReason = %v, want %q", inst.FailureReason, participants.ReasonSlotTaken)
	}

	order := w.eventOrder(t, sagaID)
	if _, exists := order[event.TypeBookingCompensated]; exists {
		t.Fatal("first-step failure must not compensate")
	}
	if _, exists := order[event.TypePaymentCompensated]; exists {
		t.Fatal("first-step failure must not compensate payment")
	}
}

func TestPaymentFailureCompensatesBooking(t *testing.T) {
	w := newWorld(t)
	req := baseRequest()
	req.SimulatePaymentFailure = true
	sagaID := w.run(t, req)

	inst := w.saga(t, sagaID)
	if inst.Status != status.Failed {
		t.Fatalf("status = %s, want %s", inst.Status, status.Failed)
	}
	if inst.FailureReason == nil || *inst.FailureReason != participants.ReasonInsufficient {
		t.Fatalf("failureReason = %v, want %q", inst.FailureReason, participants.ReasonInsufficient)
	}

	order := w.eventOrder(t, sagaID)
	if _, exists := order[event.TypePaymentCompensated]; exists {
		t.Fatal("no payment succeeded, nothing to refund")
	}
	comp, ok1 := order[event.TypeBookingCompensated]
	failed, ok2 := order[event.TypeSagaFailed]
	if !ok1 || !ok2 || comp >= failed {
		t.Fatalf("compensation must precede the final failure: %v", order)
	}
}

func TestRentalFailureCompensatesInReverseOrder(t *testing.T) {
	w := newWorld(t)
	req := baseRequest()
	req.SimulateRentalFailure = true
	sagaID := w.run(t, req)

	inst := w.saga(t, sagaID)
	if inst.Status != status.Failed {
		t.Fatalf("status = %s, want %s", inst.Status, status.Failed)
	}
	if inst.FailureReason == nil || *inst.FailureReason != participants.ReasonNoCars {
		t.Fatalf("failureReason = %v, want %q", inst.FailureReason, participants.ReasonNoCars)
	}

	order := w.eventOrder(t, sagaID)
	sequence := []string{
		event.TypeRentalFailed,
		event.TypeSagaCompensating,
		event.TypePaymentCompensated,
		event.TypeBookingCompensated,
		event.TypeSagaFailed,
	}
	for i := 1; i < len(sequence); i++ {
		prev, ok1 := order[sequence[i-1]]
		cur, ok2 := order[sequence[i]]
		if !ok1 || !ok2 || prev >= cur {
			t.Fatalf("compensation order wrong: %v", order)
		}
	}
}

func TestCompletedSagaIgnoresDuplicateCompletion(t *testing.T) {
	w := newWorld(t)
	sagaID := w.run(t, baseRequest())

	before := w.saga(t, sagaID)
	if before.Status != status.Completed {
		t.Fatalf("status = %s, want %s", before.Status, status.Completed)
	}

	body, err := json.Marshal(event.NotificationsCompleted{SagaID: sagaID})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := w.bus.Deliver(context.Background(), "saga-orchestrator-notifications-completed-queue", broker.Message{
		RoutingKey: broker.TopicNotificationsCompleted,
		Body:       body,
	}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	w.bus.Wait()

	after := w.saga(t, sagaID)
	if after.Version != before.Version {
		t.Fatalf("version moved %d -> %d on duplicate completion", before.Version, after.Version)
	}
}

func TestMisroutedMessageIsDiscarded(t *testing.T) {
	w := newWorld(t)
	sagaID := w.run(t, baseRequest())
	before := w.saga(t, sagaID)

	// Shove a compensation-shaped message into the payment failed
	// queue, as an overlapping binding would.
	bookingID := "booking-x"
	body, err := json.Marshal(event.BookingCompensated{
		SagaID: sagaID, BookingID: &bookingID, Reason: "Compensation completed",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := w.bus.Deliver(context.Background(), "saga-orchestrator-payment-failed-queue", broker.Message{
		RoutingKey: broker.TopicPaymentFailed,
		Body:       body,
	}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	w.bus.Wait()

	after := w.saga(t, sagaID)
	if after.Status != before.Status || after.Version != before.Version {
		t.Fatalf("misrouted message mutated saga: %s v%d -> %s v%d",
			before.Status, before.Version, after.Status, after.Version)
	}
}

// stuckCounter never reaches the completion target, so the
// notifications.completed signal is never published.
type stuckCounter struct{}

func (stuckCounter) Increment(ctx context.Context, sagaID string) (int, error) { return 1, nil }
func (stuckCounter) Reset(ctx context.Context, sagaID string) error            { return nil }

func TestRecoveryCompletesStuckSaga(t *testing.T) {
	bus := membus.New()
	t.Cleanup(bus.Close)
	log := memlog.New()

	orch, err := orchestrator.New(log, bus, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	if err := orch.BindChannels(bus); err != nil {
		t.Fatalf("BindChannels: %v", err)
	}
	svc := participants.New(bus, stuckCounter{}, zap.NewNop())
	if err := svc.Bind(bus); err != nil {
		t.Fatalf("participants.Bind: %v", err)
	}

	sagaID, err := orch.Start(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	bus.Wait()

	inst, err := orch.GetSaga(context.Background(), sagaID)
	if err != nil {
		t.Fatalf("GetSaga: %v", err)
	}
	if inst.Status != status.NotificationsInProgress {
		t.Fatalf("status = %s, want %s", inst.Status, status.NotificationsInProgress)
	}

	if err := orch.RecoverStuckNotifications(context.Background(), sagaID); err != nil {
		t.Fatalf("RecoverStuckNotifications: %v", err)
	}
	bus.Wait()

	inst, err = orch.GetSaga(context.Background(), sagaID)
	if err != nil {
		t.Fatalf("GetSaga: %v", err)
	}
	if inst.Status != status.Completed {
		t.Fatalf("status after recovery = %s, want %s", inst.Status, status.Completed)
	}
}
