package saga

import (
	"fmt"
	"strings"
	"time"

	"booking-saga/internal/status"
)

// Instance is the cached, rebuildable view of one saga. The event log is
// the source of truth; an Instance can always be rederived by replay.
type Instance struct {
	SagaID      string        `json:"sagaId"`
	Status      status.Status `json:"status"`
	BookingID   *string       `json:"bookingId"`
	PaymentID   *string       `json:"paymentId"`
	RentalID    *string       `json:"rentalId"`
	CustomerID  string        `json:"customerId"`
	TimeSlot    time.Time     `json:"timeSlot"`
	ServiceType string        `json:"serviceType"`
	Price       float64       `json:"price"`

	// FailureReason holds the first genuine failure reason and is never
	// overwritten by later compensation acknowledgments.
	FailureReason *string `json:"failureReason"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
	Version   int        `json:"version"`

	SimulatePaymentFailure bool `json:"simulatePaymentFailure"`
	SimulateRentalFailure  bool `json:"simulateRentalFailure"`
	SimulateTimeout        bool `json:"simulateTimeout"`
}

// NotificationTarget is how many notification acknowledgments a saga
// needs before it can complete (one shop, one customer).
const NotificationTarget = 2

type StartRequest struct {
	CustomerID  string    `json:"customerId"`
	TimeSlot    time.Time `json:"timeSlot"`
	ServiceType string    `json:"serviceType"`
	Price       float64   `json:"price"`

	SimulateBookingFailure bool `json:"simulateBookingFailure"`
	SimulatePaymentFailure bool `json:"simulatePaymentFailure"`
	SimulateRentalFailure  bool `json:"simulateRentalFailure"`
	SimulateTimeout        bool `json:"simulateTimeout"`
}

func (r StartRequest) Validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return fmt.Errorf("customerId is required")
	}
	if r.TimeSlot.IsZero() {
		return fmt.Errorf("timeSlot is required")
	}
	if strings.TrimSpace(r.ServiceType) == "" {
		return fmt.Errorf("serviceType is required")
	}
	if r.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	return nil
}

// Clone returns a copy safe to hand to readers while transition handlers
// keep mutating the original.
func (i *Instance) Clone() *Instance {
	out := *i
	out.BookingID = cloneString(i.BookingID)
	out.PaymentID = cloneString(i.PaymentID)
	out.RentalID = cloneString(i.RentalID)
	out.FailureReason = cloneString(i.FailureReason)
	if i.UpdatedAt != nil {
		ts := *i.UpdatedAt
		out.UpdatedAt = &ts
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
