package event

import "time"

// Event type tags stored in the event log.
const (
	TypeSagaStarted            = "SagaStarted"
	TypeBookingCompleted       = "BookingCompleted"
	TypeBookingFailed          = "BookingFailed"
	TypePaymentCompleted       = "PaymentCompleted"
	TypePaymentFailed          = "PaymentFailed"
	TypeRentalCompleted        = "RentalCompleted"
	TypeRentalFailed           = "RentalFailed"
	TypeBookingCompensated     = "BookingCompensated"
	TypePaymentCompensated     = "PaymentCompensated"
	TypeNotificationsCompleted = "NotificationsCompleted"
	TypeSagaCompleted          = "SagaCompleted"
	TypeSagaFailed             = "SagaFailed"
	TypeSagaCompensating       = "SagaCompensating"
)

// Wire payloads use PascalCase field names; that is the contract the
// participants already speak.

// Outbound requests (orchestrator -> participant).

type BookingRequested struct {
	SagaID          string    `json:"SagaId"`
	CustomerID      string    `json:"CustomerId"`
	TimeSlot        time.Time `json:"TimeSlot"`
	ServiceType     string    `json:"ServiceType"`
	SimulateFailure bool      `json:"SimulateFailure"`
	SimulateTimeout bool      `json:"SimulateTimeout"`
}

type PaymentRequested struct {
	SagaID          string  `json:"SagaId"`
	BookingID       *string `json:"BookingId"`
	Amount          float64 `json:"Amount"`
	Currency        string  `json:"Currency"`
	SimulateFailure bool    `json:"SimulateFailure"`
	SimulateTimeout bool    `json:"SimulateTimeout"`
}

type RentalRequested struct {
	SagaID          string    `json:"SagaId"`
	BookingID       *string   `json:"BookingId"`
	CarType         string    `json:"CarType"`
	StartDate       time.Time `json:"StartDate"`
	EndDate         time.Time `json:"EndDate"`
	SimulateFailure bool      `json:"SimulateFailure"`
	SimulateTimeout bool      `json:"SimulateTimeout"`
}

type NotificationRequested struct {
	SagaID    string `json:"SagaId"`
	Recipient string `json:"Recipient"`
	Type      string `json:"Type"`
	Subject   string `json:"Subject"`
	Message   string `json:"Message"`
}

type BookingCompensate struct {
	SagaID    string  `json:"SagaId"`
	BookingID *string `json:"BookingId"`
}

type PaymentCompensate struct {
	SagaID    string  `json:"SagaId"`
	PaymentID *string `json:"PaymentId"`
}

// Inbound events (participant -> orchestrator).

type BookingCompleted struct {
	SagaID      string     `json:"SagaId"`
	BookingID   string     `json:"BookingId"`
	CustomerID  string     `json:"CustomerId"`
	TimeSlot    time.Time  `json:"TimeSlot"`
	ServiceType string     `json:"ServiceType"`
	CreatedAt   *time.Time `json:"CreatedAt,omitempty"`
}

type BookingFailed struct {
	SagaID string `json:"SagaId"`
	Reason string `json:"Reason"`
}

type PaymentCompleted struct {
	SagaID    string  `json:"SagaId"`
	PaymentID string  `json:"PaymentId"`
	BookingID *string `json:"BookingId"`
	Amount    float64 `json:"Amount"`
	Recovered bool    `json:"Recovered,omitempty"`
}

type PaymentFailed struct {
	SagaID string `json:"SagaId"`
	Reason string `json:"Reason"`
}

type RentalCompleted struct {
	SagaID    string  `json:"SagaId"`
	RentalID  string  `json:"RentalId"`
	BookingID *string `json:"BookingId"`
}

type RentalFailed struct {
	SagaID string `json:"SagaId"`
	Reason string `json:"Reason"`
}

type BookingCompensated struct {
	SagaID        string     `json:"SagaId"`
	BookingID     *string    `json:"BookingId"`
	Reason        string     `json:"Reason,omitempty"`
	CompensatedAt *time.Time `json:"CompensatedAt,omitempty"`
}

type PaymentCompensated struct {
	SagaID     string     `json:"SagaId"`
	PaymentID  *string    `json:"PaymentId"`
	Reason     string     `json:"Reason,omitempty"`
	RefundedAt *time.Time `json:"RefundedAt,omitempty"`
}

type NotificationsCompleted struct {
	SagaID string `json:"SagaId"`
}

// Saga-level records appended alongside step events.

type SagaStarted struct {
	SagaID      string    `json:"SagaId"`
	CustomerID  string    `json:"CustomerId"`
	TimeSlot    time.Time `json:"TimeSlot"`
	ServiceType string    `json:"ServiceType"`
	Price       float64   `json:"Price"`
	Status      string    `json:"Status"`
	StartedAt   time.Time `json:"StartedAt"`
}

type SagaFailed struct {
	SagaID string `json:"SagaId"`
	Reason string `json:"Reason"`
}

type SagaCompensating struct {
	SagaID string `json:"SagaId"`
	Reason string `json:"Reason"`
}

type SagaCompleted struct {
	SagaID      string    `json:"SagaId"`
	CompletedAt time.Time `json:"CompletedAt"`
}
