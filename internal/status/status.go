package status

type Status string

const (
	Started                 Status = "Started"
	BookingInProgress       Status = "BookingInProgress"
	BookingCompleted        Status = "BookingCompleted"
	PaymentInProgress       Status = "PaymentInProgress"
	PaymentCompleted        Status = "PaymentCompleted"
	RentalInProgress        Status = "RentalInProgress"
	RentalCompleted         Status = "RentalCompleted"
	NotificationsInProgress Status = "NotificationsInProgress"
	Completed               Status = "Completed"
	Compensating            Status = "Compensating"
	Failed                  Status = "Failed"
)

var allStatuses = []Status{
	Started,
	BookingInProgress,
	BookingCompleted,
	PaymentInProgress,
	PaymentCompleted,
	RentalInProgress,
	RentalCompleted,
	NotificationsInProgress,
	Completed,
	Compensating,
	Failed,
}

var transitions = map[Status]map[Status]bool{
	Started: {
		BookingInProgress: true,
	},
	BookingInProgress: {
		BookingCompleted: true,
		// Booking failure goes straight to Failed; nothing succeeded yet,
		// so there is nothing to compensate.
		Failed: true,
	},
	BookingCompleted: {
		PaymentInProgress: true,
	},
	PaymentInProgress: {
		PaymentCompleted: true,
		Compensating:     true,
	},
	PaymentCompleted: {
		RentalInProgress: true,
	},
	RentalInProgress: {
		RentalCompleted: true,
		Compensating:    true,
	},
	RentalCompleted: {
		NotificationsInProgress: true,
		// Manual recovery may complete notifications directly from here.
		Completed: true,
	},
	NotificationsInProgress: {
		Completed: true,
	},
	Compensating: {
		Failed: true,
	},
}

func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func IsTerminal(s Status) bool {
	switch s {
	case Completed, Failed:
		return true
	default:
		return false
	}
}
