package event

import "encoding/json"

// The transport binds multiple routing patterns onto the orchestrator's
// consumers, and a message matching any bound pattern can show up on any
// of them. Arrival channel alone is therefore never trusted: every
// inbound message is classified by structural shape first.

type Channel int

const (
	ChannelBookingCompleted Channel = iota
	ChannelBookingFailed
	ChannelPaymentCompleted
	ChannelPaymentFailed
	ChannelRentalCompleted
	ChannelRentalFailed
	ChannelBookingCompensated
	ChannelPaymentCompensated
	ChannelNotificationsCompleted
)

type Decision int

const (
	// DecisionAccept: shape matches the channel; decode and handle.
	DecisionAccept Decision = iota
	// DecisionFailure: arrived on a success channel but carries a Reason
	// field; re-dispatch to the channel's failure handler.
	DecisionFailure
	// DecisionDrop: shape does not belong to this channel; log and
	// discard without touching saga state.
	DecisionDrop
	// DecisionError: not valid JSON at all.
	DecisionError
)

// Envelope is the partial decode used for classification. RawMessage
// distinguishes an absent field (nil) from an explicit null ("null").
type Envelope struct {
	SagaID    string          `json:"SagaId"`
	BookingID json.RawMessage `json:"BookingId"`
	PaymentID json.RawMessage `json:"PaymentId"`
	RentalID  json.RawMessage `json:"RentalId"`
	Reason    json.RawMessage `json:"Reason"`
}

func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// present reports whether the field appeared in the message with a
// non-null value. Null and absent both count as "not present" for the
// identifier checks.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// fieldExists reports whether the field appeared at all, null included.
// The failure check keys on the existence of Reason, not its value.
func fieldExists(raw json.RawMessage) bool {
	return len(raw) > 0
}

func Classify(ch Channel, data []byte) Decision {
	env, err := ParseEnvelope(data)
	if err != nil {
		return DecisionError
	}
	return classify(ch, env)
}

func classify(ch Channel, env Envelope) Decision {
	switch ch {
	case ChannelBookingCompleted:
		// A booking message carries neither a payment nor a rental id.
		if present(env.PaymentID) || present(env.RentalID) {
			return DecisionDrop
		}
		if fieldExists(env.Reason) {
			return DecisionFailure
		}
		return DecisionAccept

	case ChannelBookingFailed:
		if present(env.PaymentID) || present(env.RentalID) {
			return DecisionDrop
		}
		return DecisionAccept

	case ChannelPaymentCompleted:
		if present(env.RentalID) {
			return DecisionDrop
		}
		if fieldExists(env.Reason) {
			return DecisionFailure
		}
		if !present(env.PaymentID) {
			return DecisionDrop
		}
		return DecisionAccept

	case ChannelPaymentFailed:
		if present(env.RentalID) {
			return DecisionDrop
		}
		// A payment failure carries only SagaId and Reason. Anything with
		// a booking id but no payment id belongs to the booking domain.
		if present(env.BookingID) && !present(env.PaymentID) && !fieldExists(env.RentalID) {
			return DecisionDrop
		}
		return DecisionAccept

	case ChannelRentalCompleted:
		if fieldExists(env.Reason) {
			return DecisionFailure
		}
		return DecisionAccept

	case ChannelRentalFailed,
		ChannelBookingCompensated,
		ChannelPaymentCompensated,
		ChannelNotificationsCompleted:
		return DecisionAccept
	}
	return DecisionDrop
}
