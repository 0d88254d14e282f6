package event

import "testing"

func TestClassifyBookingCompleted(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Decision
	}{
		{"genuine booking", `{"SagaId":"s1","BookingId":"b1","CustomerId":"c1"}`, DecisionAccept},
		{"rental event misrouted", `{"SagaId":"s1","RentalId":"r1","BookingId":"b1"}`, DecisionDrop},
		{"payment event misrouted", `{"SagaId":"s1","PaymentId":"p1","BookingId":"b1"}`, DecisionDrop},
		{"failure on success channel", `{"SagaId":"s1","Reason":"Time slot already booked"}`, DecisionFailure},
		{"null reason still a failure", `{"SagaId":"s1","Reason":null}`, DecisionFailure},
		{"null payment id does not disqualify", `{"SagaId":"s1","BookingId":"b1","PaymentId":null}`, DecisionAccept},
		{"garbage", `{not json`, DecisionError},
	}

	for _, tc := range cases {
		if got := Classify(ChannelBookingCompleted, []byte(tc.data)); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassifyBookingFailed(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Decision
	}{
		{"genuine failure", `{"SagaId":"s1","Reason":"Time slot already booked"}`, DecisionAccept},
		{"payment event misrouted", `{"SagaId":"s1","PaymentId":"p1"}`, DecisionDrop},
		{"rental event misrouted", `{"SagaId":"s1","RentalId":"r1"}`, DecisionDrop},
	}

	for _, tc := range cases {
		if got := Classify(ChannelBookingFailed, []byte(tc.data)); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassifyPaymentCompleted(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Decision
	}{
		{"genuine payment", `{"SagaId":"s1","PaymentId":"p1","BookingId":"b1","Amount":50}`, DecisionAccept},
		{"rental event misrouted", `{"SagaId":"s1","RentalId":"r1"}`, DecisionDrop},
		{"failure on success channel", `{"SagaId":"s1","Reason":"Insufficient funds"}`, DecisionFailure},
		{"missing payment id", `{"SagaId":"s1","BookingId":"b1"}`, DecisionDrop},
		{"null payment id", `{"SagaId":"s1","PaymentId":null}`, DecisionDrop},
	}

	for _, tc := range cases {
		if got := Classify(ChannelPaymentCompleted, []byte(tc.data)); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassifyPaymentFailed(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Decision
	}{
		{"genuine failure", `{"SagaId":"s1","Reason":"Insufficient funds"}`, DecisionAccept},
		{"rental event misrouted", `{"SagaId":"s1","RentalId":"r1"}`, DecisionDrop},
		{"booking success misrouted", `{"SagaId":"s1","BookingId":"b1","CustomerId":"c1"}`, DecisionDrop},
		{"booking compensated misrouted", `{"SagaId":"s1","BookingId":"b1","Reason":"Compensation - payment failed"}`, DecisionDrop},
	}

	for _, tc := range cases {
		if got := Classify(ChannelPaymentFailed, []byte(tc.data)); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassifyRentalCompleted(t *testing.T) {
	if got := Classify(ChannelRentalCompleted, []byte(`{"SagaId":"s1","RentalId":"r1"}`)); got != DecisionAccept {
		t.Fatalf("genuine rental: got %v", got)
	}
	if got := Classify(ChannelRentalCompleted, []byte(`{"SagaId":"s1","Reason":"No cars available"}`)); got != DecisionFailure {
		t.Fatalf("failure on success channel: got %v", got)
	}
}

func TestClassifyPassthroughChannels(t *testing.T) {
	channels := []Channel{
		ChannelRentalFailed,
		ChannelBookingCompensated,
		ChannelPaymentCompensated,
		ChannelNotificationsCompleted,
	}
	for _, ch := range channels {
		if got := Classify(ch, []byte(`{"SagaId":"s1"}`)); got != DecisionAccept {
			t.Fatalf("channel %v: got %v, want accept", ch, got)
		}
	}
}
