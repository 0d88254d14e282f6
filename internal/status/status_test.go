package status

import "testing"

func TestCanTransition_AllowsExpected(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
	}{
		{Started, BookingInProgress},
		{BookingInProgress, BookingCompleted},
		{BookingInProgress, Failed},
		{BookingCompleted, PaymentInProgress},
		{PaymentInProgress, PaymentCompleted},
		{PaymentInProgress, Compensating},
		{PaymentCompleted, RentalInProgress},
		{RentalInProgress, RentalCompleted},
		{RentalInProgress, Compensating},
		{RentalCompleted, NotificationsInProgress},
		{RentalCompleted, Completed},
		{NotificationsInProgress, Completed},
		{Compensating, Failed},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_BlocksUnexpected(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
	}{
		{Started, PaymentInProgress},
		{BookingInProgress, Compensating},
		{BookingCompleted, Failed},
		{Completed, Failed},
		{Failed, Compensating},
		{Failed, BookingInProgress},
		{NotificationsInProgress, Failed},
		{Compensating, Completed},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be blocked", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(Completed) {
		t.Fatalf("expected Completed to be terminal")
	}
	if !IsTerminal(Failed) {
		t.Fatalf("expected Failed to be terminal")
	}
	if IsTerminal(Started) {
		t.Fatalf("expected Started to be non-terminal")
	}
	if IsTerminal(Compensating) {
		t.Fatalf("expected Compensating to be non-terminal")
	}
}

func TestAllStatuses(t *testing.T) {
	got := AllStatuses()
	if len(got) != len(allStatuses) {
		t.Fatalf("AllStatuses length = %d, want %d", len(got), len(allStatuses))
	}

	seen := map[Status]bool{}
	for _, s := range got {
		if seen[s] {
			t.Fatalf("duplicate status %q", s)
		}
		seen[s] = true
	}

	for _, s := range allStatuses {
		if !seen[s] {
			t.Fatalf("missing status %q", s)
		}
	}
}
