package parcel

import (
	"errors"
	"testing"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "created", want: "in_transit"},
		{in: "in_transit", want: "arrived"},
		{in: "arrived", want: "delivered"},
		{in: "delivered", want: ""},
		{in: "failed", want: ""},
		{in: "lost", want: ""},
		{in: "", want: ""},
		{in: "CREATED", want: ""},
	}

	for _, tt := range tests {
		if got := NextStatus(tt.in); got != tt.want {
			t.Fatalf("NextStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNextWalksToDelivered(t *testing.T) {
	s := StatusCreated
	steps := 0

	for {
		next, ok := Next(s)
		if !ok {
			break
		}
		s = next
		steps++
	}

	if s != StatusDelivered || steps != 3 {
		t.Fatalf("walk ended at %q after %d steps, want delivered after 3", s, steps)
	}
}

func TestCanFail(t *testing.T) {
	for _, s := range Statuses() {
		want := s != StatusDelivered && s != StatusFailed
		if got := CanFail(s); got != want {
			t.Fatalf("CanFail(%q) = %v, want %v", s, got, want)
		}
	}

	if CanFail(Status("lost")) {
		t.Fatalf("unknown status must not be failable")
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("arrived"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseStatus("teleported"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestNewStatsHasEveryKey(t *testing.T) {
	s := NewStats()

	if len(s.ByStatus) != len(Statuses()) {
		t.Fatalf("byStatus has %d keys, want %d", len(s.ByStatus), len(Statuses()))
	}
	if len(s.ByPaymentStatus) != len(PaymentStatuses()) {
		t.Fatalf("byPaymentStatus has %d keys, want %d", len(s.ByPaymentStatus), len(PaymentStatuses()))
	}
}

func TestTouchesStation(t *testing.T) {
	p := Parcel{OriginStation: "ACC", DestinationStation: "KSI"}

	if !p.TouchesStation("ACC") || !p.TouchesStation("KSI") {
		t.Fatalf("expected both ends to match")
	}
	if p.TouchesStation("TML") || p.TouchesStation("") {
		t.Fatalf("unexpected station match")
	}
}
