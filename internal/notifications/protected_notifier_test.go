package notifications

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeNotifier struct {
	err   error
	calls int
}

func (f *fakeNotifier) NotifyParcelStatus(ctx context.Context, _ ParcelStatusInput) error {
	f.calls++
	return f.err
}

func (f *fakeNotifier) SendPaymentReceipt(ctx context.Context, _ PaymentReceiptInput) error {
	f.calls++
	return f.err
}

func TestProtectedNotifierOpensAfterThreshold(t *testing.T) {
	inner := &fakeNotifier{err: errors.New("down")}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 2, Cooldown: time.Hour})
	ctx := context.Background()

	_ = n.NotifyParcelStatus(ctx, ParcelStatusInput{RecipientPhone: "0550000000"})
	_ = n.SendPaymentReceipt(ctx, PaymentReceiptInput{SenderPhone: "0240000000"})

	if n.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", n.State())
	}

	if err := n.NotifyParcelStatus(ctx, ParcelStatusInput{RecipientPhone: "0550000000"}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("open circuit must not call inner, calls=%d", inner.calls)
	}
}

func TestProtectedNotifierHalfOpenRecovers(t *testing.T) {
	inner := &fakeNotifier{err: errors.New("down")}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	ctx := context.Background()

	_ = n.NotifyParcelStatus(ctx, ParcelStatusInput{RecipientPhone: "0550000000"})
	if n.State() != BreakerOpen {
		t.Fatalf("expected open")
	}

	time.Sleep(15 * time.Millisecond)
	inner.err = nil

	if err := n.NotifyParcelStatus(ctx, ParcelStatusInput{RecipientPhone: "0550000000"}); err != nil {
		t.Fatalf("trial call should pass: %v", err)
	}
	if n.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed", n.State())
	}
}

func TestProtectedNotifierEnforcesTimeout(t *testing.T) {
	slow := NewLogNotifier(nil, LogNotifierConfig{Delay: time.Second})
	n := NewProtectedNotifier(slow, ProtectedNotifierConfig{Timeout: 10 * time.Millisecond})

	err := n.SendPaymentReceipt(context.Background(), PaymentReceiptInput{PaymentID: "p", SenderEmail: "ama@example.com"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestProtectedNotifierReportsTransitions(t *testing.T) {
	inner := &fakeNotifier{err: errors.New("down")}

	var seen []string
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		OnStateChange: func(from, to BreakerState) {
			seen = append(seen, from.String()+">"+to.String())
		},
	})
	ctx := context.Background()
	in := ParcelStatusInput{RecipientPhone: "0550000000"}

	_ = n.NotifyParcelStatus(ctx, in)
	time.Sleep(15 * time.Millisecond)
	inner.err = nil
	_ = n.NotifyParcelStatus(ctx, in)

	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
}

func TestProtectedNotifierRejectsMissingRecipient(t *testing.T) {
	inner := &fakeNotifier{}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		if err := n.SendPaymentReceipt(context.Background(), PaymentReceiptInput{PaymentID: "p"}); !errors.Is(err, ErrNoRecipient) {
			t.Fatalf("err = %v, want ErrNoRecipient", err)
		}
	}
	if inner.calls != 0 || n.State() != BreakerClosed {
		t.Fatalf("missing recipient must not reach the provider or trip the circuit: calls=%d state=%v", inner.calls, n.State())
	}
}

func TestLogNotifierSimulatedFailure(t *testing.T) {
	n := NewLogNotifier(nil, LogNotifierConfig{Fail: true})

	if err := n.NotifyParcelStatus(context.Background(), ParcelStatusInput{RecipientPhone: "0550000000"}); !errors.Is(err, ErrProviderDown) {
		t.Fatalf("expected ErrProviderDown, got %v", err)
	}
}
