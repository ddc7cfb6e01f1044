package payment

import (
	"errors"
	"testing"

	"github.com/geocoder89/parcelhub/internal/domain/parcel"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name       string
		from, to   Status
		wantParcel parcel.PaymentStatus
		wantErr    bool
	}{
		{name: "complete pending", from: StatusPending, to: StatusCompleted, wantParcel: parcel.PaymentPaid},
		{name: "fail pending", from: StatusPending, to: StatusFailed, wantParcel: parcel.PaymentUnpaid},
		{name: "refund completed", from: StatusCompleted, to: StatusRefunded, wantParcel: parcel.PaymentRefunded},
		{name: "refund pending", from: StatusPending, to: StatusRefunded, wantErr: true},
		{name: "complete failed", from: StatusFailed, to: StatusCompleted, wantErr: true},
		{name: "complete refunded", from: StatusRefunded, to: StatusCompleted, wantErr: true},
		{name: "complete twice", from: StatusCompleted, to: StatusCompleted, wantErr: true},
		{name: "unknown from", from: Status("void"), to: StatusCompleted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantParcel {
				t.Fatalf("parcel payment status = %q, want %q", got, tt.wantParcel)
			}
		})
	}
}

func TestEveryStatusHasParcelMapping(t *testing.T) {
	for _, s := range Statuses() {
		if !ParcelPaymentStatus(s).Valid() {
			t.Fatalf("status %q has no parcel payment mapping", s)
		}
	}
}

func TestNewFromCreateRequestStartsPending(t *testing.T) {
	p := NewFromCreateRequest(CreateRequest{ParcelID: "p1", Amount: 1500, Method: MethodCash, RecordedBy: "u1"})

	if p.Status != StatusPending {
		t.Fatalf("status = %q, want pending", p.Status)
	}
	if p.ID == "" || p.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps to be set: %+v", p)
	}
}
