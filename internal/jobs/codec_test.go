package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/job"
)

func TestEncodeDecode_ParcelStatusChanged(t *testing.T) {
	payload := ParcelStatusChangedPayload{
		ParcelID:       "parcel-123",
		TrackingCode:   "PH-01HZY",
		From:           "created",
		To:             "in_transit",
		RecipientPhone: "+233200000000",
		ChangedAt:      time.Now().UTC(),
	}

	req, err := NewCreateRequest(JobParcelStatusChanged, payload, "parcel-123:in_transit", "admin-1")
	if err != nil {
		t.Fatalf("NewCreateRequest error: %v", err)
	}
	if req.IdempotencyKey == nil || *req.IdempotencyKey != "parcel-123:in_transit" {
		t.Fatalf("idempotency key not set: %+v", req)
	}

	j := job.New(req)
	if j.Type != "parcel.status_changed" || j.Status != job.StatusPending {
		t.Fatalf("unexpected job: %+v", j)
	}

	decoded, err := DecodePayload(j)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(ParcelStatusChangedPayload)
	if !ok {
		t.Fatalf("expected ParcelStatusChangedPayload, got %T", decoded)
	}
	if p.ParcelID != payload.ParcelID || p.To != "in_transit" {
		t.Fatalf("round trip mismatch: %+v", p)
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobParcelStatusChanged, PaymentReceiptPayload{
		PaymentID: "p1",
		ParcelID:  "x",
		Amount:    100,
	})
	if !errors.Is(err, ErrPayloadTypeMismatch) {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestValidatePayload_RequiredFields(t *testing.T) {
	tests := []struct {
		name string
		t    JobType
		p    any
		want error
	}{
		{name: "missing parcel id", t: JobParcelStatusChanged, p: ParcelStatusChangedPayload{TrackingCode: "PH-1", To: "arrived"}, want: ErrInvalidJobPayload},
		{name: "zero amount", t: JobPaymentReceipt, p: &PaymentReceiptPayload{PaymentID: "p", ParcelID: "x"}, want: ErrInvalidJobPayload},
		{name: "unknown type", t: JobType("mystery"), p: nil, want: ErrInvalidJobType},
		{name: "pointer ok", t: JobPaymentReceipt, p: &PaymentReceiptPayload{PaymentID: "p", ParcelID: "x", Amount: 1}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.t, tt.p)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodePayload_RejectsBadJSON(t *testing.T) {
	j := job.Job{Type: JobPaymentReceipt.String(), Payload: []byte("{nope")}
	if _, err := DecodePayload(j); !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}

	j = job.Job{Type: "unknown", Payload: []byte("{}")}
	if _, err := DecodePayload(j); !errors.Is(err, ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}
