package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/geocoder89/parcelhub/internal/domain/job"
)

// EncodePayload validates payload against t and marshals it.
func EncodePayload(t JobType, payload any) (json.RawMessage, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals j.Payload into the typed payload for j.Type.
func DecodePayload(j job.Job) (any, error) {
	t := JobType(j.Type)
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	var out any
	switch t {
	case JobParcelStatusChanged:
		var p ParcelStatusChangedPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		out = p

	case JobPaymentReceipt:
		var p PaymentReceiptPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		out = p
	}

	if err := ValidatePayload(t, out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewCreateRequest builds the job row for a typed payload. The idempotency
// key keeps a retried request from enqueueing the same notification twice.
func NewCreateRequest(t JobType, payload any, idempotencyKey string, actorID string) (job.CreateRequest, error) {
	raw, err := EncodePayload(t, payload)
	if err != nil {
		return job.CreateRequest{}, err
	}

	req := job.CreateRequest{
		Type:        t.String(),
		Payload:     raw,
		MaxAttempts: 8,
	}
	if idempotencyKey != "" {
		req.IdempotencyKey = &idempotencyKey
	}
	if actorID != "" {
		req.ActorID = &actorID
	}
	return req, nil
}
