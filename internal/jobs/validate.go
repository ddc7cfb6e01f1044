package jobs

import "strings"

// ValidatePayload checks that payload is the right type for t and carries
// the ids the handler needs.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobParcelStatusChanged:
		var p ParcelStatusChangedPayload
		switch v := payload.(type) {
		case ParcelStatusChangedPayload:
			p = v
		case *ParcelStatusChangedPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.ParcelID) == "" || trim(p.TrackingCode) == "" || trim(p.To) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobPaymentReceipt:
		var p PaymentReceiptPayload
		switch v := payload.(type) {
		case PaymentReceiptPayload:
			p = v
		case *PaymentReceiptPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.PaymentID) == "" || trim(p.ParcelID) == "" || p.Amount <= 0 {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
