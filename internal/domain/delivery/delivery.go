package delivery

import "errors"

// Kinds of notification tracked in the delivery ledger.
const (
	KindParcelStatus   = "parcel.status"
	KindPaymentReceipt = "payment.receipt"
)

var (
	ErrAlreadySent = errors.New("notification already sent")
	ErrInProgress  = errors.New("notification send in progress")
)
