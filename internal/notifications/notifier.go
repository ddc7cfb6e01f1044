package notifications

import "context"

type ParcelStatusInput struct {
	TrackingCode   string
	From           string
	To             string
	Reason         string
	SenderPhone    string
	SenderEmail    string
	RecipientPhone string
}

type PaymentReceiptInput struct {
	PaymentID    string
	TrackingCode string
	Amount       int64
	Method       string
	SenderPhone  string
	SenderEmail  string
}

type Notifier interface {
	NotifyParcelStatus(ctx context.Context, input ParcelStatusInput) error
	SendPaymentReceipt(ctx context.Context, input PaymentReceiptInput) error
}
