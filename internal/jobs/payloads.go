package jobs

import "time"

// ParcelStatusChangedPayload notifies sender and recipient about a parcel
// moving to a new status. It carries what the notifier needs so the worker
// does not reload the parcel.
type ParcelStatusChangedPayload struct {
	ParcelID       string    `json:"parcelId"`
	TrackingCode   string    `json:"trackingCode"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Reason         string    `json:"reason,omitempty"`
	SenderPhone    string    `json:"senderPhone"`
	SenderEmail    string    `json:"senderEmail,omitempty"`
	RecipientPhone string    `json:"recipientPhone"`
	ChangedBy      string    `json:"changedBy,omitempty"`
	ChangedAt      time.Time `json:"changedAt"`
	RequestID      string    `json:"requestId,omitempty"`
}

// PaymentReceiptPayload sends a receipt once a payment completes.
type PaymentReceiptPayload struct {
	PaymentID    string    `json:"paymentId"`
	ParcelID     string    `json:"parcelId"`
	TrackingCode string    `json:"trackingCode"`
	Amount       int64     `json:"amount"`
	Method       string    `json:"method"`
	SenderPhone  string    `json:"senderPhone"`
	SenderEmail  string    `json:"senderEmail,omitempty"`
	CompletedAt  time.Time `json:"completedAt"`
	RequestID    string    `json:"requestId,omitempty"`
}
