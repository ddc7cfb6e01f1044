package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/google/uuid"
)

type Method string

const (
	MethodCash        Method = "cash"
	MethodMobileMoney Method = "mobile_money"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

var (
	ErrNotFound          = errors.New("payment not found")
	ErrInvalidTransition = errors.New("invalid payment transition")
	ErrParcelSettled     = errors.New("parcel already has an open or completed payment")
)

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
	StatusFailed:    nil,
	StatusRefunded:  nil,
}

// parcelPayment is the payment status a parcel carries once its payment
// reaches the given status.
var parcelPayment = map[Status]parcel.PaymentStatus{
	StatusPending:   parcel.PaymentPending,
	StatusCompleted: parcel.PaymentPaid,
	StatusFailed:    parcel.PaymentUnpaid,
	StatusRefunded:  parcel.PaymentRefunded,
}

type Payment struct {
	ID               string            `json:"id"`
	ParcelID         string            `json:"parcelId"`
	Amount           int64             `json:"amount"`
	Method           Method            `json:"method"`
	Status           Status            `json:"status"`
	ProviderRef      *string           `json:"providerRef,omitempty"`
	ProviderMetadata map[string]string `json:"providerMetadata,omitempty"`
	RecordedBy       string            `json:"recordedBy"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
}

type CreateRequest struct {
	ParcelID         string            `json:"parcelId" binding:"required,uuid"`
	Amount           int64             `json:"amount" binding:"required,gt=0"`
	Method           Method            `json:"method" binding:"required,payment_method"`
	ProviderRef      *string           `json:"providerRef" binding:"omitempty,max=120"`
	ProviderMetadata map[string]string `json:"providerMetadata" binding:"omitempty,max=20"`

	RecordedBy string `json:"-"`
}

type ListFilter struct {
	Status   *Status
	Method   *Method
	ParcelID *string
	Station  *string
	Limit    int
}

func Statuses() []Status {
	return []Status{StatusPending, StatusCompleted, StatusFailed, StatusRefunded}
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (m Method) Valid() bool {
	return m == MethodCash || m == MethodMobileMoney
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns the parcel payment status that
// must be stored alongside it.
func Transition(from, to Status) (parcel.PaymentStatus, error) {
	if !CanTransition(from, to) {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return parcelPayment[to], nil
}

// ParcelPaymentStatus is the parcel-side status implied by s.
func ParcelPaymentStatus(s Status) parcel.PaymentStatus {
	return parcelPayment[s]
}

func NewFromCreateRequest(req CreateRequest) Payment {
	now := time.Now().UTC()

	return Payment{
		ID:               uuid.NewString(),
		ParcelID:         req.ParcelID,
		Amount:           req.Amount,
		Method:           req.Method,
		Status:           StatusPending,
		ProviderRef:      req.ProviderRef,
		ProviderMetadata: req.ProviderMetadata,
		RecordedBy:       req.RecordedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
