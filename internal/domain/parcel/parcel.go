package parcel

import (
	"errors"
	"time"

	"github.com/geocoder89/parcelhub/internal/ids"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("parcel not found")

type Contact struct {
	Name  string `json:"name" binding:"required,min=2,max=120"`
	Phone string `json:"phone" binding:"required,min=7,max=20"`
	Email string `json:"email,omitempty" binding:"omitempty,email"`
}

type Parcel struct {
	ID                 string        `json:"id"`
	TrackingCode       string        `json:"trackingCode"`
	Sender             Contact       `json:"sender"`
	Recipient          Contact       `json:"recipient"`
	OriginStation      string        `json:"originStation"`
	DestinationStation string        `json:"destinationStation"`
	Description        string        `json:"description,omitempty"`
	WeightKg           float64       `json:"weightKg"`
	DeliveryType       DeliveryType  `json:"deliveryType"`
	Fee                int64         `json:"fee"`
	Status             Status        `json:"status"`
	PaymentStatus      PaymentStatus `json:"paymentStatus"`
	FailureReason      *string       `json:"failureReason,omitempty"`
	SenderUserID       *string       `json:"senderUserId,omitempty"`
	CreatedBy          string        `json:"createdBy"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
	DeliveredAt        *time.Time    `json:"deliveredAt,omitempty"`
}

// Tracking is the public projection returned by the tracking endpoint.
type Tracking struct {
	TrackingCode       string        `json:"trackingCode"`
	OriginStation      string        `json:"originStation"`
	DestinationStation string        `json:"destinationStation"`
	Status             Status        `json:"status"`
	PaymentStatus      PaymentStatus `json:"paymentStatus"`
	UpdatedAt          time.Time     `json:"updatedAt"`
	DeliveredAt        *time.Time    `json:"deliveredAt,omitempty"`
}

func (p Parcel) Tracking() Tracking {
	return Tracking{
		TrackingCode:       p.TrackingCode,
		OriginStation:      p.OriginStation,
		DestinationStation: p.DestinationStation,
		Status:             p.Status,
		PaymentStatus:      p.PaymentStatus,
		UpdatedAt:          p.UpdatedAt,
		DeliveredAt:        p.DeliveredAt,
	}
}

// TouchesStation reports whether the parcel leaves from or arrives at code.
func (p Parcel) TouchesStation(code string) bool {
	return code != "" && (p.OriginStation == code || p.DestinationStation == code)
}

type CreateRequest struct {
	Sender             Contact      `json:"sender" binding:"required"`
	Recipient          Contact      `json:"recipient" binding:"required"`
	OriginStation      string       `json:"originStation" binding:"omitempty,station_code"`
	DestinationStation string       `json:"destinationStation" binding:"required,station_code"`
	Description        string       `json:"description" binding:"omitempty,max=500"`
	WeightKg           float64      `json:"weightKg" binding:"required,gt=0,lte=500"`
	DeliveryType       DeliveryType `json:"deliveryType" binding:"required,delivery_type"`
	Fee                int64        `json:"fee" binding:"min=0"`

	CreatedBy    string  `json:"-"`
	SenderUserID *string `json:"-"`
}

type FailRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=300"`
}

// ListFilter scopes a listing. Station and SenderUserID are set from the
// caller's identity, never from the query string.
type ListFilter struct {
	Status        *Status
	PaymentStatus *PaymentStatus
	Station       *string
	SenderUserID  *string
	Limit         int
}

type Stats struct {
	Total           int                   `json:"total"`
	ByStatus        map[Status]int        `json:"byStatus"`
	ByPaymentStatus map[PaymentStatus]int `json:"byPaymentStatus"`
}

func NewStats() Stats {
	s := Stats{
		ByStatus:        make(map[Status]int, len(Statuses())),
		ByPaymentStatus: make(map[PaymentStatus]int, len(PaymentStatuses())),
	}
	for _, st := range Statuses() {
		s.ByStatus[st] = 0
	}
	for _, ps := range PaymentStatuses() {
		s.ByPaymentStatus[ps] = 0
	}
	return s
}

func NewFromCreateRequest(req CreateRequest) Parcel {
	now := time.Now().UTC()

	return Parcel{
		ID:                 uuid.NewString(),
		TrackingCode:       ids.NewTrackingCode(),
		Sender:             req.Sender,
		Recipient:          req.Recipient,
		OriginStation:      req.OriginStation,
		DestinationStation: req.DestinationStation,
		Description:        req.Description,
		WeightKg:           req.WeightKg,
		DeliveryType:       req.DeliveryType,
		Fee:                req.Fee,
		Status:             StatusCreated,
		PaymentStatus:      PaymentUnpaid,
		SenderUserID:       req.SenderUserID,
		CreatedBy:          req.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
