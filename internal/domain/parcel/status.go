package parcel

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusInTransit Status = "in_transit"
	StatusArrived   Status = "arrived"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type DeliveryType string

const (
	DeliveryStandard DeliveryType = "standard"
	DeliveryExpress  DeliveryType = "express"
)

var (
	ErrUnknownStatus = errors.New("unknown parcel status")
	ErrNoNextStatus  = errors.New("parcel has no next status")
	ErrTerminal      = errors.New("parcel is in a terminal status")
)

// progression is the forward path a parcel takes. Failure sits outside it.
var progression = []Status{StatusCreated, StatusInTransit, StatusArrived, StatusDelivered}

func Statuses() []Status {
	return []Status{StatusCreated, StatusInTransit, StatusArrived, StatusDelivered, StatusFailed}
}

func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentUnpaid, PaymentPending, PaymentPaid, PaymentRefunded}
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusInTransit, StatusArrived, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Next returns the single status that follows s on the forward path.
// Delivered, failed and unknown values have no successor.
func Next(s Status) (Status, bool) {
	for i := 0; i < len(progression)-1; i++ {
		if progression[i] == s {
			return progression[i+1], true
		}
	}
	return "", false
}

// NextStatus is Next over raw strings; "" means no transition.
func NextStatus(s string) string {
	next, ok := Next(Status(s))
	if !ok {
		return ""
	}
	return string(next)
}

// CanFail reports whether the manual failure transition is open from s.
func CanFail(s Status) bool {
	return s.Valid() && !s.Terminal()
}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPending, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

func (d DeliveryType) Valid() bool {
	return d == DeliveryStandard || d == DeliveryExpress
}
