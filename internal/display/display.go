// Package display maps domain statuses to the badge a dashboard renders for
// them. Every lookup accepts raw strings so values straight off the wire never
// fail; anything unknown renders as a neutral badge.
package display

import (
	"strings"

	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/payment"
	"github.com/geocoder89/parcelhub/internal/domain/station"
	"github.com/geocoder89/parcelhub/internal/domain/user"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneInfo    Tone = "info"
	ToneWarning Tone = "warning"
	ToneAccent  Tone = "accent"
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
)

var toneClasses = map[Tone]string{
	ToneNeutral: "bg-gray-100 text-gray-800",
	ToneInfo:    "bg-blue-100 text-blue-800",
	ToneWarning: "bg-yellow-100 text-yellow-800",
	ToneAccent:  "bg-purple-100 text-purple-800",
	ToneSuccess: "bg-green-100 text-green-800",
	ToneDanger:  "bg-red-100 text-red-800",
}

func Tones() []Tone {
	return []Tone{ToneNeutral, ToneInfo, ToneWarning, ToneAccent, ToneSuccess, ToneDanger}
}

func (t Tone) Classes() string {
	if c, ok := toneClasses[t]; ok {
		return c
	}
	return toneClasses[ToneNeutral]
}

type Badge struct {
	Label   string `json:"label"`
	Tone    Tone   `json:"tone"`
	Classes string `json:"classes"`
}

func newBadge(label string, t Tone) Badge {
	return Badge{Label: label, Tone: t, Classes: t.Classes()}
}

var parcelTones = map[parcel.Status]Tone{
	parcel.StatusCreated:   ToneInfo,
	parcel.StatusInTransit: ToneWarning,
	parcel.StatusArrived:   ToneAccent,
	parcel.StatusDelivered: ToneSuccess,
	parcel.StatusFailed:    ToneDanger,
}

// paymentTones covers both the parcel-side payment status and the payment
// record status; "pending" and "refunded" mean the same thing in both.
var paymentTones = map[string]Tone{
	string(parcel.PaymentUnpaid):    ToneDanger,
	string(parcel.PaymentPending):   ToneWarning,
	string(parcel.PaymentPaid):      ToneSuccess,
	string(parcel.PaymentRefunded):  ToneAccent,
	string(payment.StatusCompleted): ToneSuccess,
	string(payment.StatusFailed):    ToneDanger,
}

func ParcelStatusTone(s string) Tone {
	if t, ok := parcelTones[parcel.Status(s)]; ok {
		return t
	}
	return ToneNeutral
}

func PaymentStatusTone(s string) Tone {
	if t, ok := paymentTones[s]; ok {
		return t
	}
	return ToneNeutral
}

func ParcelStatusBadge(s string) Badge {
	return newBadge(FormatStatusText(s), ParcelStatusTone(s))
}

func PaymentStatusBadge(s string) Badge {
	return newBadge(FormatStatusText(s), PaymentStatusTone(s))
}

func UserActiveBadge(active bool) Badge {
	if active {
		return newBadge("Active", ToneSuccess)
	}
	return newBadge("Inactive", ToneDanger)
}

func StationActiveBadge(active bool) Badge {
	if active {
		return newBadge("Active", ToneSuccess)
	}
	return newBadge("Inactive", ToneNeutral)
}

// FormatStatusText turns a machine status such as "in_transit" into "In Transit".
func FormatStatusText(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})

	// a Caser is stateful, so each call gets its own
	c := cases.Title(language.English)
	for i, p := range parts {
		parts[i] = c.String(p)
	}
	return strings.Join(parts, " ")
}

// ParcelView is the display block embedded in parcel responses.
type ParcelView struct {
	Status          Badge  `json:"status"`
	PaymentStatus   Badge  `json:"paymentStatus"`
	NextStatus      string `json:"nextStatus,omitempty"`
	NextStatusLabel string `json:"nextStatusLabel,omitempty"`
	CanFail         bool   `json:"canFail"`
}

func ForParcel(p parcel.Parcel) ParcelView {
	next := parcel.NextStatus(string(p.Status))

	v := ParcelView{
		Status:        ParcelStatusBadge(string(p.Status)),
		PaymentStatus: PaymentStatusBadge(string(p.PaymentStatus)),
		NextStatus:    next,
		CanFail:       parcel.CanFail(p.Status),
	}
	if next != "" {
		v.NextStatusLabel = FormatStatusText(next)
	}
	return v
}

// ActiveView is the display block embedded in user and station responses.
type ActiveView struct {
	Active Badge `json:"active"`
}

func ForUser(u user.User) ActiveView {
	return ActiveView{Active: UserActiveBadge(u.Active)}
}

func ForStation(st station.Station) ActiveView {
	return ActiveView{Active: StationActiveBadge(st.Active)}
}
