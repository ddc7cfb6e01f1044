package station

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("station not found")
	ErrCodeExists = errors.New("station code already exists")
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)

type Station struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Code    string `json:"code" binding:"required,station_code"`
	Name    string `json:"name" binding:"required,min=2,max=120"`
	Address string `json:"address" binding:"required,min=3,max=300"`
	Phone   string `json:"phone" binding:"required,min=7,max=20"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Name    *string `json:"name" binding:"omitempty,min=2,max=120"`
	Address *string `json:"address" binding:"omitempty,min=3,max=300"`
	Phone   *string `json:"phone" binding:"omitempty,min=7,max=20"`
}

// NormalizeCode upper-cases and trims a station code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidCode(code string) bool {
	return codePattern.MatchString(NormalizeCode(code))
}

func NewFromCreateRequest(req CreateRequest) Station {
	now := time.Now().UTC()

	return Station{
		Code:      NormalizeCode(req.Code),
		Name:      req.Name,
		Address:   req.Address,
		Phone:     req.Phone,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
