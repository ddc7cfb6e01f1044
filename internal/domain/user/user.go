package user

import (
	"errors"
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/role"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrEmailTaken        = errors.New("email already in use")
	ErrStationRequired   = errors.New("admin accounts require a station")
	ErrInvalidCredential = errors.New("invalid credentials")
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         role.Role `json:"role"`
	Station      *string   `json:"station,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u User) StationCode() string {
	if u.Station == nil {
		return ""
	}
	return *u.Station
}

type SignUpRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=120"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required,min=7,max=20"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// CreateRequest is the superadmin form for provisioning any account.
type CreateRequest struct {
	Name     string    `json:"name" binding:"required,min=2,max=120"`
	Email    string    `json:"email" binding:"required,email"`
	Phone    string    `json:"phone" binding:"required,min=7,max=20"`
	Password string    `json:"password" binding:"required,min=8,max=72"`
	Role     role.Role `json:"role" binding:"required,role"`
	Station  *string   `json:"station" binding:"omitempty,station_code"`
}

// NewUser carries an already-hashed password into the repository.
type NewUser struct {
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         role.Role
	Station      *string
}

type UpdateProfileRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=2,max=120"`
	Phone *string `json:"phone" binding:"omitempty,min=7,max=20"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=72,nefield=CurrentPassword"`
}

type ListFilter struct {
	Role   *role.Role
	Active *bool
	Query  *string
	Limit  int
}

// Validate checks cross-field rules binding tags cannot express.
func (r CreateRequest) Validate() error {
	if r.Role == role.Admin && (r.Station == nil || *r.Station == "") {
		return ErrStationRequired
	}
	return nil
}
