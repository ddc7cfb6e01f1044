package session

import (
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/domain/user"
)

// Identity is the authenticated actor as a client holds it.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      role.Role `json:"role"`
	Station   *string   `json:"station,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func FromUser(u user.User) Identity {
	return Identity{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		Station:   u.Station,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (id Identity) StationCode() string {
	if id.Station == nil {
		return ""
	}
	return *id.Station
}

func (id Identity) clone() *Identity {
	c := id
	if id.Station != nil {
		st := *id.Station
		c.Station = &st
	}
	return &c
}
