package role

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	User       Role = "user"
	Admin      Role = "admin"
	Superadmin Role = "superadmin"
)

// Navigation targets used by the role guard and the login response.
const (
	LoginPath               = "/login"
	AdminDashboardPath      = "/admin/dashboard"
	SuperadminDashboardPath = "/superadmin/dashboard"
	DeliveriesPath          = "/my-deliveries"
)

var ErrUnknownRole = errors.New("unknown role")

// All lists every role in ascending privilege order.
func All() []Role {
	return []Role{User, Admin, Superadmin}
}

func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case User, Admin, Superadmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// DefaultLanding is where an identity with this role is sent when it lands on a
// view it may not see. A value outside the enum is not an identity, so it goes
// back to the login page.
func (r Role) DefaultLanding() string {
	switch r {
	case Superadmin:
		return SuperadminDashboardPath
	case Admin:
		return AdminDashboardPath
	case User:
		return DeliveriesPath
	}
	return LoginPath
}

// In reports whether r is one of allowed.
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
