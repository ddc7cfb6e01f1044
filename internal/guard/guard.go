// Package guard decides whether an identity may see a role-gated view and,
// when it may not, where it should be sent instead.
package guard

import (
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/session"
)

// Decision is the outcome of one evaluation. Exactly one of Identity and
// Redirect is set.
type Decision struct {
	Identity *session.Identity
	Redirect string
}

func (d Decision) Allowed() bool {
	return d.Redirect == "" && d.Identity != nil
}

// Evaluate applies the access rule. An explicit redirect always wins over the
// computed target.
func Evaluate(id *session.Identity, allowed []role.Role, redirect string) Decision {
	if id == nil {
		if redirect != "" {
			return Decision{Redirect: redirect}
		}
		return Decision{Redirect: role.LoginPath}
	}

	if !id.Role.In(allowed...) {
		if redirect != "" {
			return Decision{Redirect: redirect}
		}
		return Decision{Redirect: id.Role.DefaultLanding()}
	}

	return Decision{Identity: id}
}

// Check evaluates against the identity currently held by store.
func Check(store *session.Store, allowed []role.Role, redirect string) Decision {
	var id *session.Identity
	if store != nil {
		id = store.Current()
	}
	return Evaluate(id, allowed, redirect)
}
