package middleware

// identity.go defines the explicit caller identity threaded through
// requests.  Authorization decisions read roles from this value,
// never from ambient flags on a shared user record.

import (
    "errors"

    "github.com/labstack/echo/v4"
)

// identityKey is the context key under which JWTAuth stores the
// caller's Identity.
const identityKey = "identity"

// RoleCustomer and RoleAdmin are the role claim values understood by
// the booking core.  Admins may seed trips and read the audit log.
const (
    RoleCustomer = "CUSTOMER"
    RoleAdmin    = "ADMIN"
)

// ErrNoIdentity is returned when a handler requires an authenticated
// caller but the context carries none.
var ErrNoIdentity = errors.New("no identity in request context")

// Identity is the authenticated caller as asserted by the session
// and credential store that issued the token.  The booking core
// trusts it and performs no authentication of its own.
type Identity struct {
    CustomerID uint64
    Roles      []string
}

// HasRole reports whether the identity carries the given role claim.
func (id Identity) HasRole(role string) bool {
    for _, r := range id.Roles {
        if r == role {
            return true
        }
    }
    return false
}

// IdentityFrom extracts the Identity set by JWTAuth from the Echo
// context.
func IdentityFrom(c echo.Context) (Identity, error) {
    v := c.Get(identityKey)
    id, ok := v.(Identity)
    if !ok {
        return Identity{}, ErrNoIdentity
    }
    return id, nil
}
