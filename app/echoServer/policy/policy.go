// Package policy holds the access rules as plain predicates, injected
// into controllers instead of living in a middleware hierarchy.
package policy

import "github.com/labstack/echo/v4"

// Identity is the requester as decoded from the token. The zero value
// is an anonymous caller.
type Identity struct {
	UserID        int64
	Email         string
	Staff         bool
	Authenticated bool
}

type Op int

const (
	OpRead Op = iota
	OpWrite
)

// Func decides whether an operation is allowed for an identity.
type Func func(op Op, id Identity) bool

// StaffWriteReadAll allows reads for everyone, writes for staff only.
// This is the catalog rule.
func StaffWriteReadAll(op Op, id Identity) bool {
	if op == OpRead {
		return true
	}
	return id.Authenticated && id.Staff
}

// AuthenticatedOnly allows any operation for any logged-in user. This
// is the borrowing rule; ownership scoping happens in the service.
func AuthenticatedOnly(_ Op, id Identity) bool { return id.Authenticated }

const identityKey = "identity"

// SetIdentity stores the identity on the request context.
func SetIdentity(c echo.Context, id Identity) { c.Set(identityKey, id) }

// IdentityFrom reads the identity back; anonymous when unset.
func IdentityFrom(c echo.Context) Identity {
	id, _ := c.Get(identityKey).(Identity)
	return id
}
