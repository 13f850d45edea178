// Package access implements the access evaluator: a pure function
// mapping (drop, caller identity, supplied passphrase) to an allow/deny
// outcome with a precise reason code, layering private/password/
// ownership checks in a fixed precedence order.
package access

import (
	"github.com/teledrop/teledrop/internal/models"
	"github.com/teledrop/teledrop/internal/passphrase"
)

type Decision string

const (
	Allow                Decision = "allow"
	DenyNotFound         Decision = "deny_not_found"
	DenyAuthRequired     Decision = "deny_auth_required"
	DenyPasswordRequired Decision = "deny_password_required"
	DenyPasswordInvalid  Decision = "deny_password_invalid"
	DenyForbidden        Decision = "deny_forbidden"
)

// Caller describes the resolved identity making the request. An
// external identity provider (JWT/cookie/API key) produces this before
// the core ever sees the request.
type Caller struct {
	Authenticated bool
	ID            string
}

func (c Caller) IsOwner(drop *models.Drop) bool {
	return c.Authenticated && drop != nil && drop.IsOwner(c.ID)
}

// Evaluate runs the access decision table. drop == nil means the drop
// does not exist. suppliedPassphrase is the clear-text value presented
// by the caller, if any.
func Evaluate(drop *models.Drop, caller Caller, suppliedPassphrase string) Decision {
	if drop == nil {
		return DenyNotFound
	}

	owner := caller.IsOwner(drop)

	if drop.Private && !owner {
		if !caller.Authenticated {
			return DenyAuthRequired
		}
		return DenyForbidden
	}

	if drop.HasPassphrase() && !owner {
		if suppliedPassphrase == "" {
			return DenyPasswordRequired
		}
		if !passphrase.Verify(drop.PassphraseHash, suppliedPassphrase) {
			return DenyPasswordInvalid
		}
	}

	return Allow
}

// EvaluateMutation is the owner-only short circuit for update/delete/
// password/permission/favorite operations: caller must be the owner.
// Unlike Evaluate, an unauthenticated caller is not distinguished from
// a wrong-identity caller here: both are DenyForbidden regardless of
// passphrase.
func EvaluateMutation(drop *models.Drop, caller Caller) Decision {
	if drop == nil {
		return DenyNotFound
	}
	if !caller.IsOwner(drop) {
		return DenyForbidden
	}
	return Allow
}
