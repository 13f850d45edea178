package coordinator

import (
	"context"

	"github.com/teledrop/teledrop/internal/access"
	"github.com/teledrop/teledrop/internal/apperr"
	"github.com/teledrop/teledrop/internal/db"
	"github.com/teledrop/teledrop/internal/models"
)

// decisionError maps an access.Decision to the error kind the HTTP
// layer expects. Allow maps to nil.
func decisionError(d access.Decision, slug string) error {
	switch d {
	case access.Allow:
		return nil
	case access.DenyNotFound:
		return apperr.NotFound("drop not found: " + slug)
	case access.DenyAuthRequired:
		return apperr.AuthRequired("authentication required for drop: " + slug)
	case access.DenyForbidden:
		return apperr.Forbidden("not the owner of drop: " + slug)
	case access.DenyPasswordRequired:
		return apperr.PasswordRequired("passphrase required for drop: " + slug)
	case access.DenyPasswordInvalid:
		return apperr.PasswordInvalid("invalid passphrase for drop: " + slug)
	default:
		return apperr.Forbidden("access denied for drop: " + slug)
	}
}

// Preview loads the Drop with its File eager-loaded, runs it through
// the access evaluator, and returns the drop on Allow.
func (c *Coordinator) Preview(ctx context.Context, slugStr string, caller access.Caller, suppliedPassphrase string) (*models.Drop, error) {
	drop, err := c.Meta.GetBySlug(ctx, slugStr, true)
	if err != nil {
		return nil, apperr.Storage("load drop", err)
	}
	decision := access.Evaluate(drop, caller, suppliedPassphrase)
	if err := decisionError(decision, slugStr); err != nil {
		return nil, err
	}
	return drop, nil
}

// List returns an owner's drops, paged and sorted. Listing is
// owner-only.
func (c *Coordinator) List(ctx context.Context, caller access.Caller, sortKey db.SortKey, order db.Order, page, pageSize int) (*db.ListPage, error) {
	if !caller.Authenticated {
		return nil, apperr.AuthRequired("listing requires authentication")
	}
	return c.Meta.List(ctx, caller.ID, sortKey, order, page, pageSize)
}

// SlugAvailable is a non-authoritative read-only check for the UI: the
// slug could still be taken by the time a create request lands.
func (c *Coordinator) SlugAvailable(ctx context.Context, candidate string) (bool, error) {
	exists, err := c.Meta.SlugExists(ctx, candidate)
	if err != nil {
		return false, apperr.Storage("check slug", err)
	}
	return !exists, nil
}
