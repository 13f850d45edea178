package coordinator

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/teledrop/teledrop/internal/access"
	"github.com/teledrop/teledrop/internal/apperr"
	"github.com/teledrop/teledrop/internal/db"
	"github.com/teledrop/teledrop/internal/models"
	"github.com/teledrop/teledrop/internal/passphrase"
)

// UpdateDetailInput is the typed partial-update payload for detail
// edits. Pointer fields distinguish "supplied" from "not supplied".
type UpdateDetailInput struct {
	Title       *string
	Description *string
}

func (c *Coordinator) UpdateDetail(ctx context.Context, slugStr string, caller access.Caller, in UpdateDetailInput) (*models.Drop, error) {
	if in.Title != nil && len(*in.Title) > 200 {
		return nil, apperr.ValidationError("title exceeds 200 characters")
	}
	if in.Description != nil && len(*in.Description) > 4096 {
		return nil, apperr.ValidationError("description exceeds 4096 characters")
	}

	var result *models.Drop
	err := c.Meta.WithTransaction(ctx, func(sess db.SessionOps) error {
		drop, err := loadForMutationInTx(sess, slugStr, caller)
		if err != nil {
			return err
		}
		set := bson.M{}
		if in.Title != nil {
			drop.Title = *in.Title
			set["title"] = *in.Title
		}
		if in.Description != nil {
			drop.Description = *in.Description
			set["description"] = *in.Description
		}
		drop.UpdatedAt = time.Now().UTC()
		set["updated_at"] = drop.UpdatedAt
		if err := sess.UpdateDropFields(drop.ID, set); err != nil {
			return apperr.Storage("update drop", err)
		}
		result = drop
		return nil
	})
	return result, err
}

// UpdatePermission toggles a drop between public and private.
func (c *Coordinator) UpdatePermission(ctx context.Context, slugStr string, caller access.Caller, private bool) (*models.Drop, error) {
	var result *models.Drop
	err := c.Meta.WithTransaction(ctx, func(sess db.SessionOps) error {
		drop, err := loadForMutationInTx(sess, slugStr, caller)
		if err != nil {
			return err
		}
		drop.Private = private
		drop.UpdatedAt = time.Now().UTC()
		if err := sess.UpdateDropFields(drop.ID, bson.M{
			"private":    private,
			"updated_at": drop.UpdatedAt,
		}); err != nil {
			return apperr.Storage("update drop", err)
		}
		result = drop
		return nil
	})
	return result, err
}

// UpdateFavorite toggles the favorite flag. It does not touch
// updated_at by default; set cfg.FavoriteTouchesUpdatedAt to change
// that for a given deployment.
func (c *Coordinator) UpdateFavorite(ctx context.Context, slugStr string, caller access.Caller, favorite bool) (*models.Drop, error) {
	var result *models.Drop
	err := c.Meta.WithTransaction(ctx, func(sess db.SessionOps) error {
		drop, err := loadForMutationInTx(sess, slugStr, caller)
		if err != nil {
			return err
		}
		drop.Favorite = favorite
		set := bson.M{"favorite": favorite}
		if c.Cfg.FavoriteTouchesUpdatedAt {
			drop.UpdatedAt = time.Now().UTC()
			set["updated_at"] = drop.UpdatedAt
		}
		if err := sess.UpdateDropFields(drop.ID, set); err != nil {
			return apperr.Storage("update drop", err)
		}
		result = drop
		return nil
	})
	return result, err
}

// SetPassword sets or rotates the drop's passphrase. Rotating over an
// existing passphrase is silent; no special-casing required.
func (c *Coordinator) SetPassword(ctx context.Context, slugStr string, caller access.Caller, newPassphrase string) (*models.Drop, error) {
	if len(newPassphrase) < 1 || len(newPassphrase) > 1024 {
		return nil, apperr.ValidationError("passphrase must be between 1 and 1024 characters")
	}
	hash, err := passphrase.Hash(newPassphrase, c.argon2Params())
	if err != nil {
		return nil, apperr.Storage("hash passphrase", err)
	}

	var result *models.Drop
	txErr := c.Meta.WithTransaction(ctx, func(sess db.SessionOps) error {
		drop, err := loadForMutationInTx(sess, slugStr, caller)
		if err != nil {
			return err
		}
		drop.PassphraseHash = hash
		drop.UpdatedAt = time.Now().UTC()
		if err := sess.UpdateDropFields(drop.ID, bson.M{
			"passphrase_hash": hash,
			"updated_at":      drop.UpdatedAt,
		}); err != nil {
			return apperr.Storage("update drop", err)
		}
		result = drop
		return nil
	})
	return result, txErr
}

// RemovePassword clears the drop's passphrase, making it publicly
// accessible to anyone who already has the link (subject to Private).
func (c *Coordinator) RemovePassword(ctx context.Context, slugStr string, caller access.Caller) (*models.Drop, error) {
	var result *models.Drop
	err := c.Meta.WithTransaction(ctx, func(sess db.SessionOps) error {
		drop, err := loadForMutationInTx(sess, slugStr, caller)
		if err != nil {
			return err
		}
		drop.PassphraseHash = ""
		drop.UpdatedAt = time.Now().UTC()
		if err := sess.UpdateDropFields(drop.ID, bson.M{
			"passphrase_hash": "",
			"updated_at":      drop.UpdatedAt,
		}); err != nil {
			return apperr.Storage("update drop", err)
		}
		result = drop
		return nil
	})
	return result, err
}

// loadForMutationInTx loads the drop via the session and authorizes the
// caller as owner, so the read and the subsequent write are part of the
// same transaction.
func loadForMutationInTx(sess db.SessionOps, slugStr string, caller access.Caller) (*models.Drop, error) {
	drop, err := sess.GetDropBySlugForUpdate(slugStr)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, apperr.NotFound("drop not found: " + slugStr)
		}
		return nil, apperr.Storage("load drop", err)
	}
	decision := access.EvaluateMutation(drop, caller)
	if derr := decisionError(decision, slugStr); derr != nil {
		return nil, derr
	}
	return drop, nil
}
