package coordinator

import (
	"context"

	"github.com/teledrop/teledrop/internal/access"
	"github.com/teledrop/teledrop/internal/apperr"
	"github.com/teledrop/teledrop/internal/db"
)

// Delete loads the Drop+File, captures the storage_key, deletes both
// rows, commits, then best-effort deletes the blob after commit.
// Committing the database first means a crash between commit and the
// blob delete leaves a recoverable orphan blob, never a dangling row
// pointing at a missing blob.
func (c *Coordinator) Delete(ctx context.Context, slugStr string, caller access.Caller) error {
	var storageKey string

	err := c.Meta.WithTransaction(ctx, func(sess db.SessionOps) error {
		drop, err := loadForMutationInTx(sess, slugStr, caller)
		if err != nil {
			return err
		}
		file, err := sess.GetFileByDropID(drop.ID)
		if err != nil && err != db.ErrNotFound {
			return apperr.Storage("load file", err)
		}
		if file != nil {
			storageKey = file.StorageKey
		}
		if err := sess.DeleteDropAndFile(drop.ID); err != nil {
			if err == db.ErrNotFound {
				return apperr.NotFound("drop not found: " + slugStr)
			}
			return apperr.Storage("delete drop", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if storageKey != "" {
		if derr := c.Blob.Delete(context.Background(), storageKey); derr != nil {
			c.Log.WithError(derr).WithField("storage_key", storageKey).
				Warn("compensation: failed to delete blob after committed drop delete")
		}
	}
	return nil
}
