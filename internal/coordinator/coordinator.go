// Package coordinator implements the drop lifecycle: create / read /
// list / update / delete / mutate-password / mutate-visibility /
// toggle-favorite as two-phase operations over the metadata store and
// the blob store, with compensation on failure.
//
// Create inserts the Drop row before writing the blob and commits the
// transaction only after the blob is durably written, so a crash leaves
// at worst a blob with no row pointing at it, never a database row
// pointing at missing bytes. A leftover .tmp blob is removed by the
// startup sweep; a published blob with no row is not pruned.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/teledrop/teledrop/internal/apperr"
	"github.com/teledrop/teledrop/internal/config"
	"github.com/teledrop/teledrop/internal/db"
	"github.com/teledrop/teledrop/internal/models"
	"github.com/teledrop/teledrop/internal/passphrase"
	"github.com/teledrop/teledrop/internal/slug"
	"github.com/teledrop/teledrop/internal/storage"
)

// MetadataStore is the subset of *db.MetadataStore the coordinator
// calls. Defining it as an interface lets coordinator_test.go exercise
// the two-phase create/delete/update logic against a hand-written
// in-memory fake instead of a live MongoDB connection; *db.MetadataStore
// satisfies it without any change on that side.
type MetadataStore interface {
	WithTransaction(ctx context.Context, fn func(sess db.SessionOps) error) error
	GetBySlug(ctx context.Context, slug string, eagerFile bool) (*models.Drop, error)
	List(ctx context.Context, ownerID string, sortKey db.SortKey, order db.Order, page, pageSize int) (*db.ListPage, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}

type Coordinator struct {
	Meta MetadataStore
	Blob storage.BlobStore
	Cfg  *config.Settings
	Log  *logrus.Entry
}

func New(meta MetadataStore, blob storage.BlobStore, cfg *config.Settings, log *logrus.Entry) *Coordinator {
	return &Coordinator{Meta: meta, Blob: blob, Cfg: cfg, Log: log}
}

func (c *Coordinator) argon2Params() passphrase.Params {
	return passphrase.Params{
		Time:    c.Cfg.Argon2Time,
		Memory:  c.Cfg.Argon2Memory,
		Threads: c.Cfg.Argon2Threads,
		KeyLen:  c.Cfg.Argon2KeyLen,
	}
}

func (c *Coordinator) deadlineCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Cfg.OperationDeadline <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.Cfg.OperationDeadline)
}

// --- Create -----------------------------------------------------------

// CreateInput is the typed, validated input to Create.
type CreateInput struct {
	Slug        string // optional; empty means auto-generate
	Title       string
	Description string
	Passphrase  string // optional, clear text
	Private     bool
	Favorite    bool

	Filename    string
	MediaType   string
	Body        io.Reader
	OwnerID     string // models.AnonymousOwner if unauthenticated
}

func (in *CreateInput) validate(cfg *config.Settings) error {
	if in.Slug != "" {
		if err := slug.Validate(in.Slug, cfg.ReservedSlugs); err != nil {
			return apperr.SlugInvalid(err.Error())
		}
	}
	if len(in.Title) > 200 {
		return apperr.ValidationError("title exceeds 200 characters")
	}
	if len(in.Description) > 4096 {
		return apperr.ValidationError("description exceeds 4096 characters")
	}
	if in.Passphrase != "" && (len(in.Passphrase) < 1 || len(in.Passphrase) > 1024) {
		return apperr.ValidationError("passphrase must be between 1 and 1024 characters")
	}
	if in.MediaType != "" && !mediaTypePattern.MatchString(in.MediaType) {
		return apperr.ValidationError("media type must be of the form type/subtype")
	}
	if in.Filename == "" {
		return apperr.ValidationError("file is required")
	}
	return nil
}

// Create resolves the slug, inserts the Drop row, streams the payload
// into the Blob Store while hashing, finalizes, writes the File row,
// and commits. Any failure after the blob write begins discards the
// blob on a best-effort basis (a failed stream aborts the temp write, a
// failed publish deletes the temp blob, a failure after publish deletes
// the published blob), and the metadata transaction rolls back
// automatically.
func (c *Coordinator) Create(ctx context.Context, in CreateInput) (*models.Drop, error) {
	if err := in.validate(c.Cfg); err != nil {
		return nil, err
	}

	ctx, cancel := c.deadlineCtx(ctx)
	defer cancel()

	var passHash string
	if in.Passphrase != "" {
		h, err := passphrase.Hash(in.Passphrase, c.argon2Params())
		if err != nil {
			return nil, apperr.Storage("hash passphrase", err)
		}
		passHash = h
	}

	mediaType := in.MediaType
	if mediaType == "" {
		mediaType = models.DefaultMediaType
	}

	now := time.Now().UTC()
	dropID := uuid.New()
	fileID := uuid.New()
	storageKey := storage.DeriveKey(fileID)

	drop := &models.Drop{
		ID:             dropID,
		Slug:           in.Slug,
		Title:          in.Title,
		Description:    in.Description,
		PassphraseHash: passHash,
		Private:        in.Private,
		Favorite:       in.Favorite,
		OwnerID:        ownerOrAnonymous(in.OwnerID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// An auto-generated slug that collides at insert time gets a fresh
	// candidate and another attempt, up to SlugMaxRetries; a user-supplied
	// slug that collides is surfaced immediately as SlugTaken. The insert's
	// unique index is the only authoritative uniqueness check — there is
	// no pre-check, since a pre-check can't be atomic with the insert.
	wasAutoGenerated := in.Slug == ""

	var blobWritten bool
	var writtenKeyForCleanup string

	err := c.Meta.WithTransaction(ctx, func(sess db.SessionOps) error {
		maxAttempts := 1
		if wasAutoGenerated {
			maxAttempts = c.Cfg.SlugMaxRetries
			if maxAttempts < 1 {
				maxAttempts = 1
			}
		}

		var insertErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if err := c.resolveSlug(drop); err != nil {
				return err
			}
			insertErr = sess.InsertDrop(drop)
			if insertErr == nil {
				break
			}
			if insertErr != db.ErrSlugConflict {
				return apperr.Storage("insert drop", insertErr)
			}
			if !wasAutoGenerated {
				return apperr.SlugTaken(fmt.Sprintf("slug %q is already taken", drop.Slug))
			}
			drop.Slug = ""
			insertErr = apperr.SlugExhausted("exhausted slug generation retries")
		}
		if insertErr != nil {
			return insertErr
		}

		size, hash, werr := c.streamUpload(ctx, storageKey, in.Body)
		if werr != nil {
			return werr
		}
		blobWritten = true
		writtenKeyForCleanup = storageKey

		file := &models.File{
			ID:          fileID,
			DropID:      dropID,
			Name:        sanitizeFilename(in.Filename),
			MediaType:   mediaType,
			Size:        size,
			ContentHash: hash,
			StorageKey:  storageKey,
			CreatedAt:   now,
		}
		if err := sess.InsertFile(file); err != nil {
			return apperr.Storage("insert file", err)
		}
		drop.File = file
		return nil
	})

	if err != nil {
		if blobWritten {
			if derr := c.Blob.Delete(context.Background(), writtenKeyForCleanup); derr != nil {
				c.Log.WithError(derr).WithField("storage_key", writtenKeyForCleanup).
					Warn("compensation: failed to delete orphan blob after failed create")
			}
		}
		return nil, err
	}

	c.Log.WithFields(logrus.Fields{
		"slug": drop.Slug,
		"size": humanize.Bytes(uint64(drop.File.Size)),
	}).Info("drop created")
	return drop, nil
}

func ownerOrAnonymous(id string) string {
	if id == "" {
		return models.AnonymousOwner
	}
	return id
}

// resolveSlug assigns drop.Slug when the caller left it empty. It does
// not check the candidate for uniqueness itself: the unique index on
// insert is the single source of truth, and Create's retry loop asks
// for a fresh candidate whenever an auto-generated one collides there.
func (c *Coordinator) resolveSlug(drop *models.Drop) error {
	if drop.Slug != "" {
		return nil
	}
	candidate, err := slug.Generate(c.Cfg.SlugAlphabet, c.Cfg.SlugLength)
	if err != nil {
		return apperr.Storage("generate slug", err)
	}
	drop.Slug = candidate
	return nil
}

// streamUpload copies the upload body into the Blob Store in chunks,
// hashing and bounding size as it goes, holding only one chunk in
// memory at a time. The reader drives its own backpressure: a slow
// client simply slows this copy. ctx is checked before each chunk, so a
// passed deadline or a canceled context stops the copy at the next
// chunk boundary; a read already blocked on the client is not
// interrupted by ctx.
func (c *Coordinator) streamUpload(ctx context.Context, storageKey string, body io.Reader) (int64, string, error) {
	writer, err := c.Blob.OpenWrite(ctx, storageKey)
	if err != nil {
		return 0, "", apperr.Storage("open blob write", err)
	}

	hasher := sha256.New()
	chunkSize := c.Cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	buf := make([]byte, chunkSize)
	var total int64

	for {
		if cerr := ctx.Err(); cerr != nil {
			writer.Abort(context.Background())
			return 0, "", apperr.Storage("upload canceled", cerr)
		}
		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			total += int64(n)
			if c.Cfg.MaxUploadSize > 0 && total > c.Cfg.MaxUploadSize {
				writer.Abort(ctx)
				return 0, "", apperr.SizeLimitExceeded(fmt.Sprintf("upload exceeds maximum size of %d bytes", c.Cfg.MaxUploadSize))
			}
			hasher.Write(buf[:n])
			if _, werr := writer.Write(buf[:n]); werr != nil {
				writer.Abort(ctx)
				return 0, "", apperr.Storage("write chunk", werr)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			writer.Abort(ctx)
			return 0, "", apperr.Storage("read upload body", rerr)
		}
	}

	if err := writer.Commit(ctx); err != nil {
		_ = c.Blob.Delete(context.Background(), storage.TempKey(storageKey))
		return 0, "", apperr.Storage("commit blob", err)
	}
	return total, hex.EncodeToString(hasher.Sum(nil)), nil
}
