// Package models holds the Drop and File records. Drop and File live in
// their own collections linked by a unique drop_id (a 1:1 relationship),
// and are keyed by google/uuid.UUID rather than a driver-specific ID
// type.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Drop is the primary entity a user names and shares.
type Drop struct {
	ID             uuid.UUID `bson:"_id"`
	Slug           string    `bson:"slug"`
	Title          string    `bson:"title,omitempty"`
	Description    string    `bson:"description,omitempty"`
	PassphraseHash string    `bson:"passphrase_hash,omitempty"`
	Private        bool      `bson:"private"`
	Favorite       bool      `bson:"favorite"`
	OwnerID        string    `bson:"owner_id"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`

	// File is eager-loaded by the Metadata Store when requested; it is
	// never persisted as part of the Drop document itself.
	File *File `bson:"-"`
}

// AnonymousOwner is the sentinel owner_id for unauthenticated creates.
const AnonymousOwner = "anonymous"

func (d *Drop) HasPassphrase() bool { return d.PassphraseHash != "" }

func (d *Drop) IsOwner(callerID string) bool {
	return callerID != "" && callerID == d.OwnerID
}

// File is the bytes backing exactly one Drop.
type File struct {
	ID          uuid.UUID `bson:"_id"`
	DropID      uuid.UUID `bson:"drop_id"`
	Name        string    `bson:"name"`
	MediaType   string    `bson:"media_type"`
	Size        int64     `bson:"size"`
	ContentHash string    `bson:"content_hash"`
	StorageKey  string    `bson:"storage_key"`
	CreatedAt   time.Time `bson:"created_at"`
}

// DefaultMediaType is the fallback when the uploader supplies none.
const DefaultMediaType = "application/octet-stream"

// Snapshot is the public projection returned to clients: no
// passphrase_hash, no raw storage_key.
type Snapshot struct {
	ID            uuid.UUID `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title,omitempty"`
	Description   string    `json:"description,omitempty"`
	Private       bool      `json:"private"`
	Favorite      bool      `json:"favorite"`
	HasPassphrase bool      `json:"has_passphrase"`
	OwnerID       string    `json:"owner_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	FileName      string `json:"file_name"`
	FileMediaType string `json:"file_media_type"`
	FileSize      int64  `json:"file_size"`
}

func (d *Drop) ToSnapshot() Snapshot {
	s := Snapshot{
		ID:            d.ID,
		Slug:          d.Slug,
		Title:         d.Title,
		Description:   d.Description,
		Private:       d.Private,
		Favorite:      d.Favorite,
		HasPassphrase: d.HasPassphrase(),
		OwnerID:       d.OwnerID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.File != nil {
		s.FileName = d.File.Name
		s.FileMediaType = d.File.MediaType
		s.FileSize = d.File.Size
	}
	return s
}
