// Package storage implements the blob store: a content-addressed byte
// vault behind one interface (BlobStore) so the Local and S3 backends
// are interchangeable to every caller above them.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("storage: key not found")
	ErrRangeInvalid = errors.New("storage: invalid range")
)

// Writer is the streaming sink returned by OpenWrite. Write is called
// repeatedly with chunks; Commit publishes the temp object atomically;
// Abort discards it. Exactly one of Commit/Abort must be called.
type Writer interface {
	io.Writer
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// BlobStore is the content-addressed byte vault. Both backends (Local,
// S3) implement it; the coordinator depends only on this interface.
type BlobStore interface {
	OpenWrite(ctx context.Context, key string) (Writer, error)
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	ReadRange(ctx context.Context, key string, start, endInclusive int64) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	Move(ctx context.Context, src, dst string) error
}

// DeriveKey computes storage_key = hex(sha256(fileID))[0:2] + "/" +
// hex(...)[2:4] + "/" + hex(...)[4:], a two-level fan-out that keeps
// any one directory from accumulating too many entries.
func DeriveKey(fileID uuid.UUID) string {
	sum := sha256.Sum256(fileID[:])
	h := hex.EncodeToString(sum[:])
	return h[0:2] + "/" + h[2:4] + "/" + h[4:]
}

// TempKey derives the sibling temp key for a not-yet-published storage
// key: same directory, ".tmp" suffix.
func TempKey(key string) string {
	return key + ".tmp"
}
