package coordinator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/teledrop/teledrop/internal/access"
	"github.com/teledrop/teledrop/internal/apperr"
	"github.com/teledrop/teledrop/internal/config"
	"github.com/teledrop/teledrop/internal/db"
	"github.com/teledrop/teledrop/internal/models"
	"github.com/teledrop/teledrop/internal/storage"
)

// --- fake MetadataStore -------------------------------------------------
//
// A hand-written in-memory stand-in for *db.MetadataStore, satisfying
// the MetadataStore interface so the coordinator's transactional logic
// can be exercised without a live MongoDB. WithTransaction snapshots its
// maps before running fn and restores them on error, approximating
// MongoDB's abort-on-error transaction semantics closely enough for
// these tests.
type fakeMetadataStore struct {
	mu             sync.Mutex
	drops          map[uuid.UUID]models.Drop
	files          map[uuid.UUID]models.File // keyed by DropID
	slugs          map[string]uuid.UUID
	failInsertFile bool
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		drops: make(map[uuid.UUID]models.Drop),
		files: make(map[uuid.UUID]models.File),
		slugs: make(map[string]uuid.UUID),
	}
}

func cloneDrops(m map[uuid.UUID]models.Drop) map[uuid.UUID]models.Drop {
	c := make(map[uuid.UUID]models.Drop, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneFiles(m map[uuid.UUID]models.File) map[uuid.UUID]models.File {
	c := make(map[uuid.UUID]models.File, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneSlugs(m map[string]uuid.UUID) map[string]uuid.UUID {
	c := make(map[string]uuid.UUID, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (f *fakeMetadataStore) WithTransaction(ctx context.Context, fn func(sess db.SessionOps) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	savedDrops := cloneDrops(f.drops)
	savedFiles := cloneFiles(f.files)
	savedSlugs := cloneSlugs(f.slugs)

	if err := fn(&fakeSession{store: f}); err != nil {
		f.drops = savedDrops
		f.files = savedFiles
		f.slugs = savedSlugs
		return err
	}
	return nil
}

func (f *fakeMetadataStore) GetBySlug(ctx context.Context, slugStr string, eagerFile bool) (*models.Drop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.slugs[slugStr]
	if !ok {
		return nil, nil
	}
	d := f.drops[id]
	if eagerFile {
		if file, ok := f.files[id]; ok {
			fc := file
			d.File = &fc
		}
	}
	return &d, nil
}

func (f *fakeMetadataStore) List(ctx context.Context, ownerID string, sortKey db.SortKey, order db.Order, page, pageSize int) (*db.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var drops []models.Drop
	for _, d := range f.drops {
		if d.OwnerID == ownerID {
			drops = append(drops, d)
		}
	}
	return &db.ListPage{Drops: drops, Total: int64(len(drops))}, nil
}

func (f *fakeMetadataStore) SlugExists(ctx context.Context, slugStr string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.slugs[slugStr]
	return ok, nil
}

// fakeSession is handed to the coordinator's WithTransaction callback.
// Its methods run under the lock WithTransaction already holds.
type fakeSession struct {
	store *fakeMetadataStore
}

func (s *fakeSession) InsertDrop(drop *models.Drop) error {
	if _, exists := s.store.slugs[drop.Slug]; exists {
		return db.ErrSlugConflict
	}
	s.store.drops[drop.ID] = *drop
	s.store.slugs[drop.Slug] = drop.ID
	return nil
}

func (s *fakeSession) InsertFile(file *models.File) error {
	if s.store.failInsertFile {
		return errors.New("fake: forced file insert failure")
	}
	s.store.files[file.DropID] = *file
	return nil
}

func (s *fakeSession) GetDropBySlugForUpdate(slugStr string) (*models.Drop, error) {
	id, ok := s.store.slugs[slugStr]
	if !ok {
		return nil, db.ErrNotFound
	}
	d := s.store.drops[id]
	return &d, nil
}

func (s *fakeSession) GetFileByDropID(dropID uuid.UUID) (*models.File, error) {
	f, ok := s.store.files[dropID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &f, nil
}

func (s *fakeSession) UpdateDropFields(dropID uuid.UUID, set bson.M) error {
	d, ok := s.store.drops[dropID]
	if !ok {
		return db.ErrNotFound
	}
	for k, v := range set {
		switch k {
		case "title":
			d.Title = v.(string)
		case "description":
			d.Description = v.(string)
		case "private":
			d.Private = v.(bool)
		case "favorite":
			d.Favorite = v.(bool)
		case "passphrase_hash":
			d.PassphraseHash = v.(string)
		case "updated_at":
			d.UpdatedAt = v.(time.Time)
		}
	}
	s.store.drops[dropID] = d
	return nil
}

func (s *fakeSession) DeleteDropAndFile(dropID uuid.UUID) error {
	d, ok := s.store.drops[dropID]
	if !ok {
		return db.ErrNotFound
	}
	delete(s.store.files, dropID)
	delete(s.store.drops, dropID)
	delete(s.store.slugs, d.Slug)
	return nil
}

// --- fake BlobStore -------------------------------------------------

type fakeBlobStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	deleted []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

type fakeWriter struct {
	store *fakeBlobStore
	key   string
	buf   bytes.Buffer
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeWriter) Commit(ctx context.Context) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.blobs[w.key] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

func (w *fakeWriter) Abort(ctx context.Context) error { return nil }

func (f *fakeBlobStore) OpenWrite(ctx context.Context, key string) (storage.Writer, error) {
	return &fakeWriter{store: f, key: key}, nil
}

func (f *fakeBlobStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) ReadRange(ctx context.Context, key string, start, endInclusive int64) (io.ReadCloser, error) {
	return f.Read(ctx, key)
}

func (f *fakeBlobStore) Stat(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(data)), nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlobStore) Move(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[dst] = f.blobs[src]
	delete(f.blobs, src)
	return nil
}

// --- test setup -------------------------------------------------

func testConfig() *config.Settings {
	return &config.Settings{
		SlugAlphabet:   "abcdefghijklmnopqrstuvwxyz",
		SlugLength:     8,
		SlugMaxRetries: 3,
		ReservedSlugs:  map[string]struct{}{"api": {}},
		ChunkSize:      4096,
		Argon2Time:     1,
		Argon2Memory:   8 * 1024,
		Argon2Threads:  1,
		Argon2KeyLen:   16,
	}
}

func testCoordinator() (*Coordinator, *fakeMetadataStore, *fakeBlobStore) {
	meta := newFakeMetadataStore()
	blob := newFakeBlobStore()
	log := logrus.NewEntry(logrus.New())
	return New(meta, blob, testConfig(), log), meta, blob
}

// --- tests -------------------------------------------------

func TestCreateUserSuppliedSlugTaken(t *testing.T) {
	c, meta, _ := testCoordinator()
	ctx := context.Background()

	if _, err := c.Create(ctx, CreateInput{
		Slug:     "my-slug",
		Filename: "a.txt",
		Body:     strings.NewReader("hello"),
		OwnerID:  "owner-1",
	}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := c.Create(ctx, CreateInput{
		Slug:     "my-slug",
		Filename: "b.txt",
		Body:     strings.NewReader("world"),
		OwnerID:  "owner-2",
	})
	if !apperr.Is(err, apperr.KindSlugTaken) {
		t.Fatalf("expected SlugTaken, got %v", err)
	}
	if len(meta.drops) != 1 {
		t.Fatalf("expected exactly one drop to remain, got %d", len(meta.drops))
	}
}

func TestCreateSizeLimitExceededLeavesNoRowOrBlob(t *testing.T) {
	c, meta, blob := testCoordinator()
	c.Cfg.MaxUploadSize = 4

	_, err := c.Create(context.Background(), CreateInput{
		Filename: "big.bin",
		Body:     strings.NewReader("this is definitely too long"),
		OwnerID:  "owner-1",
	})
	if !apperr.Is(err, apperr.KindSizeLimitExceeded) {
		t.Fatalf("expected SizeLimitExceeded, got %v", err)
	}
	if len(meta.drops) != 0 {
		t.Fatalf("expected no drop row after a failed create, got %d", len(meta.drops))
	}
	if len(blob.blobs) != 0 {
		t.Fatalf("expected no committed blob after a failed create, got %d", len(blob.blobs))
	}
}

func TestDeleteTwiceReturnsNotFoundSecondTime(t *testing.T) {
	c, _, _ := testCoordinator()
	ctx := context.Background()
	owner := access.Caller{Authenticated: true, ID: "owner-1"}

	drop, err := c.Create(ctx, CreateInput{
		Filename: "a.txt",
		Body:     strings.NewReader("hello"),
		OwnerID:  "owner-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := c.Delete(ctx, drop.Slug, owner); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	err = c.Delete(ctx, drop.Slug, owner)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound on the second delete, got %v", err)
	}
}

func TestCreateFailureAfterBlobWriteTriggersCompensatingDelete(t *testing.T) {
	c, _, blob := testCoordinator()
	c.Meta.(*fakeMetadataStore).failInsertFile = true

	_, err := c.Create(context.Background(), CreateInput{
		Filename: "a.txt",
		Body:     strings.NewReader("hello world"),
		OwnerID:  "owner-1",
	})
	if err == nil {
		t.Fatal("expected create to fail")
	}
	if len(blob.blobs) != 0 {
		t.Fatalf("expected the compensating delete to remove the blob, got %d blobs", len(blob.blobs))
	}
	if len(blob.deleted) != 1 {
		t.Fatalf("expected exactly one compensating delete, got %d", len(blob.deleted))
	}
}

// An auto-generated slug that collides at insert time must retry with a
// fresh candidate rather than surface SlugTaken; once every candidate
// the generator can produce is exhausted, the caller sees SlugExhausted.
func TestCreateAutoGeneratedSlugRetriesThenExhausts(t *testing.T) {
	c, meta, blob := testCoordinator()
	c.Cfg.SlugAlphabet = "a"
	c.Cfg.SlugLength = 4
	c.Cfg.SlugMaxRetries = 3

	meta.slugs["aaaa"] = uuid.New()

	_, err := c.Create(context.Background(), CreateInput{
		Filename: "a.txt",
		Body:     strings.NewReader("x"),
		OwnerID:  "owner-1",
	})
	if !apperr.Is(err, apperr.KindSlugExhausted) {
		t.Fatalf("expected SlugExhausted, got %v", err)
	}
	if apperr.Is(err, apperr.KindSlugTaken) {
		t.Fatal("an auto-generated collision must never surface as SlugTaken")
	}
	if len(blob.blobs) != 0 {
		t.Fatalf("expected no blob written for an exhausted create, got %d", len(blob.blobs))
	}
}
