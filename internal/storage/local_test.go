package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func newTestLocal(t *testing.T) *Local {
	dir, err := os.MkdirTemp("", "teledrop-storage-test")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	l, err := NewLocal(dir, logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func writeBlob(t *testing.T, l *Local, key string, data []byte) {
	ctx := context.Background()
	w, err := l.OpenWrite(ctx, key)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestLocalWriteReadRoundTrip(t *testing.T) {
	l := newTestLocal(t)
	writeBlob(t, l, "ab/cd/ef", []byte("hello world"))

	rc, err := l.Read(context.Background(), "ab/cd/ef")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestLocalAbortLeavesNoFinalBlob(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	w, err := l.OpenWrite(ctx, "k")
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	w.Write([]byte("partial"))
	if err := w.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := l.Stat(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after abort, got %v", err)
	}
}

func TestLocalReadRange(t *testing.T) {
	l := newTestLocal(t)
	writeBlob(t, l, "k", []byte("0123456789"))

	rc, err := l.ReadRange(context.Background(), "k", 2, 4)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "234" {
		t.Fatalf("got %q", got)
	}
}

func TestLocalReadRangeInvalid(t *testing.T) {
	l := newTestLocal(t)
	writeBlob(t, l, "k", []byte("01234"))

	if _, err := l.ReadRange(context.Background(), "k", 3, 10); err != ErrRangeInvalid {
		t.Fatalf("expected ErrRangeInvalid, got %v", err)
	}
}

func TestLocalDeleteIsIdempotent(t *testing.T) {
	l := newTestLocal(t)
	if err := l.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}

func TestLocalReadMissingReturnsErrNotFound(t *testing.T) {
	l := newTestLocal(t)
	if _, err := l.Read(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalSweepRemovesStaleTempFiles(t *testing.T) {
	l := newTestLocal(t)
	stalePath := filepath.Join(l.root, "stale.tmp")
	if err := os.WriteFile(stalePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write stale temp file: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	freshPath := filepath.Join(l.root, "fresh.tmp")
	os.WriteFile(freshPath, []byte("y"), 0o644)

	removed, err := l.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatalf("expected stale temp file to be removed")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("expected fresh temp file to survive: %v", err)
	}
}

func TestDeriveKeyIsStableTwoLevelFanOut(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	key := DeriveKey(id)
	parts := filepath.ToSlash(key)
	if len(parts) < 5 || parts[2] != '/' || parts[5] != '/' {
		t.Fatalf("expected two-level fan-out, got %q", key)
	}
	if DeriveKey(id) != key {
		t.Fatalf("expected DeriveKey to be deterministic")
	}
}

func TestTempKeySuffix(t *testing.T) {
	if got := TempKey("ab/cd/ef"); got != "ab/cd/ef.tmp" {
		t.Fatalf("got %q", got)
	}
}
