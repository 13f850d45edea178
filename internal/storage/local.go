package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Local is the filesystem-rooted Blob Store backend.
type Local struct {
	root string
	log  *logrus.Entry
}

func NewLocal(root string, log *logrus.Entry) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %q: %w", root, err)
	}
	return &Local{root: root, log: log}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

type localWriter struct {
	f       *os.File
	tmpPath string
	finPath string
}

func (w *localWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *localWriter) Commit(ctx context.Context) error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("storage: sync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	// Same-directory rename is atomic on the underlying filesystem.
	if err := os.Rename(w.tmpPath, w.finPath); err != nil {
		return fmt.Errorf("storage: rename %q -> %q: %w", w.tmpPath, w.finPath, err)
	}
	return nil
}

func (w *localWriter) Abort(ctx context.Context) error {
	w.f.Close()
	if err := os.Remove(w.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove temp %q: %w", w.tmpPath, err)
	}
	return nil
}

// OpenWrite opens a sibling temp file for key and returns a sink whose
// Commit renames it into place. key itself is the final storage_key;
// the sink writes to key+".tmp" until Commit.
func (l *Local) OpenWrite(ctx context.Context, key string) (Writer, error) {
	finPath := l.path(key)
	tmpPath := l.path(TempKey(key))
	if err := os.MkdirAll(filepath.Dir(finPath), 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir for %q: %w", key, err)
	}
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open temp %q: %w", tmpPath, err)
	}
	return &localWriter{f: f, tmpPath: tmpPath, finPath: finPath}, nil
}

func (l *Local) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: open %q: %w", key, err)
	}
	return f, nil
}

// ReadRange yields bytes [start, endInclusive] of the blob at key.
// Closing the returned ReadCloser releases the file handle immediately,
// which lets a consumer disconnect stop the upstream read promptly.
func (l *Local) ReadRange(ctx context.Context, key string, start, endInclusive int64) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: open %q: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat %q: %w", key, err)
	}
	size := info.Size()
	if start < 0 || endInclusive < start || endInclusive >= size {
		f.Close()
		return nil, ErrRangeInvalid
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: seek %q: %w", key, err)
	}
	return &limitedReadCloser{r: io.LimitReader(f, endInclusive-start+1), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

func (l *Local) Stat(ctx context.Context, key string) (int64, error) {
	info, err := os.Stat(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("storage: stat %q: %w", key, err)
	}
	return info.Size(), nil
}

// Delete is idempotent: absence is not an error.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

func (l *Local) Move(ctx context.Context, src, dst string) error {
	srcPath, dstPath := l.path(src), l.path(dst)
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: stat %q: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for %q: %w", dst, err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("storage: move %q -> %q: %w", src, dst, err)
	}
	return nil
}

// Sweep deletes .tmp files older than maxAge under the storage root.
// It is only meaningful for the local backend: the S3 backend relies on
// a bucket lifecycle policy to expire abandoned multipart uploads out
// of band.
func (l *Local) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".tmp" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
				l.log.WithField("path", path).Info("swept stale temp blob")
			}
		}
		return nil
	})
	return removed, err
}
