package rangeio

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/teledrop/teledrop/internal/storage"
)

// ContentDisposition builds the header value, always including the
// UTF-8 percent-encoded filename* form so non-ASCII filenames survive.
func ContentDisposition(filename string, asAttachment bool) string {
	disposition := "inline"
	if asAttachment {
		disposition = "attachment"
	}
	return fmt.Sprintf("%s; filename*=UTF-8''%s", disposition, url.PathEscape(filename))
}

// Stream copies the resolved Plan's byte range from blob store key into
// w, pulling one chunk at a time so memory stays O(chunkSize). A
// consumer disconnect makes the next write to w fail, which ends the
// copy, and the ReadCloser is closed as soon as Stream returns, so the
// blob handle is released promptly. ctx is only passed to the blob
// store's Read/ReadRange; whether it cancels the read depends on the
// backend.
func Stream(ctx context.Context, blob storage.BlobStore, key string, plan Plan, w io.Writer, chunkSize int64) (int64, error) {
	var rc io.ReadCloser
	var err error
	if plan.Partial {
		rc, err = blob.ReadRange(ctx, key, plan.Start, plan.End)
	} else {
		rc, err = blob.Read(ctx, key)
	}
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	buf := make([]byte, chunkSize)
	return io.CopyBuffer(w, rc, buf)
}
