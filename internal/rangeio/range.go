// Package rangeio parses the HTTP Range header and resolves it against
// a blob's size into a concrete read plan, then streams that range from
// a BlobStore. Resolve returns a plain Plan value rather than mutating
// a response object directly, so it can be unit tested without an HTTP
// server.
package rangeio

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMalformed indicates the Range header could not be parsed or
// resolved against the blob size; callers answer this with 416.
var ErrMalformed = errors.New("rangeio: malformed or unsatisfiable range")

// Plan describes the concrete byte range (and resulting status code) a
// Range header resolves to.
type Plan struct {
	Partial bool  // true -> 206, false -> 200 (full content)
	Start   int64 // inclusive
	End     int64 // inclusive
	Size    int64
}

func (p Plan) Length() int64 { return p.End - p.Start + 1 }

// Resolve turns a Range header into a Plan. An empty header means a
// full read (200). A malformed header, or one with start >= size,
// returns ErrMalformed so the caller can answer 416. Only a single
// byte-range is supported; a header naming multiple ranges is treated
// as unsupported and answered with a full-content response.
func Resolve(header string, size int64) (Plan, error) {
	if header == "" {
		return Plan{Partial: false, Start: 0, End: size - 1, Size: size}, nil
	}
	if strings.Contains(header, ",") {
		return Plan{Partial: false, Start: 0, End: size - 1, Size: size}, nil
	}

	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Plan{}, ErrMalformed
	}
	spec := strings.TrimPrefix(header, prefix)

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return Plan{}, ErrMalformed
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var start, end int64
	switch {
	case startStr == "" && endStr != "":
		// bytes=-N: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return Plan{}, ErrMalformed
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	case startStr != "" && endStr == "":
		// bytes=S-
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 {
			return Plan{}, ErrMalformed
		}
		start = s
		end = size - 1
	case startStr != "" && endStr != "":
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s {
			return Plan{}, ErrMalformed
		}
		start, end = s, e
	default:
		return Plan{}, ErrMalformed
	}

	if start >= size {
		return Plan{}, ErrMalformed
	}
	if end >= size {
		end = size - 1 // clamp to the end of the blob
	}

	return Plan{Partial: true, Start: start, End: end, Size: size}, nil
}

// ContentRangeHeader formats "bytes S-E/size" for a resolved plan.
func (p Plan) ContentRangeHeader() string {
	return "bytes " + strconv.FormatInt(p.Start, 10) + "-" + strconv.FormatInt(p.End, 10) + "/" + strconv.FormatInt(p.Size, 10)
}

// UnsatisfiableContentRangeHeader formats "bytes */size" for a 416
// response.
func UnsatisfiableContentRangeHeader(size int64) string {
	return "bytes */" + strconv.FormatInt(size, 10)
}
