// Package blobstore implements the Blob Store Adapter: streaming
// upload/download of blob bytes to a backing object store, checksum and
// size accounting, and probing of externally referenced URLs.
package blobstore

import (
	"crypto/md5"
	"hash"
	"io"

	"github.com/cuemby/relic/pkg/apierr"
)

// DefaultContentType is used for uploads that do not set one.
const DefaultContentType = "application/octet-stream"

// Result is the outcome of a completed Put or ProbeExternal.
type Result struct {
	Size        int64
	Checksum    string
	ContentType string
}

// Adapter streams blob bytes in and out of a backing store. Every
// method is keyed by an opaque slot key — see Key — not by artifact
// attribute semantics, which belong to pkg/lifecycle.
type Adapter interface {
	// Put streams up to maxBytes from r into the slot identified by
	// key, computing an MD5 checksum as it goes. If r produces more
	// than maxBytes, the stream is aborted and partial bytes are
	// discarded; Put returns a PayloadTooLarge-typed error.
	Put(key string, r io.Reader, maxBytes int64, contentType string) (Result, error)

	// Get opens the slot identified by key for reading. The caller
	// must Close the returned reader.
	Get(key string) (io.ReadCloser, error)

	// Delete removes the slot's bytes, if present. Deleting an absent
	// slot is not an error.
	Delete(key string) error
}

// Key derives the backend storage key for a blob slot from the tuple
// the identifiers are scoped by: tenant, artifact id, and the slot's
// path within that artifact (e.g. "icon", "blob", "map_blob_attr/k1").
func Key(tenant, artifactID, slotPath string) string {
	return tenant + "/" + artifactID + "/" + slotPath
}

// limitedHashReader wraps r, hashing every byte read and failing once
// more than maxBytes have passed through it.
type limitedHashReader struct {
	r        io.Reader
	h        hash.Hash
	remain   int64
	exceeded bool
}

func newLimitedHashReader(r io.Reader, maxBytes int64) *limitedHashReader {
	return &limitedHashReader{r: r, h: md5.New(), remain: maxBytes}
}

func (l *limitedHashReader) Read(p []byte) (int, error) {
	if l.remain <= 0 && len(p) > 0 {
		n, err := l.r.Read(p)
		if n > 0 {
			l.exceeded = true
		}
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	if int64(len(p)) > l.remain {
		p = p[:l.remain]
	}
	n, err := l.r.Read(p)
	if n > 0 {
		l.h.Write(p[:n])
		l.remain -= int64(n)
	}
	return n, err
}

func sizeExceededErr() error {
	return apierr.New(apierr.PayloadTooLarge, "blob exceeds the maximum size for this slot")
}
