package blobstore

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/cuemby/relic/pkg/apierr"
)

// ProbeExternal follows url, streams the body through a hashing reader
// without persisting it, and returns the size/checksum/content-type an
// external blob registration records. The URL itself is never returned
// to the caller; only the probed metadata is.
func ProbeExternal(ctx context.Context, url string, maxBytes int64) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, apierr.Wrap(err, apierr.BadRequest, "malformed external blob url")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{}, apierr.Wrap(err, apierr.BadRequest, "probe external blob url")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{}, apierr.Newf(apierr.BadRequest, "external url returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultContentType
	}

	lr := newLimitedHashReader(resp.Body, maxBytes)
	written, err := io.Copy(io.Discard, lr)
	if err != nil {
		return Result{}, apierr.Wrap(err, apierr.Internal, "read external blob body")
	}
	if lr.exceeded {
		return Result{}, sizeExceededErr()
	}

	return Result{
		Size:        written,
		Checksum:    hex.EncodeToString(lr.h.Sum(nil)),
		ContentType: contentType,
	}, nil
}
