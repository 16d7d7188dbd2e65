package blobstore

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/relic/pkg/apierr"
)

// DefaultBlobsPath is the base directory blob bytes are stored under
// when no explicit path is configured.
const DefaultBlobsPath = "/var/lib/relic/blobs"

// FilesystemAdapter implements Adapter over the local filesystem,
// storing one file per slot key under basePath.
type FilesystemAdapter struct {
	basePath string
}

// NewFilesystemAdapter creates a filesystem-backed adapter rooted at
// basePath, creating the directory if it does not already exist.
func NewFilesystemAdapter(basePath string) (*FilesystemAdapter, error) {
	if basePath == "" {
		basePath = DefaultBlobsPath
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, apierr.Wrap(err, apierr.Internal, "create blob storage directory")
	}
	return &FilesystemAdapter{basePath: basePath}, nil
}

func (f *FilesystemAdapter) pathFor(key string) string {
	return filepath.Join(f.basePath, hex.EncodeToString([]byte(key)))
}

func (f *FilesystemAdapter) Put(key string, r io.Reader, maxBytes int64, contentType string) (Result, error) {
	if contentType == "" {
		contentType = DefaultContentType
	}
	path := f.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Result{}, apierr.Wrap(err, apierr.Internal, "create blob directory")
	}

	out, err := os.Create(path)
	if err != nil {
		return Result{}, apierr.Wrap(err, apierr.Internal, "create blob file")
	}
	defer out.Close()

	lr := newLimitedHashReader(r, maxBytes)
	written, copyErr := io.Copy(out, lr)
	if copyErr != nil {
		os.Remove(path)
		return Result{}, apierr.Wrap(copyErr, apierr.Internal, "write blob")
	}
	if lr.exceeded {
		os.Remove(path)
		return Result{}, sizeExceededErr()
	}

	return Result{
		Size:        written,
		Checksum:    hex.EncodeToString(lr.h.Sum(nil)),
		ContentType: contentType,
	}, nil
}

func (f *FilesystemAdapter) Get(key string) (io.ReadCloser, error) {
	path := f.pathFor(key)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.NotFoundf("blob %s", key)
		}
		return nil, apierr.Wrap(err, apierr.Internal, "open blob")
	}
	return file, nil
}

func (f *FilesystemAdapter) Delete(key string) error {
	path := f.pathFor(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apierr.Wrap(err, apierr.Internal, fmt.Sprintf("delete blob %s", key))
	}
	return nil
}
