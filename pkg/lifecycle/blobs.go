package lifecycle

import (
	"context"
	"io"

	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/blobstore"
	"github.com/cuemby/relic/pkg/events"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/storage"
	"github.com/cuemby/relic/pkg/types"
)

// slotDescriptor resolves slotPath against the type descriptor, tolerating
// the implicit "icon" slot which every type carries but no module declares,
// and the dict-entry form "map_blob_attr/key" for a blob_dict attribute.
func slotDescriptor(desc *registry.TypeDescriptor, slotPath string) (maxBytes int64, err error) {
	if slotPath == "icon" {
		return DefaultMaxBlobSize, nil
	}
	name := slotPath
	if i := indexOfSlash(slotPath); i >= 0 {
		name = slotPath[:i]
	}
	ad, ok := desc.Attribute(name)
	if !ok {
		return 0, apierr.NotFoundf("blob slot %q", slotPath)
	}
	switch ad.Collection {
	case registry.CollectionBlob:
		if name != slotPath {
			return 0, apierr.Newf(apierr.BadRequest, "attribute %q is a single blob slot, not a map", name)
		}
	case registry.CollectionBlobDict:
		if name == slotPath {
			return 0, apierr.Newf(apierr.BadRequest, "attribute %q requires a map key", name)
		}
	default:
		return 0, apierr.Newf(apierr.BadRequest, "attribute %q is not a blob slot", name)
	}
	if ad.MaxBlobBytes > 0 {
		return ad.MaxBlobBytes, nil
	}
	return DefaultMaxBlobSize, nil
}

func indexOfSlash(s string) int {
	for i, c := range s {
		if c == '/' {
			return i
		}
	}
	return -1
}

// authorizeBlobWrite applies the same mutability rule a generic attribute
// patch would: full access while queued and private, admin-only once
// active, deactivated, or public (publishing freezes everything but
// admin edits).
func (e *Engine) authorizeBlobWrite(caller types.Caller, a *types.Artifact) error {
	return e.authorizeModify(caller, a)
}

// BeginBlobUpload reserves slotPath for an incoming upload and returns a
// lease the caller streams bytes against via FinalizeBlobUpload.
func (e *Engine) BeginBlobUpload(ctx context.Context, caller types.Caller, id, slotPath string) (*storage.BlobLease, int64, error) {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if err := e.authorizeBlobWrite(caller, a); err != nil {
		return nil, 0, err
	}
	desc, err := e.resolveType(a.TypeName)
	if err != nil {
		return nil, 0, err
	}
	maxBytes, err := slotDescriptor(desc, slotPath)
	if err != nil {
		return nil, 0, err
	}

	lease, err := e.gateway.BeginBlobUpload(ctx, id, slotPath, DefaultLeaseTTL)
	if err != nil {
		return nil, 0, err
	}
	return lease, maxBytes, nil
}

// FinalizeBlobUpload streams r through the blob backend under the lease's
// key, then commits the resulting size/checksum onto the artifact.
func (e *Engine) FinalizeBlobUpload(ctx context.Context, caller types.Caller, lease *storage.BlobLease, maxBytes int64, contentType string, r io.Reader) (*types.Artifact, error) {
	a, err := e.gateway.GetArtifact(ctx, lease.ArtifactID)
	if err != nil {
		_ = e.gateway.AbortBlobUpload(ctx, lease)
		return nil, err
	}
	key := blobstore.Key(a.Owner, lease.ArtifactID, lease.SlotPath)
	result, err := e.blobs.Put(key, r, maxBytes, contentType)
	if err != nil {
		_ = e.gateway.AbortBlobUpload(ctx, lease)
		return nil, err
	}

	updated, err := e.gateway.FinalizeBlobUpload(ctx, lease, storage.BlobMeta{
		Size:        result.Size,
		Checksum:    result.Checksum,
		ContentType: result.ContentType,
	})
	if err != nil {
		_ = e.blobs.Delete(key)
		return nil, err
	}
	e.emit(events.EventArtifactUpdated, caller, updated)
	return updated, nil
}

// AbortBlobUpload releases a lease without committing any bytes.
func (e *Engine) AbortBlobUpload(ctx context.Context, caller types.Caller, lease *storage.BlobLease) error {
	return e.gateway.AbortBlobUpload(ctx, lease)
}

// RegisterExternalBlob attaches a remote URL as a slot's content after
// probing it for size/content-type, skipping the lease/upload protocol.
func (e *Engine) RegisterExternalBlob(ctx context.Context, caller types.Caller, id, slotPath, url string) (*types.Artifact, error) {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeBlobWrite(caller, a); err != nil {
		return nil, err
	}
	desc, err := e.resolveType(a.TypeName)
	if err != nil {
		return nil, err
	}
	maxBytes, err := slotDescriptor(desc, slotPath)
	if err != nil {
		return nil, err
	}

	probe, err := blobstore.ProbeExternal(ctx, url, maxBytes)
	if err != nil {
		return nil, err
	}

	updated, err := e.gateway.RegisterExternalBlob(ctx, id, slotPath, storage.BlobMeta{
		Size:        probe.Size,
		Checksum:    probe.Checksum,
		ContentType: probe.ContentType,
		External:    true,
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.EventArtifactUpdated, caller, updated)
	return updated, nil
}

// DownloadBlob authorizes a read of the artifact and streams slotPath's
// bytes back. External slots are not proxied: a download of one fails
// with BadRequest, and no URL for it is stored or returned.
func (e *Engine) DownloadBlob(ctx context.Context, caller types.Caller, id, slotPath string) (io.ReadCloser, *types.BlobSlot, error) {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(caller, a, actionDownloadBlob); err != nil {
		return nil, nil, err
	}

	var slot *types.BlobSlot
	if slotPath == "icon" {
		slot = a.Icon
	} else {
		slot = a.Blobs[slotPath]
	}
	if slot == nil || slot.Status != types.BlobStatusActive {
		return nil, nil, apierr.NotFoundf("blob slot %q", slotPath)
	}
	if slot.External {
		return nil, slot, apierr.Newf(apierr.BadRequest, "blob slot %q is externally hosted", slotPath)
	}

	key := blobstore.Key(a.Owner, id, slotPath)
	rc, err := e.blobs.Get(key)
	if err != nil {
		return nil, nil, err
	}
	return rc, slot, nil
}
