package storage

import (
	"context"
	"time"

	"github.com/cuemby/relic/pkg/types"
)

// BlobMeta carries the result of a completed upload or external probe,
// ready to be written onto a blob slot.
type BlobMeta struct {
	Size        int64
	Checksum    string
	ContentType string
	External    bool
}

// BlobLease is a transient server-side reservation of a blob slot while
// bytes are being uploaded. The token is opaque to callers outside this
// package.
type BlobLease struct {
	Token      string
	ArtifactID string
	SlotPath   string
	Deadline   time.Time
}

// Gateway is the transactional persistence boundary for artifacts,
// their typed properties, blob slots, and tags. Every method commits
// (or fully rolls back) in a single underlying transaction; partial
// writes are never observable.
type Gateway interface {
	// CreateArtifact inserts a new record. Fails with a Conflict-typed
	// error if (type, name, version, owner) is already taken by a
	// non-deleted artifact.
	CreateArtifact(ctx context.Context, a *types.Artifact) error

	// GetArtifact loads a record by id with no authorization applied;
	// callers are responsible for visibility/authorization decisions.
	// Fails with a NotFound-typed error if absent.
	GetArtifact(ctx context.Context, id string) (*types.Artifact, error)

	// UpdateArtifact loads the current record, checks prevVersion
	// against the stored RowVersion, applies mutate, enforces the
	// uniqueness invariants implied by the result, and persists.
	// Fails with a Conflict-typed error (stale write or uniqueness)
	// or a NotFound-typed error.
	UpdateArtifact(ctx context.Context, id string, prevVersion uint64, mutate func(*types.Artifact) error) (*types.Artifact, error)

	// DeleteArtifact transitions status to deleted, moves any active
	// blob slot to pending_delete, and frees the artifact's uniqueness
	// index entries so the (type, name, version) tuple can be reused.
	DeleteArtifact(ctx context.Context, id string) error

	// ListArtifacts returns every non-deleted record of the given
	// type. Callers apply filtering, sorting, pagination, and
	// visibility scoping on top of this candidate set.
	ListArtifacts(ctx context.Context, typeName string) ([]*types.Artifact, error)

	// BeginBlobUpload atomically transitions a slot from absent to
	// saving and returns a lease token. Fails with a Conflict-typed
	// error (SlotBusy) if the slot is already saving or active.
	BeginBlobUpload(ctx context.Context, artifactID, slotPath string, ttl time.Duration) (*BlobLease, error)

	// FinalizeBlobUpload transitions a leased slot from saving to
	// active, recording size/checksum/content-type, and releases the
	// lease. Fails with a NotFound-typed error if the lease is unknown
	// or expired.
	FinalizeBlobUpload(ctx context.Context, lease *BlobLease, meta BlobMeta) (*types.Artifact, error)

	// AbortBlobUpload releases a lease and returns the slot to absent,
	// discarding any partial bytes already recorded.
	AbortBlobUpload(ctx context.Context, lease *BlobLease) error

	// RegisterExternalBlob attaches an externally-hosted blob directly
	// to active, without going through the lease protocol. Fails with
	// a Conflict-typed error if the slot is saving or already active.
	RegisterExternalBlob(ctx context.Context, artifactID, slotPath string, meta BlobMeta) (*types.Artifact, error)

	// ReplaceTags atomically swaps the full tag set in one transaction.
	ReplaceTags(ctx context.Context, artifactID string, tags []string) (*types.Artifact, error)

	// DeleteTags clears the tag set.
	DeleteTags(ctx context.Context, artifactID string) (*types.Artifact, error)

	// ExpireBlobLeases aborts every lease whose deadline has passed,
	// returning their slots to absent. Intended to be called
	// periodically by a background sweep.
	ExpireBlobLeases(ctx context.Context) (int, error)

	Close() error
}
