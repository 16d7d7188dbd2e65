package types

import (
	"time"
)

// Artifact is a versioned, typed record with metadata and zero or more
// blob payloads. Intrinsic fields are managed by the lifecycle engine;
// Properties and Blobs hold the attributes declared by the artifact's
// type descriptor.
type Artifact struct {
	ID          string
	TypeName    string
	Name        string
	Version     string // SemVer-ish; immutable after first activation
	Owner       string // tenant id
	Visibility  Visibility
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ActivatedAt *time.Time
	Description string
	Tags        []string
	Metadata    map[string]string
	Icon        *BlobSlot

	// Properties holds every custom, type-declared scalar/list/map
	// attribute by name. Blob and blob-map attributes live in Blobs
	// instead, keyed by slot path.
	Properties map[string]AttributeValue
	Blobs      map[string]*BlobSlot

	// RowVersion is the optimistic-concurrency token. It is bumped on
	// every successful UpdateArtifact and has no relation to the
	// artifact's own SemVer Version attribute.
	RowVersion uint64
}

// Visibility controls who can discover an artifact outside its owner.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Status is the lifecycle state of an artifact.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusActive      Status = "active"
	StatusDeactivated Status = "deactivated"
	StatusDeleted     Status = "deleted"
)

// BlobStatus is the state of a single blob slot.
type BlobStatus string

const (
	BlobStatusSaving       BlobStatus = "saving"
	BlobStatusActive       BlobStatus = "active"
	BlobStatusPendingDelete BlobStatus = "pending_delete"
)

// BlobSlot is a named attachment point on an artifact. Size and Checksum
// are non-nil exactly when Status is BlobStatusActive.
// leaseToken/leaseDeadline are in-memory lease fields reachable only
// through the methods below and are never serialized; pkg/storage keeps
// upload leases in its own blob_leases bucket instead.
type BlobSlot struct {
	Size        *int64
	Checksum    string
	ContentType string
	Status      BlobStatus
	External    bool

	leaseToken    string
	leaseDeadline time.Time
}

// LeaseToken returns the slot's current upload lease token, if any.
func (b *BlobSlot) LeaseToken() string { return b.leaseToken }

// LeaseDeadline returns the deadline of the slot's current lease.
func (b *BlobSlot) LeaseDeadline() time.Time { return b.leaseDeadline }

// SetLease installs an upload lease on the slot, transitioning it to
// BlobStatusSaving. Call ClearLease on abort.
func (b *BlobSlot) SetLease(token string, deadline time.Time) {
	b.leaseToken = token
	b.leaseDeadline = deadline
	b.Status = BlobStatusSaving
}

// ClearLease releases the slot's lease and returns it to the "absent"
// state (no size/checksum, empty status).
func (b *BlobSlot) ClearLease() {
	b.leaseToken = ""
	b.leaseDeadline = time.Time{}
	b.Size = nil
	b.Checksum = ""
	b.ContentType = ""
	b.Status = ""
}

// AttributeKind tags the shape of a custom attribute's value.
type AttributeKind string

const (
	KindBool AttributeKind = "bool"
	KindInt  AttributeKind = "int"
	KindFloat AttributeKind = "float"
	KindStr  AttributeKind = "string"
	KindList AttributeKind = "list"
	KindDict AttributeKind = "dict"
)

// AttributeValue is a tagged union over the scalar/list/map value shapes
// a custom attribute can hold. Exactly one of the typed fields is
// meaningful, selected by Kind; a nil *AttributeValue (or a value with
// Kind == "") represents a null/absent attribute.
type AttributeValue struct {
	Kind AttributeKind
	B    bool
	I    int64
	F    float64
	S    string
	List []AttributeValue
	Dict map[string]AttributeValue
}

// Caller describes the identity that is performing a request, derived
// from inbound identity headers (see internal/identity).
type Caller struct {
	TenantID  string
	UserID    string
	Roles     []string
	Anonymous bool
}

// IsAdmin reports whether the caller carries the admin role.
func (c Caller) IsAdmin() bool {
	for _, r := range c.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}
