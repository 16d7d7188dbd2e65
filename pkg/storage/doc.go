/*
Package storage implements the Persistence Gateway: transactional CRUD
over artifacts, their typed properties, blob slots, and tags, backed by
an embedded bbolt database.

# Architecture

	┌────────────────── PERSISTENCE GATEWAY ───────────────────┐
	│                                                            │
	│  artifacts            id -> json(Artifact)                │
	│  artifacts_by_type    type\x00id -> id     (prefix scan)  │
	│  idx_owner_name_version  type\x00name\x00version\x00owner │
	│                          -> id              (invariant 1) │
	│  idx_public_name_version type\x00name\x00version -> id    │
	│                          (invariant 1, public half)       │
	│  blob_leases          token -> json(BlobLease)             │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Core Components

BoltStore:
  - Implements the Gateway interface declared in store.go.
  - Every exported method runs inside exactly one db.Update or db.View
    transaction; nothing is ever partially applied.
  - Uniqueness (invariant 1) is enforced by two index buckets rather
    than a database unique constraint, since bbolt has none: one keyed
    by (type, name, version, owner) that every non-deleted artifact
    occupies, and one keyed by (type, name, version) that only a
    public, non-deleted artifact occupies. Deleting an artifact frees
    both entries so the tuple can be reused.

Blob leases:
  - BeginBlobUpload generates a random 32-byte token (crypto/rand) and
    records {token -> artifact, slot, deadline} in blob_leases,
    independently of the artifact record itself, because the artifact's
    BlobSlot does not serialize its lease token (see pkg/types) — a
    lease must survive being looked up by a request that never saw the
    in-memory slot that created it.
  - ExpireBlobLeases is invoked periodically (by the serve command in
    cmd/relic) to release leases whose deadline has passed, returning
    the slot to absent.

# Concurrency

UpdateArtifact implements the optimistic-concurrency contract: it loads
the current record, compares its RowVersion against the caller-supplied
prevVersion, and fails the whole transaction before any write if they
differ. Two concurrent callers racing on the same artifact will see
exactly one succeed; the loser's transaction never touches disk.

# Non-goals

This package does not know about artifact types, validators, or the
authorization matrix — it stores whatever types.Artifact it is given
and enforces only the two invariants expressible purely in terms of
identity (uniqueness) and a version counter (optimistic concurrency).
Visibility and lifecycle authorization are enforced by pkg/lifecycle.
*/
package storage
