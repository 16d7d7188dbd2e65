package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketArtifacts   = []byte("artifacts")
	bucketByType      = []byte("artifacts_by_type")
	bucketOwnerIndex  = []byte("idx_owner_name_version")
	bucketPublicIndex = []byte("idx_public_name_version")
	bucketBlobLeases  = []byte("blob_leases")
)

const sep = "\x00"

// BoltStore implements Gateway using an embedded bbolt database. Every
// exported method runs inside a single db.Update or db.View transaction,
// so callers never observe a partially applied mutation.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the artifact database under
// dataDir and ensures every bucket this package uses exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "relic.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, apierr.Wrap(err, apierr.Internal, "open artifact database")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketArtifacts,
			bucketByType,
			bucketOwnerIndex,
			bucketPublicIndex,
			bucketBlobLeases,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, apierr.Wrap(err, apierr.Internal, "initialize artifact database")
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func ownerKey(typeName, name, version, owner string) []byte {
	return []byte(strings.Join([]string{typeName, name, version, owner}, sep))
}

func publicKey(typeName, name, version string) []byte {
	return []byte(strings.Join([]string{typeName, name, version}, sep))
}

func byTypeKey(typeName, id string) []byte {
	return []byte(typeName + sep + id)
}

func decodeArtifact(data []byte) (*types.Artifact, error) {
	var a types.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, apierr.Wrap(err, apierr.Internal, "decode artifact record")
	}
	return &a, nil
}

func encodeArtifact(a *types.Artifact) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, apierr.Wrap(err, apierr.Internal, "encode artifact record")
	}
	return data, nil
}

func (s *BoltStore) CreateArtifact(ctx context.Context, a *types.Artifact) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ownerIdx := tx.Bucket(bucketOwnerIndex)
		key := ownerKey(a.TypeName, a.Name, a.Version, a.Owner)
		if ownerIdx.Get(key) != nil {
			return apierr.Conflictf("artifact %s/%s@%s already exists for this owner", a.TypeName, a.Name, a.Version)
		}

		if a.Visibility == types.VisibilityPublic {
			pubIdx := tx.Bucket(bucketPublicIndex)
			pkey := publicKey(a.TypeName, a.Name, a.Version)
			if existing := pubIdx.Get(pkey); existing != nil && string(existing) != a.ID {
				return apierr.Conflictf("public artifact %s/%s@%s already exists", a.TypeName, a.Name, a.Version)
			}
			if err := pubIdx.Put(pkey, []byte(a.ID)); err != nil {
				return apierr.Wrap(err, apierr.Internal, "index public artifact")
			}
		}

		data, err := encodeArtifact(a)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketArtifacts).Put([]byte(a.ID), data); err != nil {
			return apierr.Wrap(err, apierr.Internal, "store artifact")
		}
		if err := ownerIdx.Put(key, []byte(a.ID)); err != nil {
			return apierr.Wrap(err, apierr.Internal, "index artifact")
		}
		if err := tx.Bucket(bucketByType).Put(byTypeKey(a.TypeName, a.ID), []byte(a.ID)); err != nil {
			return apierr.Wrap(err, apierr.Internal, "index artifact by type")
		}
		return nil
	})
}

func (s *BoltStore) GetArtifact(ctx context.Context, id string) (*types.Artifact, error) {
	var a *types.Artifact
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketArtifacts).Get([]byte(id))
		if data == nil {
			return apierr.NotFoundf("artifact %s", id)
		}
		decoded, err := decodeArtifact(data)
		if err != nil {
			return err
		}
		a = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// reindexOnChange applies the uniqueness-index side effects of a status
// or visibility transition: deletion frees both index entries; a fresh
// private-to-public transition claims the public index slot.
func reindexOnChange(tx *bolt.Tx, before, after *types.Artifact) error {
	if after.Status == types.StatusDeleted && before.Status != types.StatusDeleted {
		tx.Bucket(bucketOwnerIndex).Delete(ownerKey(after.TypeName, after.Name, after.Version, after.Owner))
		pubIdx := tx.Bucket(bucketPublicIndex)
		pkey := publicKey(after.TypeName, after.Name, after.Version)
		if string(pubIdx.Get(pkey)) == after.ID {
			pubIdx.Delete(pkey)
		}
		return nil
	}
	if after.Visibility == types.VisibilityPublic && before.Visibility != types.VisibilityPublic {
		pubIdx := tx.Bucket(bucketPublicIndex)
		pkey := publicKey(after.TypeName, after.Name, after.Version)
		if existing := pubIdx.Get(pkey); existing != nil && string(existing) != after.ID {
			return apierr.Conflictf("public artifact %s/%s@%s already exists", after.TypeName, after.Name, after.Version)
		}
		if err := pubIdx.Put(pkey, []byte(after.ID)); err != nil {
			return apierr.Wrap(err, apierr.Internal, "index public artifact")
		}
	}
	return nil
}

func (s *BoltStore) UpdateArtifact(ctx context.Context, id string, prevVersion uint64, mutate func(*types.Artifact) error) (*types.Artifact, error) {
	var result *types.Artifact
	err := s.db.Update(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketArtifacts)
		data := ab.Get([]byte(id))
		if data == nil {
			return apierr.NotFoundf("artifact %s", id)
		}
		current, err := decodeArtifact(data)
		if err != nil {
			return err
		}
		if current.RowVersion != prevVersion {
			return apierr.Conflictf("artifact %s was modified concurrently", id).WithDetails("stale_write")
		}

		before := *current
		if err := mutate(current); err != nil {
			return err
		}
		current.RowVersion = prevVersion + 1

		if err := reindexOnChange(tx, &before, current); err != nil {
			return err
		}

		newData, err := encodeArtifact(current)
		if err != nil {
			return err
		}
		if err := ab.Put([]byte(id), newData); err != nil {
			return apierr.Wrap(err, apierr.Internal, "store artifact")
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltStore) DeleteArtifact(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketArtifacts)
		data := ab.Get([]byte(id))
		if data == nil {
			return apierr.NotFoundf("artifact %s", id)
		}
		a, err := decodeArtifact(data)
		if err != nil {
			return err
		}
		before := *a

		a.Status = types.StatusDeleted
		if a.Icon != nil && a.Icon.Status == types.BlobStatusActive {
			a.Icon.Status = types.BlobStatusPendingDelete
		}
		for _, slot := range a.Blobs {
			if slot.Status == types.BlobStatusActive {
				slot.Status = types.BlobStatusPendingDelete
			}
		}
		a.RowVersion++

		if err := reindexOnChange(tx, &before, a); err != nil {
			return err
		}

		newData, err := encodeArtifact(a)
		if err != nil {
			return err
		}
		return ab.Put([]byte(id), newData)
	})
}

func (s *BoltStore) ListArtifacts(ctx context.Context, typeName string) ([]*types.Artifact, error) {
	var out []*types.Artifact
	err := s.db.View(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketArtifacts)
		c := tx.Bucket(bucketByType).Cursor()
		prefix := []byte(typeName + sep)
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			data := ab.Get(v)
			if data == nil {
				continue
			}
			a, err := decodeArtifact(data)
			if err != nil {
				return err
			}
			if a.Status != types.StatusDeleted {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func resolveSlot(a *types.Artifact, path string) (*types.BlobSlot, bool) {
	if path == "icon" {
		if a.Icon == nil {
			return nil, false
		}
		return a.Icon, true
	}
	slot, ok := a.Blobs[path]
	if !ok && strings.Contains(path, "/") {
		// A blob-map entry ("attr/key") is created on first use.
		if a.Blobs == nil {
			a.Blobs = make(map[string]*types.BlobSlot)
		}
		slot = &types.BlobSlot{}
		a.Blobs[path] = slot
		ok = true
	}
	return slot, ok
}

func newLeaseToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", apierr.Wrap(err, apierr.Internal, "generate blob lease token")
	}
	return hex.EncodeToString(buf), nil
}

func (s *BoltStore) BeginBlobUpload(ctx context.Context, artifactID, slotPath string, ttl time.Duration) (*BlobLease, error) {
	var lease *BlobLease
	err := s.db.Update(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketArtifacts)
		data := ab.Get([]byte(artifactID))
		if data == nil {
			return apierr.NotFoundf("artifact %s", artifactID)
		}
		a, err := decodeArtifact(data)
		if err != nil {
			return err
		}
		slot, ok := resolveSlot(a, slotPath)
		if !ok {
			return apierr.BadRequestf("unknown blob slot %q", slotPath)
		}
		if slot.Status == types.BlobStatusSaving || slot.Status == types.BlobStatusActive {
			return apierr.Conflictf("blob slot %q is busy", slotPath).WithDetails("slot_busy")
		}

		token, err := newLeaseToken()
		if err != nil {
			return err
		}
		deadline := time.Now().Add(ttl)
		slot.Status = types.BlobStatusSaving

		newData, err := encodeArtifact(a)
		if err != nil {
			return err
		}
		if err := ab.Put([]byte(artifactID), newData); err != nil {
			return apierr.Wrap(err, apierr.Internal, "store artifact")
		}

		l := &BlobLease{Token: token, ArtifactID: artifactID, SlotPath: slotPath, Deadline: deadline}
		leaseData, err := json.Marshal(l)
		if err != nil {
			return apierr.Wrap(err, apierr.Internal, "encode blob lease")
		}
		if err := tx.Bucket(bucketBlobLeases).Put([]byte(token), leaseData); err != nil {
			return apierr.Wrap(err, apierr.Internal, "store blob lease")
		}
		lease = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func (s *BoltStore) loadLease(tx *bolt.Tx, token string) (*BlobLease, error) {
	data := tx.Bucket(bucketBlobLeases).Get([]byte(token))
	if data == nil {
		return nil, apierr.NotFoundf("blob lease %s", token).WithDetails("expired_or_unknown")
	}
	var l BlobLease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, apierr.Wrap(err, apierr.Internal, "decode blob lease")
	}
	return &l, nil
}

func (s *BoltStore) FinalizeBlobUpload(ctx context.Context, lease *BlobLease, meta BlobMeta) (*types.Artifact, error) {
	var result *types.Artifact
	err := s.db.Update(func(tx *bolt.Tx) error {
		l, err := s.loadLease(tx, lease.Token)
		if err != nil {
			return err
		}
		if time.Now().After(l.Deadline) {
			return apierr.NotFoundf("blob lease %s", lease.Token).WithDetails("expired_or_unknown")
		}
		ab := tx.Bucket(bucketArtifacts)
		data := ab.Get([]byte(l.ArtifactID))
		if data == nil {
			return apierr.NotFoundf("artifact %s", l.ArtifactID)
		}
		a, err := decodeArtifact(data)
		if err != nil {
			return err
		}
		slot, ok := resolveSlot(a, l.SlotPath)
		if !ok {
			return apierr.BadRequestf("unknown blob slot %q", l.SlotPath)
		}
		size := meta.Size
		slot.Size = &size
		slot.Checksum = meta.Checksum
		slot.ContentType = meta.ContentType
		slot.External = meta.External
		slot.Status = types.BlobStatusActive

		newData, err := encodeArtifact(a)
		if err != nil {
			return err
		}
		if err := ab.Put([]byte(l.ArtifactID), newData); err != nil {
			return apierr.Wrap(err, apierr.Internal, "store artifact")
		}
		if err := tx.Bucket(bucketBlobLeases).Delete([]byte(lease.Token)); err != nil {
			return apierr.Wrap(err, apierr.Internal, "release blob lease")
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltStore) AbortBlobUpload(ctx context.Context, lease *BlobLease) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		l, err := s.loadLease(tx, lease.Token)
		if err != nil {
			return err
		}
		ab := tx.Bucket(bucketArtifacts)
		data := ab.Get([]byte(l.ArtifactID))
		if data != nil {
			a, err := decodeArtifact(data)
			if err != nil {
				return err
			}
			if slot, ok := resolveSlot(a, l.SlotPath); ok {
				slot.Status = ""
				slot.Size = nil
				slot.Checksum = ""
				slot.ContentType = ""
				slot.External = false
				newData, err := encodeArtifact(a)
				if err != nil {
					return err
				}
				if err := ab.Put([]byte(l.ArtifactID), newData); err != nil {
					return apierr.Wrap(err, apierr.Internal, "store artifact")
				}
			}
		}
		return tx.Bucket(bucketBlobLeases).Delete([]byte(lease.Token))
	})
}

func (s *BoltStore) RegisterExternalBlob(ctx context.Context, artifactID, slotPath string, meta BlobMeta) (*types.Artifact, error) {
	var result *types.Artifact
	err := s.db.Update(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketArtifacts)
		data := ab.Get([]byte(artifactID))
		if data == nil {
			return apierr.NotFoundf("artifact %s", artifactID)
		}
		a, err := decodeArtifact(data)
		if err != nil {
			return err
		}
		slot, ok := resolveSlot(a, slotPath)
		if !ok {
			return apierr.BadRequestf("unknown blob slot %q", slotPath)
		}
		if slot.Status == types.BlobStatusSaving || slot.Status == types.BlobStatusActive {
			return apierr.Conflictf("blob slot %q is busy", slotPath).WithDetails("slot_busy")
		}
		size := meta.Size
		slot.Size = &size
		slot.Checksum = meta.Checksum
		slot.ContentType = meta.ContentType
		slot.External = true
		slot.Status = types.BlobStatusActive

		newData, err := encodeArtifact(a)
		if err != nil {
			return err
		}
		if err := ab.Put([]byte(artifactID), newData); err != nil {
			return apierr.Wrap(err, apierr.Internal, "store artifact")
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltStore) ReplaceTags(ctx context.Context, artifactID string, tags []string) (*types.Artifact, error) {
	return s.replaceTags(ctx, artifactID, tags)
}

func (s *BoltStore) DeleteTags(ctx context.Context, artifactID string) (*types.Artifact, error) {
	return s.replaceTags(ctx, artifactID, nil)
}

func (s *BoltStore) replaceTags(ctx context.Context, artifactID string, tags []string) (*types.Artifact, error) {
	var result *types.Artifact
	err := s.db.Update(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketArtifacts)
		data := ab.Get([]byte(artifactID))
		if data == nil {
			return apierr.NotFoundf("artifact %s", artifactID)
		}
		a, err := decodeArtifact(data)
		if err != nil {
			return err
		}
		a.Tags = tags
		a.RowVersion++
		newData, err := encodeArtifact(a)
		if err != nil {
			return err
		}
		if err := ab.Put([]byte(artifactID), newData); err != nil {
			return apierr.Wrap(err, apierr.Internal, "store artifact")
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltStore) ExpireBlobLeases(ctx context.Context) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		lb := tx.Bucket(bucketBlobLeases)
		ab := tx.Bucket(bucketArtifacts)
		now := time.Now()

		c := lb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var l BlobLease
			if err := json.Unmarshal(v, &l); err != nil {
				continue
			}
			if now.After(l.Deadline) {
				data := ab.Get([]byte(l.ArtifactID))
				if data != nil {
					a, err := decodeArtifact(data)
					if err == nil {
						if slot, ok := resolveSlot(a, l.SlotPath); ok && slot.Status == types.BlobStatusSaving {
							slot.Status = ""
							slot.Size = nil
							slot.Checksum = ""
							slot.ContentType = ""
							if newData, encErr := encodeArtifact(a); encErr == nil {
								ab.Put([]byte(l.ArtifactID), newData)
							}
						}
					}
				}
				c.Delete()
				count++
			}
		}
		return nil
	})
	return count, err
}
