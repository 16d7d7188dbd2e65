// Package lifecycle implements the Lifecycle Engine: the hub that
// resolves an artifact's type, authorizes the caller, loads the current
// record, computes the proposed next record, validates it, commits it
// through the persistence gateway, and emits a notification — the one
// pipeline every mutating request in this module funnels through.
package lifecycle

import (
	"context"
	"time"

	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/blobstore"
	"github.com/cuemby/relic/pkg/events"
	"github.com/cuemby/relic/pkg/log"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/storage"
	"github.com/cuemby/relic/pkg/types"
	"github.com/cuemby/relic/pkg/validation"
	"github.com/google/uuid"
)

// DefaultLeaseTTL is how long a blob upload lease is held before
// ExpireBlobLeases reclaims it.
const DefaultLeaseTTL = 15 * time.Minute

// DefaultMaxBlobSize applies to slots that do not declare their own
// max_blob_size.
const DefaultMaxBlobSize int64 = 100 << 20

// Engine is the Lifecycle Engine. It holds everything a request needs:
// the type registry, the persistence gateway, the blob backend, and the
// notification broker.
type Engine struct {
	registry *registry.Registry
	gateway  storage.Gateway
	blobs    blobstore.Adapter
	broker   *events.Broker
	tenant   string // not read; blob keys use the artifact's owner (see blobstore.Key)
}

// New wires an Engine from its four collaborators.
func New(reg *registry.Registry, gw storage.Gateway, blobs blobstore.Adapter, broker *events.Broker) *Engine {
	return &Engine{registry: reg, gateway: gw, blobs: blobs, broker: broker}
}

// Gateway exposes the underlying persistence gateway for read-only
// callers outside this package, namely pkg/query's listing path, which
// needs the candidate-row set a single GetArtifact can't provide.
func (e *Engine) Gateway() storage.Gateway {
	return e.gateway
}

func (e *Engine) emit(evType events.EventType, caller types.Caller, a *types.Artifact) {
	log.WithArtifact(a.TypeName, a.ID).With().
		Str("component", "lifecycle").
		Str("event", string(evType)).
		Str("actor", caller.UserID).
		Logger().Info().Msg("artifact event")

	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		Type:       evType,
		ArtifactID: a.ID,
		TypeName:   a.TypeName,
		Owner:      a.Owner,
		Actor:      caller.UserID,
		Timestamp:  time.Now(),
		Snapshot:   snapshotOf(a),
	})
}

func snapshotOf(a *types.Artifact) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"type_name":  a.TypeName,
		"name":       a.Name,
		"version":    a.Version,
		"status":     string(a.Status),
		"visibility": string(a.Visibility),
	}
}

// resolveType looks up a type descriptor, translating an unknown type
// into the TypeNotFound failure mode of the registry's own contract.
func (e *Engine) resolveType(typeName string) (*registry.TypeDescriptor, error) {
	desc, ok := e.registry.GetType(typeName)
	if !ok {
		return nil, apierr.NotFoundf("artifact type %q", typeName)
	}
	return desc, nil
}

// NewArtifactInput is the shape of a create request's body, already
// decoded and shape-validated by the HTTP layer.
type NewArtifactInput struct {
	Name        string
	Version     string
	Description string
	Tags        []string
	Metadata    map[string]string
	Properties  map[string]types.AttributeValue
}

// CreateArtifact validates in against the named type's descriptor and
// persists a new record with status=queued, visibility=private, owned
// by the caller's tenant.
func (e *Engine) CreateArtifact(ctx context.Context, caller types.Caller, typeName string, in NewArtifactInput) (*types.Artifact, error) {
	if caller.Anonymous {
		return nil, apierr.Forbiddenf("anonymous callers cannot create artifacts")
	}

	desc, err := e.resolveType(typeName)
	if err != nil {
		return nil, err
	}

	props := make(map[string]types.AttributeValue)
	blobs := make(map[string]*types.BlobSlot)
	for _, ad := range desc.Attributes {
		if ad.System {
			if _, set := in.Properties[ad.Name]; set {
				return nil, apierr.Forbiddenf("attribute %q is system-managed and cannot be set by clients", ad.Name)
			}
			props[ad.Name] = defaultOf(ad)
			continue
		}
		switch ad.Collection {
		case registry.CollectionBlob:
			blobs[ad.Name] = &types.BlobSlot{}
		case registry.CollectionBlobDict:
			// map-of-blob starts empty; entries are created by blob upload.
		default:
			v, set := in.Properties[ad.Name]
			if !set {
				v = defaultOf(ad)
			}
			coerced, err := coerceForAttribute(ad, v)
			if err != nil {
				return nil, err
			}
			if !set && coerced.Kind == "" {
				// Left unset with no default: null until activation, where
				// required-on-activate attributes are checked.
				props[ad.Name] = coerced
				continue
			}
			if err := validation.ValidateAttribute(ad, coerced); err != nil {
				return nil, apierr.Wrap(err, apierr.BadRequest, "invalid attribute value")
			}
			props[ad.Name] = coerced
		}
	}
	for name := range in.Properties {
		if _, ok := desc.Attribute(name); !ok {
			return nil, apierr.Newf(apierr.BadRequest, "unknown attribute %q", name)
		}
	}

	now := time.Now()
	a := &types.Artifact{
		ID:          uuid.NewString(),
		TypeName:    typeName,
		Name:        in.Name,
		Version:     in.Version,
		Owner:       caller.TenantID,
		Visibility:  types.VisibilityPrivate,
		Status:      types.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
		Description: in.Description,
		Tags:        dedupTags(in.Tags),
		Metadata:    in.Metadata,
		Icon:        &types.BlobSlot{},
		Properties:  props,
		Blobs:       blobs,
	}
	if a.Metadata == nil {
		a.Metadata = map[string]string{}
	}

	if err := e.gateway.CreateArtifact(ctx, a); err != nil {
		return nil, err
	}
	e.emit(events.EventArtifactCreated, caller, a)
	return a, nil
}

func dedupTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func defaultOf(ad registry.AttributeDescriptor) types.AttributeValue {
	if ad.Default == nil {
		return types.AttributeValue{}
	}
	switch {
	case ad.Default.Str != nil:
		return types.AttributeValue{Kind: types.KindStr, S: *ad.Default.Str}
	case ad.Default.Int != nil:
		return types.AttributeValue{Kind: types.KindInt, I: *ad.Default.Int}
	case ad.Default.Float != nil:
		return types.AttributeValue{Kind: types.KindFloat, F: *ad.Default.Float}
	case ad.Default.Bool != nil:
		return types.AttributeValue{Kind: types.KindBool, B: *ad.Default.Bool}
	}
	return types.AttributeValue{}
}

func coerceForAttribute(ad registry.AttributeDescriptor, v types.AttributeValue) (types.AttributeValue, error) {
	switch ad.Collection {
	case registry.CollectionScalar:
		return validation.CoerceScalar(ad.Name, v, scalarAttributeKind(ad.ScalarKind))
	case registry.CollectionList:
		if v.Kind == "" {
			return v, nil
		}
		if v.Kind != types.KindList {
			return types.AttributeValue{}, apierr.Newf(apierr.BadRequest, "attribute %q expects a list", ad.Name)
		}
		out := make([]types.AttributeValue, len(v.List))
		for i, el := range v.List {
			c, err := validation.CoerceScalar(ad.Name, el, scalarAttributeKind(ad.ScalarKind))
			if err != nil {
				return types.AttributeValue{}, err
			}
			out[i] = c
		}
		return types.AttributeValue{Kind: types.KindList, List: out}, nil
	case registry.CollectionDict:
		if v.Kind == "" {
			return v, nil
		}
		if v.Kind != types.KindDict {
			return types.AttributeValue{}, apierr.Newf(apierr.BadRequest, "attribute %q expects a map", ad.Name)
		}
		out := make(map[string]types.AttributeValue, len(v.Dict))
		for k, el := range v.Dict {
			c, err := validation.CoerceScalar(ad.Name, el, scalarAttributeKind(ad.ScalarKind))
			if err != nil {
				return types.AttributeValue{}, err
			}
			out[k] = c
		}
		return types.AttributeValue{Kind: types.KindDict, Dict: out}, nil
	}
	return v, nil
}

func scalarAttributeKind(k registry.ScalarKind) types.AttributeKind {
	switch k {
	case registry.ScalarBool:
		return types.KindBool
	case registry.ScalarInt:
		return types.KindInt
	case registry.ScalarFloat:
		return types.KindFloat
	default:
		return types.KindStr
	}
}

// GetArtifact loads an artifact and applies the shared visibility
// predicate; an artifact the caller cannot perceive is reported as
// NotFound, never Forbidden, except for an owner's own deactivated
// record (see authorize.go).
func (e *Engine) GetArtifact(ctx context.Context, caller types.Caller, id string) (*types.Artifact, error) {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok, err := visible(caller, a); !ok {
		return nil, err
	}
	return a, nil
}

// DeleteArtifact authorizes and performs a delete. The gateway handles
// moving active blob slots to pending_delete and freeing uniqueness
// index entries.
func (e *Engine) DeleteArtifact(ctx context.Context, caller types.Caller, id string) error {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(caller, a, actionDeleteRecord); err != nil {
		return err
	}
	if err := e.gateway.DeleteArtifact(ctx, id); err != nil {
		return err
	}
	e.emit(events.EventArtifactDeleted, caller, a)
	return nil
}

// ReplaceTags authorizes the caller as for a generic modify and swaps
// the full tag set atomically.
func (e *Engine) ReplaceTags(ctx context.Context, caller types.Caller, id string, tags []string) (*types.Artifact, error) {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeModify(caller, a); err != nil {
		return nil, err
	}
	maxTagLen := 255
	for _, t := range tags {
		if len(t) > maxTagLen {
			return nil, apierr.Newf(apierr.BadRequest, "tag %q exceeds maximum length %d", t, maxTagLen)
		}
	}
	updated, err := e.gateway.ReplaceTags(ctx, id, dedupTags(tags))
	if err != nil {
		return nil, err
	}
	e.emit(events.EventArtifactUpdated, caller, updated)
	return updated, nil
}

// DeleteTags clears the tag set.
func (e *Engine) DeleteTags(ctx context.Context, caller types.Caller, id string) (*types.Artifact, error) {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeModify(caller, a); err != nil {
		return nil, err
	}
	updated, err := e.gateway.DeleteTags(ctx, id)
	if err != nil {
		return nil, err
	}
	e.emit(events.EventArtifactUpdated, caller, updated)
	return updated, nil
}

// authorizeModify picks the right matrix row for a generic mutation
// (tags, attribute patch) based on the artifact's current state.
func (e *Engine) authorizeModify(caller types.Caller, a *types.Artifact) error {
	if a.Status == types.StatusQueued && a.Visibility == types.VisibilityPrivate {
		return authorize(caller, a, actionModifyQueued)
	}
	return authorize(caller, a, actionModify)
}
