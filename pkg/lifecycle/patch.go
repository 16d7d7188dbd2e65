package lifecycle

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/events"
	"github.com/cuemby/relic/pkg/metrics"
	"github.com/cuemby/relic/pkg/patch"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/types"
)

// ApplyPatch applies an RFC 6902 JSON Patch document to an artifact.
// A status or visibility change must be the only operation in the
// document; mixing either with any other op, or with each other, is a
// BadRequest. Every other op is routed through pkg/patch against the
// artifact's custom attributes.
func (e *Engine) ApplyPatch(ctx context.Context, caller types.Caller, id string, raw []byte) (*types.Artifact, error) {
	ops, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, apierr.Wrap(err, apierr.BadRequest, "malformed JSON patch document")
	}
	if len(ops) == 0 {
		return nil, apierr.Newf(apierr.BadRequest, "patch document contains no operations")
	}

	var statusOp, visibilityOp *jsonOp
	for _, op := range ops {
		path, err := op.Path()
		if err != nil {
			return nil, apierr.Wrap(err, apierr.BadRequest, "patch operation missing path")
		}
		switch path {
		case "/status":
			statusOp = toJSONOp(op)
		case "/visibility":
			visibilityOp = toJSONOp(op)
		}
	}

	switch {
	case statusOp != nil && (visibilityOp != nil || len(ops) > 1):
		return nil, apierr.Newf(apierr.BadRequest, "a status change must be the only operation in the patch")
	case visibilityOp != nil && len(ops) > 1:
		return nil, apierr.Newf(apierr.BadRequest, "a visibility change must be the only operation in the patch")
	}

	if statusOp != nil {
		var status types.Status
		if err := json.Unmarshal(*statusOp.Value, &status); err != nil {
			return nil, apierr.Wrap(err, apierr.BadRequest, "invalid status value")
		}
		return e.SetStatus(ctx, caller, id, status)
	}
	if visibilityOp != nil {
		var vis types.Visibility
		if err := json.Unmarshal(*visibilityOp.Value, &vis); err != nil {
			return nil, apierr.Wrap(err, apierr.BadRequest, "invalid visibility value")
		}
		return e.SetVisibility(ctx, caller, id, vis)
	}

	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeModify(caller, a); err != nil {
		return nil, err
	}
	desc, err := e.resolveType(a.TypeName)
	if err != nil {
		return nil, err
	}

	updated, err := e.gateway.UpdateArtifact(ctx, id, a.RowVersion, func(cur *types.Artifact) error {
		return patch.Apply(desc, cur, raw, patch.MutabilityOf(a.Status))
	})
	if err != nil {
		metrics.PatchOperationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.PatchOperationsTotal.WithLabelValues("applied").Inc()
	e.emit(events.EventArtifactUpdated, caller, updated)
	return updated, nil
}

// jsonOp is the minimal shape this package needs out of a decoded patch
// operation, decoupled from the jsonpatch.Operation method set.
type jsonOp struct {
	Kind  string
	Value *json.RawMessage
}

func toJSONOp(op jsonpatch.Operation) *jsonOp {
	v, _ := op.Value()
	return &jsonOp{Kind: op.Kind(), Value: v}
}

// SetStatus drives the queued/active/deactivated/deleted state machine.
// Re-applying the current status is a no-op. Status changes never flow
// through pkg/patch; they have their own authorization rows and their
// own side effects (required-on-activate checks, ActivatedAt stamping).
func (e *Engine) SetStatus(ctx context.Context, caller types.Caller, id string, target types.Status) (*types.Artifact, error) {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok, verr := visible(caller, a); !ok {
		return nil, verr
	}
	if target == a.Status {
		return a, nil
	}

	var act action
	var evType events.EventType
	switch {
	case a.Status == types.StatusQueued && target == types.StatusActive:
		act, evType = actionActivate, events.EventArtifactActivated
	case a.Status == types.StatusActive && target == types.StatusDeactivated:
		act, evType = actionDeactivate, events.EventArtifactDeactivated
	case a.Status == types.StatusDeactivated && target == types.StatusActive:
		act, evType = actionActivate, events.EventArtifactActivated
	default:
		return nil, apierr.Newf(apierr.BadRequest, "cannot transition artifact from %s to %s", a.Status, target)
	}

	if err := authorize(caller, a, act); err != nil {
		return nil, err
	}

	desc, err := e.resolveType(a.TypeName)
	if err != nil {
		return nil, err
	}
	if target == types.StatusActive && a.ActivatedAt == nil {
		if err := checkRequiredOnActivate(desc, a); err != nil {
			return nil, err
		}
	}

	updated, err := e.gateway.UpdateArtifact(ctx, id, a.RowVersion, func(cur *types.Artifact) error {
		cur.Status = target
		if target == types.StatusActive && cur.ActivatedAt == nil {
			now := time.Now()
			cur.ActivatedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(evType, caller, updated)
	return updated, nil
}

func checkRequiredOnActivate(desc *registry.TypeDescriptor, a *types.Artifact) error {
	for _, ad := range desc.Attributes {
		if !ad.RequiredOnActivate {
			continue
		}
		switch ad.Collection {
		case registry.CollectionBlob:
			slot := a.Blobs[ad.Name]
			if slot == nil || slot.Status != types.BlobStatusActive {
				return apierr.Newf(apierr.BadRequest, "attribute %q must have an active blob before activation", ad.Name)
			}
		case registry.CollectionBlobDict:
			found := false
			for path, slot := range a.Blobs {
				if strings.HasPrefix(path, ad.Name+"/") && slot.Status == types.BlobStatusActive {
					found = true
					break
				}
			}
			if !found {
				return apierr.Newf(apierr.BadRequest, "attribute %q must have at least one active blob before activation", ad.Name)
			}
		default:
			v, ok := a.Properties[ad.Name]
			if !ok || v.Kind == "" {
				return apierr.Newf(apierr.BadRequest, "attribute %q is required before activation", ad.Name)
			}
		}
	}
	return nil
}

// SetVisibility implements the one-way private-to-public transition.
// Invariant 5: only permitted while the artifact is active.
func (e *Engine) SetVisibility(ctx context.Context, caller types.Caller, id string, target types.Visibility) (*types.Artifact, error) {
	a, err := e.gateway.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok, verr := visible(caller, a); !ok {
		return nil, verr
	}
	if target == a.Visibility {
		return a, nil
	}
	if target == types.VisibilityPrivate {
		return nil, apierr.Newf(apierr.BadRequest, "visibility cannot move from public back to private")
	}
	if a.Status != types.StatusActive {
		return nil, apierr.Newf(apierr.BadRequest, "visibility can only change to public while the artifact is active")
	}
	if err := authorize(caller, a, actionPublish); err != nil {
		return nil, err
	}

	updated, err := e.gateway.UpdateArtifact(ctx, id, a.RowVersion, func(cur *types.Artifact) error {
		cur.Visibility = types.VisibilityPublic
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.EventArtifactPublished, caller, updated)
	return updated, nil
}
