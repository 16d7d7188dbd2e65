package lifecycle

import (
	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/types"
)

// relation classifies the caller's standing with respect to one
// artifact: whether they own it, hold the admin role, belong to a
// different tenant, or are unauthenticated.
type relation int

const (
	relationOwner relation = iota
	relationOtherTenant
	relationAdmin
	relationAnonymous
)

func relationOf(caller types.Caller, a *types.Artifact) relation {
	switch {
	case caller.Anonymous:
		return relationAnonymous
	case caller.IsAdmin():
		return relationAdmin
	case caller.TenantID == a.Owner:
		return relationOwner
	default:
		return relationOtherTenant
	}
}

// action identifies which row of the authorization matrix a request
// maps to, once visibility has already cleared the caller to see the
// record at all.
type action int

const (
	actionCreate action = iota
	actionActivate
	actionDeactivate
	actionPublish
	actionModify   // modify an active or deactivated record (mutable fields only), or a public one
	actionModifyQueued // modify while still queued and private — "Modify private (rules)"
	actionDeleteRecord
	actionDownloadBlob
)

// visible reports whether caller may perceive a's existence at all. A
// caller who cannot even read the record never learns whether it exists
// or is merely private to someone else — every such case returns
// NotFound, never Forbidden, so the error itself carries no signal.
//
// The one asymmetric case is the owner of their own deactivated
// artifact: the record is "theirs" but deactivation locks them out of
// it entirely, including plain reads, so that case is reported as
// Forbidden rather than NotFound — the owner already knows it exists.
func visible(caller types.Caller, a *types.Artifact) (bool, error) {
	if a.Status == types.StatusDeleted {
		return false, apierr.NotFoundf("artifact %s", a.ID)
	}

	if a.Status == types.StatusDeactivated {
		switch relationOf(caller, a) {
		case relationAdmin:
			return true, nil
		case relationOwner:
			return false, apierr.Forbiddenf("artifact %s is deactivated", a.ID)
		default:
			return false, apierr.NotFoundf("artifact %s", a.ID)
		}
	}

	if a.Visibility == types.VisibilityPublic {
		return true, nil
	}

	switch relationOf(caller, a) {
	case relationOwner, relationAdmin:
		return true, nil
	default:
		return false, apierr.NotFoundf("artifact %s", a.ID)
	}
}

// authorize checks that caller may perform action against a, having
// already confirmed (via visible) that they may perceive it.
func authorize(caller types.Caller, a *types.Artifact, act action) error {
	if ok, err := visible(caller, a); !ok {
		return err
	}
	rel := relationOf(caller, a)

	switch act {
	case actionCreate:
		if rel == relationAnonymous {
			return apierr.Forbiddenf("anonymous callers cannot create artifacts")
		}
		return nil

	case actionModifyQueued:
		if rel == relationOwner || rel == relationAdmin {
			return nil
		}
		return apierr.Forbiddenf("not permitted to modify artifact %s", a.ID)

	case actionActivate:
		if rel == relationOwner || rel == relationAdmin {
			return nil
		}
		return apierr.Forbiddenf("not permitted to activate artifact %s", a.ID)

	case actionDeactivate, actionPublish, actionModify:
		if rel == relationAdmin {
			return nil
		}
		return apierr.Forbiddenf("not permitted to modify artifact %s", a.ID)

	case actionDeleteRecord:
		if a.Visibility == types.VisibilityPublic {
			if rel == relationAdmin {
				return nil
			}
			return apierr.Forbiddenf("not permitted to delete artifact %s", a.ID)
		}
		if rel == relationOwner || rel == relationAdmin {
			return nil
		}
		return apierr.Forbiddenf("not permitted to delete artifact %s", a.ID)

	case actionDownloadBlob:
		// Fully determined by visibility: owner/admin/public-any may
		// read, deactivated is admin-only, both already enforced above.
		return nil
	}
	return apierr.Newf(apierr.Internal, "unhandled authorization action")
}

// CanRead is the shared visibility/authorization predicate invoked by
// both single-record reads and the query engine's listing path, so
// scoping logic exists in exactly one place.
func CanRead(caller types.Caller, a *types.Artifact) bool {
	ok, _ := visible(caller, a)
	return ok
}
