// Package identity resolves the inbound identity headers set by the
// authenticating proxy in front of this service into a types.Caller.
// Token parsing and issuance are out of scope; this package only reads
// the headers a verified request already carries.
package identity

import (
	"net/http"
	"strings"

	"github.com/cuemby/relic/pkg/types"
)

const (
	headerIdentityStatus = "X-Identity-Status"
	headerUserID         = "X-User-Id"
	headerTenantID       = "X-Tenant-Id"
	headerProjectID      = "X-Project-Id"
	headerRoles          = "X-Roles"
	headerAuthToken      = "X-Auth-Token"

	statusConfirmed = "Confirmed"
	roleAdmin       = "admin"
)

// FromRequest derives a types.Caller from r's identity headers. A
// request with no X-Identity-Status: Confirmed header (or none at all)
// is treated as anonymous, regardless of what other identity headers
// are present — a proxy that rejects auth is expected to strip them,
// but this is the backstop.
func FromRequest(r *http.Request) types.Caller {
	if r.Header.Get(headerIdentityStatus) != statusConfirmed {
		return types.Caller{Anonymous: true}
	}

	tenant := r.Header.Get(headerTenantID)
	if tenant == "" {
		tenant = r.Header.Get(headerProjectID)
	}
	userID := r.Header.Get(headerUserID)
	if tenant == "" || userID == "" {
		return types.Caller{Anonymous: true}
	}

	return types.Caller{
		TenantID: tenant,
		UserID:   userID,
		Roles:    splitRoles(r.Header.Get(headerRoles)),
	}
}

// AuthToken returns the opaque X-Auth-Token header, if present. It is
// never parsed or validated here; it is passed through for components
// (e.g. external blob probes) that need to forward it.
func AuthToken(r *http.Request) string {
	return r.Header.Get(headerAuthToken)
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

// IsAdminRole reports whether roles contains the admin capability
// named in the authorization matrix.
func IsAdminRole(roles []string) bool {
	for _, r := range roles {
		if r == roleAdmin {
			return true
		}
	}
	return false
}
