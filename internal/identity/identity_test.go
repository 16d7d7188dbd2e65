package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newRequest(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/artifacts/sample_artifact", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestFromRequestWithNoHeadersIsAnonymous(t *testing.T) {
	caller := FromRequest(newRequest(nil))
	assert.True(t, caller.Anonymous)
}

func TestFromRequestRequiresConfirmedStatus(t *testing.T) {
	caller := FromRequest(newRequest(map[string]string{
		"X-User-Id":   "u1",
		"X-Tenant-Id": "t1",
	}))
	assert.True(t, caller.Anonymous)
}

func TestFromRequestParsesTenantUserAndRoles(t *testing.T) {
	caller := FromRequest(newRequest(map[string]string{
		"X-Identity-Status": "Confirmed",
		"X-User-Id":         "u1",
		"X-Tenant-Id":       "t1",
		"X-Roles":           "member, admin",
	}))
	assert.False(t, caller.Anonymous)
	assert.Equal(t, "t1", caller.TenantID)
	assert.Equal(t, "u1", caller.UserID)
	assert.True(t, caller.IsAdmin())
}

func TestFromRequestFallsBackToProjectID(t *testing.T) {
	caller := FromRequest(newRequest(map[string]string{
		"X-Identity-Status": "Confirmed",
		"X-User-Id":         "u1",
		"X-Project-Id":      "p1",
	}))
	assert.Equal(t, "p1", caller.TenantID)
}

func TestAuthTokenPassesThroughOpaque(t *testing.T) {
	tok := AuthToken(newRequest(map[string]string{"X-Auth-Token": "opaque-123"}))
	assert.Equal(t, "opaque-123", tok)
}
