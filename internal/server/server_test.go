package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/relic/pkg/blobstore"
	"github.com/cuemby/relic/pkg/lifecycle"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/storage"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterBuiltins())

	gw, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	blobs, err := blobstore.NewFilesystemAdapter(t.TempDir())
	require.NoError(t, err)

	engine := lifecycle.New(reg, gw, blobs, nil)
	return New(engine, reg, 0).Router()
}

func ownerHeaders(tenant, user string) map[string]string {
	return map[string]string{
		"X-Identity-Status": "Confirmed",
		"X-User-Id":         user,
		"X-Tenant-Id":       tenant,
	}
}

func adminHeaders() map[string]string {
	h := ownerHeaders("t1", "admin-user")
	h["X-Roles"] = "admin"
	return h
}

func doRequest(t *testing.T, h http.Handler, method, path string, headers map[string]string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateArtifactReturns201(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name":    "widget",
		"version": "1.0.0",
		"int1":    42,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "widget", body["name"])
	require.Equal(t, "queued", body["status"])
}

func TestCreateArtifactAnonymousReturns403(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", nil, map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateArtifactUnknownTypeReturns404(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/artifacts/nope", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateArtifactUnknownAttributeReturns400(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0", "does_not_exist": 1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateArtifactSystemAttributeReturns403(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0", "system_attribute": "x",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetArtifactRoundTrip(t *testing.T) {
	h := newTestServer(t)
	created := decodeBody(t, doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	}))
	id := created["id"].(string)

	rec := doRequest(t, h, http.MethodGet, "/artifacts/sample_artifact/"+id, ownerHeaders("t1", "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/artifacts/sample_artifact/"+id, ownerHeaders("t2", "u2"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListArtifactsReturnsSchemaAndItems(t *testing.T) {
	h := newTestServer(t)
	doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	})

	rec := doRequest(t, h, http.MethodGet, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Contains(t, body, "schema")
	require.Contains(t, body, "first")
	items, ok := body["sample_artifact"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
}

func TestDeleteArtifactReturns204(t *testing.T) {
	h := newTestServer(t)
	created := decodeBody(t, doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	}))
	id := created["id"].(string)

	rec := doRequest(t, h, http.MethodDelete, "/artifacts/sample_artifact/"+id, ownerHeaders("t1", "u1"), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/artifacts/sample_artifact/"+id, ownerHeaders("t1", "u1"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchActivateRequiresRequiredAttribute(t *testing.T) {
	h := newTestServer(t)
	created := decodeBody(t, doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	}))
	id := created["id"].(string)

	req := httptest.NewRequest(http.MethodPatch, "/artifacts/sample_artifact/"+id, bytes.NewBufferString(`[{"op":"replace","path":"/status","value":"active"}]`))
	req.Header.Set("Content-Type", "application/json-patch+json")
	for k, v := range ownerHeaders("t1", "u1") {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPatch, "/artifacts/sample_artifact/"+id, bytes.NewBufferString(`[{"op":"replace","path":"/string_required","value":"filled"}]`))
	req.Header.Set("Content-Type", "application/json-patch+json")
	for k, v := range ownerHeaders("t1", "u1") {
		req.Header.Set(k, v)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPatch, "/artifacts/sample_artifact/"+id, bytes.NewBufferString(`[{"op":"replace","path":"/status","value":"active"}]`))
	req.Header.Set("Content-Type", "application/json-patch+json")
	for k, v := range ownerHeaders("t1", "u1") {
		req.Header.Set(k, v)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "active", body["status"])
}

func TestPatchRejectsWrongContentType(t *testing.T) {
	h := newTestServer(t)
	created := decodeBody(t, doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	}))
	id := created["id"].(string)

	req := httptest.NewRequest(http.MethodPatch, "/artifacts/sample_artifact/"+id, bytes.NewBufferString(`[]`))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ownerHeaders("t1", "u1") {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestTagsLifecycle(t *testing.T) {
	h := newTestServer(t)
	created := decodeBody(t, doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	}))
	id := created["id"].(string)

	rec := doRequest(t, h, http.MethodPut, "/artifacts/sample_artifact/"+id+"/tags", ownerHeaders("t1", "u1"), map[string]interface{}{
		"tags": []string{"a", "b"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/artifacts/sample_artifact/"+id+"/tags", ownerHeaders("t1", "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	tags, ok := body["tags"].([]interface{})
	require.True(t, ok)
	require.Len(t, tags, 2)

	rec = doRequest(t, h, http.MethodDelete, "/artifacts/sample_artifact/"+id+"/tags", ownerHeaders("t1", "u1"), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBlobUploadAndDownloadRoundTrip(t *testing.T) {
	h := newTestServer(t)
	created := decodeBody(t, doRequest(t, h, http.MethodPost, "/artifacts/sample_artifact", ownerHeaders("t1", "u1"), map[string]interface{}{
		"name": "widget", "version": "1.0.0",
	}))
	id := created["id"].(string)

	req := httptest.NewRequest(http.MethodPut, "/artifacts/sample_artifact/"+id+"/blob", bytes.NewBufferString("hello world"))
	req.Header.Set("Content-Type", "application/octet-stream")
	for k, v := range ownerHeaders("t1", "u1") {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/artifacts/sample_artifact/"+id+"/blob", ownerHeaders("t1", "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello world", rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/artifacts/sample_artifact/"+id+"/blob", ownerHeaders("t2", "u2"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchemasEndpoints(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/schemas", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	schemas, ok := body["schemas"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, schemas, "sample_artifact")

	rec = doRequest(t, h, http.MethodGet, "/schemas/sample_artifact", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/schemas/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndLivenessEndpoints(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/live", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
