package lifecycle

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/relic/pkg/blobstore"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/storage"
	"github.com/cuemby/relic/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterBuiltins())

	gw, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	fs, err := blobstore.NewFilesystemAdapter(t.TempDir())
	require.NoError(t, err)

	return New(reg, gw, fs, nil)
}

func owner(tenant string) types.Caller  { return types.Caller{TenantID: tenant, UserID: tenant + "-user"} }
func admin() types.Caller               { return types.Caller{TenantID: "ops", UserID: "ops-user", Roles: []string{"admin"}} }
func anon() types.Caller                { return types.Caller{Anonymous: true} }

func createSample(t *testing.T, e *Engine, caller types.Caller, name string) *types.Artifact {
	t.Helper()
	a, err := e.CreateArtifact(context.Background(), caller, "sample_artifact", NewArtifactInput{
		Name:    name,
		Version: "1.0.0",
		Properties: map[string]types.AttributeValue{
			"int1": {Kind: types.KindInt, I: 2048},
			"str1": {Kind: types.KindStr, S: "lalala"},
		},
	})
	require.NoError(t, err)
	return a
}

func TestCreateArtifactRejectsAnonymous(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateArtifact(context.Background(), anon(), "sample_artifact", NewArtifactInput{Name: "n", Version: "1.0.0"})
	require.Error(t, err)
}

func TestCreateArtifactRejectsUnknownAttribute(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateArtifact(context.Background(), owner("t1"), "sample_artifact", NewArtifactInput{
		Name: "n", Version: "1.0.0",
		Properties: map[string]types.AttributeValue{"nope": {Kind: types.KindStr, S: "x"}},
	})
	require.Error(t, err)
}

func TestOtherTenantReadingPrivateArtifactGetsNotFound(t *testing.T) {
	e := newTestEngine(t)
	a := createSample(t, e, owner("t1"), "n1")

	_, err := e.GetArtifact(context.Background(), owner("t2"), a.ID)
	require.Error(t, err)
	assertNotFound(t, err)
}

func TestOwnerCanReadOwnPrivateArtifact(t *testing.T) {
	e := newTestEngine(t)
	a := createSample(t, e, owner("t1"), "n2")

	got, err := e.GetArtifact(context.Background(), owner("t1"), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestActivationRequiresRequiredOnActivateAttribute(t *testing.T) {
	e := newTestEngine(t)
	a := createSample(t, e, owner("t1"), "n3")

	_, err := e.SetStatus(context.Background(), owner("t1"), a.ID, types.StatusActive)
	require.Error(t, err)

	_, err = e.ApplyPatch(context.Background(), owner("t1"), a.ID, []byte(`[{"op":"replace","path":"/string_required","value":"x"}]`))
	require.NoError(t, err)

	activated, err := e.SetStatus(context.Background(), owner("t1"), a.ID, types.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, activated.Status)
	assert.NotNil(t, activated.ActivatedAt)
}

func TestIdempotentStatusReapplicationIsNoOp(t *testing.T) {
	e := newTestEngine(t)
	a := createSample(t, e, owner("t1"), "n4")

	again, err := e.SetStatus(context.Background(), owner("t1"), a.ID, types.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, a.RowVersion, again.RowVersion)
}

func TestOwnerCannotDeactivateOnlyAdminCan(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := createSample(t, e, owner("t1"), "n5")
	_, err := e.ApplyPatch(ctx, owner("t1"), a.ID, []byte(`[{"op":"replace","path":"/string_required","value":"x"}]`))
	require.NoError(t, err)
	a, err = e.SetStatus(ctx, owner("t1"), a.ID, types.StatusActive)
	require.NoError(t, err)

	_, err = e.SetStatus(ctx, owner("t1"), a.ID, types.StatusDeactivated)
	require.Error(t, err)

	deactivated, err := e.SetStatus(ctx, admin(), a.ID, types.StatusDeactivated)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeactivated, deactivated.Status)
}

func TestOwnerReadingOwnDeactivatedArtifactIsForbiddenNotNotFound(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := createSample(t, e, owner("t1"), "n6")
	_, err := e.ApplyPatch(ctx, owner("t1"), a.ID, []byte(`[{"op":"replace","path":"/string_required","value":"x"}]`))
	require.NoError(t, err)
	a, err = e.SetStatus(ctx, owner("t1"), a.ID, types.StatusActive)
	require.NoError(t, err)
	a, err = e.SetStatus(ctx, admin(), a.ID, types.StatusDeactivated)
	require.NoError(t, err)

	_, err = e.GetArtifact(ctx, owner("t1"), a.ID)
	require.Error(t, err)
	assertForbidden(t, err)

	_, err = e.GetArtifact(ctx, owner("t2"), a.ID)
	require.Error(t, err)
	assertNotFound(t, err)
}

func TestStatusPatchMustBeSoleOperation(t *testing.T) {
	e := newTestEngine(t)
	a := createSample(t, e, owner("t1"), "n7")

	_, err := e.ApplyPatch(context.Background(), owner("t1"), a.ID,
		[]byte(`[{"op":"replace","path":"/status","value":"active"},{"op":"replace","path":"/str1","value":"y"}]`))
	require.Error(t, err)
}

func TestPublishOnlyFromActiveAndAdminOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := createSample(t, e, owner("t1"), "n8")

	_, err := e.SetVisibility(ctx, admin(), a.ID, types.VisibilityPublic)
	require.Error(t, err)

	_, err = e.ApplyPatch(ctx, owner("t1"), a.ID, []byte(`[{"op":"replace","path":"/string_required","value":"x"}]`))
	require.NoError(t, err)
	a, err = e.SetStatus(ctx, owner("t1"), a.ID, types.StatusActive)
	require.NoError(t, err)

	_, err = e.SetVisibility(ctx, owner("t1"), a.ID, types.VisibilityPublic)
	require.Error(t, err)

	pub, err := e.SetVisibility(ctx, admin(), a.ID, types.VisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, types.VisibilityPublic, pub.Visibility)

	_, err = e.GetArtifact(ctx, owner("t2"), a.ID)
	require.NoError(t, err)
}

func TestGenericPatchRejectsTags(t *testing.T) {
	e := newTestEngine(t)
	a := createSample(t, e, owner("t1"), "n9")
	_, err := e.ApplyPatch(context.Background(), owner("t1"), a.ID, []byte(`[{"op":"add","path":"/tags","value":["x"]}]`))
	require.Error(t, err)
}

func TestBlobUploadAndDownloadRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := createSample(t, e, owner("t1"), "n10")

	lease, maxBytes, err := e.BeginBlobUpload(ctx, owner("t1"), a.ID, "blob")
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("data"), 100)
	updated, err := e.FinalizeBlobUpload(ctx, owner("t1"), lease, maxBytes, "application/octet-stream", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, types.BlobStatusActive, updated.Blobs["blob"].Status)
	assert.EqualValues(t, len(payload), *updated.Blobs["blob"].Size)

	rc, slot, err := e.DownloadBlob(ctx, owner("t1"), a.ID, "blob")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, types.BlobStatusActive, slot.Status)

	_, err = e.DownloadBlob(ctx, owner("t2"), a.ID, "blob")
	require.Error(t, err)
	assertNotFound(t, err)
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := createSample(t, e, owner("t1"), "n11")

	require.NoError(t, e.DeleteArtifact(ctx, owner("t1"), a.ID))

	_, err := e.GetArtifact(ctx, owner("t1"), a.ID)
	require.Error(t, err)
	assertNotFound(t, err)
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	assertErrContains(t, err, "not_found")
}

func assertForbidden(t *testing.T, err error) {
	t.Helper()
	assertErrContains(t, err, "forbidden")
}

func assertErrContains(t *testing.T, err error, substr string) {
	t.Helper()
	assert.Contains(t, err.Error(), substr)
}
