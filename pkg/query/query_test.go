package query

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/storage"
	"github.com/cuemby/relic/pkg/types"
)

func newTestGateway(t *testing.T) storage.Gateway {
	t.Helper()
	gw, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	return gw
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.NewRegistry()
	require.NoError(t, r.RegisterBuiltins())
	return r
}

func seedArtifact(t *testing.T, gw storage.Gateway, owner, name string, vis types.Visibility, status types.Status, int1 int64, tags []string) *types.Artifact {
	t.Helper()
	a := &types.Artifact{
		ID:         uuid.NewString(),
		TypeName:   "sample_artifact",
		Name:       name,
		Version:    "1.0.0",
		Owner:      owner,
		Visibility: vis,
		Status:     status,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		Tags:       tags,
		Properties: map[string]types.AttributeValue{
			"int1": {Kind: types.KindInt, I: int1},
			"str1": {Kind: types.KindStr, S: name},
		},
		Blobs: map[string]*types.BlobSlot{},
	}
	require.NoError(t, gw.CreateArtifact(context.Background(), a))
	return a
}

func TestListScopesPrivateArtifactsToOwner(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	seedArtifact(t, gw, "t1", "a1", types.VisibilityPrivate, types.StatusQueued, 1, nil)
	seedArtifact(t, gw, "t2", "a2", types.VisibilityPrivate, types.StatusQueued, 2, nil)

	res, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", url.Values{}, "/artifacts/sample_artifact")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "a1", res.Items[0].Name)
}

func TestListFiltersByIntAttribute(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	seedArtifact(t, gw, "t1", "a1", types.VisibilityPublic, types.StatusQueued, 10, nil)
	seedArtifact(t, gw, "t1", "a2", types.VisibilityPublic, types.StatusQueued, 20, nil)

	q := url.Values{"int1": {"gt:15"}}
	res, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "a2", res.Items[0].Name)
}

func TestListRejectsFilterOpNotDeclared(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	q := url.Values{"bool1": {"gt:true"}}
	_, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.Error(t, err)
}

func TestListTagsAllSemantics(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	seedArtifact(t, gw, "t1", "a1", types.VisibilityPublic, types.StatusQueued, 1, []string{"x", "y"})
	seedArtifact(t, gw, "t1", "a2", types.VisibilityPublic, types.StatusQueued, 2, []string{"x"})

	q := url.Values{"tags": {"x,y"}}
	res, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "a1", res.Items[0].Name)
}

func TestListRejectsVisibilityNeq(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	q := url.Values{"visibility": {"neq:public"}}
	_, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.Error(t, err)
}

func TestListUnknownVisibilityValueMatchesNothing(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	seedArtifact(t, gw, "t1", "a1", types.VisibilityPublic, types.StatusQueued, 1, nil)

	q := url.Values{"visibility": {"bogus"}}
	res, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestListRejectsThreeNonNameSortKeys(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	q := url.Values{"sort": {"int1:asc,float1:asc,str1:asc"}}
	_, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.Error(t, err)
}

func TestListRejectsSortingByNonSortableAttribute(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	q := url.Values{"sort": {"bool1:asc"}}
	_, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.Error(t, err)
}

func TestListSortsByIntDescending(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	seedArtifact(t, gw, "t1", "a1", types.VisibilityPublic, types.StatusQueued, 1, nil)
	seedArtifact(t, gw, "t1", "a2", types.VisibilityPublic, types.StatusQueued, 5, nil)
	seedArtifact(t, gw, "t1", "a3", types.VisibilityPublic, types.StatusQueued, 3, nil)

	q := url.Values{"sort": {"int1:desc"}}
	res, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, []string{"a2", "a3", "a1"}, []string{res.Items[0].Name, res.Items[1].Name, res.Items[2].Name})
}

func TestListMarkerPaginationProducesNext(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	for i := int64(0); i < 5; i++ {
		seedArtifact(t, gw, "t1", uuid.NewString(), types.VisibilityPublic, types.StatusQueued, i, nil)
	}

	q := url.Values{"sort": {"int1:asc"}, "limit": {"2"}}
	res, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.NotEmpty(t, res.Next)

	next, err := url.Parse(res.Next)
	require.NoError(t, err)
	res2, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", next.Query(), "/artifacts/sample_artifact")
	require.NoError(t, err)
	require.Len(t, res2.Items, 2)
	assert.NotEqual(t, res.Items[0].ID, res2.Items[0].ID)
}

func TestListEmptyValueAfterOpReturnsEmpty(t *testing.T) {
	gw := newTestGateway(t)
	reg := newTestRegistry(t)
	desc, _ := reg.GetType("sample_artifact")

	seedArtifact(t, gw, "t1", "a1", types.VisibilityPublic, types.StatusQueued, 1, nil)

	q := url.Values{"str1": {"eq:"}}
	res, err := List(context.Background(), types.Caller{TenantID: "t1"}, desc, gw, "sample_artifact", q, "/artifacts/sample_artifact")
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}
