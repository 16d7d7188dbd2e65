package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSampleRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.RegisterBuiltins())
	return r
}

func TestRegisterBuiltinsLoadsSampleArtifact(t *testing.T) {
	r := newSampleRegistry(t)
	desc, ok := r.GetType("sample_artifact")
	require.True(t, ok)
	assert.Equal(t, "1.0", desc.Version)

	req, ok := desc.Attribute("string_required")
	require.True(t, ok)
	assert.True(t, req.RequiredOnActivate)

	mutable, ok := desc.Attribute("string_mutable")
	require.True(t, ok)
	assert.True(t, mutable.Mutable)
}

func TestDuplicateTypeRegistrationConflicts(t *testing.T) {
	r := newSampleRegistry(t)
	dup := &TypeDescriptor{Name: "sample_artifact"}
	err := r.Register(dup)
	require.Error(t, err)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
}

func TestGetTypeUnknownReturnsFalse(t *testing.T) {
	r := newSampleRegistry(t)
	_, ok := r.GetType("does_not_exist")
	assert.False(t, ok)
}

func TestSchemaOfRendersBoolAsStringOrNull(t *testing.T) {
	r := newSampleRegistry(t)
	schema, err := r.SchemaOf("sample_artifact")
	require.NoError(t, err)

	props := schema["properties"].(map[string]interface{})
	bool1 := props["bool1"].(map[string]interface{})
	assert.Equal(t, []string{"string", "null"}, bool1["type"])
}

func TestSchemaOfRendersBlobSlotRequiredKeys(t *testing.T) {
	r := newSampleRegistry(t)
	schema, err := r.SchemaOf("sample_artifact")
	require.NoError(t, err)

	props := schema["properties"].(map[string]interface{})
	blob := props["blob"].(map[string]interface{})
	assert.ElementsMatch(t, []string{"size", "checksum", "external", "status", "content_type"}, blob["required"])
}

func TestSchemaOfIncludesExtensionKeys(t *testing.T) {
	r := newSampleRegistry(t)
	schema, err := r.SchemaOf("sample_artifact")
	require.NoError(t, err)

	props := schema["properties"].(map[string]interface{})
	int1 := props["int1"].(map[string]interface{})
	assert.Equal(t, true, int1["sortable"])
	assert.Equal(t, false, int1["mutable"])
	assert.Len(t, int1["filter_ops"], len(AllFilterOps))
}

func TestListTypesReturnsEveryRegisteredType(t *testing.T) {
	r := newSampleRegistry(t)
	schemas, err := r.ListTypes()
	require.NoError(t, err)
	assert.Contains(t, schemas, "sample_artifact")
}

func TestParseTypeRejectsUnknownCollection(t *testing.T) {
	_, err := ParseType([]byte("name: bad\nattributes:\n  - name: x\n    collection: nonsense\n"))
	require.Error(t, err)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
}

func TestParseTypeRejectsUnknownValidator(t *testing.T) {
	_, err := ParseType([]byte("name: bad\nattributes:\n  - name: x\n    validators:\n      - type: not_a_real_validator\n"))
	require.Error(t, err)
}

func TestParseTypeResolvesListValidators(t *testing.T) {
	desc, err := ParseType([]byte(`
name: sample2
attributes:
  - name: list_validators
    collection: list
    scalar_kind: string
    max_items: 3
    validators:
      - type: unique
`))
	require.NoError(t, err)
	attr, ok := desc.Attribute("list_validators")
	require.True(t, ok)
	assert.Equal(t, 3, attr.MaxItemsN)
	require.Len(t, attr.Validators, 1)
}
