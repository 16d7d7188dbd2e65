package server

import (
	"encoding/json"

	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/types"
)

// createArtifactRequest is the body of POST /artifacts/{type}. Intrinsic
// fields are read directly; everything else lands in Extra and is
// resolved against the type's declared attributes.
type createArtifactRequest struct {
	Name        string            `json:"name" validate:"required"`
	Version     string            `json:"version" validate:"required"`
	Description string            `json:"description"`
	Tags        []string          `json:"tags"`
	Metadata    map[string]string `json:"metadata"`
	Extra       map[string]json.RawMessage
}

// UnmarshalJSON decodes the known intrinsic fields plus every other key
// into Extra, so arbitrary type-declared attributes can ride alongside
// name/version/description/tags/metadata in a single flat body.
func (c *createArtifactRequest) UnmarshalJSON(data []byte) error {
	type known createArtifactRequest
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	*c = createArtifactRequest(k)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	reserved := map[string]bool{"name": true, "version": true, "description": true, "tags": true, "metadata": true}
	c.Extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !reserved[k] {
			c.Extra[k] = v
		}
	}
	return nil
}

// decodeProperties resolves req.Extra against desc's declared custom
// attributes, rejecting system/blob/blob_dict attributes set this way.
func decodeProperties(desc *registry.TypeDescriptor, extra map[string]json.RawMessage) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(extra))
	for name, raw := range extra {
		ad, ok := desc.Attribute(name)
		if !ok {
			return nil, apierr.Newf(apierr.BadRequest, "unknown attribute %q", name)
		}
		if ad.System {
			return nil, apierr.Newf(apierr.Forbidden, "attribute %q is system-managed", name)
		}
		switch ad.Collection {
		case registry.CollectionBlob, registry.CollectionBlobDict:
			return nil, apierr.Newf(apierr.BadRequest, "attribute %q is a blob attribute and cannot be set inline", name)
		}
		v, err := decodeAttributeValue(ad, raw)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// decodeAttributeValue shapes a raw JSON value into a types.AttributeValue
// per ad's collection kind, without coercing scalar kinds — pkg/lifecycle
// runs CoerceScalar/ValidateAttribute on the result.
func decodeAttributeValue(ad registry.AttributeDescriptor, raw json.RawMessage) (types.AttributeValue, error) {
	switch ad.Collection {
	case registry.CollectionList:
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return types.AttributeValue{}, apierr.Wrapf(err, apierr.BadRequest, "attribute %q expects a list", ad.Name)
		}
		list := make([]types.AttributeValue, len(elems))
		for i, el := range elems {
			v, err := jsonScalarToAttributeValue(el)
			if err != nil {
				return types.AttributeValue{}, apierr.Wrapf(err, apierr.BadRequest, "attribute %q", ad.Name)
			}
			list[i] = v
		}
		return types.AttributeValue{Kind: types.KindList, List: list}, nil
	case registry.CollectionDict:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return types.AttributeValue{}, apierr.Wrapf(err, apierr.BadRequest, "attribute %q expects a map", ad.Name)
		}
		dict := make(map[string]types.AttributeValue, len(obj))
		for k, el := range obj {
			v, err := jsonScalarToAttributeValue(el)
			if err != nil {
				return types.AttributeValue{}, apierr.Wrapf(err, apierr.BadRequest, "attribute %q", ad.Name)
			}
			dict[k] = v
		}
		return types.AttributeValue{Kind: types.KindDict, Dict: dict}, nil
	default:
		return jsonScalarToAttributeValue(raw)
	}
}

func jsonScalarToAttributeValue(raw json.RawMessage) (types.AttributeValue, error) {
	var anyVal interface{}
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		return types.AttributeValue{}, err
	}
	switch t := anyVal.(type) {
	case nil:
		return types.AttributeValue{}, nil
	case bool:
		return types.AttributeValue{Kind: types.KindBool, B: t}, nil
	case string:
		return types.AttributeValue{Kind: types.KindStr, S: t}, nil
	case float64:
		if t == float64(int64(t)) {
			return types.AttributeValue{Kind: types.KindInt, I: int64(t)}, nil
		}
		return types.AttributeValue{Kind: types.KindFloat, F: t}, nil
	default:
		return types.AttributeValue{}, apierr.Newf(apierr.BadRequest, "unsupported value shape")
	}
}

// attributeValueToJSON renders a types.AttributeValue back into a plain
// JSON-marshalable Go value for responses.
func attributeValueToJSON(v types.AttributeValue) interface{} {
	switch v.Kind {
	case types.KindBool:
		return v.B
	case types.KindInt:
		return v.I
	case types.KindFloat:
		return v.F
	case types.KindStr:
		return v.S
	case types.KindList:
		out := make([]interface{}, len(v.List))
		for i, el := range v.List {
			out[i] = attributeValueToJSON(el)
		}
		return out
	case types.KindDict:
		out := make(map[string]interface{}, len(v.Dict))
		for k, el := range v.Dict {
			out[k] = attributeValueToJSON(el)
		}
		return out
	default:
		return nil
	}
}

// blobSlotDTO is the response shape of a single blob slot.
type blobSlotDTO struct {
	Size        *int64 `json:"size,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Status      string `json:"status,omitempty"`
	External    bool   `json:"external,omitempty"`
}

func blobSlotToJSON(s *types.BlobSlot) *blobSlotDTO {
	if s == nil {
		return nil
	}
	return &blobSlotDTO{
		Size:        s.Size,
		Checksum:    s.Checksum,
		ContentType: s.ContentType,
		Status:      string(s.Status),
		External:    s.External,
	}
}

// artifactToJSON renders the full wire representation of an artifact:
// intrinsic fields, icon/blobs, and every custom attribute flattened to
// the top level the way the type's declared attributes are addressed
// everywhere else in this API (patch paths, filters).
func artifactToJSON(a *types.Artifact) map[string]interface{} {
	out := map[string]interface{}{
		"id":          a.ID,
		"type_name":   a.TypeName,
		"name":        a.Name,
		"version":     a.Version,
		"owner":       a.Owner,
		"visibility":  string(a.Visibility),
		"status":      string(a.Status),
		"created_at":  a.CreatedAt,
		"updated_at":  a.UpdatedAt,
		"description": a.Description,
		"tags":        a.Tags,
		"metadata":    a.Metadata,
		"icon":        blobSlotToJSON(a.Icon),
		"row_version": a.RowVersion,
	}
	if a.ActivatedAt != nil {
		out["activated_at"] = a.ActivatedAt
	}
	for name, v := range a.Properties {
		out[name] = attributeValueToJSON(v)
	}
	if len(a.Blobs) > 0 {
		blobs := make(map[string]*blobSlotDTO, len(a.Blobs))
		for path, s := range a.Blobs {
			blobs[path] = blobSlotToJSON(s)
		}
		out["blobs"] = blobs
	}
	return out
}

func artifactsToJSON(as []*types.Artifact) []map[string]interface{} {
	out := make([]map[string]interface{}, len(as))
	for i, a := range as {
		out[i] = artifactToJSON(a)
	}
	return out
}
