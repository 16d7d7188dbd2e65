package registry

import "fmt"

// intrinsicSchema is the Draft-4 fragment shared by every artifact type,
// independent of its custom attributes.
func intrinsicSchema() map[string]interface{} {
	return map[string]interface{}{
		"id":           map[string]interface{}{"type": "string", "readOnly": true},
		"type_name":    map[string]interface{}{"type": "string", "readOnly": true},
		"name":         map[string]interface{}{"type": "string"},
		"version":      map[string]interface{}{"type": "string"},
		"owner":        map[string]interface{}{"type": "string", "readOnly": true},
		"visibility":   map[string]interface{}{"type": "string", "enum": []string{"private", "public"}},
		"status":       map[string]interface{}{"type": "string", "enum": []string{"queued", "active", "deactivated", "deleted"}, "readOnly": true},
		"created_at":   map[string]interface{}{"type": "string", "readOnly": true},
		"updated_at":   map[string]interface{}{"type": "string", "readOnly": true},
		"activated_at": map[string]interface{}{"type": []string{"string", "null"}, "readOnly": true},
		"description":  map[string]interface{}{"type": []string{"string", "null"}},
		"tags":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"metadata":     map[string]interface{}{"type": "object", "additionalProperties": map[string]interface{}{"type": "string"}},
		"icon":         blobSchema(),
	}
}

// blobSchema is the Draft-4 fragment for a single blob slot: an object
// carrying the bookkeeping fields clients read, never the bytes
// themselves.
func blobSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"size":         map[string]interface{}{"type": []string{"integer", "null"}},
			"checksum":     map[string]interface{}{"type": []string{"string", "null"}},
			"external":     map[string]interface{}{"type": "boolean"},
			"status":       map[string]interface{}{"type": "string", "enum": []string{"saving", "active", "pending_delete"}},
			"content_type": map[string]interface{}{"type": []string{"string", "null"}},
		},
		"required": []string{"size", "checksum", "external", "status", "content_type"},
	}
}

// scalarSchemaType renders a scalar kind as a Draft-4 "type" value.
// Booleans render as ["string", "null"] for historical compatibility
// with clients that never learned a native boolean type for this field.
func scalarSchemaType(k ScalarKind) interface{} {
	switch k {
	case ScalarBool:
		return []string{"string", "null"}
	case ScalarInt:
		return []string{"integer", "null"}
	case ScalarFloat:
		return []string{"number", "null"}
	default:
		return []string{"string", "null"}
	}
}

// attributeSchema renders one custom attribute's Draft-4 fragment, with
// the extension keys (filter_ops, sortable, mutable,
// required_on_activate, readOnly) spec'd for client introspection.
func attributeSchema(a AttributeDescriptor) map[string]interface{} {
	var frag map[string]interface{}
	switch a.Collection {
	case CollectionBlob:
		frag = blobSchema()
	case CollectionBlobDict:
		frag = map[string]interface{}{
			"type":                 "object",
			"additionalProperties": blobSchema(),
		}
	case CollectionList:
		frag = map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": scalarSchemaType(a.ScalarKind)},
		}
		if a.MaxItemsN > 0 {
			frag["maxItems"] = a.MaxItemsN
		}
	case CollectionDict:
		frag = map[string]interface{}{
			"type":                 "object",
			"additionalProperties": map[string]interface{}{"type": scalarSchemaType(a.ScalarKind)},
		}
		if a.MaxPropsN > 0 {
			frag["maxProperties"] = a.MaxPropsN
		}
	default: // CollectionScalar
		frag = map[string]interface{}{"type": scalarSchemaType(a.ScalarKind)}
		if a.ScalarKind == ScalarString && a.MaxLen > 0 {
			frag["maxLength"] = a.MaxLen
		}
	}

	frag["filter_ops"] = a.FilterOps
	frag["sortable"] = a.Sortable
	frag["mutable"] = a.Mutable
	frag["required_on_activate"] = a.RequiredOnActivate
	frag["readOnly"] = a.ReadOnly()
	return frag
}

// SchemaOf returns the Draft-4 JSON Schema document for a registered
// type, combining intrinsic and custom attributes.
func (r *Registry) SchemaOf(name string) (map[string]interface{}, error) {
	desc, ok := r.GetType(name)
	if !ok {
		return nil, fmt.Errorf("type %q not found", name)
	}

	props := intrinsicSchema()
	for _, a := range desc.Attributes {
		props[a.Name] = attributeSchema(a)
	}

	return map[string]interface{}{
		"$schema":    "http://json-schema.org/draft-04/schema#",
		"title":      desc.Name,
		"version":    desc.Version,
		"type":       "object",
		"properties": props,
	}, nil
}

// ListTypes returns every registered type's schema, keyed by name.
func (r *Registry) ListTypes() (map[string]map[string]interface{}, error) {
	out := make(map[string]map[string]interface{})
	for _, name := range r.TypeNames() {
		schema, err := r.SchemaOf(name)
		if err != nil {
			return nil, err
		}
		out[name] = schema
	}
	return out, nil
}
