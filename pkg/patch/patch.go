// Package patch implements the Patch Engine: RFC 6902 add/remove/replace
// operations over a pointer language addressing an artifact's top-level
// custom attributes, their map entries, and their list entries. Status
// and visibility changes are intercepted by pkg/lifecycle before a
// document ever reaches this package; blob slot attributes are rejected
// here by Apply.
package patch

import (
	"encoding/json"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/types"
	"github.com/cuemby/relic/pkg/validation"
)

// Mutability expresses which attributes a caller may touch, resolved
// from the artifact's current lifecycle status by the caller.
type Mutability int

const (
	// MutabilityFull permits any non-system, non-blob attribute —
	// the artifact is queued and still wholly the owner's/admin's.
	MutabilityFull Mutability = iota
	// MutabilityMutableOnly permits only attributes flagged mutable —
	// the artifact is active or deactivated and only an admin reached
	// this far (pkg/lifecycle already enforced that).
	MutabilityMutableOnly
)

// MutabilityOf maps an artifact's lifecycle status to the attribute
// mutability rule that applies to a generic patch against it.
func MutabilityOf(status types.Status) Mutability {
	if status == types.StatusQueued {
		return MutabilityFull
	}
	return MutabilityMutableOnly
}

var alwaysImmutable = map[string]bool{
	"name": true, "type_name": true, "owner": true,
	"id": true, "created_at": true, "updated_at": true, "activated_at": true,
}

// Apply decodes raw as an RFC 6902 JSON Patch document and mutates a's
// Properties in place according to desc's attribute metadata and mut.
// Every operation is validated and coerced before anything is written;
// on error a is left untouched.
func Apply(desc *registry.TypeDescriptor, a *types.Artifact, raw []byte, mut Mutability) error {
	ops, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return apierr.Wrap(err, apierr.BadRequest, "malformed JSON patch document")
	}
	if len(ops) == 0 {
		return apierr.Newf(apierr.BadRequest, "patch document contains no operations")
	}

	next := cloneProperties(a.Properties)

	for _, op := range ops {
		kind := op.Kind()
		pathRaw, err := op.Path()
		if err != nil {
			return apierr.Wrap(err, apierr.BadRequest, "patch operation missing path")
		}
		segs, err := splitPointer(pathRaw)
		if err != nil {
			return apierr.Wrap(err, apierr.BadRequest, "malformed JSON pointer")
		}
		if len(segs) == 0 {
			return apierr.Newf(apierr.BadRequest, "patch path %q is not attribute-addressable", pathRaw)
		}

		attrName := segs[0]
		if attrName == "tags" {
			return apierr.Newf(apierr.BadRequest, "tags cannot be modified via generic patch; use the dedicated tag endpoint")
		}
		if alwaysImmutable[attrName] {
			return apierr.Forbiddenf("attribute %q is immutable", attrName)
		}

		ad, ok := desc.Attribute(attrName)
		if !ok {
			return apierr.Newf(apierr.BadRequest, "unknown attribute %q", attrName)
		}
		if ad.System {
			return apierr.Forbiddenf("attribute %q is system-managed", attrName)
		}
		if ad.Collection == registry.CollectionBlob || ad.Collection == registry.CollectionBlobDict {
			return apierr.Newf(apierr.BadRequest, "attribute %q is a blob slot and cannot be modified via generic patch", attrName)
		}
		if mut == MutabilityMutableOnly && !ad.Mutable {
			return apierr.Newf(apierr.Forbidden, "attribute %q is not mutable on an active artifact", attrName)
		}

		var value *json.RawMessage
		if kind != "remove" {
			value, err = op.Value()
			if err != nil {
				return apierr.Wrap(err, apierr.BadRequest, "patch operation missing value")
			}
		}

		if err := applyOp(&ad, next, kind, segs[1:], value); err != nil {
			return err
		}
	}

	a.Properties = next
	return nil
}

func cloneProperties(props map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// applyOp mutates next[ad.Name] according to one decoded operation.
// rest is the pointer path beyond the attribute name: empty for a
// whole-attribute op, one segment for a map/list entry.
func applyOp(ad *registry.AttributeDescriptor, next map[string]types.AttributeValue, kind string, rest []string, raw *json.RawMessage) error {
	cur := next[ad.Name]

	switch ad.Collection {
	case registry.CollectionScalar:
		if len(rest) != 0 {
			return apierr.Newf(apierr.BadRequest, "attribute %q does not accept a nested path", ad.Name)
		}
		if kind == "remove" {
			next[ad.Name] = types.AttributeValue{}
			return checkAndStore(ad, next, types.AttributeValue{})
		}
		v, err := decodeScalar(ad, raw)
		if err != nil {
			return err
		}
		return checkAndStore(ad, next, v)

	case registry.CollectionList:
		if len(rest) == 0 {
			if kind == "remove" {
				return checkAndStore(ad, next, types.AttributeValue{})
			}
			v, err := decodeWholeValue(ad, raw)
			if err != nil {
				return err
			}
			return checkAndStore(ad, next, v)
		}
		if len(rest) != 1 {
			return apierr.Newf(apierr.BadRequest, "attribute %q list index path too deep", ad.Name)
		}
		return applyListEntry(ad, next, cur, kind, rest[0], raw)

	case registry.CollectionDict:
		if len(rest) == 0 {
			if kind == "remove" {
				return checkAndStore(ad, next, types.AttributeValue{})
			}
			v, err := decodeWholeValue(ad, raw)
			if err != nil {
				return err
			}
			return checkAndStore(ad, next, v)
		}
		if len(rest) != 1 {
			return apierr.Newf(apierr.BadRequest, "attribute %q map key path too deep", ad.Name)
		}
		return applyDictEntry(ad, next, cur, kind, rest[0], raw)
	}
	return apierr.Newf(apierr.BadRequest, "attribute %q cannot be modified via generic patch", ad.Name)
}

func applyListEntry(ad *registry.AttributeDescriptor, next map[string]types.AttributeValue, cur types.AttributeValue, kind, idxSeg string, raw *json.RawMessage) error {
	list := append([]types.AttributeValue(nil), cur.List...)

	if idxSeg == "-" {
		if kind != "add" {
			return apierr.Newf(apierr.BadRequest, "list index \"-\" is only valid for add")
		}
		v, err := validation.CoerceScalar(ad.Name, rawToAttributeValue(ad, raw), scalarKind(ad.ScalarKind))
		if err != nil {
			return err
		}
		list = append(list, v)
		return checkAndStore(ad, next, types.AttributeValue{Kind: types.KindList, List: list})
	}

	idx, err := strconv.Atoi(idxSeg)
	if err != nil || idx < 0 || idx > len(list) {
		return apierr.Newf(apierr.BadRequest, "invalid list index %q for attribute %q", idxSeg, ad.Name)
	}

	switch kind {
	case "remove":
		if idx >= len(list) {
			return apierr.Newf(apierr.BadRequest, "list index %d out of range for attribute %q", idx, ad.Name)
		}
		list = append(list[:idx], list[idx+1:]...)
	case "add":
		v, err := validation.CoerceScalar(ad.Name, rawToAttributeValue(ad, raw), scalarKind(ad.ScalarKind))
		if err != nil {
			return err
		}
		list = append(list[:idx], append([]types.AttributeValue{v}, list[idx:]...)...)
	case "replace":
		if idx >= len(list) {
			return apierr.Newf(apierr.BadRequest, "list index %d out of range for attribute %q", idx, ad.Name)
		}
		v, err := validation.CoerceScalar(ad.Name, rawToAttributeValue(ad, raw), scalarKind(ad.ScalarKind))
		if err != nil {
			return err
		}
		list[idx] = v
	default:
		return apierr.Newf(apierr.BadRequest, "unsupported patch operation %q", kind)
	}
	return checkAndStore(ad, next, types.AttributeValue{Kind: types.KindList, List: list})
}

func applyDictEntry(ad *registry.AttributeDescriptor, next map[string]types.AttributeValue, cur types.AttributeValue, kind, key string, raw *json.RawMessage) error {
	dict := make(map[string]types.AttributeValue, len(cur.Dict))
	for k, v := range cur.Dict {
		dict[k] = v
	}

	switch kind {
	case "remove":
		delete(dict, key)
	case "add", "replace":
		v, err := validation.CoerceScalar(ad.Name, rawToAttributeValue(ad, raw), scalarKind(ad.ScalarKind))
		if err != nil {
			return err
		}
		dict[key] = v
	default:
		return apierr.Newf(apierr.BadRequest, "unsupported patch operation %q", kind)
	}
	return checkAndStore(ad, next, types.AttributeValue{Kind: types.KindDict, Dict: dict})
}

func checkAndStore(ad *registry.AttributeDescriptor, next map[string]types.AttributeValue, v types.AttributeValue) error {
	if err := validation.ValidateAttribute(*ad, v); err != nil {
		return apierr.Wrap(err, apierr.BadRequest, "invalid value for attribute "+ad.Name)
	}
	next[ad.Name] = v
	return nil
}

func decodeScalar(ad *registry.AttributeDescriptor, raw *json.RawMessage) (types.AttributeValue, error) {
	return validation.CoerceScalar(ad.Name, rawToAttributeValue(ad, raw), scalarKind(ad.ScalarKind))
}

func decodeWholeValue(ad *registry.AttributeDescriptor, raw *json.RawMessage) (types.AttributeValue, error) {
	if ad.Collection == registry.CollectionList {
		var elems []json.RawMessage
		if err := json.Unmarshal(*raw, &elems); err != nil {
			return types.AttributeValue{}, apierr.Newf(apierr.BadRequest, "attribute %q expects a list value", ad.Name)
		}
		out := make([]types.AttributeValue, 0, len(elems))
		for _, e := range elems {
			v, err := validation.CoerceScalar(ad.Name, rawToAttributeValue(ad, &e), scalarKind(ad.ScalarKind))
			if err != nil {
				return types.AttributeValue{}, err
			}
			out = append(out, v)
		}
		return types.AttributeValue{Kind: types.KindList, List: out}, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(*raw, &obj); err != nil {
		return types.AttributeValue{}, apierr.Newf(apierr.BadRequest, "attribute %q expects a map value", ad.Name)
	}
	out := make(map[string]types.AttributeValue, len(obj))
	for k, e := range obj {
		v, err := validation.CoerceScalar(ad.Name, rawToAttributeValue(ad, &e), scalarKind(ad.ScalarKind))
		if err != nil {
			return types.AttributeValue{}, err
		}
		out[k] = v
	}
	return types.AttributeValue{Kind: types.KindDict, Dict: out}, nil
}

// rawToAttributeValue decodes a JSON scalar into an AttributeValue tagged
// by its own JSON shape; CoerceScalar then reconciles it against the
// attribute's declared kind.
func rawToAttributeValue(ad *registry.AttributeDescriptor, raw *json.RawMessage) types.AttributeValue {
	if raw == nil {
		return types.AttributeValue{}
	}
	var anyVal interface{}
	if err := json.Unmarshal(*raw, &anyVal); err != nil {
		return types.AttributeValue{}
	}
	switch t := anyVal.(type) {
	case nil:
		return types.AttributeValue{}
	case bool:
		return types.AttributeValue{Kind: types.KindBool, B: t}
	case string:
		return types.AttributeValue{Kind: types.KindStr, S: t}
	case float64:
		if t == float64(int64(t)) {
			return types.AttributeValue{Kind: types.KindInt, I: int64(t)}
		}
		return types.AttributeValue{Kind: types.KindFloat, F: t}
	default:
		return types.AttributeValue{}
	}
}

func scalarKind(k registry.ScalarKind) types.AttributeKind {
	switch k {
	case registry.ScalarBool:
		return types.KindBool
	case registry.ScalarInt:
		return types.KindInt
	case registry.ScalarFloat:
		return types.KindFloat
	default:
		return types.KindStr
	}
}

// splitPointer splits an RFC 6901 JSON pointer into unescaped segments.
// "" and "/" both yield zero segments.
func splitPointer(p string) ([]string, error) {
	if p == "" {
		return nil, nil
	}
	if !strings.HasPrefix(p, "/") {
		return nil, apierr.Newf(apierr.BadRequest, "pointer %q must start with /", p)
	}
	raw := strings.Split(p[1:], "/")
	out := make([]string, len(raw))
	for i, s := range raw {
		s = strings.ReplaceAll(s, "~1", "/")
		s = strings.ReplaceAll(s, "~0", "~")
		out[i] = s
	}
	return out, nil
}
