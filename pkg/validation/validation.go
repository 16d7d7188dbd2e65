// Package validation implements the Attribute Validators: per-attribute
// and collection-level constraint checks, plus the coercion and
// nullability rules every custom attribute value is run through before
// it is accepted.
package validation

import (
	"fmt"

	"github.com/cuemby/relic/pkg/types"
)

// ValidationError reports why a single attribute's value was rejected.
type ValidationError struct {
	Attribute string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("attribute %q: %s", e.Attribute, e.Reason)
}

func badValue(attr, reason string) *ValidationError {
	return &ValidationError{Attribute: attr, Reason: reason}
}

// Validator checks a single attribute value and returns a non-nil error
// if it violates the rule. Collection validators (Unique,
// AllowedDictKeys, ...) receive the whole list/dict value; element
// validators are wrapped in ElementValidator to run once per member.
type Validator interface {
	Validate(attr string, v types.AttributeValue) error
}

// Descriptor is the minimal set of metadata ValidateAttribute needs from
// a type's attribute declaration. pkg/registry's AttributeDescriptor
// satisfies it.
type Descriptor interface {
	AttrName() string
	IsRequiredOnActivate() bool
	MaxLength() int           // 0 means unbounded; only meaningful for strings
	MaxItems() int            // 0 means unbounded; only meaningful for lists
	MaxProperties() int       // 0 means unbounded; only meaningful for dicts
	AttrValidators() []Validator
}

// ValidateAttribute runs the full pipeline for one attribute value:
// nullability, collection-level caps, then the declared validators in
// order. It does not perform kind coercion — callers coerce against the
// descriptor's declared scalar kind before calling this.
func ValidateAttribute(d Descriptor, v types.AttributeValue) error {
	name := d.AttrName()

	if v.Kind == "" {
		if d.IsRequiredOnActivate() {
			return badValue(name, "value cannot be null")
		}
		return nil
	}

	switch v.Kind {
	case types.KindStr:
		if max := d.MaxLength(); max > 0 && len(v.S) > max {
			return badValue(name, fmt.Sprintf("string exceeds maximum length %d", max))
		}
	case types.KindList:
		if max := d.MaxItems(); max > 0 && len(v.List) > max {
			return badValue(name, fmt.Sprintf("list exceeds maximum size %d", max))
		}
	case types.KindDict:
		if max := d.MaxProperties(); max > 0 && len(v.Dict) > max {
			return badValue(name, fmt.Sprintf("map exceeds maximum size %d", max))
		}
	}

	for _, validator := range d.AttrValidators() {
		if err := validator.Validate(name, v); err != nil {
			return err
		}
	}
	return nil
}

// CoerceScalar converts v into the target scalar kind following the
// lossless-conversion rules: integers accept any losslessly convertible
// value, strings accept scalars via their natural string representation,
// and structured values (lists/maps) are never accepted as scalar
// targets.
func CoerceScalar(attr string, v types.AttributeValue, target types.AttributeKind) (types.AttributeValue, error) {
	if v.Kind == "" {
		return v, nil
	}
	if v.Kind == target {
		return v, nil
	}
	if v.Kind == types.KindList || v.Kind == types.KindDict {
		return types.AttributeValue{}, badValue(attr, "structured value not allowed for a scalar attribute")
	}

	switch target {
	case types.KindStr:
		return types.AttributeValue{Kind: types.KindStr, S: scalarToString(v)}, nil
	case types.KindInt:
		switch v.Kind {
		case types.KindFloat:
			if v.F != float64(int64(v.F)) {
				return types.AttributeValue{}, badValue(attr, "float value is not losslessly convertible to an integer")
			}
			return types.AttributeValue{Kind: types.KindInt, I: int64(v.F)}, nil
		case types.KindStr:
			var n int64
			if _, err := fmt.Sscanf(v.S, "%d", &n); err != nil {
				return types.AttributeValue{}, badValue(attr, "string value is not an integer")
			}
			return types.AttributeValue{Kind: types.KindInt, I: n}, nil
		}
	case types.KindFloat:
		switch v.Kind {
		case types.KindInt:
			return types.AttributeValue{Kind: types.KindFloat, F: float64(v.I)}, nil
		case types.KindStr:
			var f float64
			if _, err := fmt.Sscanf(v.S, "%g", &f); err != nil {
				return types.AttributeValue{}, badValue(attr, "string value is not a number")
			}
			return types.AttributeValue{Kind: types.KindFloat, F: f}, nil
		}
	case types.KindBool:
		return types.AttributeValue{}, badValue(attr, "value is not a boolean")
	}
	return types.AttributeValue{}, badValue(attr, "value cannot be converted to the attribute's declared kind")
}

func scalarToString(v types.AttributeValue) string {
	switch v.Kind {
	case types.KindStr:
		return v.S
	case types.KindInt:
		return fmt.Sprintf("%d", v.I)
	case types.KindFloat:
		return fmt.Sprintf("%g", v.F)
	case types.KindBool:
		return fmt.Sprintf("%t", v.B)
	}
	return ""
}
