package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/relic/pkg/types"
)

// MaxStrLen rejects string values longer than n.
type MaxStrLen int

func (m MaxStrLen) Validate(attr string, v types.AttributeValue) error {
	if v.Kind != types.KindStr {
		return nil
	}
	if len(v.S) > int(m) {
		return badValue(attr, fmt.Sprintf("exceeds maximum length %d", int(m)))
	}
	return nil
}

// MinStrLen rejects string values shorter than n.
type MinStrLen int

func (m MinStrLen) Validate(attr string, v types.AttributeValue) error {
	if v.Kind != types.KindStr {
		return nil
	}
	if len(v.S) < int(m) {
		return badValue(attr, fmt.Sprintf("below minimum length %d", int(m)))
	}
	return nil
}

// ForbiddenChars rejects strings containing any rune in the set.
type ForbiddenChars string

func (f ForbiddenChars) Validate(attr string, v types.AttributeValue) error {
	if v.Kind != types.KindStr {
		return nil
	}
	if strings.ContainsAny(v.S, string(f)) {
		return badValue(attr, "contains a forbidden character")
	}
	return nil
}

// AllowedValues rejects scalar values whose string representation is not
// a member of the set.
type AllowedValues []string

func (a AllowedValues) Validate(attr string, v types.AttributeValue) error {
	s := scalarToString(v)
	for _, allowed := range a {
		if s == allowed {
			return nil
		}
	}
	return badValue(attr, fmt.Sprintf("value %q is not one of the allowed values", s))
}

// Unique rejects list values containing duplicate elements.
type Unique struct{}

func (Unique) Validate(attr string, v types.AttributeValue) error {
	if v.Kind != types.KindList {
		return nil
	}
	seen := make(map[string]bool, len(v.List))
	for _, el := range v.List {
		key := scalarToString(el)
		if seen[key] {
			return badValue(attr, fmt.Sprintf("duplicate value %q", key))
		}
		seen[key] = true
	}
	return nil
}

// AllowedListValues rejects list values containing an element whose
// string representation is not in the set.
type AllowedListValues []string

func (a AllowedListValues) Validate(attr string, v types.AttributeValue) error {
	if v.Kind != types.KindList {
		return nil
	}
	allowed := make(map[string]bool, len(a))
	for _, s := range a {
		allowed[s] = true
	}
	for _, el := range v.List {
		s := scalarToString(el)
		if !allowed[s] {
			return badValue(attr, fmt.Sprintf("list contains disallowed value %q", s))
		}
	}
	return nil
}

// AllowedDictKeys rejects map values containing a key outside the set.
type AllowedDictKeys []string

func (a AllowedDictKeys) Validate(attr string, v types.AttributeValue) error {
	if v.Kind != types.KindDict {
		return nil
	}
	allowed := make(map[string]bool, len(a))
	for _, k := range a {
		allowed[k] = true
	}
	keys := make([]string, 0, len(v.Dict))
	for k := range v.Dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !allowed[k] {
			return badValue(attr, fmt.Sprintf("map key %q is not allowed", k))
		}
	}
	return nil
}

// MinNumberSize rejects int/float values below n.
type MinNumberSize float64

func (m MinNumberSize) Validate(attr string, v types.AttributeValue) error {
	n, ok := numberOf(v)
	if !ok {
		return nil
	}
	if n < float64(m) {
		return badValue(attr, fmt.Sprintf("below minimum value %g", float64(m)))
	}
	return nil
}

// MaxNumberSize rejects int/float values above n.
type MaxNumberSize float64

func (m MaxNumberSize) Validate(attr string, v types.AttributeValue) error {
	n, ok := numberOf(v)
	if !ok {
		return nil
	}
	if n > float64(m) {
		return badValue(attr, fmt.Sprintf("exceeds maximum value %g", float64(m)))
	}
	return nil
}

// MaxDictKeyLen rejects map values with a key longer than n.
type MaxDictKeyLen int

func (m MaxDictKeyLen) Validate(attr string, v types.AttributeValue) error {
	if v.Kind != types.KindDict {
		return nil
	}
	for k := range v.Dict {
		if len(k) > int(m) {
			return badValue(attr, fmt.Sprintf("map key %q exceeds maximum key length %d", k, int(m)))
		}
	}
	return nil
}

// ElementValidator applies inner to every element of a list, or every
// value of a dict, rather than to the collection as a whole.
type ElementValidator struct {
	Inner Validator
}

func (e ElementValidator) Validate(attr string, v types.AttributeValue) error {
	switch v.Kind {
	case types.KindList:
		for _, el := range v.List {
			if err := e.Inner.Validate(attr, el); err != nil {
				return err
			}
		}
	case types.KindDict:
		keys := make([]string, 0, len(v.Dict))
		for k := range v.Dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := e.Inner.Validate(attr, v.Dict[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

func numberOf(v types.AttributeValue) (float64, bool) {
	switch v.Kind {
	case types.KindInt:
		return float64(v.I), true
	case types.KindFloat:
		return v.F, true
	}
	return 0, false
}
