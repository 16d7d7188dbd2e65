package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cuemby/relic/pkg/validation"
	"gopkg.in/yaml.v3"
)

type typeFile struct {
	Name       string          `yaml:"name"`
	Version    string          `yaml:"version"`
	Attributes []attributeFile `yaml:"attributes"`
}

type attributeFile struct {
	Name               string          `yaml:"name"`
	Collection         string          `yaml:"collection"`
	ScalarKind         string          `yaml:"scalar_kind,omitempty"`
	Dependency         bool            `yaml:"dependency,omitempty"`
	RequiredOnActivate bool            `yaml:"required_on_activate,omitempty"`
	Mutable            bool            `yaml:"mutable,omitempty"`
	Sortable           bool            `yaml:"sortable,omitempty"`
	System             bool            `yaml:"system,omitempty"`
	Default            *string         `yaml:"default,omitempty"`
	FilterOps          []string        `yaml:"filter_ops,omitempty"`
	FilterOpsAll       bool            `yaml:"filter_ops_all,omitempty"`
	MaxLength          int             `yaml:"max_length,omitempty"`
	MaxItems           int             `yaml:"max_items,omitempty"`
	MaxProperties      int             `yaml:"max_properties,omitempty"`
	MaxBlobSize        int64           `yaml:"max_blob_size,omitempty"`
	Validators         []validatorFile `yaml:"validators,omitempty"`
}

type validatorFile struct {
	Type   string    `yaml:"type"`
	N      int       `yaml:"n,omitempty"`
	Chars  string    `yaml:"chars,omitempty"`
	Keys   []string  `yaml:"keys,omitempty"`
	Values []string  `yaml:"values,omitempty"`
	Min    *float64  `yaml:"min,omitempty"`
	Max    *float64  `yaml:"max,omitempty"`
	Inner  *validatorFile `yaml:"inner,omitempty"`
}

func buildValidator(v validatorFile) (validation.Validator, error) {
	switch v.Type {
	case "max_str_len":
		return validation.MaxStrLen(v.N), nil
	case "min_str_len":
		return validation.MinStrLen(v.N), nil
	case "forbidden_chars":
		return validation.ForbiddenChars(v.Chars), nil
	case "allowed_values":
		return validation.AllowedValues(v.Values), nil
	case "unique":
		return validation.Unique{}, nil
	case "allowed_list_values":
		return validation.AllowedListValues(v.Values), nil
	case "allowed_dict_keys":
		return validation.AllowedDictKeys(v.Keys), nil
	case "min_number_size":
		if v.Min == nil {
			return nil, fmt.Errorf("min_number_size requires min")
		}
		return validation.MinNumberSize(*v.Min), nil
	case "max_number_size":
		if v.Max == nil {
			return nil, fmt.Errorf("max_number_size requires max")
		}
		return validation.MaxNumberSize(*v.Max), nil
	case "max_dict_key_len":
		return validation.MaxDictKeyLen(v.N), nil
	case "element":
		if v.Inner == nil {
			return nil, fmt.Errorf("element validator requires inner")
		}
		inner, err := buildValidator(*v.Inner)
		if err != nil {
			return nil, err
		}
		return validation.ElementValidator{Inner: inner}, nil
	default:
		return nil, fmt.Errorf("unknown validator type %q", v.Type)
	}
}

func parseCollection(s string) (Collection, error) {
	switch Collection(s) {
	case CollectionScalar, CollectionList, CollectionDict, CollectionBlob, CollectionBlobDict:
		return Collection(s), nil
	case "":
		return CollectionScalar, nil
	default:
		return "", fmt.Errorf("unknown collection %q", s)
	}
}

func parseScalarKind(s string) (ScalarKind, error) {
	switch ScalarKind(s) {
	case ScalarBool, ScalarInt, ScalarFloat, ScalarString:
		return ScalarKind(s), nil
	case "":
		return ScalarString, nil
	default:
		return "", fmt.Errorf("unknown scalar_kind %q", s)
	}
}

func parseFilterOps(raw []string, all bool) ([]FilterOp, error) {
	if all {
		return AllFilterOps, nil
	}
	ops := make([]FilterOp, 0, len(raw))
	for _, s := range raw {
		switch FilterOp(s) {
		case FilterEQ, FilterNEQ, FilterIN, FilterGT, FilterGTE, FilterLT, FilterLTE:
			ops = append(ops, FilterOp(s))
		default:
			return nil, fmt.Errorf("unknown filter op %q", s)
		}
	}
	return ops, nil
}

func resolveDefault(raw *string, kind ScalarKind) (*RawValue, error) {
	if raw == nil {
		return nil, nil
	}
	switch kind {
	case ScalarInt:
		n, err := strconv.ParseInt(*raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("default %q is not an integer: %w", *raw, err)
		}
		return &RawValue{Int: &n}, nil
	case ScalarFloat:
		f, err := strconv.ParseFloat(*raw, 64)
		if err != nil {
			return nil, fmt.Errorf("default %q is not a number: %w", *raw, err)
		}
		return &RawValue{Float: &f}, nil
	case ScalarBool:
		b, err := strconv.ParseBool(*raw)
		if err != nil {
			return nil, fmt.Errorf("default %q is not a boolean: %w", *raw, err)
		}
		return &RawValue{Bool: &b}, nil
	default:
		s := *raw
		return &RawValue{Str: &s}, nil
	}
}

// ParseType decodes a single type module document into a TypeDescriptor,
// resolving its validator declarations against the built-in validator
// vocabulary. A malformed document is returned as a ConflictError so
// callers can treat it the same as a duplicate-type conflict at boot.
func ParseType(data []byte) (*TypeDescriptor, error) {
	var tf typeFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, &ConflictError{Reason: fmt.Sprintf("malformed type module: %v", err)}
	}
	if tf.Name == "" {
		return nil, &ConflictError{Reason: "type module is missing a name"}
	}

	desc := &TypeDescriptor{Name: tf.Name, Version: tf.Version}
	for _, af := range tf.Attributes {
		collection, err := parseCollection(af.Collection)
		if err != nil {
			return nil, &ConflictError{TypeName: tf.Name, Reason: err.Error()}
		}
		scalarKind, err := parseScalarKind(af.ScalarKind)
		if err != nil {
			return nil, &ConflictError{TypeName: tf.Name, Reason: err.Error()}
		}
		filterOps, err := parseFilterOps(af.FilterOps, af.FilterOpsAll)
		if err != nil {
			return nil, &ConflictError{TypeName: tf.Name, Reason: err.Error()}
		}
		def, err := resolveDefault(af.Default, scalarKind)
		if err != nil {
			return nil, &ConflictError{TypeName: tf.Name, Reason: err.Error()}
		}

		validators := make([]validation.Validator, 0, len(af.Validators))
		for _, vf := range af.Validators {
			v, err := buildValidator(vf)
			if err != nil {
				return nil, &ConflictError{TypeName: tf.Name, Reason: err.Error()}
			}
			validators = append(validators, v)
		}

		desc.Attributes = append(desc.Attributes, AttributeDescriptor{
			Name:               af.Name,
			Collection:         collection,
			ScalarKind:         scalarKind,
			Dependency:         af.Dependency,
			RequiredOnActivate: af.RequiredOnActivate,
			Mutable:            af.Mutable,
			Sortable:           af.Sortable,
			System:             af.System,
			Default:            def,
			FilterOps:          filterOps,
			MaxLen:             af.MaxLength,
			MaxItemsN:          af.MaxItems,
			MaxPropsN:          af.MaxProperties,
			MaxBlobBytes:       af.MaxBlobSize,
			Validators:         validators,
		})
	}
	return desc, nil
}

// LoadDir reads every *.yaml file in dir, parses it as a type module,
// and registers it. A duplicate type name across files, or a malformed
// file, aborts the whole load.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read type module directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read type module %s: %w", e.Name(), err)
		}
		desc, err := ParseType(data)
		if err != nil {
			return fmt.Errorf("load type module %s: %w", e.Name(), err)
		}
		if err := r.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
