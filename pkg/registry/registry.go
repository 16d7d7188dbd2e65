// Package registry implements the Type Registry: it loads artifact-type
// definitions, holds the per-type attribute metadata the rest of the
// module resolves against, and renders Draft-4 JSON Schema documents for
// each type.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/relic/pkg/validation"
)

// Collection is the shape of a custom attribute's value.
type Collection string

const (
	CollectionScalar   Collection = "scalar"
	CollectionList     Collection = "list"
	CollectionDict     Collection = "dict"
	CollectionBlob     Collection = "blob"
	CollectionBlobDict Collection = "blob_dict"
)

// ScalarKind is the underlying primitive for a scalar attribute, or for
// the elements of a list/dict attribute.
type ScalarKind string

const (
	ScalarBool   ScalarKind = "bool"
	ScalarInt    ScalarKind = "int"
	ScalarFloat  ScalarKind = "float"
	ScalarString ScalarKind = "string"
)

// FilterOp is a comparison operator a query may apply to an attribute.
type FilterOp string

const (
	FilterEQ  FilterOp = "eq"
	FilterNEQ FilterOp = "neq"
	FilterIN  FilterOp = "in"
	FilterGT  FilterOp = "gt"
	FilterGTE FilterOp = "gte"
	FilterLT  FilterOp = "lt"
	FilterLTE FilterOp = "lte"
)

// AllFilterOps is the complete operator set, used by attributes that
// declare filter_ops_all: true.
var AllFilterOps = []FilterOp{FilterEQ, FilterNEQ, FilterIN, FilterGT, FilterGTE, FilterLT, FilterLTE}

// AttributeDescriptor is one custom attribute declared by a type.
type AttributeDescriptor struct {
	Name                string
	Collection          Collection
	ScalarKind          ScalarKind
	Dependency          bool
	RequiredOnActivate  bool
	Mutable             bool
	Sortable            bool
	System              bool
	Default             *RawValue
	FilterOps           []FilterOp
	MaxLen              int
	MaxItemsN           int
	MaxPropsN           int
	MaxBlobBytes        int64
	Validators          []validation.Validator
}

// AttrName, IsRequiredOnActivate, MaxLength, MaxItems, MaxProperties and
// AttrValidators satisfy validation.Descriptor.
func (a AttributeDescriptor) AttrName() string                   { return a.Name }
func (a AttributeDescriptor) IsRequiredOnActivate() bool          { return a.RequiredOnActivate }
func (a AttributeDescriptor) MaxLength() int                      { return a.MaxLen }
func (a AttributeDescriptor) MaxItems() int                       { return a.MaxItemsN }
func (a AttributeDescriptor) MaxProperties() int                  { return a.MaxPropsN }
func (a AttributeDescriptor) AttrValidators() []validation.Validator { return a.Validators }

// ReadOnly reports whether clients may never set this attribute
// directly — true for system attributes.
func (a AttributeDescriptor) ReadOnly() bool { return a.System }

// RawValue is a YAML/JSON-friendly scalar default, resolved into a
// types.AttributeValue by the caller that knows the attribute's kind.
type RawValue struct {
	Str   *string
	Int   *int64
	Float *float64
	Bool  *bool
}

// TypeDescriptor is the full definition of one artifact type: its
// ordered custom attributes and the type's own version string.
type TypeDescriptor struct {
	Name       string
	Version    string
	Attributes []AttributeDescriptor
}

// Attribute looks up a declared custom attribute by name.
func (t *TypeDescriptor) Attribute(name string) (AttributeDescriptor, bool) {
	for _, a := range t.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeDescriptor{}, false
}

// ConflictError is returned when two type modules declare the same type
// name, or a single module is malformed. It is fatal at boot.
type ConflictError struct {
	TypeName string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("registry conflict for type %q: %s", e.TypeName, e.Reason)
}

// Registry holds every loaded type descriptor, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*TypeDescriptor
}

// NewRegistry returns an empty registry. Callers load type modules via
// RegisterBuiltins/LoadDir before serving any request.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*TypeDescriptor)}
}

// Register adds desc to the registry. It fails with ConflictError if a
// type of the same name is already registered.
func (r *Registry) Register(desc *TypeDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[desc.Name]; exists {
		return &ConflictError{TypeName: desc.Name, Reason: "type already registered"}
	}
	r.types[desc.Name] = desc
	return nil
}

// GetType returns the descriptor for name, or false if no such type is
// registered.
func (r *Registry) GetType(name string) (*TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[name]
	return d, ok
}

// TypeNames returns every registered type name, sorted.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
