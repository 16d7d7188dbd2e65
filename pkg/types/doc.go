/*
Package types defines the core data structures shared across the artifact
repository: the Artifact record itself, its blob slots, and the tagged
attribute-value union used for type-declared custom attributes.

These types carry no persistence or validation logic of their own — see
pkg/storage for the persistence gateway and pkg/validation for the
attribute validator pipeline. Keeping them plain structs lets every other
package depend on this one without a cycle.
*/
package types
