// Package validation holds the per-attribute and collection-level
// constraint checks run over custom attribute values before they are
// persisted, and the scalar coercion rules that precede them.
package validation
