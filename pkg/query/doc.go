// Package query implements the catalog Query Engine: filter, sort, and
// keyset-style pagination over a type's listing, with the same
// visibility scoping pkg/lifecycle applies to single-record reads.
package query
