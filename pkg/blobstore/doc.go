// Package blobstore implements the Blob Store Adapter: it streams blob
// bytes to and from a backing store, computes an MD5 checksum as bytes
// pass through (the checksum algorithm is fixed for bit-exact
// compatibility with existing clients, not chosen for strength), and
// probes externally hosted URLs without persisting their bytes.
//
// FilesystemAdapter is the default backend, one file per slot under a
// base directory, adapted from the base-path-plus-per-id-subdirectory
// layout used for local volumes elsewhere in this module's lineage.
// Backends are swappable behind the Adapter interface; callers never
// see backend-specific keys, only the (tenant, artifact, slot) tuple
// Key derives them from.
package blobstore
