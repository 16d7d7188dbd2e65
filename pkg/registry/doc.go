// Package registry maintains the mapping from artifact type name to
// type descriptor. Type modules are YAML documents, loaded from a
// configured directory at startup plus the sample_artifact fixture type
// built into this package; a malformed or duplicate module is a fatal
// ConflictError before the server starts accepting requests.
package registry
