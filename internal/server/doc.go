// Package server exposes the HTTP interface described by this module's
// external-interface contract: artifact CRUD, JSON Patch, blob upload
// and download, tag management, and type schema retrieval, all routed
// through go-chi/chi and backed by pkg/lifecycle and pkg/query.
package server
