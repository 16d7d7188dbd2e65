// Package lifecycle is the Lifecycle Engine: the hub every mutating
// request funnels through. It owns the status/visibility state machine,
// the authorization matrix, required-on-activate enforcement, and
// dispatch to the Patch Engine and Blob Store Adapter.
package lifecycle
