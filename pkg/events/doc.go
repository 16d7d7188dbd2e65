// Package events provides the in-memory notification broker: a
// non-blocking pub/sub bus that the lifecycle engine publishes artifact
// lifecycle notifications to after each commit.
//
// Publish is fire-and-forget: a full subscriber buffer drops the event
// rather than blocking the publisher, and emission never fails a request.
// Because there is a single broadcast goroutine draining one event
// channel, events published by a single serialized committer (the
// lifecycle engine, guarded by the per-artifact transaction) are
// delivered to subscribers in the same order they were published.
package events
