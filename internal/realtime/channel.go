// Package realtime keeps a conversation transcript consistent across a
// push-based realtime transport, direct store reads/writes, and a local
// in-memory message list. It owns channel lifecycle, reconnection with a
// fixed backoff, duplicate suppression, and cache invalidation dispatch.
package realtime

import "github.com/verdia/trellis/internal/models"

// Status describes the state of one channel subscription as reported by
// the transport.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusSubscribed Status = "subscribed"
	StatusError      Status = "error"
	StatusClosed     Status = "closed"
)

// Subscription is one live channel scoped to a single conversation's
// message inserts. Status and Events are independent streams; both are
// closed when the subscription shuts down. While open, every matching
// insert anywhere in the system is delivered, including inserts caused by
// this client's own writes (self-echo is expected, not an error).
type Subscription interface {
	// Status reports lifecycle transitions: connecting, subscribed,
	// error, closed.
	Status() <-chan Status

	// Events carries newly created message records as the backing store
	// pushes them.
	Events() <-chan models.Message

	// Close unsubscribes and releases transport resources. Safe to call
	// multiple times and safe to call on a subscription that never
	// finished connecting.
	Close()
}

// Transport opens channel subscriptions. Subscribe returns a live
// Subscription immediately; connection failures surface on the status
// stream as StatusError, never as a panic or returned error past this
// boundary.
type Transport interface {
	Subscribe(conversationID string) Subscription
}
