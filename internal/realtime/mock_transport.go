package realtime

import (
	"sync"

	"github.com/verdia/trellis/internal/models"
)

// MockTransport implements Transport for testing. Every Subscribe call
// hands back a MockSubscription the test drives directly: push statuses,
// push events, observe Close. With auto-subscribe enabled, each new
// subscription reports connecting then subscribed immediately.
type MockTransport struct {
	mu      sync.Mutex
	subs    []*MockSubscription
	autoSub bool
}

// NewMockTransport creates a MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// SetAutoSubscribe makes future subscriptions report connecting and
// subscribed as soon as they are opened.
func (t *MockTransport) SetAutoSubscribe(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.autoSub = v
}

// Subscribe implements Transport.
func (t *MockTransport) Subscribe(conversationID string) Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub := &MockSubscription{
		ConversationID: conversationID,
		status:         make(chan Status, 8),
		events:         make(chan models.Message, 64),
	}
	t.subs = append(t.subs, sub)
	if t.autoSub {
		sub.status <- StatusConnecting
		sub.status <- StatusSubscribed
	}
	return sub
}

// SubscribeCount returns how many subscriptions were opened.
func (t *MockTransport) SubscribeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Sub returns the i-th subscription opened (zero-based).
func (t *MockTransport) Sub(i int) *MockSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[i]
}

// LastSub returns the most recently opened subscription, or nil.
func (t *MockTransport) LastSub() *MockSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return nil
	}
	return t.subs[len(t.subs)-1]
}

// MockSubscription is a scriptable Subscription.
type MockSubscription struct {
	ConversationID string

	mu     sync.Mutex
	closed bool
	status chan Status
	events chan models.Message
}

// Status implements Subscription.
func (s *MockSubscription) Status() <-chan Status { return s.status }

// Events implements Subscription.
func (s *MockSubscription) Events() <-chan models.Message { return s.events }

// Close implements Subscription. Idempotent.
func (s *MockSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.status)
	close(s.events)
}

// Closed reports whether Close has been called.
func (s *MockSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PushStatus emits a status transition. No-op after Close.
func (s *MockSubscription) PushStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.status <- st
}

// PushEvent delivers a message event. No-op after Close.
func (s *MockSubscription) PushEvent(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- msg
}
