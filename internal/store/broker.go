package store

import (
	"sync"

	"github.com/verdia/trellis/internal/models"
	"github.com/verdia/trellis/internal/realtime"
)

// subscriberBuffer is the per-subscriber event buffer. A subscriber that
// falls this far behind starts losing events rather than blocking writers;
// realtime delivery is best-effort and the history load covers gaps.
const subscriberBuffer = 64

// Broker fans committed message inserts out to per-conversation
// subscribers. Every subscriber of a conversation receives every insert,
// including inserts caused by the subscribing client's own writes.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[int]chan models.Message // conversationID -> subscriber set
	next int
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan models.Message)}
}

// Subscribe registers for one conversation's inserts. The returned cancel
// function removes the subscription and closes the channel; it is safe to
// call more than once.
func (b *Broker) Subscribe(conversationID string) (<-chan models.Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.Message, subscriberBuffer)
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[int]chan models.Message)
	}
	id := b.next
	b.next++
	b.subs[conversationID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[conversationID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.subs, conversationID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers one committed insert to the conversation's subscribers.
// Slow subscribers are skipped, never blocked on.
func (b *Broker) Publish(msg models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[msg.ConversationID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscribers for a
// conversation (for tests and diagnostics).
func (b *Broker) SubscriberCount(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[conversationID])
}

// BrokerTransport adapts a Broker to the realtime Transport contract for
// single-process deployments where the engine and the store share memory.
type BrokerTransport struct {
	broker *Broker
}

// NewBrokerTransport creates a Transport over the broker.
func NewBrokerTransport(b *Broker) *BrokerTransport {
	return &BrokerTransport{broker: b}
}

// Subscribe opens an in-process channel for the conversation. The broker
// cannot fail to attach, so the subscription reports connecting then
// subscribed immediately.
func (t *BrokerTransport) Subscribe(conversationID string) realtime.Subscription {
	events, cancel := t.broker.Subscribe(conversationID)
	sub := &brokerSubscription{
		status: make(chan realtime.Status, 4),
		events: events,
		cancel: cancel,
	}
	sub.status <- realtime.StatusConnecting
	sub.status <- realtime.StatusSubscribed
	return sub
}

type brokerSubscription struct {
	status chan realtime.Status
	events <-chan models.Message
	cancel func()
	once   sync.Once
}

func (s *brokerSubscription) Status() <-chan realtime.Status { return s.status }

func (s *brokerSubscription) Events() <-chan models.Message { return s.events }

// Close detaches from the broker and closes both streams. Idempotent.
func (s *brokerSubscription) Close() {
	s.once.Do(func() {
		s.cancel() // closes the events channel
		close(s.status)
	})
}
