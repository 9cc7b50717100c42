package realtime

import (
	"sync"

	"github.com/verdia/trellis/internal/models"
)

// MessageList is the local transcript for the active conversation: an
// ordered, identifier-deduplicated sequence of messages. Initial history is
// installed in store order (ascending sent-at); later arrivals are appended
// in arrival order. Only the sync engine mutates it.
type MessageList struct {
	mu   sync.Mutex
	msgs []models.Message
	seen map[string]struct{}
}

// NewMessageList creates an empty MessageList.
func NewMessageList() *MessageList {
	return &MessageList{seen: make(map[string]struct{})}
}

// Replace installs the initial history, discarding any previous content.
// Duplicated identifiers within the history keep their first occurrence.
func (l *MessageList) Replace(history []models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = l.msgs[:0]
	l.seen = make(map[string]struct{}, len(history))
	for _, m := range history {
		if _, dup := l.seen[m.ID]; dup {
			continue
		}
		l.seen[m.ID] = struct{}{}
		l.msgs = append(l.msgs, m)
	}
}

// Append adds a message to the end of the list. Appending an identifier
// already present is a no-op; Append reports whether the message was added.
func (l *MessageList) Append(m models.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.seen[m.ID]; dup {
		return false
	}
	l.seen[m.ID] = struct{}{}
	l.msgs = append(l.msgs, m)
	return true
}

// Contains reports whether a message identifier is present.
func (l *MessageList) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

// Snapshot returns a copy of the current transcript.
func (l *MessageList) Snapshot() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages in the list.
func (l *MessageList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Clear empties the list.
func (l *MessageList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
	l.seen = make(map[string]struct{})
}
