package cache

import (
	"context"
	"log"
)

// Invalidator is the cache invalidation bridge: it drops read-path entries
// whenever the sync engine observes fresher data for a conversation, so
// non-realtime reads elsewhere in the app stop serving stale lists.
// Failures are logged and swallowed; a missed invalidation risks an
// eventually stale read, never data loss.
type Invalidator struct {
	store Store
}

// NewInvalidator creates an Invalidator over a cache backend.
func NewInvalidator(store Store) *Invalidator {
	return &Invalidator{store: store}
}

// InvalidateOnNewMessage drops the conversation-scoped entries.
func (i *Invalidator) InvalidateOnNewMessage(conversationID string) {
	err := i.store.Delete(context.Background(),
		MessagesKey(conversationID),
		ConversationKey(conversationID),
	)
	if err != nil {
		log.Printf("cache: invalidate conversation %s: %v", conversationID, err)
	}
}

// InvalidateConversation additionally drops the user's conversation-list
// entry (denormalized last-message fields changed).
func (i *Invalidator) InvalidateConversation(conversationID, userID string) {
	err := i.store.Delete(context.Background(),
		MessagesKey(conversationID),
		ConversationKey(conversationID),
		UserConversationsKey(userID),
	)
	if err != nil {
		log.Printf("cache: invalidate conversation %s for user %s: %v", conversationID, userID, err)
	}
}
