package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedConversationEntries(t *testing.T, m *Memory) {
	t.Helper()
	ctx := context.Background()
	for _, key := range []string{
		MessagesKey("conv-1"),
		ConversationKey("conv-1"),
		UserConversationsKey("user-1"),
		MessagesKey("conv-other"),
	} {
		if err := m.Set(ctx, key, []byte("cached"), 0); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
}

func TestInvalidator_OnNewMessage(t *testing.T) {
	m := NewMemory()
	seedConversationEntries(t, m)

	NewInvalidator(m).InvalidateOnNewMessage("conv-1")

	ctx := context.Background()
	if _, ok, _ := m.Get(ctx, MessagesKey("conv-1")); ok {
		t.Error("message list entry should be dropped")
	}
	if _, ok, _ := m.Get(ctx, ConversationKey("conv-1")); ok {
		t.Error("conversation entry should be dropped")
	}
	if _, ok, _ := m.Get(ctx, UserConversationsKey("user-1")); !ok {
		t.Error("user list entry should survive a message-only invalidation")
	}
	if _, ok, _ := m.Get(ctx, MessagesKey("conv-other")); !ok {
		t.Error("other conversations should be untouched")
	}
}

func TestInvalidator_Conversation(t *testing.T) {
	m := NewMemory()
	seedConversationEntries(t, m)

	NewInvalidator(m).InvalidateConversation("conv-1", "user-1")

	ctx := context.Background()
	for _, key := range []string{MessagesKey("conv-1"), ConversationKey("conv-1"), UserConversationsKey("user-1")} {
		if _, ok, _ := m.Get(ctx, key); ok {
			t.Errorf("%s should be dropped", key)
		}
	}
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("backend down")
}

func (failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("backend down")
}

func (failingStore) Delete(ctx context.Context, keys ...string) error {
	return errors.New("backend down")
}

func TestInvalidator_SwallowsBackendFailure(t *testing.T) {
	inv := NewInvalidator(failingStore{})
	// Must not panic or propagate; failures are log-only.
	inv.InvalidateOnNewMessage("conv-1")
	inv.InvalidateConversation("conv-1", "user-1")
}
