package realtime

import (
	"testing"
	"time"

	"github.com/verdia/trellis/internal/models"
)

func msg(id, body string) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       "user-1",
		Body:           body,
		SentAt:         time.Now().UTC(),
	}
}

func TestMessageList_AppendDeduplicates(t *testing.T) {
	l := NewMessageList()

	if !l.Append(msg("m1", "hello")) {
		t.Fatal("first append should report added")
	}
	if l.Append(msg("m1", "hello again")) {
		t.Error("duplicate append should report not added")
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestMessageList_PreservesArrivalOrder(t *testing.T) {
	l := NewMessageList()
	l.Append(msg("m1", "first"))
	l.Append(msg("m2", "second"))
	l.Append(msg("m1", "dup"))
	l.Append(msg("m3", "third"))

	snap := l.Snapshot()
	want := []string{"m1", "m2", "m3"}
	if len(snap) != len(want) {
		t.Fatalf("got %d messages, want %d", len(snap), len(want))
	}
	for i, id := range want {
		if snap[i].ID != id {
			t.Errorf("snapshot[%d].ID = %q, want %q", i, snap[i].ID, id)
		}
	}
}

func TestMessageList_ReplaceDiscardsPrevious(t *testing.T) {
	l := NewMessageList()
	l.Append(msg("old", "stale"))

	l.Replace([]models.Message{msg("h1", "a"), msg("h2", "b"), msg("h1", "dup")})

	if l.Contains("old") {
		t.Error("replaced list should not contain previous entries")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
	// History dedup keeps the first occurrence; the id is live again for
	// future appends.
	if l.Append(msg("h2", "echo")) {
		t.Error("append of an id present in history should be dropped")
	}
}

func TestMessageList_SnapshotIsACopy(t *testing.T) {
	l := NewMessageList()
	l.Append(msg("m1", "hello"))

	snap := l.Snapshot()
	snap[0].Body = "mutated"

	if got := l.Snapshot()[0].Body; got != "hello" {
		t.Errorf("list body = %q, want %q", got, "hello")
	}
}

func TestMessageList_Clear(t *testing.T) {
	l := NewMessageList()
	l.Append(msg("m1", "hello"))
	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", l.Len())
	}
	if !l.Append(msg("m1", "again")) {
		t.Error("cleared list should accept previously seen ids")
	}
}
