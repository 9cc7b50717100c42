package store

import (
	"testing"
	"time"

	"github.com/verdia/trellis/internal/models"
	"github.com/verdia/trellis/internal/realtime"
)

func brokerMsg(id, convID string) models.Message {
	return models.Message{ID: id, ConversationID: convID, SenderID: "u", Body: "x", SentAt: time.Now().UTC()}
}

func TestBroker_FanOutPerConversation(t *testing.T) {
	b := NewBroker()

	a1, cancelA1 := b.Subscribe("conv-a")
	defer cancelA1()
	a2, cancelA2 := b.Subscribe("conv-a")
	defer cancelA2()
	other, cancelOther := b.Subscribe("conv-b")
	defer cancelOther()

	b.Publish(brokerMsg("m1", "conv-a"))

	for name, ch := range map[string]<-chan models.Message{"a1": a1, "a2": a2} {
		select {
		case got := <-ch:
			if got.ID != "m1" {
				t.Errorf("%s received %q, want m1", name, got.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s received nothing", name)
		}
	}

	select {
	case got := <-other:
		t.Errorf("conv-b subscriber received %q", got.ID)
	default:
	}
}

func TestBroker_CancelDetachesAndCloses(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("conv-a")

	if got := b.SubscriberCount("conv-a"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	cancel()
	cancel() // repeat is safe

	if got := b.SubscriberCount("conv-a"); got != 0 {
		t.Errorf("SubscriberCount after cancel = %d, want 0", got)
	}
	if _, open := <-ch; open {
		t.Error("cancelled channel should be closed")
	}

	// Publishing after the last subscriber left must not panic.
	b.Publish(brokerMsg("m1", "conv-a"))
}

func TestBroker_SlowSubscriberIsSkipped(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("conv-a")
	defer cancel()

	// Fill the buffer and then some; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			b.Publish(brokerMsg("m", "conv-a"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestBrokerTransport_ReportsSubscribedImmediately(t *testing.T) {
	b := NewBroker()
	transport := NewBrokerTransport(b)

	sub := transport.Subscribe("conv-a")
	defer sub.Close()

	var seen []realtime.Status
	timeout := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case st := <-sub.Status():
			seen = append(seen, st)
		case <-timeout:
			t.Fatalf("statuses = %v, want connecting then subscribed", seen)
		}
	}
	if seen[0] != realtime.StatusConnecting || seen[1] != realtime.StatusSubscribed {
		t.Errorf("statuses = %v, want [connecting subscribed]", seen)
	}

	b.Publish(brokerMsg("m1", "conv-a"))
	select {
	case got := <-sub.Events():
		if got.ID != "m1" {
			t.Errorf("event = %q, want m1", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBrokerTransport_CloseEndsBothStreams(t *testing.T) {
	b := NewBroker()
	sub := NewBrokerTransport(b).Subscribe("conv-a")

	sub.Close()
	sub.Close() // idempotent

	deadline := time.After(time.Second)
	statusOpen, eventsOpen := true, true
	for statusOpen || eventsOpen {
		select {
		case _, ok := <-sub.Status():
			statusOpen = ok
		case _, ok := <-sub.Events():
			eventsOpen = ok
		case <-deadline:
			t.Fatal("streams did not close")
		}
	}
	if got := b.SubscriberCount("conv-a"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}
