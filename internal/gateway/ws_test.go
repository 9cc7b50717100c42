package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/verdia/trellis/internal/realtime"
)

func TestSubscribeStreamsBrokerEvents(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.router)
	defer srv.Close()

	conv := g.createConversation(t, "user-1")

	transport := realtime.NewWSTransport(srv.URL, nil)
	sub := transport.Subscribe(conv.ID)
	defer sub.Close()

	// Wait for the subscription to attach before writing.
	deadline := time.After(2 * time.Second)
	for subscribed := false; !subscribed; {
		select {
		case st := <-sub.Status():
			if st == realtime.StatusError {
				t.Fatal("subscription failed")
			}
			subscribed = st == realtime.StatusSubscribed
		case <-deadline:
			t.Fatal("subscription never reported subscribed")
		}
	}

	w := g.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", realtime.NewMessage{
		SenderID: "user-1",
		Body:     "streamed hello",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("post message: status %d", w.Code)
	}

	select {
	case got := <-sub.Events():
		if got.Body != "streamed hello" || got.ConversationID != conv.ID {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived over the websocket")
	}
}

func TestSubscribeCleansUpOnClientClose(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.router)
	defer srv.Close()

	conv := g.createConversation(t, "user-1")

	sub := realtime.NewWSTransport(srv.URL, nil).Subscribe(conv.ID)

	deadline := time.Now().Add(2 * time.Second)
	for g.broker.SubscriberCount(conv.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("broker never saw the subscriber")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sub.Close()
	for g.broker.SubscriberCount(conv.ID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("broker subscriber leaked after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
