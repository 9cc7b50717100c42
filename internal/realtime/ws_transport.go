package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/verdia/trellis/internal/models"
)

// WSTransport opens channel subscriptions over the gateway's websocket
// subscribe endpoint. Message records arrive as JSON frames. Dial and read
// failures surface on the status stream per the Transport contract; the
// supervisor owns reconnection, so each subscription is single-shot.
type WSTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewWSTransport creates a websocket transport against the gateway base
// URL (http or https; the scheme is converted for dialing).
func NewWSTransport(baseURL string, httpClient *http.Client) *WSTransport {
	return &WSTransport{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

// Subscribe implements Transport.
func (t *WSTransport) Subscribe(conversationID string) Subscription {
	sub := &wsSubscription{
		status: make(chan Status, 8),
		events: make(chan models.Message, 64),
		done:   make(chan struct{}),
	}
	target := fmt.Sprintf("%s/v1/conversations/%s/subscribe",
		wsScheme(t.baseURL), url.PathEscape(conversationID))
	go sub.run(target, t.httpClient)
	return sub
}

// wsScheme rewrites http/https base URLs to ws/wss.
func wsScheme(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

type wsSubscription struct {
	status chan Status
	events chan models.Message
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscription) Status() <-chan Status { return s.status }

func (s *wsSubscription) Events() <-chan models.Message { return s.events }

// Close tears the connection down and stops the read loop. Idempotent and
// safe before the dial completes.
func (s *wsSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "unsubscribe")
		}
	})
}

// run dials and pumps one websocket session, then closes both streams.
func (s *wsSubscription) run(target string, httpClient *http.Client) {
	defer func() {
		close(s.status)
		close(s.events)
	}()

	s.emit(StatusConnecting)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.done
		cancel()
	}()

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: httpClient,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if !s.requested() {
			s.emit(StatusError)
		}
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if s.requested() {
		conn.Close(websocket.StatusNormalClosure, "unsubscribe")
		return
	}

	s.emit(StatusSubscribed)

	for {
		var msg models.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if s.requested() {
				s.emit(StatusClosed)
			} else {
				s.emit(StatusError)
			}
			return
		}
		select {
		case s.events <- msg:
		case <-s.done:
			s.emit(StatusClosed)
			return
		}
	}
}

// requested reports whether Close was called by the owner.
func (s *wsSubscription) requested() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// emit pushes a status without ever blocking the read loop.
func (s *wsSubscription) emit(st Status) {
	select {
	case s.status <- st:
	default:
	}
}
