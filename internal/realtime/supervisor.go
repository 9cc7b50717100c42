package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/verdia/trellis/internal/models"
)

// DefaultRetryDelay is the fixed pause between a channel failure and the
// next subscription attempt. Realtime transports drop connections under
// normal network conditions (backgrounding, Wi-Fi/cellular handoff); a
// bounded single-flight retry loop keeps the conversation live without a
// thundering herd of parallel reconnects.
const DefaultRetryDelay = 5 * time.Second

// State identifies the supervisor's position in its lifecycle.
type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateRetrying   State = "retrying"
)

// Supervisor wraps one logical channel subscription and re-establishes it
// after transport failure. Start and Stop are the only externally triggered
// transitions; everything else is driven by the underlying subscription's
// status stream. At most one retry timer is ever pending, and a failed
// subscription is always discarded, never reused.
type Supervisor struct {
	transport  Transport
	retryDelay time.Duration
	onMessage  func(models.Message)
	onChange   func(connected bool)

	mu             sync.Mutex
	state          State
	conversationID string
	sub            Subscription
	retryTimer     *time.Timer
	gen            int // bumped whenever the current subscription is invalidated
}

// SupervisorOpts holds parameters for creating a Supervisor.
type SupervisorOpts struct {
	Transport  Transport
	RetryDelay time.Duration        // defaults to DefaultRetryDelay
	OnMessage  func(models.Message) // required; invoked per delivered event
	OnChange   func(connected bool) // optional; connection-flag transitions
}

// NewSupervisor creates a Supervisor in the closed state.
func NewSupervisor(opts SupervisorOpts) (*Supervisor, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("realtime: supervisor: transport is required")
	}
	if opts.OnMessage == nil {
		return nil, fmt.Errorf("realtime: supervisor: message handler is required")
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &Supervisor{
		transport:  opts.Transport,
		retryDelay: delay,
		onMessage:  opts.OnMessage,
		onChange:   opts.OnChange,
		state:      StateClosed,
	}, nil
}

// Start opens a subscription for the conversation and begins supervising
// it. Returns an error if the supervisor is already running; switching
// conversations is Stop followed by Start, never implicit.
func (s *Supervisor) Start(conversationID string) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("realtime: supervisor: already started (state %s)", s.state)
	}
	s.state = StateConnecting
	s.conversationID = conversationID
	s.openLocked()
	s.mu.Unlock()
	return nil
}

// Stop tears the subscription down and cancels any pending retry so no
// reconnection fires after intentional shutdown. Safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasConnected := s.state == StateConnected
	s.state = StateClosed
	s.gen++
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.mu.Unlock()
	if wasConnected {
		s.notify(false)
	}
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the conversation being supervised (empty when
// never started).
func (s *Supervisor) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// openLocked opens a fresh subscription under the current generation and
// starts its pump. Caller holds s.mu.
func (s *Supervisor) openLocked() {
	sub := s.transport.Subscribe(s.conversationID)
	s.sub = sub
	go s.pump(sub, s.gen)
}

// pump drains one subscription's status and event streams until both close.
// The generation guard makes late deliveries from a discarded subscription
// harmless.
func (s *Supervisor) pump(sub Subscription, gen int) {
	statusCh := sub.Status()
	eventsCh := sub.Events()
	for statusCh != nil || eventsCh != nil {
		select {
		case st, ok := <-statusCh:
			if !ok {
				statusCh = nil
				continue
			}
			s.handleStatus(gen, st)
		case msg, ok := <-eventsCh:
			if !ok {
				eventsCh = nil
				continue
			}
			s.deliver(gen, msg)
		}
	}
}

// deliver forwards an event to the message handler unless the subscription
// has been superseded.
func (s *Supervisor) deliver(gen int, msg models.Message) {
	s.mu.Lock()
	stale := gen != s.gen || s.state == StateClosed
	s.mu.Unlock()
	if stale {
		return
	}
	s.onMessage(msg)
}

// handleStatus applies one status transition from the underlying
// subscription.
func (s *Supervisor) handleStatus(gen int, st Status) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateClosed {
		s.mu.Unlock()
		return
	}

	switch st {
	case StatusConnecting:
		s.mu.Unlock()
		return
	case StatusSubscribed:
		s.state = StateConnected
		s.mu.Unlock()
		s.notify(true)
		return
	case StatusError, StatusClosed:
		// A closed status here was not requested by us (Stop bumps the
		// generation first), so treat it like an error.
		wasConnected := s.state == StateConnected
		s.scheduleRetryLocked()
		s.mu.Unlock()
		if wasConnected {
			s.notify(false)
		}
		return
	default:
		s.mu.Unlock()
		return
	}
}

// scheduleRetryLocked discards the current subscription and arms the retry
// timer. A status update arriving while a retry is already pending does not
// schedule a second one. Caller holds s.mu.
func (s *Supervisor) scheduleRetryLocked() {
	if s.retryTimer != nil {
		return
	}
	s.state = StateRetrying
	s.gen++
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.retryTimer = time.AfterFunc(s.retryDelay, s.retry)
}

// retry fires when the retry delay elapses: open a fresh subscription
// unless the supervisor was stopped in the meantime.
func (s *Supervisor) retry() {
	s.mu.Lock()
	s.retryTimer = nil
	if s.state != StateRetrying {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.openLocked()
	s.mu.Unlock()
}

// notify reports a connection-flag change to the optional observer.
func (s *Supervisor) notify(connected bool) {
	if s.onChange != nil {
		s.onChange(connected)
	}
}
