package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/verdia/trellis/internal/models"
)

// Sentinel errors returned by Engine.Send.
var (
	ErrNoConversation = errors.New("realtime: no active conversation")
	ErrSendInFlight   = errors.New("realtime: send already in flight")
	ErrEmptyMessage   = errors.New("realtime: message requires text or attachment")
)

// IntakeMetadata marks a message as the one-time diagnosis handoff.
const IntakeMetadata = `{"kind":"diagnosis_intake"}`

// NewMessage is the write request handed to the backing store. The store
// assigns the identifier and the authoritative sent-at timestamp.
type NewMessage struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Body           string `json:"body"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	Metadata       string `json:"metadata,omitempty"`
}

// Store is the backing-store contract the engine consumes. Implementations
// live in internal/store (GORM) and internal/store (HTTP client); the
// engine never talks to a database or network directly.
type Store interface {
	// FindOrCreateConversation returns the single active conversation for
	// the (user, expert) pair, creating it on first contact. Idempotent.
	FindOrCreateConversation(ctx context.Context, userID, expertID string) (*models.Conversation, error)

	// LoadMessages returns the conversation's full history ordered
	// ascending by sent-at.
	LoadMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// CreateMessage durably writes one message and returns the confirmed
	// row.
	CreateMessage(ctx context.Context, req NewMessage) (*models.Message, error)

	// IsIntakeSent reports whether the one-time diagnosis handoff has
	// already been delivered into this conversation.
	IsIntakeSent(ctx context.Context, conversationID string) (bool, error)

	// MarkIntakeSent records the handoff as delivered.
	MarkIntakeSent(ctx context.Context, conversationID string) error
}

// Invalidator is the cache invalidation bridge: it marks read-path cache
// entries stale whenever the engine observes fresher data. Implementations
// must not fail loudly; a missed invalidation degrades to an eventually
// stale read, not data loss.
type Invalidator interface {
	InvalidateOnNewMessage(conversationID string)
	InvalidateConversation(conversationID, userID string)
}

// IntakePayload is the structured intake content sent once per
// conversation before interactive messages flow.
type IntakePayload struct {
	Body          string
	AttachmentURL string
}

// IntakeSource supplies the one-time handoff payload for a user, typically
// the newest AI-diagnosis summary. Returning (nil, nil) means there is
// nothing to hand off.
type IntakeSource interface {
	Payload(ctx context.Context, userID string) (*IntakePayload, error)
}

// Notifier is told about messages this client successfully wrote, so the
// expert can be pinged out-of-band. Best-effort: failures are logged and
// never propagated.
type Notifier interface {
	MessagePosted(ctx context.Context, msg models.Message) error
}

// Engine is the conversation sync orchestrator. It resolves the
// conversation, loads history into the message list, supervises the
// realtime channel, applies incoming events through the dedup rule, and
// exposes a write-through send. One Engine serves one participant and at
// most one active conversation at a time.
type Engine struct {
	store       Store
	transport   Transport
	invalidator Invalidator
	intake      IntakeSource
	notifier    Notifier
	expertID    string
	out         io.Writer

	list *MessageList
	sup  *Supervisor

	mu        sync.Mutex
	userID    string
	conv      *models.Conversation
	starting  bool
	sending   bool
	connected bool
	initErr   error
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	Store       Store
	Transport   Transport
	Invalidator Invalidator
	ExpertID    string
	Intake      IntakeSource  // optional; enables the one-time handoff
	Notifier    Notifier      // optional; pings the recipient on sends
	RetryDelay  time.Duration // channel retry delay; defaults to DefaultRetryDelay
	Out         io.Writer     // optional progress output
}

// NewEngine creates an Engine. Start must be called before messages flow.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("realtime: engine: store is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("realtime: engine: transport is required")
	}
	if opts.Invalidator == nil {
		return nil, fmt.Errorf("realtime: engine: invalidator is required")
	}
	if opts.ExpertID == "" {
		return nil, fmt.Errorf("realtime: engine: expert id is required")
	}

	e := &Engine{
		store:       opts.Store,
		transport:   opts.Transport,
		invalidator: opts.Invalidator,
		intake:      opts.Intake,
		notifier:    opts.Notifier,
		expertID:    opts.ExpertID,
		out:         opts.Out,
		list:        NewMessageList(),
	}
	sup, err := NewSupervisor(SupervisorOpts{
		Transport:  opts.Transport,
		RetryDelay: opts.RetryDelay,
		OnMessage:  e.handleEvent,
		OnChange:   e.setConnected,
	})
	if err != nil {
		return nil, err
	}
	e.sup = sup
	return e, nil
}

// Start resolves (or lazily creates) the user's conversation with the
// expert, loads its history, delivers the intake handoff if still pending,
// and begins channel supervision. Concurrent calls while a start is in
// flight are ignored, as is a repeat call for the user already active.
// Failure is terminal for this call: the engine does not retry on its own,
// and the caller decides whether to call Start again.
func (e *Engine) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("realtime: start: user id is required")
	}

	e.mu.Lock()
	if e.starting {
		e.mu.Unlock()
		return nil
	}
	if e.conv != nil {
		already := e.userID == userID
		e.mu.Unlock()
		if already {
			return nil
		}
		return fmt.Errorf("realtime: start: engine active for another user; call Reset first")
	}
	e.starting = true
	e.initErr = nil
	e.mu.Unlock()

	conv, err := e.store.FindOrCreateConversation(ctx, userID, e.expertID)
	if err != nil {
		return e.failStart(fmt.Errorf("realtime: start: resolve conversation: %w", err))
	}

	history, err := e.store.LoadMessages(ctx, conv.ID)
	if err != nil {
		return e.failStart(fmt.Errorf("realtime: start: load history: %w", err))
	}

	e.list.Replace(history)

	e.mu.Lock()
	e.userID = userID
	e.conv = conv
	e.starting = false
	e.mu.Unlock()

	e.deliverIntake(ctx, conv, userID)

	if err := e.sup.Start(conv.ID); err != nil {
		// Defensive: the supervisor is stopped whenever conv is nil.
		log.Printf("realtime: start: supervisor: %v", err)
	}

	e.logf("conversation %s ready (%d messages)\n", conv.ID, e.list.Len())
	return nil
}

// failStart records a terminal initialization error and releases the
// in-flight guard.
func (e *Engine) failStart(err error) error {
	e.mu.Lock()
	e.starting = false
	e.initErr = err
	e.mu.Unlock()
	return err
}

// deliverIntake performs the one-time handoff: if the persisted flag shows
// the payload was never delivered into this conversation, send it before
// interactive messages flow. All failures here are logged and skipped; the
// flag stays unset in the store, so the next Start retries.
func (e *Engine) deliverIntake(ctx context.Context, conv *models.Conversation, userID string) {
	if e.intake == nil {
		return
	}
	sent, err := e.store.IsIntakeSent(ctx, conv.ID)
	if err != nil {
		log.Printf("realtime: intake: read flag: %v", err)
		return
	}
	if sent {
		return
	}
	payload, err := e.intake.Payload(ctx, userID)
	if err != nil {
		log.Printf("realtime: intake: payload: %v", err)
		return
	}
	if payload == nil {
		return
	}

	msg, err := e.store.CreateMessage(ctx, NewMessage{
		ConversationID: conv.ID,
		SenderID:       userID,
		RecipientID:    e.expertID,
		Body:           payload.Body,
		AttachmentURL:  payload.AttachmentURL,
		Metadata:       IntakeMetadata,
	})
	if err != nil {
		log.Printf("realtime: intake: send: %v", err)
		return
	}
	e.list.Append(*msg)
	e.invalidator.InvalidateOnNewMessage(conv.ID)
	e.invalidator.InvalidateConversation(conv.ID, userID)
	if err := e.store.MarkIntakeSent(ctx, conv.ID); err != nil {
		log.Printf("realtime: intake: mark sent: %v", err)
	}
}

// Send writes a message through to the backing store and, on confirmation,
// reflects the stored row into the local list. Write-then-reflect is
// deliberate: no optimistic temp-id entry exists before the store confirms,
// so a failed send leaves nothing to roll back. The channel may later echo
// the same row; the identifier dedup rule drops whichever copy arrives
// second. Sends are single-flight per conversation; an empty recipient
// defaults to the expert.
func (e *Engine) Send(ctx context.Context, recipientID, text, imageURL string) (*models.Message, error) {
	e.mu.Lock()
	if e.conv == nil {
		e.mu.Unlock()
		return nil, ErrNoConversation
	}
	if e.sending {
		e.mu.Unlock()
		return nil, ErrSendInFlight
	}
	if strings.TrimSpace(text) == "" && imageURL == "" {
		e.mu.Unlock()
		return nil, ErrEmptyMessage
	}
	conv := e.conv
	senderID := e.userID
	e.sending = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.sending = false
		e.mu.Unlock()
	}()

	if recipientID == "" {
		recipientID = e.expertID
	}

	msg, err := e.store.CreateMessage(ctx, NewMessage{
		ConversationID: conv.ID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Body:           text,
		AttachmentURL:  imageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: send: %w", err)
	}

	e.list.Append(*msg)
	e.invalidator.InvalidateOnNewMessage(conv.ID)
	e.invalidator.InvalidateConversation(conv.ID, senderID)

	if e.notifier != nil {
		if nerr := e.notifier.MessagePosted(ctx, *msg); nerr != nil {
			log.Printf("realtime: notify: %v", nerr)
		}
	}
	return msg, nil
}

// handleEvent applies one channel delivery. Events tagged with a stale or
// foreign conversation id are dropped; everything else goes through the
// dedup rule. The invalidation bridge is notified regardless of the dedup
// outcome: a duplicate event still signals that the conversation may have
// fresher data elsewhere.
func (e *Engine) handleEvent(msg models.Message) {
	e.mu.Lock()
	conv := e.conv
	e.mu.Unlock()
	if conv == nil || msg.ConversationID != conv.ID {
		return
	}
	e.list.Append(msg)
	e.invalidator.InvalidateOnNewMessage(conv.ID)
}

// setConnected tracks the supervisor's connection flag.
func (e *Engine) setConnected(connected bool) {
	e.mu.Lock()
	e.connected = connected
	e.mu.Unlock()
}

// Reset tears the engine down for a context switch (logout, account
// change): the supervisor stops synchronously, clearing any pending retry,
// and the conversation id and local list are cleared so late transport
// deliveries fall into the stale-event guard.
func (e *Engine) Reset() {
	e.sup.Stop()
	e.mu.Lock()
	e.conv = nil
	e.userID = ""
	e.connected = false
	e.sending = false
	e.starting = false
	e.initErr = nil
	e.mu.Unlock()
	e.list.Clear()
}

// Messages returns a read-only snapshot of the local transcript.
func (e *Engine) Messages() []models.Message {
	return e.list.Snapshot()
}

// Connected reports whether the realtime channel is currently subscribed.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// ConversationID returns the active conversation id, or empty when the
// engine is not started.
func (e *Engine) ConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conv == nil {
		return ""
	}
	return e.conv.ID
}

// InitError returns the most recent terminal Start failure, if any.
func (e *Engine) InitError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

// logf writes operator-facing progress output when configured.
func (e *Engine) logf(format string, args ...any) {
	if e.out == nil {
		return
	}
	fmt.Fprintf(e.out, format, args...)
}
