// Package store implements the Trellis backing store on GORM: conversation
// find-or-create, message history and writes, the intake-handoff flag, and
// the in-process broker that fans committed message inserts out to realtime
// subscribers.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdia/trellis/internal/models"
	"github.com/verdia/trellis/internal/realtime"
)

// Store wraps a GORM handle with the conversation and message operations
// the sync engine and the gateway consume. When a Broker is attached, every
// committed message insert is published to it, which is what makes writes
// observable on realtime channels, including the writer's own.
type Store struct {
	db     *gorm.DB
	broker *Broker
}

// Opts holds parameters for creating a Store.
type Opts struct {
	DB     *gorm.DB
	Broker *Broker // optional; enables realtime fan-out of inserts
}

// New creates a Store.
func New(opts Opts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: opts.DB, broker: opts.Broker}, nil
}

// FindOrCreateConversation returns the active conversation for the
// (user, expert) pair, creating it on first contact. The lookup and the
// create run in one transaction so rapid re-invocation cannot produce two
// active rows for the same pair.
func (s *Store) FindOrCreateConversation(ctx context.Context, userID, expertID string) (*models.Conversation, error) {
	if userID == "" || expertID == "" {
		return nil, fmt.Errorf("store: find-or-create: user and expert ids are required")
	}

	var conv *models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Conversation
		result := tx.Where("user_id = ? AND expert_id = ? AND status = ?",
			userID, expertID, models.ConversationActive).First(&existing)
		if result.Error == nil {
			conv = &existing
			return nil
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find conversation: %w", result.Error)
		}

		created := models.Conversation{
			ID:       uuid.NewString(),
			UserID:   userID,
			ExpertID: expertID,
			Status:   models.ConversationActive,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		conv = &created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: find-or-create conversation: %w", err)
	}
	return conv, nil
}

// LoadMessages returns the conversation's full history ordered ascending by
// sent-at (identifier as a stable tie-break).
func (s *Store) LoadMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	result := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at ASC, id ASC").
		Find(&msgs)
	if result.Error != nil {
		return nil, fmt.Errorf("store: load messages: %w", result.Error)
	}
	return msgs, nil
}

// CreateMessage durably writes one message, refreshes the conversation's
// denormalized last-message fields in the same transaction, and publishes
// the committed row to the broker. The store assigns the identifier and the
// sent-at timestamp; the returned row is the authoritative record.
func (s *Store) CreateMessage(ctx context.Context, req realtime.NewMessage) (*models.Message, error) {
	if req.ConversationID == "" || req.SenderID == "" {
		return nil, fmt.Errorf("store: create message: conversation and sender ids are required")
	}
	if req.Body == "" && req.AttachmentURL == "" {
		return nil, fmt.Errorf("store: create message: body or attachment is required")
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Body:           req.Body,
		AttachmentURL:  req.AttachmentURL,
		Metadata:       req.Metadata,
		SentAt:         now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		preview := msg.Body
		if preview == "" {
			preview = "[attachment]"
		}
		if len(preview) > 512 {
			preview = preview[:512]
		}
		result := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message_text": preview,
				"last_message_at":   now,
			})
		if result.Error != nil {
			return fmt.Errorf("update last message: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, gorm.ErrRecordNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: create message: %w", err)
	}

	if s.broker != nil {
		s.broker.Publish(msg)
	}
	return &msg, nil
}

// IsIntakeSent reports whether the one-time diagnosis handoff was already
// delivered into this conversation. The persisted flag is the source of
// truth so an app restart mid-conversation cannot cause a duplicate send.
func (s *Store) IsIntakeSent(ctx context.Context, conversationID string) (bool, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Select("id, intake_sent").
		First(&conv, "id = ?", conversationID).Error; err != nil {
		return false, fmt.Errorf("store: intake flag: %w", err)
	}
	return conv.IntakeSent, nil
}

// MarkIntakeSent records the handoff as delivered.
func (s *Store) MarkIntakeSent(ctx context.Context, conversationID string) error {
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("intake_sent", true)
	if result.Error != nil {
		return fmt.Errorf("store: mark intake sent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: mark intake sent: conversation %s not found", conversationID)
	}
	return nil
}

// GetConversation fetches one conversation by id.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		return nil, fmt.Errorf("store: get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns a user's conversations newest-activity first,
// for the app's conversation-list screen.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_message_at DESC").
		Find(&convs)
	if result.Error != nil {
		return nil, fmt.Errorf("store: list conversations: %w", result.Error)
	}
	return convs, nil
}

// CloseIdleConversations marks active conversations with no message newer
// than the cutoff as closed, returning how many were closed. Run by the
// housekeeping schedule.
func (s *Store) CloseIdleConversations(ctx context.Context, idleFor time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-idleFor)
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("status = ? AND last_message_at IS NOT NULL AND last_message_at < ?",
			models.ConversationActive, cutoff).
		Update("status", models.ConversationClosed)
	if result.Error != nil {
		return 0, fmt.Errorf("store: close idle conversations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// LatestDiagnosis returns the user's newest diagnosis report, or nil when
// none exists.
func (s *Store) LatestDiagnosis(ctx context.Context, userID string) (*models.DiagnosisReport, error) {
	var report models.DiagnosisReport
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&report)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("store: latest diagnosis: %w", result.Error)
	}
	return &report, nil
}
