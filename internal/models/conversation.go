package models

import "time"

// Conversation statuses.
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Conversation is a persistent thread between one end user and the resident
// plant expert. At most one conversation per (user, expert) pair is active
// at any time; the store enforces this via idempotent find-or-create.
// Last-message fields are denormalized for list views and refreshed on
// every message write.
type Conversation struct {
	ID              string `gorm:"primaryKey;size:36"`
	UserID          string `gorm:"size:64;not null;index:idx_user_expert"`
	ExpertID        string `gorm:"size:64;not null;index:idx_user_expert"`
	Status          string `gorm:"size:16;default:active;index"` // active, closed
	LastMessageText string `gorm:"size:512"`
	LastMessageAt   *time.Time
	IntakeSent      bool `gorm:"default:false"` // one-time diagnosis handoff delivered
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Messages []Message `gorm:"foreignKey:ConversationID"`
}
