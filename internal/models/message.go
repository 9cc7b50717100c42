package models

import "time"

// Message is a single transcript entry. Messages are immutable once created;
// the store assigns the identifier and the authoritative sent-at timestamp.
// Metadata is a free-form JSON bag (e.g. marking diagnosis-intake messages).
type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index" json:"conversation_id"`
	SenderID       string    `gorm:"size:64;not null" json:"sender_id"`
	RecipientID    string    `gorm:"size:64;not null" json:"recipient_id"`
	Body           string    `gorm:"type:text" json:"body"`
	AttachmentURL  string    `gorm:"size:512" json:"attachment_url,omitempty"`
	Metadata       string    `gorm:"type:json" json:"metadata,omitempty"` // JSON object
	SentAt         time.Time `gorm:"not null;index" json:"sent_at"`
}
