package models

import "time"

// DiagnosisReport is the structured result of the AI-diagnosis step. The
// newest report for a user feeds the one-time intake handoff when their
// conversation with the expert is first established.
type DiagnosisReport struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"size:64;not null;index"`
	PlantName string `gorm:"size:128"`
	Summary   string `gorm:"type:text"`
	ImageURL  string `gorm:"size:512"`
	CreatedAt time.Time
}
