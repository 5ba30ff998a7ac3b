package models

import "time"

// ChatMessage records one exchange with the study assistant. The
// question is stored after sanitization, never raw user input.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text" json:"answer"`
	Grounded  bool      `gorm:"not null;default:false" json:"grounded"`
	CreatedAt time.Time `json:"created_at"`
}
