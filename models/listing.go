package models

import (
	"time"
)

// Listing is a lost or found item post. The chat relay only reads it to
// label conversations.
type Listing struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Type        string    `gorm:"size:20;not null" json:"type"` // lost, found
	Description string    `gorm:"type:text" json:"description"`
	UserID      uint      `gorm:"index" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
