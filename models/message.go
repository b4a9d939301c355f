package models

import (
	"time"
)

// Message is one stored chat line. Seq is assigned per room and never reused.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Room       string    `gorm:"size:64;not null;uniqueIndex:idx_room_seq,priority:1" json:"room"`
	Seq        int64     `gorm:"not null;uniqueIndex:idx_room_seq,priority:2" json:"seq"`
	SenderID   string    `gorm:"size:64;not null;index" json:"sender_id"`
	SenderName string    `gorm:"size:255;not null" json:"user"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Timestamp  string    `gorm:"size:64" json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}
