package models

import (
	"time"
)

// RoomParticipant marks a user as part of a room's conversation. It is
// upserted whenever the user joins or sends.
type RoomParticipant struct {
	Room         string    `gorm:"primaryKey;size:64" json:"room"`
	UserID       string    `gorm:"primaryKey;size:64;index" json:"user_id"`
	UserName     string    `gorm:"size:255" json:"user_name"`
	LastActiveAt time.Time `gorm:"index" json:"last_active_at"`
}
