// Package chat is the real-time relay: room membership, per-session state,
// ordered fan-out and the per-user conversation list.
package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// PlaceholderTitle labels a room whose listing metadata is gone.
const PlaceholderTitle = "Listing unavailable"

// UnknownUser is shown when a room has no identifiable counterpart.
const UnknownUser = "Unknown"

// MaxRoomLength matches the width of the stored room columns.
const MaxRoomLength = 64

// Message is an immutable stored chat message. Seq defines the order within
// a room; Timestamp is whatever the client sent for display.
type Message struct {
	Room       string
	Seq        int64
	SenderID   string
	SenderName string
	Text       string
	Timestamp  string
	CreatedAt  time.Time
}

// DisplayTimestamp returns the client timestamp, or the server time when the
// client did not send one.
func (m Message) DisplayTimestamp() string {
	if m.Timestamp != "" {
		return m.Timestamp
	}
	return m.CreatedAt.UTC().Format(time.RFC3339)
}

// NewMessage is the input to MessageStore.Append.
type NewMessage struct {
	Room       string
	SenderID   string
	SenderName string
	Text       string
	Timestamp  string
}

// Participant records that a user sent to or received from a room.
type Participant struct {
	Room         string
	UserID       string
	UserName     string
	LastActiveAt time.Time
}

// Identity is the authenticated user attached to a connection.
type Identity struct {
	UserID string
	Name   string
}

// Listing is the metadata used to label a room.
type Listing struct {
	ID        string
	Title     string
	OwnerID   string
	OwnerName string
}

// Summary is one row of a user's conversation list.
type Summary struct {
	Room        string    `json:"room"`
	OtherUserID string    `json:"other_user_id"`
	OtherUser   string    `json:"other_user"`
	ItemTitle   string    `json:"item_title"`
	LastMessage string    `json:"last_message"`
	Timestamp   string    `json:"timestamp"`
	LastSeq     int64     `json:"last_seq"`
	LastAt      time.Time `json:"last_at"`
}

// MessageStore is the durable message log.
type MessageStore interface {
	Append(ctx context.Context, msg NewMessage) (Message, error)
	History(ctx context.Context, room string, limit int) ([]Message, error)
	LatestPerRoom(ctx context.Context, userID string) (map[string]Message, error)
	Touch(ctx context.Context, p Participant) error
	Participants(ctx context.Context, room string) ([]Participant, error)
	Counterparts(ctx context.Context, userID string, rooms []string) (map[string]Participant, error)
}

// ListingDirectory resolves listing ids to metadata. Missing ids are simply
// absent from the result.
type ListingDirectory interface {
	Listings(ctx context.Context, ids []string) (map[string]Listing, error)
}

// SummaryCache caches conversation lists per user. Get returns ErrCacheMiss
// when nothing is stored.
type SummaryCache interface {
	Get(ctx context.Context, userID string) ([]Summary, error)
	Set(ctx context.Context, userID string, summaries []Summary) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

// ListingID extracts the listing key from a room id. Rooms are either the
// bare listing id ("42") or a per-inquirer conversation ("42:7").
func ListingID(room string) string {
	if i := strings.IndexByte(room, ':'); i >= 0 {
		return room[:i]
	}
	return room
}

// ValidateRoom trims room and rejects empty or overlong ids.
func ValidateRoom(room string) (string, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return "", &ValidationError{Field: "room", Reason: "required"}
	}
	if len(room) > MaxRoomLength {
		return "", &ValidationError{Field: "room", Reason: "exceeds maximum length"}
	}
	return room, nil
}

// ValidateText rejects blank text and text longer than max runes.
func ValidateText(text string, max int) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if max > 0 && utf8.RuneCountInString(text) > max {
		return &ValidationError{Field: "text", Reason: "exceeds maximum length"}
	}
	return nil
}
