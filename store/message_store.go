// Package store implements the chat storage interfaces on gorm.
package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/models"
)

var _ chat.MessageStore = (*MessageStore)(nil)

// MessageStore is the gorm-backed message log.
type MessageStore struct {
	db      *gorm.DB
	maxText int
	now     func() time.Time
}

func NewMessageStore(db *gorm.DB, maxTextLength int) *MessageStore {
	return &MessageStore{db: db, maxText: maxTextLength, now: time.Now}
}

// Append assigns the next sequence number in the room and stores the
// message together with the sender's participation, in one transaction.
func (s *MessageStore) Append(ctx context.Context, in chat.NewMessage) (chat.Message, error) {
	room, err := chat.ValidateRoom(in.Room)
	if err != nil {
		return chat.Message{}, err
	}
	in.Room = room
	if in.SenderID == "" {
		return chat.Message{}, &chat.ValidationError{Field: "sender", Reason: "required"}
	}
	if err := chat.ValidateText(in.Text, s.maxText); err != nil {
		return chat.Message{}, err
	}

	var row models.Message
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&models.Message{}).
			Where("room = ?", in.Room).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}

		row = models.Message{
			Room:       in.Room,
			Seq:        last + 1,
			SenderID:   in.SenderID,
			SenderName: in.SenderName,
			Text:       in.Text,
			Timestamp:  in.Timestamp,
			CreatedAt:  s.now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return upsertParticipant(tx, models.RoomParticipant{
			Room:         in.Room,
			UserID:       in.SenderID,
			UserName:     in.SenderName,
			LastActiveAt: row.CreatedAt,
		})
	})
	if err != nil {
		return chat.Message{}, &chat.PersistenceError{Op: "append message", Err: err}
	}
	return toChatMessage(row), nil
}

// History returns the last limit messages of room in sequence order, or all
// of them when limit <= 0.
func (s *MessageStore) History(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	var rows []models.Message
	q := s.db.WithContext(ctx).Where("room = ?", room)
	if limit > 0 {
		q = q.Order("seq DESC").Limit(limit)
	} else {
		q = q.Order("seq ASC")
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, &chat.PersistenceError{Op: "load history", Err: err}
	}
	if limit > 0 {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, toChatMessage(r))
	}
	return out, nil
}

// LatestPerRoom returns the newest message of every room userID takes part in.
func (s *MessageStore) LatestPerRoom(ctx context.Context, userID string) (map[string]chat.Message, error) {
	db := s.db.WithContext(ctx)
	rooms := db.Model(&models.RoomParticipant{}).Select("room").Where("user_id = ?", userID)
	latest := db.Model(&models.Message{}).
		Select("room, MAX(seq) AS seq").
		Where("room IN (?)", rooms).
		Group("room")

	var rows []models.Message
	if err := db.Model(&models.Message{}).
		Select("messages.*").
		Joins("JOIN (?) AS latest ON latest.room = messages.room AND latest.seq = messages.seq", latest).
		Find(&rows).Error; err != nil {
		return nil, &chat.PersistenceError{Op: "latest per room", Err: err}
	}

	out := make(map[string]chat.Message, len(rows))
	for _, r := range rows {
		out[r.Room] = toChatMessage(r)
	}
	return out, nil
}

// Touch records that p took part in p.Room now.
func (s *MessageStore) Touch(ctx context.Context, p chat.Participant) error {
	if p.Room == "" || p.UserID == "" {
		return &chat.ValidationError{Field: "participant", Reason: "room and user are required"}
	}
	at := p.LastActiveAt
	if at.IsZero() {
		at = s.now().UTC()
	}
	err := upsertParticipant(s.db.WithContext(ctx), models.RoomParticipant{
		Room:         p.Room,
		UserID:       p.UserID,
		UserName:     p.UserName,
		LastActiveAt: at,
	})
	if err != nil {
		return &chat.PersistenceError{Op: "touch participant", Err: err}
	}
	return nil
}

// Participants lists everyone who took part in room, most recently active
// first.
func (s *MessageStore) Participants(ctx context.Context, room string) ([]chat.Participant, error) {
	var rows []models.RoomParticipant
	if err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("last_active_at DESC").
		Order("user_id").
		Find(&rows).Error; err != nil {
		return nil, &chat.PersistenceError{Op: "list participants", Err: err}
	}
	out := make([]chat.Participant, 0, len(rows))
	for _, r := range rows {
		out = append(out, toChatParticipant(r))
	}
	return out, nil
}

// Counterparts returns, per room, the most recently active participant other
// than userID. Rooms with nobody else are absent.
func (s *MessageStore) Counterparts(ctx context.Context, userID string, rooms []string) (map[string]chat.Participant, error) {
	out := make(map[string]chat.Participant)
	if len(rooms) == 0 {
		return out, nil
	}

	var rows []models.RoomParticipant
	if err := s.db.WithContext(ctx).
		Where("room IN ? AND user_id <> ?", rooms, userID).
		Order("last_active_at DESC").
		Order("user_id").
		Find(&rows).Error; err != nil {
		return nil, &chat.PersistenceError{Op: "list counterparts", Err: err}
	}
	for _, r := range rows {
		if _, ok := out[r.Room]; !ok {
			out[r.Room] = toChatParticipant(r)
		}
	}
	return out, nil
}

func upsertParticipant(tx *gorm.DB, p models.RoomParticipant) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_name", "last_active_at"}),
	}).Create(&p).Error
}

func toChatMessage(r models.Message) chat.Message {
	return chat.Message{
		Room:       r.Room,
		Seq:        r.Seq,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		Text:       r.Text,
		Timestamp:  r.Timestamp,
		CreatedAt:  r.CreatedAt,
	}
}

func toChatParticipant(r models.RoomParticipant) chat.Participant {
	return chat.Participant{
		Room:         r.Room,
		UserID:       r.UserID,
		UserName:     r.UserName,
		LastActiveAt: r.LastActiveAt,
	}
}
