package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/config"
	"github.com/CUknot/lostfound_backend/database"
	"github.com/CUknot/lostfound_backend/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DBConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "chat.db"),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestStore(t *testing.T) *MessageStore {
	t.Helper()
	s := NewMessageStore(openTestDB(t), 2000)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func mustAppend(t *testing.T, s *MessageStore, room, senderID, name, text string) chat.Message {
	t.Helper()
	m, err := s.Append(context.Background(), chat.NewMessage{Room: room, SenderID: senderID, SenderName: name, Text: text})
	if err != nil {
		t.Fatalf("append %q: %v", text, err)
	}
	return m
}

func TestAppendAssignsSequencePerRoom(t *testing.T) {
	s := newTestStore(t)

	a1 := mustAppend(t, s, "42", "1", "alice", "hello")
	a2 := mustAppend(t, s, "42", "2", "bob", "how are you")
	b1 := mustAppend(t, s, "43", "1", "alice", "other room")

	if a1.Seq != 1 || a2.Seq != 2 || b1.Seq != 1 {
		t.Fatalf("seqs = %d %d %d", a1.Seq, a2.Seq, b1.Seq)
	}
	if a1.CreatedAt.IsZero() || a1.DisplayTimestamp() == "" {
		t.Fatal("missing server timestamp")
	}

	history, err := s.History(context.Background(), "42", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Text != "hello" || history[1].Text != "how are you" {
		t.Fatalf("history = %+v", history)
	}
	if history[0].SenderName != "alice" {
		t.Fatalf("sender = %q", history[0].SenderName)
	}
}

func TestAppendValidates(t *testing.T) {
	s := newTestStore(t)
	cases := []chat.NewMessage{
		{Room: "42", SenderID: "1", Text: ""},
		{Room: "42", SenderID: "1", Text: "   "},
		{Room: "", SenderID: "1", Text: "hi"},
		{Room: strings.Repeat("9", chat.MaxRoomLength+1), SenderID: "1", Text: "hi"},
		{Room: "42", SenderID: "", Text: "hi"},
	}
	for _, in := range cases {
		_, err := s.Append(context.Background(), in)
		var verr *chat.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Append(%+v) err = %v, want ValidationError", in, err)
		}
	}
	history, err := s.History(context.Background(), "42", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("invalid messages stored: %+v", history)
	}
}

func TestAppendFailureIsPersistenceError(t *testing.T) {
	s := newTestStore(t)
	sqlDB, err := s.db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.Close()

	_, err = s.Append(context.Background(), chat.NewMessage{Room: "42", SenderID: "1", Text: "hi"})
	var perr *chat.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	for _, text := range []string{"a", "b", "c", "d"} {
		mustAppend(t, s, "42", "1", "alice", text)
	}
	history, err := s.History(context.Background(), "42", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Text != "c" || history[1].Text != "d" {
		t.Fatalf("history = %+v", history)
	}
}

func TestLatestPerRoomAndCounterparts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustAppend(t, s, "42:2", "2", "bob", "is this yours?")
	mustAppend(t, s, "42:2", "1", "alice", "yes")
	mustAppend(t, s, "55", "3", "carol", "found it")
	if err := s.Touch(ctx, chat.Participant{Room: "55", UserID: "1", UserName: "alice"}); err != nil {
		t.Fatal(err)
	}
	mustAppend(t, s, "77", "3", "carol", "not for alice")

	latest, err := s.LatestPerRoom(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 {
		t.Fatalf("latest = %+v", latest)
	}
	if m := latest["42:2"]; m.Text != "yes" || m.Seq != 2 {
		t.Fatalf("latest 42:2 = %+v", m)
	}
	if m := latest["55"]; m.Text != "found it" {
		t.Fatalf("latest 55 = %+v", m)
	}

	others, err := s.Counterparts(ctx, "1", []string{"42:2", "55"})
	if err != nil {
		t.Fatal(err)
	}
	if others["42:2"].UserName != "bob" || others["55"].UserName != "carol" {
		t.Fatalf("counterparts = %+v", others)
	}

	participants, err := s.Participants(ctx, "42:2")
	if err != nil {
		t.Fatal(err)
	}
	if len(participants) != 2 || participants[0].UserID != "1" {
		t.Fatalf("participants = %+v", participants)
	}
}

func TestTouchUpdatesExistingParticipant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Touch(ctx, chat.Participant{Room: "42", UserID: "1", UserName: "alice"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Touch(ctx, chat.Participant{Room: "42", UserID: "1", UserName: "alice2"}); err != nil {
		t.Fatal(err)
	}
	ps, err := s.Participants(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 1 || ps[0].UserName != "alice2" {
		t.Fatalf("participants = %+v", ps)
	}
}

func TestListings(t *testing.T) {
	db := openTestDB(t)
	owner := models.User{Username: "alice", Email: "alice@example.com", Password: "secret1"}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatal(err)
	}
	listing := models.Listing{Title: "Black wallet", Type: "lost", UserID: owner.ID}
	if err := db.Create(&listing).Error; err != nil {
		t.Fatal(err)
	}

	ls := NewListingStore(db)
	got, err := ls.Listings(context.Background(), []string{"1", "999", "not-a-number"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("listings = %+v", got)
	}
	l := got["1"]
	if l.Title != "Black wallet" || l.OwnerName != "alice" || l.OwnerID != "1" {
		t.Fatalf("listing = %+v", l)
	}
}

func TestEmptyRoomVisitIsNotAConversation(t *testing.T) {
	db := openTestDB(t)
	svc := chat.NewService(NewMessageStore(db, 2000), NewListingStore(db), nil,
		chat.Config{MaxTextLength: 2000, SendBuffer: 16, EchoSender: true}, zerolog.Nop())
	ctx := context.Background()

	bob, err := svc.Connect(chat.Identity{UserID: "2", Name: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Join(ctx, bob, "7"); err != nil {
		t.Fatal(err)
	}
	svc.Disconnect(bob)

	alice, err := svc.Connect(chat.Identity{UserID: "1", Name: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Disconnect(alice)
	if err := svc.Join(ctx, alice, "7"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Send(ctx, alice, chat.Inbound{Room: "7", SenderID: "1", Text: "hi"}); err != nil {
		t.Fatal(err)
	}

	got, err := svc.ListConversations(ctx, "2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("bob's chats = %+v, want none", got)
	}
	got, err = svc.ListConversations(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Room != "7" || got[0].LastMessage != "hi" {
		t.Fatalf("alice's chats = %+v", got)
	}
}
