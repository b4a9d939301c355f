package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/config"
	"github.com/CUknot/lostfound_backend/database"
	"github.com/CUknot/lostfound_backend/middleware"
	"github.com/CUknot/lostfound_backend/models"
	"github.com/CUknot/lostfound_backend/store"
	"github.com/CUknot/lostfound_backend/utils"
)

type fixture struct {
	db      *gorm.DB
	router  *gin.Engine
	tokens  *utils.TokenManager
	service *chat.Service
	store   *store.MessageStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "api.db")}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	messages := store.NewMessageStore(db, 2000)
	service := chat.NewService(messages, store.NewListingStore(db), nil, chat.Config{MaxTextLength: 2000, SendBuffer: 16, EchoSender: true}, zerolog.Nop())
	tokens := utils.NewTokenManager("test-secret", time.Hour)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := &AuthController{DB: db, Tokens: tokens}
	chats := &ChatController{Service: service}
	health := &HealthController{DB: db, Service: service}

	r.GET("/health", health.Health)
	r.POST("/api/register", auth.Register)
	r.POST("/api/login", auth.Login)
	protected := r.Group("/")
	protected.Use(middleware.JWTAuth(tokens))
	protected.GET("/chats", chats.GetChats)
	protected.GET("/api/rooms/:room/messages", chats.GetRoomMessages)
	protected.GET("/api/rooms/:room/online", chats.GetRoomOnline)

	return &fixture{db: db, router: r, tokens: tokens, service: service, store: messages}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "secret123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	var reg struct {
		Token string `json:"token"`
	}
	decode(t, w, &reg)
	claims, err := f.tokens.ParseToken(reg.Token)
	if err != nil || claims.Username != "alice" {
		t.Fatalf("claims = %+v err = %v", claims, err)
	}

	if w := f.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "secret123",
	}); w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d", w.Code)
	}

	if w := f.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-pass",
	}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret123",
	}); w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
}

func TestGetChats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := models.User{Username: "alice", Email: "alice@example.com", Password: "secret123"}
	bob := models.User{Username: "bob", Email: "bob@example.com", Password: "secret123"}
	if err := f.db.Create(&alice).Error; err != nil {
		t.Fatal(err)
	}
	if err := f.db.Create(&bob).Error; err != nil {
		t.Fatal(err)
	}
	wallet := models.Listing{Title: "Black wallet", Type: "found", UserID: alice.ID}
	if err := f.db.Create(&wallet).Error; err != nil {
		t.Fatal(err)
	}

	room := "1"
	if _, err := f.store.Append(ctx, chat.NewMessage{Room: room, SenderID: "2", SenderName: "bob", Text: "that's mine"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Append(ctx, chat.NewMessage{Room: room, SenderID: "1", SenderName: "alice", Text: "come pick it up", Timestamp: "11:30"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Append(ctx, chat.NewMessage{Room: "999", SenderID: "1", SenderName: "alice", Text: "hello?"}); err != nil {
		t.Fatal(err)
	}

	if w := f.do(t, http.MethodGet, "/chats", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", w.Code)
	}

	token, _ := f.tokens.GenerateToken(alice.ID, "alice")
	w := f.do(t, http.MethodGet, "/chats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Chats []chat.Summary `json:"chats"`
	}
	decode(t, w, &resp)
	if len(resp.Chats) != 2 {
		t.Fatalf("chats = %+v", resp.Chats)
	}
	missing, wal := resp.Chats[0], resp.Chats[1]
	if missing.Room != "999" || missing.ItemTitle != chat.PlaceholderTitle || missing.OtherUser != chat.UnknownUser {
		t.Fatalf("missing listing chat = %+v", missing)
	}
	if wal.Room != room || wal.ItemTitle != "Black wallet" || wal.OtherUser != "bob" ||
		wal.LastMessage != "come pick it up" || wal.Timestamp != "11:30" {
		t.Fatalf("wallet chat = %+v", wal)
	}

	other, _ := f.tokens.GenerateToken(42, "nobody")
	w = f.do(t, http.MethodGet, "/chats", other, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"chats":[]`)) {
		t.Fatalf("empty chats = %d %s", w.Code, w.Body.String())
	}
}

func TestRoomMessagesAndOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		if _, err := f.store.Append(ctx, chat.NewMessage{Room: "42", SenderID: "1", SenderName: "alice", Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	token, _ := f.tokens.GenerateToken(1, "alice")

	w := f.do(t, http.MethodGet, "/api/rooms/42/messages?limit=2", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Messages []chat.HistoryEntry `json:"messages"`
	}
	decode(t, w, &resp)
	if len(resp.Messages) != 2 || resp.Messages[0].Text != "two" || resp.Messages[1].Text != "three" {
		t.Fatalf("messages = %+v", resp.Messages)
	}

	if w := f.do(t, http.MethodGet, "/api/rooms/42/messages?limit=abc", token, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}

	s, err := f.service.Connect(chat.Identity{UserID: "1", Name: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	defer f.service.Disconnect(s)
	if err := f.service.Join(ctx, s, "42"); err != nil {
		t.Fatal(err)
	}
	w = f.do(t, http.MethodGet, "/api/rooms/42/online", token, nil)
	var online struct {
		Online int `json:"online"`
	}
	decode(t, w, &online)
	if online.Online != 1 {
		t.Fatalf("online = %d", online.Online)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	s, err := f.service.Connect(chat.Identity{UserID: "1", Name: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	defer f.service.Disconnect(s)
	if err := f.service.Join(context.Background(), s, "42"); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Rooms    int    `json:"rooms"`
	}
	decode(t, w, &resp)
	if resp.Status != "ok" || resp.Sessions != 1 || resp.Rooms != 1 {
		t.Fatalf("health = %+v", resp)
	}
}
