package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CUknot/lostfound_backend/chat"
)

func TestBuildKey(t *testing.T) {
	c := NewWithClient(nil, "", time.Minute)
	if got := c.BuildKey("7"); got != "lostfound:chats:7" {
		t.Fatalf("key = %q", got)
	}
	c = NewWithClient(nil, "test", time.Minute)
	if got := c.BuildKey("7"); got != "test:7" {
		t.Fatalf("key = %q", got)
	}
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	c := NewWithClient(client, "lostfound:test:"+time.Now().Format("150405.000"), time.Minute)
	t.Cleanup(func() { c.Close() })
	ctx := context.Background()

	if _, err := c.Get(ctx, "1"); !errors.Is(err, chat.ErrCacheMiss) {
		t.Fatalf("err = %v, want miss", err)
	}
	want := []chat.Summary{{Room: "42", OtherUser: "bob", ItemTitle: "Black wallet", LastMessage: "hi"}}
	if err := c.Set(ctx, "1", want); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Room != "42" || got[0].OtherUser != "bob" {
		t.Fatalf("got %+v", got)
	}
	if err := c.Invalidate(ctx, "1", "2"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "1"); !errors.Is(err, chat.ErrCacheMiss) {
		t.Fatalf("err = %v after invalidate", err)
	}
}
