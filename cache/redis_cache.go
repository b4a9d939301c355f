// Package cache holds the optional redis cache for conversation lists.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/config"
)

const defaultPrefix = "lostfound:chats"

var _ chat.SummaryCache = (*RedisSummaryCache)(nil)

// RedisSummaryCache stores each user's conversation list as one JSON value.
type RedisSummaryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSummaryCache connects to redis and checks it answers.
func NewRedisSummaryCache(cfg config.RedisConfig) (*RedisSummaryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.Prefix, cfg.SummaryTTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisSummaryCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisSummaryCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisSummaryCache) BuildKey(userID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, userID)
}

func (c *RedisSummaryCache) Get(ctx context.Context, userID string) ([]chat.Summary, error) {
	data, err := c.client.Get(ctx, c.BuildKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, chat.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var summaries []chat.Summary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return summaries, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, userID string, summaries []chat.Summary) error {
	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, c.BuildKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, c.BuildKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}
