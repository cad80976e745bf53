package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tallyCachePrefix = "tallies:"

// RedisTallyCache хранит снимки счетчиков для опроса. Источником истины остается Postgres.
type RedisTallyCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ interfaces.TallyCache = (*RedisTallyCache)(nil)

// NewRedisTallyCache создает кэш счетчиков.
func NewRedisTallyCache(client *redis.Client, ttl time.Duration) *RedisTallyCache {
	return &RedisTallyCache{client: client, ttl: ttl}
}

func (c *RedisTallyCache) key(chapterID uuid.UUID) string {
	return tallyCachePrefix + chapterID.String()
}

// Get возвращает nil без ошибки при промахе.
func (c *RedisTallyCache) Get(ctx context.Context, chapterID uuid.UUID) (*models.Tallies, error) {
	data, err := c.client.Get(ctx, c.key(chapterID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached tallies: %w", err)
	}
	var tallies models.Tallies
	if err := json.Unmarshal(data, &tallies); err != nil {
		return nil, fmt.Errorf("unmarshal cached tallies: %w", err)
	}
	if tallies.Counts == nil {
		tallies.Counts = map[string]int64{}
	}
	return &tallies, nil
}

func (c *RedisTallyCache) Set(ctx context.Context, chapterID uuid.UUID, tallies models.Tallies) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(tallies)
	if err != nil {
		return fmt.Errorf("marshal tallies: %w", err)
	}
	if err := c.client.Set(ctx, c.key(chapterID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache tallies: %w", err)
	}
	return nil
}

func (c *RedisTallyCache) Invalidate(ctx context.Context, chapterID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(chapterID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached tallies: %w", err)
	}
	return nil
}
