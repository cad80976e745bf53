package database

import (
	"context"
	"fmt"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cooldownPrefix = "vote:cooldown:"

// Окно хранит id главы, за которую был отдан голос. Повтор за ту же главу пропускается.
var acquireCooldownScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if not holder then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if holder == ARGV[1] then
	return 1
end
return 0
`)

var releaseCooldownScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisVoterCooldown - окно кулдауна на идентичность голосующего (IP + сессия).
type RedisVoterCooldown struct {
	client *redis.Client
	window time.Duration
}

var _ interfaces.VoterCooldown = (*RedisVoterCooldown)(nil)

// NewRedisVoterCooldown создает ограничитель. Нулевое окно отключает проверку.
func NewRedisVoterCooldown(client *redis.Client, window time.Duration) *RedisVoterCooldown {
	return &RedisVoterCooldown{client: client, window: window}
}

func cooldownKey(voter models.VoterIdentity) string {
	return cooldownPrefix + voter.IP + ":" + voter.Session
}

func (c *RedisVoterCooldown) Acquire(ctx context.Context, voter models.VoterIdentity, chapterID uuid.UUID) (bool, error) {
	if c.window <= 0 {
		return true, nil
	}
	ok, err := acquireCooldownScript.Run(ctx, c.client,
		[]string{cooldownKey(voter)}, chapterID.String(), c.window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire voter cooldown: %w", err)
	}
	return ok == 1, nil
}

func (c *RedisVoterCooldown) Release(ctx context.Context, voter models.VoterIdentity, chapterID uuid.UUID) error {
	if c.window <= 0 {
		return nil
	}
	if err := releaseCooldownScript.Run(ctx, c.client, []string{cooldownKey(voter)}, chapterID.String()).Err(); err != nil {
		return fmt.Errorf("release voter cooldown: %w", err)
	}
	return nil
}
