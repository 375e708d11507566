package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
	"github.com/ilindan-dev/group-notifier/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ repo.NotificationCache = (*NotificationCache)(nil)

// entryVersion is bumped whenever model.Notification changes shape.
// Entries written with another version read as misses.
const entryVersion = 2

type entry struct {
	Version      int                 `json:"v"`
	Notification *model.Notification `json:"n"`
}

// NotificationCache keeps whole notifications, responses included, under
// group-notifier:notification:<id>.
type NotificationCache struct {
	redis  *goredis.Client
	logger zerolog.Logger
}

func NewNotificationCache(logger *zerolog.Logger, redis *goredis.Client) *NotificationCache {
	return &NotificationCache{
		redis:  redis,
		logger: logger.With().Str("layer", "redis_cache").Logger(),
	}
}

// Get returns repo.ErrNotFound on a miss, a stale entry included.
func (c *NotificationCache) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	key := keybuilder.NotificationKey(id)
	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		c.logger.Debug().Str("key", key).Msg("cache miss")
		return nil, repo.ErrNotFound
	case err != nil:
		c.logger.Error().Err(err).Str("key", key).Msg("redis GET failed")
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}

	n, ok := decodeEntry(raw)
	if !ok {
		c.logger.Warn().Str("key", key).Msg("dropping unreadable cache entry")
		c.evict(ctx, key)
		return nil, repo.ErrNotFound
	}
	c.logger.Debug().Str("key", key).Msg("cache hit")
	return n, nil
}

func (c *NotificationCache) Set(ctx context.Context, n *model.Notification, expiration time.Duration) error {
	key := keybuilder.NotificationKey(n.ID)
	raw, err := json.Marshal(entry{Version: entryVersion, Notification: n})
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, key, raw, expiration).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("redis SET failed")
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (c *NotificationCache) Delete(ctx context.Context, id uuid.UUID) error {
	key := keybuilder.NotificationKey(id)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("redis DEL failed")
		return fmt.Errorf("redis: del %s: %w", key, err)
	}
	return nil
}

func (c *NotificationCache) evict(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("redis DEL of stale entry failed")
	}
}

func decodeEntry(raw []byte) (*model.Notification, bool) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if e.Version != entryVersion || e.Notification == nil {
		return nil, false
	}
	return e.Notification, true
}
