package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
	"github.com/ilindan-dev/group-notifier/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ repo.FanOutGuard = (*FanOutGuard)(nil)

// fanOutClaimTTL outlives any redelivery of the same message.
const fanOutClaimTTL = 7 * 24 * time.Hour

// FanOutGuard claims notification ids with SET NX.
type FanOutGuard struct {
	redis  *goredis.Client
	logger zerolog.Logger
}

func NewFanOutGuard(logger *zerolog.Logger, redis *goredis.Client) *FanOutGuard {
	return &FanOutGuard{
		redis:  redis,
		logger: logger.With().Str("layer", "redis_guard").Logger(),
	}
}

func (g *FanOutGuard) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	key := keybuilder.FanOutKey(id)
	ok, err := g.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), fanOutClaimTTL).Result()
	if err != nil {
		g.logger.Error().Err(err).Str("key", key).Msg("failed to claim fan-out")
		return false, err
	}
	return ok, nil
}
