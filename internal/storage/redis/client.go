package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/group-notifier/internal/config"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// NewClient connects to Redis and closes the client when the application stops.
func NewClient(lc fx.Lifecycle, cfg *config.Config, logger *zerolog.Logger) (*goredis.Client, error) {
	log := logger.With().Str("layer", "redis_client").Logger()

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Redis.Addr, err)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis client ready")

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info().Msg("closing redis client")
			return client.Close()
		},
	})
	return client, nil
}
