package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// NewPool creates the shared pgx connection pool and closes it when the application stops.
func NewPool(lc fx.Lifecycle, cfg *config.Config, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	log := logger.With().Str("layer", "postgres_pool").Logger()

	pcfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse pool config: %w", err)
	}
	pool := cfg.Postgres.Pool
	if pool.MaxConns > 0 {
		pcfg.MaxConns = pool.MaxConns
	}
	if pool.MinConns > 0 {
		pcfg.MinConns = pool.MinConns
	}
	if pool.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = pool.MaxConnLifetime
	}
	if pool.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = pool.MaxConnIdleTime
	}
	if pool.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = pool.HealthCheckPeriod
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	log.Info().Int32("max_conns", pcfg.MaxConns).Msg("postgres pool ready")

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info().Msg("closing postgres pool")
			p.Close()
			return nil
		},
	})

	return p, nil
}

// withTimeout bounds a single query by the configured timeout.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
