package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/consumer"
	deliveryHTTP "github.com/ilindan-dev/group-notifier/internal/delivery/http"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
	"github.com/ilindan-dev/group-notifier/internal/logger"
	"github.com/ilindan-dev/group-notifier/internal/metrics"
	"github.com/ilindan-dev/group-notifier/internal/notifiers"
	"github.com/ilindan-dev/group-notifier/internal/service"
	"github.com/ilindan-dev/group-notifier/internal/storage/media"
	"github.com/ilindan-dev/group-notifier/internal/storage/postgres"
	"github.com/ilindan-dev/group-notifier/internal/storage/rabbitmq"
	"github.com/ilindan-dev/group-notifier/internal/storage/redis"
	"github.com/ilindan-dev/group-notifier/migrations"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// BaseModule provides configuration and logging, needed by every binary.
var BaseModule = fx.Options(
	fx.Provide(
		config.NewConfig,
		logger.NewLogger,
	),
)

// CommonModule provides dependencies that are shared between the API and Worker applications.
var CommonModule = fx.Options(
	BaseModule,
	fx.Provide(
		// Storage Layer - concrete implementations
		postgres.NewPool,
		redis.NewClient,
		rabbitmq.NewConnection,
		postgres.NewNotificationRepository,
		fx.Annotate(postgres.NewUserRepository, fx.As(new(repo.UserRepository))),
		fx.Annotate(redis.NewNotificationCache, fx.As(new(repo.NotificationCache))),
		newQueue,

		// Postgres behind the Redis cache-aside layer.
		func(pg *postgres.NotificationRepository, cache repo.NotificationCache, cfg *config.Config, logger *zerolog.Logger) repo.NotificationRepository {
			return redis.NewCachedNotificationRepository(pg, cache, cfg, logger)
		},

		func(cfg *config.Config) (*model.Groups, error) {
			return model.NewGroups(cfg.Groups.Allowed)
		},

		// Metrics
		metrics.NewRegistry,
		fx.Annotate(metrics.New, fx.From(new(*prometheus.Registry))),

		// Service Layer
		service.NewNotificationService,
	),
)

// newQueue opens the publisher channel and closes it before the shared connection goes away.
func newQueue(lc fx.Lifecycle, conn *amqp.Connection, logger *zerolog.Logger) (repo.NotificationQueue, error) {
	q, err := rabbitmq.NewRabbitMQQueue(conn, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return q.Close()
		},
	})
	return q, nil
}

// APIModule defines the Fx module for the HTTP API application.
var APIModule = fx.Options(
	CommonModule, // Include all shared components
	fx.Provide(
		// API-specific components
		media.NewStore,
		deliveryHTTP.NewHandlers,
		deliveryHTTP.NewRouter,
		deliveryHTTP.NewServer,
	),

	fx.Invoke(func(server *deliveryHTTP.Server, lc fx.Lifecycle, shutdowner fx.Shutdowner, logger *zerolog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					logger.Info().Str("addr", server.Addr).Msg("http server listening")
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error().Err(err).Msg("http server failed")
						_ = shutdowner.Shutdown(fx.ExitCode(1))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
		})
	}),
)

// WorkerModule defines the Fx module for the background worker application.
var WorkerModule = fx.Options(
	CommonModule, // Include all shared components
	fx.Provide(
		// Worker-specific components
		fx.Annotate(notifiers.NewDispatcher, fx.As(new(notifiers.Notifier))),
		fx.Annotate(redis.NewFanOutGuard, fx.As(new(repo.FanOutGuard))),
		consumer.New,
	),
	fx.Invoke(func(c *consumer.Consumer, lc fx.Lifecycle) {
		// The OnStart context only bounds startup; the pool lives until OnStop.
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					c.Start(ctx)
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}),
)

// MigratorModule applies the embedded schema migrations and exits.
var MigratorModule = fx.Options(
	BaseModule,
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, logger *zerolog.Logger, shutdowner fx.Shutdowner) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := postgres.Migrate(ctx, cfg.Postgres.DSN, migrations.FS, logger); err != nil {
					return err
				}
				return shutdowner.Shutdown()
			},
		})
	}),
)
