package rabbitmq

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/group-notifier/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// NewConnection creates and returns a raw amqp.Connection.
// This single connection is shared across the application (producer and consumer)
// and closed when the application stops.
func NewConnection(lc fx.Lifecycle, cfg *config.Config, logger *zerolog.Logger) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: failed to connect: %w", err)
	}

	log := logger.With().Str("component", "rabbitmq_connection").Logger()
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info().Msg("closing rabbitmq connection")
			if conn.IsClosed() {
				return nil
			}
			return conn.Close()
		},
	})
	return conn, nil
}
