package notifiers

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// ModeProduction enables the real SMTP and Telegram notifiers.
const ModeProduction = "production"

// Dispatcher is a composite notifier that routes each recipient to the notifier of
// their channel. It implements the Notifier interface itself.
type Dispatcher struct {
	notifiers map[Channel]Notifier
	logger    zerolog.Logger
}

// NewDispatcher creates a new Dispatcher and initializes channel-specific notifiers
// based on the application's configuration mode.
func NewDispatcher(cfg *config.Config, logger *zerolog.Logger) (*Dispatcher, error) {
	log := logger.With().Str("component", "dispatcher").Logger()
	log.Info().Str("mode", cfg.Notifiers.Mode).Msg("initializing notifiers")

	// Create the LogNotifier once to use as a fallback.
	logNotifier := NewLogNotifier(logger)
	notifiersMap := map[Channel]Notifier{
		ChannelEmail:    logNotifier,
		ChannelTelegram: logNotifier,
	}

	// If in "production" mode, try to override the defaults with real notifiers.
	if cfg.Notifiers.Mode == ModeProduction {
		if cfg.Notifiers.Email.Host != "" {
			notifiersMap[ChannelEmail] = NewEmailNotifier(cfg.Notifiers.Email, logger)
			log.Info().Msg("email notifier enabled")
		}
		if cfg.Notifiers.Telegram.BotToken != "" {
			tgNotifier, err := NewTelegramNotifier(cfg.Notifiers.Telegram, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
			}
			notifiersMap[ChannelTelegram] = tgNotifier
			log.Info().Msg("telegram notifier enabled")
		}
	}

	return newDispatcher(notifiersMap, log), nil
}

func newDispatcher(notifiers map[Channel]Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

// Send implements the Notifier interface. It finds the notifier for the
// recipient's channel and delegates the send operation to it.
func (d *Dispatcher) Send(ctx context.Context, n *model.Notification, to *model.User) error {
	channel := ChannelFor(to)
	if channel == ChannelNone {
		d.logger.Debug().Stringer("user_id", to.ID).Msg("recipient has no contact channel")
		return ErrNoContact
	}

	notifier, ok := d.notifiers[channel]
	if !ok {
		d.logger.Error().Str("channel", string(channel)).Msg("no notifier found for channel")
		return fmt.Errorf("notifier for channel %s not found", channel)
	}

	return notifier.Send(ctx, n, to)
}
