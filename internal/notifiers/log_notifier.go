package notifiers

import (
	"context"

	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// LogNotifier is a mock notifier that implements the Notifier interface.
// It logs what would have been sent instead of using a real channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With().Str("component", "log_notifier").Logger(),
	}
}

// Send implements the Notifier interface.
func (l *LogNotifier) Send(_ context.Context, n *model.Notification, to *model.User) error {
	l.logger.Info().
		Stringer("notification_id", n.ID).
		Stringer("user_id", to.ID).
		Str("channel", string(ChannelFor(to))).
		Str("subject", Subject(n)).
		Int("media", len(n.MediaURLs)).
		Bool("interactive", n.IsInteractive).
		Msg(">>> MOCK SEND: Notification dispatched")
	return nil
}
