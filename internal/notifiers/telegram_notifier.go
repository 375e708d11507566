package notifiers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// TelegramNotifier sends notifications via a Telegram bot.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	logger zerolog.Logger
}

// NewTelegramNotifier creates a new instance of TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	return &TelegramNotifier{
		bot:    bot,
		logger: logger.With().Str("component", "telegram_notifier").Logger(),
	}, nil
}

// Send implements the Notifier interface for Telegram.
func (t *TelegramNotifier) Send(_ context.Context, n *model.Notification, to *model.User) error {
	if to.TelegramChatID == nil {
		return fmt.Errorf("user %s has no telegram chat: %w", to.ID, ErrNoContact)
	}

	if _, err := t.bot.Send(newTelegramMessage(*to.TelegramChatID, n, to)); err != nil {
		t.logger.Error().Err(err).Stringer("notification_id", n.ID).Stringer("user_id", to.ID).Msg("failed to send telegram message")
		return err
	}

	t.logger.Info().Stringer("notification_id", n.ID).Int64("chat_id", *to.TelegramChatID).Msg("telegram message sent successfully")
	return nil
}

// newTelegramMessage escapes user-provided text for MarkdownV2.
func newTelegramMessage(chatID int64, n *model.Notification, to *model.User) tgbotapi.MessageConfig {
	text := fmt.Sprintf("*%s*\n\n%s",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, Subject(n)),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, Body(n, to)),
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return msg
}
