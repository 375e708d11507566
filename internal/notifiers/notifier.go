package notifiers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ilindan-dev/group-notifier/internal/domain/model"
)

// Channel is the medium a recipient is reached on.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
	// ChannelNone is reported for users without any contact detail.
	ChannelNone Channel = "none"
)

// ErrNoContact is returned for recipients that carry no usable contact detail.
var ErrNoContact = errors.New("recipient has no contact channel")

// Notifier defines the interface for any notification sending service.
// This allows us to easily swap or add new notification channels (e.g., SMS, Slack).
type Notifier interface {
	// Send delivers n to a single group member.
	Send(ctx context.Context, n *model.Notification, to *model.User) error
}

// ChannelFor picks the channel for u. Telegram wins over email.
func ChannelFor(u *model.User) Channel {
	switch {
	case u.TelegramChatID != nil && *u.TelegramChatID != 0:
		return ChannelTelegram
	case u.Email != nil && strings.TrimSpace(*u.Email) != "":
		return ChannelEmail
	default:
		return ChannelNone
	}
}

// Subject is the one-line headline used by every channel.
func Subject(n *model.Notification) string {
	return fmt.Sprintf("[%s] %s", strings.Join(n.TargetGroups, ", "), n.Title)
}

// Body renders the plain-text body: message, media links and, for interactive
// notifications, the invitation to answer.
func Body(n *model.Notification, to *model.User) string {
	var b strings.Builder
	if to != nil && to.FirstName != "" {
		fmt.Fprintf(&b, "Bonjour %s,\n\n", to.FirstName)
	}
	b.WriteString(n.Message)
	if len(n.MediaURLs) > 0 {
		b.WriteString("\n\nMédias :")
		for _, u := range n.MediaURLs {
			b.WriteString("\n- ")
			b.WriteString(u)
		}
	}
	if n.IsInteractive {
		fmt.Fprintf(&b, "\n\nMerci d'indiquer si vous êtes %s ou %s.", model.ResponseAvailable, model.ResponseNotAvailable)
	}
	return b.String()
}
