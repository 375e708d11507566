package notifiers

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// EmailNotifier sends notifications via SMTP.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
	logger zerolog.Logger
}

// NewEmailNotifier creates a new instance of EmailNotifier.
func NewEmailNotifier(cfg config.EmailConfig, logger *zerolog.Logger) *EmailNotifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailNotifier{
		dialer: d,
		from:   cfg.From,
		logger: logger.With().Str("component", "email_notifier").Logger(),
	}
}

// Send implements the Notifier interface for email.
func (e *EmailNotifier) Send(_ context.Context, n *model.Notification, to *model.User) error {
	if to.Email == nil || *to.Email == "" {
		return fmt.Errorf("user %s has no email address: %w", to.ID, ErrNoContact)
	}

	m := newEmailMessage(e.from, *to.Email, n, to)

	// DialAndSend opens a connection, sends the email, and closes it.
	if err := e.dialer.DialAndSend(m); err != nil {
		e.logger.Error().Err(err).Stringer("notification_id", n.ID).Stringer("user_id", to.ID).Msg("failed to send email")
		return err
	}

	e.logger.Info().Stringer("notification_id", n.ID).Stringer("user_id", to.ID).Msg("email sent successfully")
	return nil
}

func newEmailMessage(from, address string, n *model.Notification, to *model.User) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetAddressHeader("To", address, fullName(to))
	m.SetHeader("Subject", Subject(n))
	m.SetBody("text/plain", Body(n, to))
	return m
}

func fullName(u *model.User) string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
