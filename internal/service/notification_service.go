package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
	"github.com/rs/zerolog"
)

// scheduleLayouts are tried in order; layouts without an offset use the configured location.
var scheduleLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NotificationService encapsulates the business logic for managing notifications.
// It orchestrates the repositories, the allow-list of groups and the scheduling queue.
type NotificationService struct {
	repo     repo.NotificationRepository
	users    repo.UserRepository
	queue    repo.NotificationQueue
	groups   *model.Groups
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

func NewNotificationService(
	repo repo.NotificationRepository,
	users repo.UserRepository,
	queue repo.NotificationQueue,
	groups *model.Groups,
	cfg *config.Config,
	logger *zerolog.Logger,
) *NotificationService {
	return &NotificationService{
		repo:     repo,
		users:    users,
		queue:    queue,
		groups:   groups,
		location: cfg.Scheduler.TimeLocation(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("layer", "service").Logger(),
	}
}

// CreateParams carries a creation request as received from the HTTP boundary.
type CreateParams struct {
	Title         string
	Message       string
	TargetGroups  []string
	IsInteractive bool
	MediaURLs     []string
	// ScheduledFor is the raw delivery instant; empty means "send now".
	ScheduledFor string
}

// CreateNotification validates input, saves the notification and hands it to
// the queue: delayed when scheduled for later, for immediate fan-out otherwise.
func (s *NotificationService) CreateNotification(ctx context.Context, p CreateParams) (*model.Notification, error) {
	title := strings.TrimSpace(p.Title)
	message := strings.TrimSpace(p.Message)
	if title == "" {
		return nil, invalid("title", ErrMissingField, "")
	}
	if message == "" {
		return nil, invalid("message", ErrMissingField, "")
	}

	groups, err := s.validateGroups("targetGroups", p.TargetGroups)
	if err != nil {
		s.logger.Warn().Err(err).Strs("groups", p.TargetGroups).Msg("rejected target groups")
		return nil, err
	}

	scheduledFor, err := s.parseSchedule(p.ScheduledFor)
	if err != nil {
		s.logger.Warn().Err(err).Str("scheduled_for", p.ScheduledFor).Msg("rejected schedule")
		return nil, err
	}

	notification := model.NewNotification(title, message, groups, p.MediaURLs, p.IsInteractive, scheduledFor, s.now())
	s.logger.Info().
		Strs("groups", groups).
		Bool("scheduled", notification.IsPending()).
		Int("media", len(notification.MediaURLs)).
		Msg("creating new notification")

	created, err := s.repo.Save(ctx, notification)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to save notification")
		return nil, err
	}
	s.logger.Info().Stringer("id", created.ID).Msg("notification saved successfully")

	if created.IsPending() {
		// The row is durable at this point; the worker re-arms it on start if the publish is lost.
		if err := s.queue.Publish(ctx, created); err != nil {
			s.logger.Error().Err(err).Stringer("id", created.ID).Msg("failed to publish scheduled notification, relying on recovery")
		} else {
			s.logger.Info().Stringer("id", created.ID).Time("scheduled_for", *created.ScheduledFor).Msg("notification published to queue")
		}
	} else if err := s.queue.Announce(ctx, created); err != nil {
		// Visible in history already; only the external fan-out is lost.
		s.logger.Error().Err(err).Stringer("id", created.ID).Msg("failed to announce notification")
	}

	return created, nil
}

// GetNotification retrieves a notification by its ID, pending ones included.
func (s *NotificationService) GetNotification(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		s.logger.Error().Err(err).Stringer("id", id).Msg("failed to get notification by id")
		return nil, err
	}
	return n, nil
}

// CancelNotification cancels a scheduled notification that has not fired yet
// and returns it, so the caller can release its media.
func (s *NotificationService) CancelNotification(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	notification, err := s.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}

	if notification.IsSent() {
		s.logger.Warn().Stringer("notification_id", id).Msg("can't cancel notification")
		return nil, ErrNotCancellable
	}

	s.logger.Info().Stringer("notification_id", id).Msg("cancel notification")
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Fired or cancelled since the read.
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return notification, nil
}

// validateGroups trims the submitted groups and checks them against the allow-list.
// The whole request is rejected if a single group is unknown.
func (s *NotificationService) validateGroups(field string, raw []string) ([]string, error) {
	groups := make([]string, 0, len(raw))
	for _, g := range raw {
		if t := strings.TrimSpace(g); t != "" {
			groups = append(groups, t)
		}
	}
	if len(groups) == 0 {
		return nil, invalid(field, ErrMissingField, "")
	}
	if unknown := s.groups.Unknown(groups); len(unknown) > 0 {
		return nil, invalid(field, ErrInvalidGroup, strings.Join(unknown, ", "))
	}
	return groups, nil
}

func (s *NotificationService) validateGroup(name string) error {
	if !s.groups.Contains(name) {
		return invalid("group", ErrInvalidGroup, name)
	}
	return nil
}

func (s *NotificationService) parseSchedule(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.location); err == nil {
			return &t, nil
		}
	}
	return nil, invalid("scheduledFor", ErrInvalidSchedule, raw)
}
