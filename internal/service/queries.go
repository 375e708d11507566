package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
)

// NotificationSummary is a list item: the notification plus its aggregates.
type NotificationSummary struct {
	Notification    *model.Notification
	InterestedCount int
	// UserResponse is only resolved when a requesting user is known; nil means no answer.
	UserResponse *model.ResponseValue
}

// PhotoSet is the media of one sent notification.
type PhotoSet struct {
	URLs         []string
	SentAt       time.Time
	TargetGroups []string
}

// ListNotifications returns every sent notification, or those of one group when group is set.
func (s *NotificationService) ListNotifications(ctx context.Context, group string) ([]NotificationSummary, error) {
	filter := model.NotificationFilter{}
	if group != "" {
		if err := s.validateGroup(group); err != nil {
			return nil, err
		}
		filter.Groups = []string{group}
	}
	return s.summaries(ctx, filter, nil)
}

// ListByGroup is the history of one group. When requestingUserID is set, each
// item carries that user's own answer.
func (s *NotificationService) ListByGroup(ctx context.Context, group string, requestingUserID *uuid.UUID) ([]NotificationSummary, error) {
	if err := s.validateGroup(group); err != nil {
		return nil, err
	}
	return s.summaries(ctx, model.NotificationFilter{Groups: []string{group}}, requestingUserID)
}

// ListByGroups returns notifications targeting any of groups.
func (s *NotificationService) ListByGroups(ctx context.Context, groups []string) ([]NotificationSummary, error) {
	valid, err := s.validateGroups("groups", groups)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, model.NotificationFilter{Groups: valid}, nil)
}

// InterestedUsers resolves the users whose answer to the notification is "available".
func (s *NotificationService) InterestedUsers(ctx context.Context, notificationID uuid.UUID) ([]*model.User, error) {
	n, err := s.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	ids := n.InterestedUserIDs()
	if len(ids) == 0 {
		return []*model.User{}, nil
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Stringer("notification_id", notificationID).Msg("failed to resolve interested users")
		return nil, err
	}
	return users, nil
}

// PhotosByGroup returns the media of the group's sent notifications, most recent first.
func (s *NotificationService) PhotosByGroup(ctx context.Context, group string) ([]PhotoSet, error) {
	if err := s.validateGroup(group); err != nil {
		return nil, err
	}
	return s.photos(ctx, []string{group})
}

// Photos returns the media of every sent notification, or of one group's
// when group is set.
func (s *NotificationService) Photos(ctx context.Context, group string) ([]PhotoSet, error) {
	if group == "" {
		return s.photos(ctx, nil)
	}
	return s.PhotosByGroup(ctx, group)
}

// PhotosForUser returns the media of the notifications sent to any of the user's groups.
func (s *NotificationService) PhotosForUser(ctx context.Context, userID uuid.UUID) ([]PhotoSet, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error().Err(err).Stringer("user_id", userID).Msg("failed to get user")
		return nil, err
	}
	if !user.HasGroup() {
		s.logger.Warn().Stringer("user_id", userID).Msg("user has no group")
		return nil, ErrUserNotFound
	}
	return s.photos(ctx, user.Groups)
}

func (s *NotificationService) summaries(ctx context.Context, filter model.NotificationFilter, userID *uuid.UUID) ([]NotificationSummary, error) {
	notifications, err := s.repo.ListSent(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).Strs("groups", filter.Groups).Msg("failed to list notifications")
		return nil, err
	}

	out := make([]NotificationSummary, 0, len(notifications))
	for _, n := range notifications {
		item := NotificationSummary{Notification: n, InterestedCount: n.InterestedCount()}
		if userID != nil {
			item.UserResponse = n.ResponseOf(*userID)
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *NotificationService) photos(ctx context.Context, groups []string) ([]PhotoSet, error) {
	notifications, err := s.repo.ListSent(ctx, model.NotificationFilter{Groups: groups, MediaOnly: true})
	if err != nil {
		s.logger.Error().Err(err).Strs("groups", groups).Msg("failed to list photos")
		return nil, err
	}

	out := make([]PhotoSet, 0, len(notifications))
	for _, n := range notifications {
		if !n.HasMedia() || n.SentAt == nil {
			continue
		}
		out = append(out, PhotoSet{
			URLs:         n.MediaURLs,
			SentAt:       *n.SentAt,
			TargetGroups: n.TargetGroups,
		})
	}
	return out, nil
}

// Groups returns the allowed audience groups in configuration order.
func (s *NotificationService) Groups() []string {
	return s.groups.Names()
}
