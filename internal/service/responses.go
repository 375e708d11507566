package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
)

// RespondToNotification records userID's answer. A second answer from the same
// user replaces the first; the storage layer performs the upsert atomically.
func (s *NotificationService) RespondToNotification(ctx context.Context, notificationID, userID uuid.UUID, raw string) (*model.Notification, error) {
	value, ok := model.ParseResponseValue(raw)
	if !ok {
		return nil, invalid("response", ErrInvalidResponse, raw)
	}

	log := s.logger.With().Stringer("notification_id", notificationID).Stringer("user_id", userID).Logger()

	err := s.repo.UpsertResponse(ctx, notificationID, model.Response{
		UserID:      userID,
		Value:       value,
		RespondedAt: s.now(),
	})
	switch {
	case errors.Is(err, repo.ErrNotificationMissing):
		log.Warn().Msg("response to unknown or undelivered notification")
		return nil, ErrNotificationNotFound
	case errors.Is(err, repo.ErrUserMissing):
		log.Warn().Msg("response from unknown user")
		return nil, ErrUserNotFound
	case err != nil:
		log.Error().Err(err).Msg("failed to record response")
		return nil, err
	}
	log.Info().Str("response", string(value)).Msg("response recorded")

	return s.GetNotification(ctx, notificationID)
}
