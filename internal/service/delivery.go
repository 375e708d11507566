package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
)

// DeliveryOutcome tells the worker what a Deliver call did.
type DeliveryOutcome int

const (
	// DeliverySkipped: the notification is gone or was already sent by someone else.
	DeliverySkipped DeliveryOutcome = iota
	// DeliveryRearmed: the message came back early and was published again.
	DeliveryRearmed
	// DeliveryFired: this call moved the notification to the sent state.
	DeliveryFired
)

func (o DeliveryOutcome) String() string {
	switch o {
	case DeliveryRearmed:
		return "rearmed"
	case DeliveryFired:
		return "fired"
	default:
		return "skipped"
	}
}

// Deliver is invoked by the scheduler when a pending notification is due.
// It is safe to call any number of times for the same id: only one call can
// observe DeliveryFired.
func (s *NotificationService) Deliver(ctx context.Context, id uuid.UUID) (*model.Notification, DeliveryOutcome, error) {
	log := s.logger.With().Stringer("notification_id", id).Logger()

	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Info().Msg("notification no longer exists, skipping")
			return nil, DeliverySkipped, nil
		}
		return nil, DeliverySkipped, fmt.Errorf("load notification: %w", err)
	}

	if n.IsSent() {
		log.Info().Msg("notification already sent, skipping")
		return n, DeliverySkipped, nil
	}

	now := s.now()
	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		log.Info().Time("scheduled_for", *n.ScheduledFor).Msg("notification not due yet, re-arming")
		if err := s.queue.Publish(ctx, n); err != nil {
			return n, DeliverySkipped, fmt.Errorf("re-arm notification: %w", err)
		}
		return n, DeliveryRearmed, nil
	}

	fired, err := s.repo.MarkSent(ctx, id, now)
	if err != nil {
		return n, DeliverySkipped, fmt.Errorf("mark notification sent: %w", err)
	}
	if !fired {
		log.Info().Msg("notification was sent concurrently, skipping")
		return n, DeliverySkipped, nil
	}

	n.SentAt = &now
	log.Info().Msg("notification transitioned to sent")
	return n, DeliveryFired, nil
}

// Announcement returns a sent notification due for fan-out, or nil when it
// no longer exists or has not been sent.
func (s *NotificationService) Announcement(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load notification: %w", err)
	}
	if !n.IsSent() {
		s.logger.Warn().Stringer("notification_id", id).Msg("announced notification is still pending, skipping")
		return nil, nil
	}
	return n, nil
}

// Recipients lists the members of the notification's target groups.
func (s *NotificationService) Recipients(ctx context.Context, n *model.Notification) ([]*model.User, error) {
	users, err := s.users.ListByGroups(ctx, n.TargetGroups)
	if err != nil {
		s.logger.Error().Err(err).Stringer("notification_id", n.ID).Msg("failed to list recipients")
		return nil, err
	}
	return users, nil
}

// DuePending returns the pending notifications whose schedule has passed,
// earliest first.
func (s *NotificationService) DuePending(ctx context.Context) ([]*model.Notification, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list pending notifications")
		return nil, err
	}

	now := s.now()
	due := make([]*model.Notification, 0, len(pending))
	for _, n := range pending {
		if !n.ScheduledFor.After(now) {
			due = append(due, n)
		}
	}
	return due, nil
}

// RecoverPending re-arms the scheduler for every notification that has not
// fired yet, overdue ones included. It returns how many were published.
func (s *NotificationService) RecoverPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list pending notifications")
		return 0, err
	}

	var errs []error
	armed := 0
	for _, n := range pending {
		if err := s.queue.Publish(ctx, n); err != nil {
			s.logger.Error().Err(err).Stringer("id", n.ID).Msg("failed to re-arm pending notification")
			errs = append(errs, fmt.Errorf("re-arm %s: %w", n.ID, err))
			continue
		}
		armed++
	}

	s.logger.Info().Int("pending", len(pending)).Int("armed", armed).Msg("pending notifications recovered")
	return armed, errors.Join(errs...)
}
