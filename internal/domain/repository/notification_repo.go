package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
)

// NotificationRepository defines the contract for notification persistence (e.g., a database).
type NotificationRepository interface {
	// Save persists a new notification.
	Save(ctx context.Context, n *model.Notification) (*model.Notification, error)

	// GetByID retrieves a notification, responses included, by its unique ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// UpsertResponse atomically records userID's answer, replacing a previous one.
	// It returns ErrNotificationMissing or ErrUserMissing when a reference does not resolve.
	UpsertResponse(ctx context.Context, notificationID uuid.UUID, r model.Response) error

	// ListSent returns delivered notifications matching the filter, most recent first.
	ListSent(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, error)

	// ListPending returns every scheduled notification that has not fired yet.
	ListPending(ctx context.Context) ([]*model.Notification, error)

	// MarkSent sets sent_at if and only if it is still null.
	// The boolean reports whether this call performed the transition.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// Delete cancels a scheduled notification that has not fired yet.
	// It returns ErrNotFound when no pending notification has this id.
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepository is the read-only view on community members.
type UserRepository interface {
	// GetByID retrieves a user by id.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)

	// GetByIDs retrieves the users that exist among ids, in the order of ids.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)

	// ListByGroups returns members of any of the groups.
	ListByGroups(ctx context.Context, groups []string) ([]*model.User, error)
}

// NotificationCache defines the contract for a caching layer.
type NotificationCache interface {
	// Get retrieves an item from the cache.
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// Set adds an item to the cache for a specified duration
	Set(ctx context.Context, n *model.Notification, expiration time.Duration) error

	// Delete removes an item from the cache.
	Delete(ctx context.Context, id uuid.UUID) error
}

// NotificationQueue defines the contract for interacting with a delayed job queue.
// This provides an abstraction over a system like RabbitMQ.
type NotificationQueue interface {
	// Publish arms the scheduler: the notification comes back no earlier than its ScheduledFor.
	Publish(ctx context.Context, n *model.Notification) error

	// PublishRetry schedules a notification for a retry attempt with a specific delay.
	PublishRetry(ctx context.Context, n *model.Notification, retryDelay time.Duration) error

	// Announce hands an already sent notification to the worker for fan-out.
	Announce(ctx context.Context, n *model.Notification) error
}

// FanOutGuard makes sure a notification is fanned out at most once.
type FanOutGuard interface {
	// Claim returns true for the first caller only.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
}
