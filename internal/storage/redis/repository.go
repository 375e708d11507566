package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Ensure CachedNotificationRepository implements the interface
var _ repo.NotificationRepository = (*CachedNotificationRepository)(nil)

// CachedNotificationRepository is a decorator for a NotificationRepository
// that caches single notifications by id. Listings always hit the primary repository.
type CachedNotificationRepository struct {
	primaryRepo repo.NotificationRepository
	cache       repo.NotificationCache
	logger      zerolog.Logger
	ttl         time.Duration
}

// NewCachedNotificationRepository creates a new instance of the cached repository.
func NewCachedNotificationRepository(
	primaryRepo repo.NotificationRepository,
	cache repo.NotificationCache,
	cfg *config.Config,
	logger *zerolog.Logger,
) *CachedNotificationRepository {
	ttl := cfg.Redis.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedNotificationRepository{
		primaryRepo: primaryRepo,
		cache:       cache,
		logger:      logger.With().Str("layer", "cached_repository").Logger(),
		ttl:         ttl,
	}
}

// Save first persists the notification in the primary repository,
// then warms up the cache with the new data.
func (r *CachedNotificationRepository) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	created, err := r.primaryRepo.Save(ctx, n)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, created, r.ttl); err != nil {
		r.logger.Error().Err(err).Stringer("id", created.ID).Msg("failed to cache notification after save")
	}

	return created, nil
}

// GetByID implements the cache-aside pattern.
func (r *CachedNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	cached, err := r.cache.Get(ctx, id)
	if err == nil {
		return cached, nil
	}

	if !errors.Is(err, repo.ErrNotFound) {
		r.logger.Error().Err(err).Stringer("id", id).Msg("cache get error, falling back to primary repository")
	}

	primary, err := r.primaryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, primary, r.ttl); err != nil {
		r.logger.Error().Err(err).Stringer("id", primary.ID).Msg("failed to set cache after db fetch")
	}

	return primary, nil
}

// UpsertResponse writes through and drops the cached copy, whose responses are now stale.
func (r *CachedNotificationRepository) UpsertResponse(ctx context.Context, notificationID uuid.UUID, resp model.Response) error {
	if err := r.primaryRepo.UpsertResponse(ctx, notificationID, resp); err != nil {
		return err
	}
	r.invalidate(ctx, notificationID, "response")
	return nil
}

func (r *CachedNotificationRepository) ListSent(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, error) {
	return r.primaryRepo.ListSent(ctx, filter)
}

func (r *CachedNotificationRepository) ListPending(ctx context.Context) ([]*model.Notification, error) {
	return r.primaryRepo.ListPending(ctx)
}

// MarkSent invalidates the entry only when this call fired the notification.
func (r *CachedNotificationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	fired, err := r.primaryRepo.MarkSent(ctx, id, at)
	if err != nil {
		return false, err
	}
	if fired {
		r.invalidate(ctx, id, "mark sent")
	}
	return fired, nil
}

// Delete first deletes the data from the primary repository,
// then invalidates the cache.
func (r *CachedNotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.primaryRepo.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id, "delete")
	return nil
}

func (r *CachedNotificationRepository) invalidate(ctx context.Context, id uuid.UUID, after string) {
	if err := r.cache.Delete(ctx, id); err != nil {
		r.logger.Error().Err(err).Stringer("id", id).Str("after", after).Msg("failed to invalidate cache")
	}
}
