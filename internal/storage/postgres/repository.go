package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Ensure NotificationRepository implements the interface
var _ repo.NotificationRepository = (*NotificationRepository)(nil)

// NotificationRepository implements the domain.repository.NotificationRepository interface
// using PostgreSQL as a backend.
type NotificationRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  zerolog.Logger
}

// NewNotificationRepository creates a new instance of the NotificationRepository
func NewNotificationRepository(pool *pgxpool.Pool, cfg *config.Config, logger *zerolog.Logger) *NotificationRepository {
	return &NotificationRepository{
		pool:    pool,
		timeout: cfg.Postgres.QueryTimeout,
		logger:  logger.With().Str("layer", "postgres_repository").Logger(),
	}
}

// Save persists a new notification and returns the stored row.
func (r *NotificationRepository) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, qNotificationInsert,
		pgUUID(n.ID),
		n.Title,
		n.Message,
		n.TargetGroups,
		nonNil(n.MediaURLs),
		n.IsInteractive,
		pgTime(n.SentAt),
		pgTime(n.ScheduledFor),
		pgtype.Timestamptz{Time: n.CreatedAt, Valid: true},
	)
	created, err := scanNotification(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, repo.ErrDuplicateRecord
		}
		r.logger.Err(err).Msg("cannot create notification")
		return nil, fmt.Errorf("postgres: CreateNotification failed: %w", err)
	}
	created.Responses = []model.Response{}
	return created, nil
}

// GetByID retrieves a notification and its responses by its unique ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	n, err := scanNotification(r.pool.QueryRow(ctx, qNotificationByID, pgUUID(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn().Stringer("id", id).Msg("notification not found by id")
			return nil, repo.ErrNotFound
		}
		r.logger.Err(err).Str("method", "GetByID").Msg("cannot get notification")
		return nil, fmt.Errorf("postgres: GetNotificationByID failed: %w", err)
	}

	if err := r.attachResponses(ctx, []*model.Notification{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// UpsertResponse inserts or replaces the user's answer in a single statement.
func (r *NotificationRepository) UpsertResponse(ctx context.Context, notificationID uuid.UUID, resp model.Response) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, qResponseUpsert,
		pgUUID(notificationID),
		pgUUID(resp.UserID),
		string(resp.Value),
		pgtype.Timestamptz{Time: resp.RespondedAt, Valid: true},
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			switch pgErr.ConstraintName {
			case fkResponseUser:
				return repo.ErrUserMissing
			case fkResponseNotification:
				// The notification was cancelled between the SELECT and the INSERT.
				return repo.ErrNotificationMissing
			}
		}
		r.logger.Err(err).Stringer("notification_id", notificationID).Msg("cannot upsert response")
		return fmt.Errorf("postgres: UpsertResponse failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotificationMissing
	}
	return nil
}

// ListSent returns delivered notifications, most recent first.
func (r *NotificationRepository) ListSent(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var groups []string
	if len(filter.Groups) > 0 {
		groups = filter.Groups
	}

	rows, err := r.pool.Query(ctx, qNotificationsSent, groups, filter.MediaOnly)
	if err != nil {
		r.logger.Err(err).Strs("groups", filter.Groups).Msg("cannot list notifications")
		return nil, fmt.Errorf("postgres: ListSent failed: %w", err)
	}
	out, err := collectNotifications(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: ListSent failed: %w", err)
	}

	if err := r.attachResponses(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPending returns scheduled notifications that have not fired, overdue ones included.
func (r *NotificationRepository) ListPending(ctx context.Context) ([]*model.Notification, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, qNotificationsPending)
	if err != nil {
		r.logger.Err(err).Msg("cannot list pending notifications")
		return nil, fmt.Errorf("postgres: ListPending failed: %w", err)
	}
	out, err := collectNotifications(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: ListPending failed: %w", err)
	}
	for _, n := range out {
		n.Responses = []model.Response{}
	}
	return out, nil
}

// MarkSent flips sent_at from NULL to at; concurrent callers race on the row lock and only one wins.
func (r *NotificationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, qNotificationMarkSent, pgUUID(id), pgtype.Timestamptz{Time: at, Valid: true})
	if err != nil {
		r.logger.Err(err).Stringer("id", id).Msg("cannot mark notification sent")
		return false, fmt.Errorf("postgres: MarkSent failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a notification that has not been sent yet.
func (r *NotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, qNotificationDeletePending, pgUUID(id))
	if err != nil {
		r.logger.Err(err).Stringer("id", id).Msg("cannot cancel notification")
		return fmt.Errorf("postgres: CancelNotification failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn().Stringer("id", id).Msg("tried to cancel non-existent or sent notification")
		return repo.ErrNotFound
	}
	return nil
}

// attachResponses loads the responses of all notifications with one query.
func (r *NotificationRepository) attachResponses(ctx context.Context, notifications []*model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*model.Notification, len(notifications))
	ids := make([]string, 0, len(notifications))
	for _, n := range notifications {
		n.Responses = []model.Response{}
		byID[n.ID] = n
		ids = append(ids, n.ID.String())
	}

	rows, err := r.pool.Query(ctx, qResponsesByNotifications, ids)
	if err != nil {
		r.logger.Err(err).Int("notifications", len(ids)).Msg("cannot load responses")
		return fmt.Errorf("postgres: load responses failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			notificationID, userID pgtype.UUID
			value                  string
			respondedAt            pgtype.Timestamptz
		)
		if err := rows.Scan(&notificationID, &userID, &value, &respondedAt); err != nil {
			return fmt.Errorf("postgres: scan response: %w", err)
		}
		n, ok := byID[uuid.UUID(notificationID.Bytes)]
		if !ok {
			continue
		}
		n.Responses = append(n.Responses, model.Response{
			UserID:      uuid.UUID(userID.Bytes),
			Value:       model.ResponseValue(value),
			RespondedAt: respondedAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load responses failed: %w", err)
	}
	return nil
}

// === Mapper Functions ===

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var (
		id           pgtype.UUID
		n            model.Notification
		sentAt       pgtype.Timestamptz
		scheduledFor pgtype.Timestamptz
		createdAt    pgtype.Timestamptz
	)
	if err := row.Scan(&id, &n.Title, &n.Message, &n.TargetGroups, &n.MediaURLs, &n.IsInteractive, &sentAt, &scheduledFor, &createdAt); err != nil {
		return nil, err
	}
	n.ID = id.Bytes
	n.SentAt = fromPgTime(sentAt)
	n.ScheduledFor = fromPgTime(scheduledFor)
	n.CreatedAt = createdAt.Time
	if n.MediaURLs == nil {
		n.MediaURLs = []string{}
	}
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]*model.Notification, error) {
	defer rows.Close()

	out := make([]*model.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func fromPgTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
