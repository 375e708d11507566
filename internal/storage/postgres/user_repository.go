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
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ repo.UserRepository = (*UserRepository)(nil)

// UserRepository reads the users table maintained by the user-management service.
type UserRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  zerolog.Logger
}

func NewUserRepository(pool *pgxpool.Pool, cfg *config.Config, logger *zerolog.Logger) *UserRepository {
	return &UserRepository{
		pool:    pool,
		timeout: cfg.Postgres.QueryTimeout,
		logger:  logger.With().Str("layer", "postgres_user_repository").Logger(),
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, qUserByID, pgUUID(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		r.logger.Err(err).Stringer("id", id).Msg("cannot get user")
		return nil, fmt.Errorf("postgres: GetUserByID failed: %w", err)
	}
	return u, nil
}

// GetByIDs keeps the order of ids and silently drops unknown ones.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error) {
	if len(ids) == 0 {
		return []*model.User{}, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	params := make([]string, len(ids))
	for i, id := range ids {
		params[i] = id.String()
	}

	rows, err := r.pool.Query(ctx, qUsersByIDs, params)
	if err != nil {
		r.logger.Err(err).Int("ids", len(ids)).Msg("cannot get users")
		return nil, fmt.Errorf("postgres: GetUsersByIDs failed: %w", err)
	}
	found, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: GetUsersByIDs failed: %w", err)
	}

	byID := make(map[uuid.UUID]*model.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	out := make([]*model.User, 0, len(found))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *UserRepository) ListByGroups(ctx context.Context, groups []string) ([]*model.User, error) {
	if len(groups) == 0 {
		return []*model.User{}, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, qUsersByGroups, groups)
	if err != nil {
		r.logger.Err(err).Strs("groups", groups).Msg("cannot list users by groups")
		return nil, fmt.Errorf("postgres: ListUsersByGroups failed: %w", err)
	}
	out, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: ListUsersByGroups failed: %w", err)
	}
	return out, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		id        pgtype.UUID
		u         model.User
		birthdate pgtype.Date
		picture   pgtype.Text
		email     pgtype.Text
		chatID    pgtype.Int8
	)
	if err := row.Scan(&id, &u.FirstName, &u.LastName, &birthdate, &picture, &u.Groups, &email, &chatID); err != nil {
		return nil, err
	}
	u.ID = id.Bytes
	if birthdate.Valid {
		b := birthdate.Time
		u.Birthdate = &b
	}
	if picture.Valid {
		u.ProfilePicture = &picture.String
	}
	if email.Valid {
		u.Email = &email.String
	}
	if chatID.Valid {
		u.TelegramChatID = &chatID.Int64
	}
	if u.Groups == nil {
		u.Groups = []string{}
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]*model.User, error) {
	defer rows.Close()

	out := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
