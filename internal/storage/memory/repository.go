// Package memory holds in-process implementations of the repository contracts.
// They back the unit tests of the service, HTTP and consumer layers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
)

var (
	_ repo.NotificationRepository = (*NotificationRepository)(nil)
	_ repo.UserRepository         = (*UserRepository)(nil)
)

// NotificationRepository stores notifications in a map guarded by a mutex.
type NotificationRepository struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*model.Notification
	users         *UserRepository

	// Err, when set, is returned by every method.
	Err error
	// Writes counts successful mutating calls.
	Writes int
}

// NewNotificationRepository creates an empty repository. Response upserts
// check user references against users.
func NewNotificationRepository(users *UserRepository) *NotificationRepository {
	return &NotificationRepository{
		notifications: make(map[uuid.UUID]*model.Notification),
		users:         users,
	}
}

func (r *NotificationRepository) Save(_ context.Context, n *model.Notification) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if _, ok := r.notifications[n.ID]; ok {
		return nil, repo.ErrDuplicateRecord
	}
	r.notifications[n.ID] = clone(n)
	r.Writes++
	return clone(n), nil
}

func (r *NotificationRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	n, ok := r.notifications[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return clone(n), nil
}

func (r *NotificationRepository) UpsertResponse(ctx context.Context, notificationID uuid.UUID, resp model.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	n, ok := r.notifications[notificationID]
	if !ok || !n.IsSent() {
		return repo.ErrNotificationMissing
	}
	if r.users != nil {
		if _, err := r.users.GetByID(ctx, resp.UserID); err != nil {
			return repo.ErrUserMissing
		}
	}
	for i := range n.Responses {
		if n.Responses[i].UserID == resp.UserID {
			n.Responses[i].Value = resp.Value
			n.Responses[i].RespondedAt = resp.RespondedAt
			r.Writes++
			return nil
		}
	}
	n.Responses = append(n.Responses, resp)
	r.Writes++
	return nil
}

func (r *NotificationRepository) ListSent(_ context.Context, filter model.NotificationFilter) ([]*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*model.Notification, 0)
	for _, n := range r.notifications {
		if !n.IsSent() {
			continue
		}
		if filter.MediaOnly && !n.HasMedia() {
			continue
		}
		if len(filter.Groups) > 0 && !targetsAny(n, filter.Groups) {
			continue
		}
		out = append(out, clone(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(*out[j].SentAt) {
			return out[i].SentAt.After(*out[j].SentAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *NotificationRepository) ListPending(_ context.Context) ([]*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*model.Notification, 0)
	for _, n := range r.notifications {
		if n.IsPending() {
			out = append(out, clone(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(*out[j].ScheduledFor) })
	return out, nil
}

func (r *NotificationRepository) MarkSent(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	n, ok := r.notifications[id]
	if !ok || n.SentAt != nil {
		return false, nil
	}
	sent := at
	n.SentAt = &sent
	r.Writes++
	return true, nil
}

func (r *NotificationRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	n, ok := r.notifications[id]
	if !ok || n.SentAt != nil {
		return repo.ErrNotFound
	}
	delete(r.notifications, id)
	r.Writes++
	return nil
}

// Len returns the number of stored notifications.
func (r *NotificationRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

// UserRepository stores users in a map.
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*model.User
	order []uuid.UUID

	// Err, when set, is returned by every read.
	Err error
}

// NewUserRepository creates a repository seeded with users.
func NewUserRepository(users ...*model.User) *UserRepository {
	r := &UserRepository{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		r.Add(u)
	}
	return r
}

// Add inserts or replaces a user.
func (r *UserRepository) Add(u *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		r.order = append(r.order, u.ID)
	}
	cp := *u
	r.users[u.ID] = &cp
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *UserRepository) ListByGroups(_ context.Context, groups []string) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*model.User, 0)
	for _, id := range r.order {
		u := r.users[id]
		if overlaps(u.Groups, groups) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func targetsAny(n *model.Notification, groups []string) bool {
	return overlaps(n.TargetGroups, groups)
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func clone(n *model.Notification) *model.Notification {
	cp := *n
	cp.TargetGroups = append([]string(nil), n.TargetGroups...)
	cp.MediaURLs = append([]string{}, n.MediaURLs...)
	cp.Responses = append([]model.Response{}, n.Responses...)
	if n.SentAt != nil {
		t := *n.SentAt
		cp.SentAt = &t
	}
	if n.ScheduledFor != nil {
		t := *n.ScheduledFor
		cp.ScheduledFor = &t
	}
	return &cp
}
