package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
)

var (
	_ repo.NotificationQueue = (*Queue)(nil)
	_ repo.FanOutGuard       = (*Guard)(nil)
)

// Kinds of Published messages.
const (
	KindDeliver  = "deliver"
	KindRetry    = "retry"
	KindAnnounce = "announce"
)

// Published is one message handed to the Queue.
type Published struct {
	ID    uuid.UUID
	Kind  string
	Delay time.Duration
	Body  model.Notification
}

// Queue records publications instead of delivering them.
type Queue struct {
	mu       sync.Mutex
	messages []Published
	now      func() time.Time

	// Err, when set, is returned by every publish.
	Err error
}

// NewQueue creates a recording queue; now computes the delay of Publish.
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

func (q *Queue) Publish(_ context.Context, n *model.Notification) error {
	var delay time.Duration
	if n.ScheduledFor != nil {
		delay = n.ScheduledFor.Sub(q.now())
	}
	if delay < 0 {
		delay = 0
	}
	return q.record(Published{ID: n.ID, Kind: KindDeliver, Delay: delay, Body: *n})
}

func (q *Queue) PublishRetry(_ context.Context, n *model.Notification, retryDelay time.Duration) error {
	return q.record(Published{ID: n.ID, Kind: KindRetry, Delay: retryDelay, Body: *n})
}

func (q *Queue) Announce(_ context.Context, n *model.Notification) error {
	return q.record(Published{ID: n.ID, Kind: KindAnnounce, Body: *n})
}

func (q *Queue) record(p Published) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.messages = append(q.messages, p)
	return nil
}

// Messages returns a copy of everything published so far.
func (q *Queue) Messages() []Published {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Published(nil), q.messages...)
}

// Guard is a FanOutGuard backed by a set.
type Guard struct {
	mu      sync.Mutex
	claimed map[uuid.UUID]struct{}

	// Err, when set, is returned by Claim.
	Err error
}

func NewGuard() *Guard {
	return &Guard{claimed: make(map[uuid.UUID]struct{})}
}

func (g *Guard) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return false, g.Err
	}
	if _, ok := g.claimed[id]; ok {
		return false, nil
	}
	g.claimed[id] = struct{}{}
	return true, nil
}
