package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the core business entity of the application.
// It is technology-agnostic and does not contain any DB tags; the JSON tags
// only serve the queue payload and the cache.
type Notification struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	TargetGroups  []string   `json:"target_groups"`
	MediaURLs     []string   `json:"media_urls"`
	IsInteractive bool       `json:"is_interactive"`
	SentAt        *time.Time `json:"sent_at,omitempty"`       // nil while a scheduled notification waits.
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"` // nil for immediate notifications.
	Responses     []Response `json:"responses"`
	CreatedAt     time.Time  `json:"created_at"`

	// Attempts counts failed delivery attempts; it only travels on the queue.
	Attempts int `json:"attempts,omitempty"`
}

// NewNotification is a factory function for a new notification.
// A scheduledFor strictly after now leaves the notification pending; any other
// value (nil, now or past) makes it sent at now.
func NewNotification(title, message string, groups, mediaURLs []string, interactive bool, scheduledFor *time.Time, now time.Time) *Notification {
	n := &Notification{
		ID:            uuid.New(),
		Title:         title,
		Message:       message,
		TargetGroups:  groups,
		MediaURLs:     mediaURLs,
		IsInteractive: interactive,
		Responses:     []Response{},
		CreatedAt:     now,
	}
	if n.MediaURLs == nil {
		n.MediaURLs = []string{}
	}
	if scheduledFor != nil {
		at := scheduledFor.UTC()
		n.ScheduledFor = &at
	}
	if scheduledFor == nil || !scheduledFor.After(now) {
		sent := now
		n.SentAt = &sent
	}
	return n
}

// IsPending reports whether the notification waits for the scheduler.
func (n *Notification) IsPending() bool {
	return n.SentAt == nil && n.ScheduledFor != nil
}

// IsSent reports whether the notification has been delivered.
func (n *Notification) IsSent() bool {
	return n.SentAt != nil
}

// HasMedia reports whether at least one media URL is attached.
func (n *Notification) HasMedia() bool {
	return len(n.MediaURLs) > 0
}

// InterestedCount is the number of users whose latest response is "available".
func (n *Notification) InterestedCount() int {
	count := 0
	for _, r := range n.Responses {
		if r.Value == ResponseAvailable {
			count++
		}
	}
	return count
}

// ResponseOf returns the recorded answer of userID, or nil.
func (n *Notification) ResponseOf(userID uuid.UUID) *ResponseValue {
	for _, r := range n.Responses {
		if r.UserID == userID {
			v := r.Value
			return &v
		}
	}
	return nil
}

// InterestedUserIDs lists users that answered "available", in response order.
func (n *Notification) InterestedUserIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(n.Responses))
	for _, r := range n.Responses {
		if r.Value == ResponseAvailable {
			ids = append(ids, r.UserID)
		}
	}
	return ids
}

// NotificationFilter selects sent notifications for list views.
type NotificationFilter struct {
	// Groups matches notifications targeting any of them. Empty means all groups.
	Groups []string
	// MediaOnly keeps only notifications carrying at least one media URL.
	MediaOnly bool
}
