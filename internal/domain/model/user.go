package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a community member. Users are owned by an external user-management
// service; this application only reads them.
type User struct {
	ID             uuid.UUID
	FirstName      string
	LastName       string
	Birthdate      *time.Time
	ProfilePicture *string
	Groups         []string

	// Contact details used by the fan-out notifiers. Both are optional.
	Email          *string
	TelegramChatID *int64
}

// HasGroup reports whether the user belongs to at least one group.
func (u *User) HasGroup() bool {
	return len(u.Groups) > 0
}
