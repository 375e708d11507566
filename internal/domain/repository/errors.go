package repository

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateRecord is returned on a unique key violation.
	ErrDuplicateRecord = errors.New("record already exists")
	// ErrNotificationMissing is returned when a response references an unknown notification.
	ErrNotificationMissing = errors.New("referenced notification does not exist")
	// ErrUserMissing is returned when a response references an unknown user.
	ErrUserMissing = errors.New("referenced user does not exist")
)
