package service

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidGroup    = errors.New("invalid group")
	ErrInvalidSchedule = errors.New("invalid schedule date")
	ErrInvalidResponse = errors.New("invalid response")

	ErrNotificationNotFound = errors.New("notification not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotCancellable       = errors.New("notification has already been sent")
)

// ValidationError reports a request that was rejected before touching storage.
type ValidationError struct {
	Field  string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error, detail string) error {
	return &ValidationError{Field: field, Err: err, Detail: detail}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
