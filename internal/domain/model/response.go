package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResponseValue is a user's answer to an interactive notification.
type ResponseValue string

const (
	ResponseAvailable    ResponseValue = "available"
	ResponseNotAvailable ResponseValue = "not available"
)

// Response is one user's answer, embedded in its Notification.
type Response struct {
	UserID      uuid.UUID     `json:"user_id"`
	Value       ResponseValue `json:"response"`
	RespondedAt time.Time     `json:"responded_at"`
}

// ParseResponseValue normalises the spellings clients have used over time.
func ParseResponseValue(raw string) (ResponseValue, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "available":
		return ResponseAvailable, true
	case "not available", "not-available", "not_available", "unavailable":
		return ResponseNotAvailable, true
	default:
		return "", false
	}
}
