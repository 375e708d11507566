// Package keybuilder builds the namespaced keys used in Redis.
package keybuilder

import (
	"strings"

	"github.com/google/uuid"
)

const (
	Namespace    string = "group-notifier"
	Notification string = "notification"
	FanOut       string = "fanout"
)

// NotificationKey returns the cache key of a single notification.
func NotificationKey(id uuid.UUID) string {
	return Build(Notification, id.String())
}

// FanOutKey marks a notification whose recipients were already notified.
func FanOutKey(id uuid.UUID) string {
	return Build(FanOut, id.String())
}

// Build joins parts under the service namespace, skipping empty ones.
func Build(parts ...string) string {
	out := make([]string, 0, len(parts)+1)
	out = append(out, Namespace)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}
