// Package notify delivers best-effort alerts about incoming messages.
package notify

import (
	"context"
	"errors"
	"strings"
)

// ErrNoRecipient is returned for notifications without a recipient.
var ErrNoRecipient = errors.New("notification recipient is required")

// Notification describes one alert for RecipientID.
type Notification struct {
	RecipientID    string
	SenderID       string
	ConversationID string
	Title          string
	Body           string
}

// Validate checks the fields every backend needs.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return ErrNoRecipient
	}
	return nil
}

// Notifier dispatches notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Noop discards every notification.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, Notification) error { return nil }

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
