package feed

import (
	"context"

	"github.com/tOgg1/spark/internal/events"
	"github.com/tOgg1/spark/internal/models"
	"github.com/tOgg1/spark/internal/notify"
)

// Pager fetches historical pages, newest-first. The first record of a page
// carries the conversation's total row count in PageCount.
type Pager interface {
	FetchMessagePage(ctx context.Context, conversationID string, offset int) ([]models.Message, error)
}

// Writer persists a message under a client-generated id.
type Writer interface {
	SendMessage(ctx context.Context, id, content, conversationID string) error
}

// Realtime opens filtered insert subscriptions.
type Realtime interface {
	Subscribe(ctx context.Context, filter events.Filter) (<-chan events.Change, func(), error)
}

// Identity supplies the signed-in user.
type Identity interface {
	CurrentUserID() (string, bool)
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func() (string, bool)

// CurrentUserID implements Identity.
func (f IdentityFunc) CurrentUserID() (string, bool) { return f() }

// StaticIdentity always reports the same user; empty means signed out.
type StaticIdentity string

// CurrentUserID implements Identity.
func (s StaticIdentity) CurrentUserID() (string, bool) {
	return string(s), s != ""
}

// Notifier dispatches push notifications. Calls are best-effort.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}
