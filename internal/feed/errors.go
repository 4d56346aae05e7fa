package feed

import (
	"errors"
	"fmt"

	"github.com/tOgg1/spark/internal/events"
)

// Feed errors.
var (
	ErrEmptyMessage   = errors.New("message content is empty")
	ErrNoConversation = errors.New("no conversation is open")
	ErrNoCurrentUser  = errors.New("no current user")
	ErrClosed         = errors.New("conversation is closed")
	ErrSuperseded     = errors.New("subscription replaced before it opened")
)

// FetchError reports a failed page load. It is not retried automatically;
// the next scroll trigger tries again.
type FetchError struct {
	ConversationID string
	Offset         int
	Err            error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unable to load messages for conversation %s at offset %d: %v", e.ConversationID, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError reports a failed message write. The optimistic record has been
// removed when this error is delivered.
type SendError struct {
	ConversationID string
	MessageID      string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message %s to conversation %s: %v", e.MessageID, e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// SubscriptionError reports a realtime channel that failed to open or dropped.
type SubscriptionError struct {
	ConversationID string
	Table          events.Table
	Dropped        bool
	Err            error
}

func (e *SubscriptionError) Error() string {
	if e.Dropped {
		return fmt.Sprintf("%s subscription for conversation %s dropped", e.Table, e.ConversationID)
	}
	return fmt.Sprintf("subscribe to %s for conversation %s: %v", e.Table, e.ConversationID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// NotificationError reports a failed push dispatch. It is only ever logged.
type NotificationError struct {
	ConversationID string
	RecipientID    string
	Err            error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s about conversation %s: %v", e.RecipientID, e.ConversationID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
