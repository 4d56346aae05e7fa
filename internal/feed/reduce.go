package feed

import (
	"time"

	"github.com/tOgg1/spark/internal/models"
)

// Event is an input to Reduce. Every event names the conversation it belongs
// to so results that arrive after a conversation switch can be discarded.
type Event interface {
	conversation() string
}

// Reset switches the feed to a conversation and discards all records.
type Reset struct {
	ConversationID string
}

// PageLoaded carries the result of a page fetch.
type PageLoaded struct {
	ConversationID string
	// Generation is the state generation the fetch was issued in; zero skips the check.
	Generation uint64
	Records    []models.Message
	Replace    bool
}

// MessageInserted carries a realtime insert or an optimistic send.
type MessageInserted struct {
	Message models.Message
}

// AttachmentInserted carries a realtime attachment insert.
type AttachmentInserted struct {
	ConversationID string
	Attachment     models.Attachment
}

// MessageRemoved rolls back an optimistic send.
type MessageRemoved struct {
	ConversationID string
	ID             string
}

// MessageConfirmed marks an optimistic send as acknowledged.
type MessageConfirmed struct {
	ConversationID string
	ID             string
	CreatedAt      time.Time
}

func (e Reset) conversation() string              { return e.ConversationID }
func (e PageLoaded) conversation() string         { return e.ConversationID }
func (e MessageInserted) conversation() string    { return e.Message.ConversationID }
func (e AttachmentInserted) conversation() string { return e.ConversationID }
func (e MessageRemoved) conversation() string     { return e.ConversationID }
func (e MessageConfirmed) conversation() string   { return e.ConversationID }

// Reduce computes the state that follows ev. Events for another conversation
// (or an older generation) leave the state unchanged.
func Reduce(state State, ev Event) State {
	if reset, ok := ev.(Reset); ok {
		next := NewState(reset.ConversationID, state.policy)
		next.generation = state.generation + 1
		next.version = state.version + 1
		return next
	}

	if state.conversationID == "" || ev.conversation() != state.conversationID {
		return state
	}

	switch e := ev.(type) {
	case PageLoaded:
		if e.Generation != 0 && e.Generation != state.generation {
			return state
		}
		return state.LoadPage(e.Records, e.Replace)
	case MessageInserted:
		return state.InsertRealtime(e.Message)
	case AttachmentInserted:
		next, _ := state.Attach(e.Attachment)
		return next
	case MessageRemoved:
		return state.Remove(e.ID)
	case MessageConfirmed:
		return state.Confirm(e.ID, e.CreatedAt)
	}
	return state
}
