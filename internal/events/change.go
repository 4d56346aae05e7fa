// Package events carries realtime insert notifications between the backend and the feed.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/spark/internal/models"
)

// Table names a backend table that emits change events.
type Table string

const (
	TableMessages    Table = "messages"
	TableAttachments Table = "attachments"
)

// ChangeType categorizes a change event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
)

// Change is a committed row change delivered to subscribers.
type Change struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	Type  ChangeType `json:"type"`
	Table Table      `json:"table"`

	// ConversationID scopes the change to one conversation.
	ConversationID string `json:"conversation_id"`

	// SenderID is the author of the message the row belongs to.
	SenderID string `json:"sender_id,omitempty"`

	// CommittedAt is when the backend committed the row.
	CommittedAt time.Time `json:"committed_at"`

	// Record is the inserted row.
	Record json.RawMessage `json:"record"`
}

// NewInsert builds an insert change for record.
func NewInsert(table Table, conversationID, senderID string, record any) (Change, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("marshal %s record: %w", table, err)
	}
	return Change{
		ID:             uuid.NewString(),
		Type:           ChangeInsert,
		Table:          table,
		ConversationID: conversationID,
		SenderID:       senderID,
		CommittedAt:    time.Now().UTC(),
		Record:         data,
	}, nil
}

// Message decodes the record of a messages change.
func (c Change) Message() (models.Message, error) {
	if c.Table != TableMessages {
		return models.Message{}, fmt.Errorf("change %s is not a message change (table %q)", c.ID, c.Table)
	}
	var msg models.Message
	if err := json.Unmarshal(c.Record, &msg); err != nil {
		return models.Message{}, fmt.Errorf("decode message record: %w", err)
	}
	if msg.ConversationID == "" {
		msg.ConversationID = c.ConversationID
	}
	if msg.SenderID == "" {
		msg.SenderID = c.SenderID
	}
	msg.Attachments = nil
	msg.PageCount = 0
	return msg, nil
}

// Attachment decodes the record of an attachments change.
func (c Change) Attachment() (models.Attachment, error) {
	if c.Table != TableAttachments {
		return models.Attachment{}, fmt.Errorf("change %s is not an attachment change (table %q)", c.ID, c.Table)
	}
	var att models.Attachment
	if err := json.Unmarshal(c.Record, &att); err != nil {
		return models.Attachment{}, fmt.Errorf("decode attachment record: %w", err)
	}
	return att, nil
}
