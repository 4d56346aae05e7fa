package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/spark/internal/models"
)

func TestChangeDecodesMessage(t *testing.T) {
	record := models.Message{
		ID:        "m1",
		SenderID:  "alice",
		Content:   models.StringPtr("hi"),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		PageCount: 9,
		Attachments: []models.Attachment{
			{ID: "a1", MessageID: "m1", Path: "p"},
		},
	}
	change, err := NewInsert(TableMessages, "c1", "alice", record)
	require.NoError(t, err)
	require.NotEmpty(t, change.ID)
	require.Equal(t, ChangeInsert, change.Type)

	msg, err := change.Message()
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "c1", msg.ConversationID)
	require.Equal(t, "hi", msg.Text())
	require.Empty(t, msg.Attachments)
	require.Zero(t, msg.PageCount)

	_, err = change.Attachment()
	require.Error(t, err)
}

func TestChangeDecodesAttachment(t *testing.T) {
	ratio := 1.5
	change, err := NewInsert(TableAttachments, "c1", "bob", models.Attachment{
		ID:          "a1",
		MessageID:   "m1",
		Path:        "chat/a1.png",
		MimeType:    "image/png",
		AspectRatio: &ratio,
	})
	require.NoError(t, err)

	att, err := change.Attachment()
	require.NoError(t, err)
	require.Equal(t, "m1", att.MessageID)
	require.NotNil(t, att.AspectRatio)
	require.InDelta(t, 1.5, *att.AspectRatio, 0.0001)
	require.Equal(t, "bob", change.SenderID)
}
