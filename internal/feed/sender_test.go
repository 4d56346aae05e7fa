package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/spark/internal/models"
)

func newTestSender(f *Feed, w Writer) *Sender {
	s := NewSender(f, w, StaticIdentity("me"))
	n := 0
	s.newID = func() string {
		n++
		return "local-" + string(rune('0'+n))
	}
	s.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestSendInsertsPendingBeforeWrite(t *testing.T) {
	f := NewFeed(OrphanDrop)
	f.Apply(Reset{ConversationID: "c1"})
	f.Apply(PageLoaded{ConversationID: "c1", Records: []models.Message{msg("c1", "m1")}, Replace: true})

	writer := &fakeWriter{gate: make(chan struct{})}
	s := newTestSender(f, writer)

	id, done, err := s.Send(context.Background(), "c1", "hi there")
	require.NoError(t, err)
	require.Equal(t, "local-1", id)

	pending, ok := f.Snapshot().Get(id)
	require.True(t, ok)
	require.True(t, pending.Pending)
	require.Equal(t, "me", pending.SenderID)
	require.Equal(t, []string{id, "m1"}, ids(f.Snapshot()))

	close(writer.gate)
	require.NoError(t, <-done)

	confirmed, ok := f.Snapshot().Get(id)
	require.True(t, ok)
	require.False(t, confirmed.Pending)
	require.Equal(t, pending.CreatedAt, confirmed.CreatedAt, "the ack keeps the local time until the echo arrives")
	require.Equal(t, []string{id}, writer.written())
}

func TestSendFailureRemovesPendingMessage(t *testing.T) {
	f := NewFeed(OrphanDrop)
	f.Apply(Reset{ConversationID: "c1"})

	s := newTestSender(f, &fakeWriter{err: errBackend})
	id, done, err := s.Send(context.Background(), "c1", "hi")
	require.NoError(t, err)

	sendErr := <-done
	var typed *SendError
	require.ErrorAs(t, sendErr, &typed)
	require.Equal(t, id, typed.MessageID)
	require.ErrorIs(t, sendErr, errBackend)
	require.False(t, f.Snapshot().Has(id))
	require.Zero(t, f.Snapshot().Len())
}

func TestSendValidation(t *testing.T) {
	f := NewFeed(OrphanDrop)
	f.Apply(Reset{ConversationID: "c1"})

	tests := []struct {
		name         string
		identity     Identity
		conversation string
		content      string
		want         error
	}{
		{name: "empty content", identity: StaticIdentity("me"), conversation: "c1", content: "  \n", want: ErrEmptyMessage},
		{name: "no conversation", identity: StaticIdentity("me"), content: "hi", want: ErrNoConversation},
		{name: "signed out", identity: StaticIdentity(""), conversation: "c1", content: "hi", want: ErrNoCurrentUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSender(f, &fakeWriter{}, tt.identity)
			_, done, err := s.Send(context.Background(), tt.conversation, tt.content)
			require.ErrorIs(t, err, tt.want)
			require.Nil(t, done)
			require.Zero(t, f.Snapshot().Len())
		})
	}
}

func TestConcurrentSendsDoNotBlockEachOther(t *testing.T) {
	f := NewFeed(OrphanDrop)
	f.Apply(Reset{ConversationID: "c1"})
	writer := &fakeWriter{gate: make(chan struct{})}
	s := newTestSender(f, writer)

	first, _, err := s.Send(context.Background(), "c1", "one")
	require.NoError(t, err)
	second, _, err := s.Send(context.Background(), "c1", "two")
	require.NoError(t, err)

	require.Equal(t, []string{second, first}, ids(f.Snapshot()))
	close(writer.gate)
	s.Wait()
	require.ElementsMatch(t, []string{first, second}, writer.written())
}
