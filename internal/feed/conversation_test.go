package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/spark/internal/events"
	"github.com/tOgg1/spark/internal/models"
)

type harness struct {
	conv     *Conversation
	pager    *fakePager
	writer   *fakeWriter
	broker   *events.MemoryBroker
	notifier *recordingNotifier
}

func newHarness(t *testing.T, policy OrphanPolicy) *harness {
	t.Helper()
	broker := events.NewMemoryBroker()
	t.Cleanup(func() { _ = broker.Close() })

	h := &harness{
		pager:    newFakePager(2),
		writer:   &fakeWriter{broker: broker, sender: "me"},
		broker:   broker,
		notifier: &recordingNotifier{},
	}
	h.conv = NewConversation(Config{PageSize: 2, OrphanPolicy: policy}, Deps{
		Pager:    h.pager,
		Writer:   h.writer,
		Realtime: broker,
		Identity: StaticIdentity("me"),
		Notifier: h.notifier,
	})
	t.Cleanup(h.conv.Close)
	return h
}

func TestConversationOpenLoadsAndSubscribes(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	h.pager.seed("c1", 3)

	require.NoError(t, h.conv.Open(context.Background(), "c1"))
	require.NoError(t, h.conv.Err())
	require.Equal(t, "c1", h.conv.ConversationID())
	require.Equal(t, Subscribed, h.conv.SubscriptionState())
	require.Equal(t, 2, h.broker.SubscriberCount())
	require.True(t, h.conv.HasMore())
	require.Equal(t, 1, h.conv.Remaining())

	var got []string
	for m := range h.conv.Messages() {
		got = append(got, m.ID)
	}
	require.Equal(t, []string{"c1-m3", "c1-m2"}, got)

	h.conv.LoadOlder(context.Background())
	require.False(t, h.conv.HasMore())
	require.Equal(t, 3, h.conv.Snapshot().Len())
}

func TestConversationSwitchTearsDownFirst(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	h.pager.seed("c1", 1)
	h.pager.seed("c2", 1)
	ctx := context.Background()

	require.NoError(t, h.conv.Open(ctx, "c1"))
	require.NoError(t, h.conv.Open(ctx, "c2"))
	require.Equal(t, 2, h.broker.SubscriberCount())

	publishMessage(t, h.broker, msg("c1", "late"))
	publishMessage(t, h.broker, msg("c2", "fresh"))
	eventually(t, func() bool { return h.conv.Snapshot().Has("fresh") })

	require.False(t, h.conv.Snapshot().Has("late"))
	require.False(t, h.conv.Snapshot().Has("c1-m1"))
	require.Equal(t, []string{"fresh", "c2-m1"}, ids(h.conv.Snapshot()))
}

func TestConversationSendAndEchoInSameTick(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	h.pager.seed("c1", 1)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	h.writer.gate = make(chan struct{})
	id, done, err := h.conv.Send(ctx, "hello from me")
	require.NoError(t, err)
	publishMessage(t, h.broker, msg("c1", "from-b"))
	eventually(t, func() bool { return h.conv.Snapshot().Has("from-b") })

	close(h.writer.gate)
	require.NoError(t, <-done)

	// The echo of our own send is published by the writer; it must not
	// produce a second entry.
	publishMessage(t, h.broker, models.Message{ID: id, ConversationID: "c1", SenderID: "me", Content: models.StringPtr("hello from me")})
	publishMessage(t, h.broker, msg("c1", "sync"))
	eventually(t, func() bool { return h.conv.Snapshot().Has("sync") })

	snapshot := h.conv.Snapshot()
	count := 0
	for _, existing := range snapshot.IDs() {
		if existing == id {
			count++
		}
	}
	require.Equal(t, 1, count)
	require.Equal(t, []string{"sync", "from-b", id, "c1-m1"}, ids(snapshot))

	h.conv.Wait()
	notes := h.notifier.notifications()
	require.Len(t, notes, 2)
	for _, n := range notes {
		require.Equal(t, "me", n.RecipientID)
		require.Equal(t, "peer", n.SenderID)
		require.Equal(t, "c1", n.ConversationID)
	}
}

func TestConversationEchoKeepsCommittedTime(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	h.writer.gate = make(chan struct{})
	id, done, err := h.conv.Send(ctx, "hi")
	require.NoError(t, err)

	committed := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	publishMessage(t, h.broker, models.Message{ID: id, ConversationID: "c1", SenderID: "me", Content: models.StringPtr("hi"), CreatedAt: committed})
	eventually(t, func() bool {
		m, _ := h.conv.Snapshot().Get(id)
		return !m.Pending
	})

	close(h.writer.gate)
	require.NoError(t, <-done)
	h.conv.Wait()

	m, ok := h.conv.Snapshot().Get(id)
	require.True(t, ok)
	require.False(t, m.Pending)
	require.Equal(t, committed, m.CreatedAt)
	require.Equal(t, []string{id}, ids(h.conv.Snapshot()))
}

func TestConversationSendFailureLeavesNoRecord(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	h.writer.err = errBackend
	id, done, err := h.conv.Send(ctx, "doomed")
	require.NoError(t, err)
	require.ErrorIs(t, <-done, errBackend)
	require.False(t, h.conv.Snapshot().Has(id))
}

func TestConversationAttachmentBeforeMessage(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	// The notification is dispatched after the attachment has been routed.
	publishAttachment(t, h.broker, "c1", "peer", attachment("a1", "m1"))
	eventually(t, func() bool { return len(h.notifier.notifications()) == 1 })

	publishMessage(t, h.broker, msg("c1", "m1"))
	eventually(t, func() bool { return h.conv.Snapshot().Has("m1") })

	m, _ := h.conv.Snapshot().Get("m1")
	require.Empty(t, m.Attachments)

	publishAttachment(t, h.broker, "c1", "peer", attachment("a2", "m1"))
	eventually(t, func() bool {
		m, _ := h.conv.Snapshot().Get("m1")
		return len(m.Attachments) == 1
	})
}

func TestConversationAttachmentsFollowTheirMessages(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	const pairs = 200
	for i := range pairs {
		messageID := fmt.Sprintf("m%d", i)
		publishMessage(t, h.broker, msg("c1", messageID))
		publishAttachment(t, h.broker, "c1", "peer", attachment(fmt.Sprintf("a%d", i), messageID))
	}

	eventually(t, func() bool {
		last, _ := h.conv.Snapshot().Get(fmt.Sprintf("m%d", pairs-1))
		return len(last.Attachments) == 1
	})

	snapshot := h.conv.Snapshot()
	require.Equal(t, pairs, snapshot.Len())
	for i := range pairs {
		m, ok := snapshot.Get(fmt.Sprintf("m%d", i))
		require.True(t, ok)
		require.Len(t, m.Attachments, 1, "attachment of %s was dropped", m.ID)
	}
	require.Zero(t, snapshot.HeldAttachments())
	h.conv.Wait()
}

func TestConversationHoldPolicyMergesLateMessage(t *testing.T) {
	h := newHarness(t, OrphanHold)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	publishAttachment(t, h.broker, "c1", "peer", attachment("a1", "m1"))
	eventually(t, func() bool { return h.conv.Snapshot().HeldAttachments() == 1 })

	publishMessage(t, h.broker, msg("c1", "m1"))
	eventually(t, func() bool {
		m, ok := h.conv.Snapshot().Get("m1")
		return ok && len(m.Attachments) == 1
	})
}

func TestConversationDoesNotNotifyOwnInserts(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	mine := msg("c1", "mine")
	mine.SenderID = "me"
	publishMessage(t, h.broker, mine)
	publishAttachment(t, h.broker, "c1", "me", attachment("a1", "mine"))
	eventually(t, func() bool {
		m, _ := h.conv.Snapshot().Get("mine")
		return len(m.Attachments) == 1
	})

	h.conv.Wait()
	require.Empty(t, h.notifier.notifications())
}

func TestConversationNotificationFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	h.notifier.err = errBackend
	require.NoError(t, h.conv.Open(context.Background(), "c1"))

	publishMessage(t, h.broker, msg("c1", "m1"))
	eventually(t, func() bool { return h.conv.Snapshot().Has("m1") })
	h.conv.Wait()

	require.Len(t, h.notifier.notifications(), 1)
	require.NoError(t, h.conv.Err())
}

func TestConversationSubscribeFailureIsRecorded(t *testing.T) {
	broker := events.NewMemoryBroker()
	defer broker.Close()
	pager := newFakePager(2)
	pager.seed("c1", 1)

	conv := NewConversation(Config{}, Deps{
		Pager:    pager,
		Writer:   &fakeWriter{},
		Realtime: failingRealtime{Realtime: broker, table: events.TableAttachments},
		Identity: StaticIdentity("me"),
	})
	defer conv.Close()

	require.NoError(t, conv.Open(context.Background(), "c1"))
	var subErr *SubscriptionError
	require.ErrorAs(t, conv.Err(), &subErr)
	require.Equal(t, events.TableAttachments, subErr.Table)
	require.Equal(t, Unsubscribed, conv.SubscriptionState())
	require.Zero(t, broker.SubscriberCount(), "the healthy subscription is closed too")
	require.Equal(t, 1, conv.Snapshot().Len(), "history still loads")
}

func TestConversationFetchFailureDegradesToEmpty(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	h.pager.fail(errBackend)

	require.NoError(t, h.conv.Open(context.Background(), "c1"))
	var fetchErr *FetchError
	require.ErrorAs(t, h.conv.Err(), &fetchErr)
	require.Zero(t, h.conv.Snapshot().Len())
	require.False(t, h.conv.HasMore())
	require.Equal(t, Subscribed, h.conv.SubscriptionState())
}

func TestConversationLoadOlderClearsRecoveredFetchError(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	h.pager.seed("c1", 5)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	h.pager.fail(errBackend)
	h.conv.LoadOlder(ctx)
	var fetchErr *FetchError
	require.ErrorAs(t, h.conv.Err(), &fetchErr)
	require.Equal(t, 2, h.conv.Snapshot().Len())
	require.Equal(t, 3, h.conv.Remaining())

	h.pager.fail(nil)
	h.conv.LoadOlder(ctx)
	require.NoError(t, h.conv.Err())
	require.Equal(t, 4, h.conv.Snapshot().Len())
	require.Equal(t, 1, h.conv.Remaining())
}

func TestConversationLoadOlderKeepsSubscriptionError(t *testing.T) {
	broker := events.NewMemoryBroker()
	defer broker.Close()
	pager := newFakePager(2)
	pager.seed("c1", 3)

	conv := NewConversation(Config{PageSize: 2}, Deps{
		Pager:    pager,
		Writer:   &fakeWriter{},
		Realtime: failingRealtime{Realtime: broker, table: events.TableMessages},
		Identity: StaticIdentity("me"),
	})
	defer conv.Close()

	ctx := context.Background()
	require.NoError(t, conv.Open(ctx, "c1"))
	conv.LoadOlder(ctx)
	require.Equal(t, 3, conv.Snapshot().Len())

	var subErr *SubscriptionError
	require.ErrorAs(t, conv.Err(), &subErr)
}

func TestConversationDroppedStream(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	require.NoError(t, h.conv.Open(context.Background(), "c1"))

	require.NoError(t, h.broker.Close())
	eventually(t, func() bool { return h.conv.SubscriptionState() == Unsubscribed })
}

func TestConversationClosed(t *testing.T) {
	h := newHarness(t, OrphanDrop)
	ctx := context.Background()
	require.NoError(t, h.conv.Open(ctx, "c1"))

	h.conv.Close()
	require.Zero(t, h.broker.SubscriberCount())
	require.ErrorIs(t, h.conv.Open(ctx, "c2"), ErrClosed)
	_, _, err := h.conv.Send(ctx, "hi")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, h.conv.Open(ctx, ""), ErrNoConversation)
}
