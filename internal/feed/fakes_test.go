package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/spark/internal/events"
	"github.com/tOgg1/spark/internal/models"
	"github.com/tOgg1/spark/internal/notify"
)

var errBackend = errors.New("backend unavailable")

type fetchCall struct {
	ConversationID string
	Offset         int
}

// fakePager serves newest-first pages from an in-memory history.
type fakePager struct {
	pageSize int

	mu      sync.Mutex
	history map[string][]models.Message
	calls   []fetchCall
	err     error
	gate    chan struct{}
	started chan struct{}
}

func newFakePager(pageSize int) *fakePager {
	return &fakePager{pageSize: pageSize, history: make(map[string][]models.Message)}
}

// seed stores n messages for conversationID; m<n> is the newest.
func (p *fakePager) seed(conversationID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := make([]models.Message, 0, n)
	for i := n; i >= 1; i-- {
		records = append(records, models.Message{
			ID:             fmt.Sprintf("%s-m%d", conversationID, i),
			ConversationID: conversationID,
			SenderID:       "peer",
			Content:        models.StringPtr(fmt.Sprintf("message %d", i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
	}
	p.history[conversationID] = records
}

func (p *fakePager) FetchMessagePage(ctx context.Context, conversationID string, offset int) ([]models.Message, error) {
	p.mu.Lock()
	p.calls = append(p.calls, fetchCall{ConversationID: conversationID, Offset: offset})
	gate, started, err := p.gate, p.started, p.err
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	all := p.history[conversationID]
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+p.pageSize, len(all))
	page := make([]models.Message, 0, end-offset)
	for _, msg := range all[offset:end] {
		msg.PageCount = len(all)
		page = append(page, msg)
	}
	return page, nil
}

func (p *fakePager) block() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
	p.started = make(chan struct{}, 8)
}

func (p *fakePager) release() {
	p.mu.Lock()
	gate := p.gate
	p.gate = nil
	p.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (p *fakePager) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakePager) fetches() []fetchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fetchCall(nil), p.calls...)
}

// fakeWriter records writes and optionally publishes the realtime echo.
type fakeWriter struct {
	mu     sync.Mutex
	sent   []string
	err    error
	gate   chan struct{}
	broker *events.MemoryBroker
	sender string
}

func (w *fakeWriter) SendMessage(ctx context.Context, id, content, conversationID string) error {
	w.mu.Lock()
	gate, err := w.gate, w.err
	w.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.sent = append(w.sent, id)
	w.mu.Unlock()

	if w.broker != nil {
		change, err := events.NewInsert(events.TableMessages, conversationID, w.sender, models.Message{
			ID:             id,
			ConversationID: conversationID,
			SenderID:       w.sender,
			Content:        models.StringPtr(content),
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return w.broker.Publish(ctx, change)
	}
	return nil
}

func (w *fakeWriter) written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.sent...)
}

// failingRealtime rejects subscriptions to one table.
type failingRealtime struct {
	Realtime
	table events.Table
}

func (r failingRealtime) Subscribe(ctx context.Context, filter events.Filter) (<-chan events.Change, func(), error) {
	if filter.Table == r.table {
		return nil, nil, errBackend
	}
	return r.Realtime.Subscribe(ctx, filter)
}

// gatedRealtime holds every Subscribe call until gate is closed.
type gatedRealtime struct {
	Realtime
	gate chan struct{}
}

func (r gatedRealtime) Subscribe(ctx context.Context, filter events.Filter) (<-chan events.Change, func(), error) {
	select {
	case <-r.gate:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	return r.Realtime.Subscribe(ctx, filter)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, notification notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.err
}

func (n *recordingNotifier) notifications() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.sent...)
}

func msg(conversationID, id string) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       "peer",
		Content:        models.StringPtr("hello " + id),
	}
}

func attachment(id, messageID string) models.Attachment {
	return models.Attachment{
		ID:        id,
		MessageID: messageID,
		Path:      "uploads/" + id + ".png",
		MimeType:  "image/png",
	}
}

func ids(state State) []string {
	var out []string
	for m := range state.Derive() {
		out = append(out, m.ID)
	}
	return out
}

func publishMessage(t *testing.T, broker *events.MemoryBroker, m models.Message) {
	t.Helper()
	change, err := events.NewInsert(events.TableMessages, m.ConversationID, m.SenderID, m)
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), change))
}

func publishAttachment(t *testing.T, broker *events.MemoryBroker, conversationID, senderID string, a models.Attachment) {
	t.Helper()
	change, err := events.NewInsert(events.TableAttachments, conversationID, senderID, a)
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), change))
}

// eventually waits for cond, failing the test after a second.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}
