package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/spark/internal/feed"
	"github.com/tOgg1/spark/internal/models"
)

type fakeController struct {
	state     feed.State
	hasMore   bool
	loads     int
	sends     []string
	sendErr   error
	err       error
	updates   chan struct{}
	subscribe feed.SubscriptionState
}

func newFakeController(n int) *fakeController {
	var records []models.Message
	for i := n; i >= 1; i-- {
		records = append(records, models.Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "c1",
			SenderID:       "peer",
			Content:        models.StringPtr(fmt.Sprintf("message %d", i)),
		})
	}
	return &fakeController{
		state:     feed.NewState("c1", feed.OrphanDrop).LoadPage(records, true),
		updates:   make(chan struct{}, 1),
		subscribe: feed.Subscribed,
	}
}

func (f *fakeController) LoadOlder(context.Context) { f.loads++ }

func (f *fakeController) Send(_ context.Context, content string) (string, <-chan error, error) {
	if f.sendErr != nil {
		return "", nil, f.sendErr
	}
	f.sends = append(f.sends, content)
	id := fmt.Sprintf("local-%d", len(f.sends))
	pending := models.Message{ID: id, ConversationID: "c1", SenderID: "me", Content: models.StringPtr(content), Pending: true}
	f.state = f.state.InsertRealtime(pending)
	done := make(chan error, 1)
	done <- nil
	return id, done, nil
}

func (f *fakeController) Snapshot() feed.State                      { return f.state }
func (f *fakeController) HasMore() bool                             { return f.hasMore }
func (f *fakeController) Updates() <-chan struct{}                  { return f.updates }
func (f *fakeController) SubscriptionState() feed.SubscriptionState { return f.subscribe }
func (f *fakeController) Err() error                                { return f.err }

func typeText(m *Model, text string) {
	for _, r := range text {
		if r == ' ' {
			m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
			continue
		}
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func TestViewRendersOldestAtTop(t *testing.T) {
	conv := newFakeController(3)
	m := NewModel(context.Background(), conv, Options{Title: "Alex", UserID: "me"})

	view := m.View()
	require.Contains(t, view, "Alex · as me · subscribed")
	first := strings.Index(view, "message 1")
	last := strings.Index(view, "message 3")
	require.True(t, first >= 0 && last > first, view)
}

func TestViewMarksPendingAndAttachments(t *testing.T) {
	conv := newFakeController(1)
	ratio := 0.75
	conv.state, _ = conv.state.Attach(models.Attachment{ID: "a1", MessageID: "m1", Path: "cat.png", MimeType: "image/png", AspectRatio: &ratio})
	conv.state, _ = conv.state.Attach(models.Attachment{ID: "a2", MessageID: "m1", Path: "notes.pdf", MimeType: "application/pdf"})
	m := NewModel(context.Background(), conv, Options{UserID: "me"})

	typeText(m, "hi there")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Equal(t, []string{"hi there"}, conv.sends)
	require.Empty(t, m.input)

	view := m.View()
	require.Contains(t, view, "(sending)")
	require.Contains(t, view, "[image 0.75] cat.png")
	require.Contains(t, view, "[file application/pdf] notes.pdf")

	msg := cmd()
	_, _ = m.Update(msg)
	require.False(t, m.failed)
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	conv := newFakeController(1)
	m := NewModel(context.Background(), conv, Options{})

	typeText(m, "   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, conv.sends)
}

func TestSendErrorIsShown(t *testing.T) {
	conv := newFakeController(1)
	conv.sendErr = feed.ErrNoCurrentUser
	m := NewModel(context.Background(), conv, Options{})

	typeText(m, "hi")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.failed)
	require.Contains(t, m.View(), "no current user")
	require.Equal(t, "hi", m.input)
}

func TestUpAtTopLoadsOlderOnce(t *testing.T) {
	conv := newFakeController(3)
	conv.hasMore = true
	m := NewModel(context.Background(), conv, Options{})
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 6})

	require.Nil(t, m.scroll(0))

	var cmd tea.Cmd
	for range 5 {
		if c := m.scroll(1); c != nil {
			require.Nil(t, cmd, "only one load while in flight")
			cmd = c
		}
	}
	require.NotNil(t, cmd)
	require.Contains(t, m.View(), "loading older messages")

	_, next := m.Update(cmd())
	require.Nil(t, next)
	require.Equal(t, 1, conv.loads)
	require.False(t, m.loading)

	require.NotNil(t, m.scroll(1), "trigger fires again while history remains")
}

func TestUpWithoutHistoryDoesNotLoad(t *testing.T) {
	conv := newFakeController(2)
	m := NewModel(context.Background(), conv, Options{})
	require.Nil(t, m.scroll(1))
	require.Zero(t, conv.loads)
}

func TestLoadFailureShowsStatus(t *testing.T) {
	conv := newFakeController(1)
	m := NewModel(context.Background(), conv, Options{})
	m.loading = true

	m.Update(olderLoadedMsg{err: &feed.FetchError{ConversationID: "c1", Err: context.DeadlineExceeded}})
	require.False(t, m.loading)
	require.Contains(t, m.View(), "unable to load older messages")
}

func TestFeedUpdateRearmsWait(t *testing.T) {
	conv := newFakeController(1)
	m := NewModel(context.Background(), conv, Options{})

	conv.updates <- struct{}{}
	msg := m.Init()()
	require.IsType(t, feedUpdatedMsg{}, msg)
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
}

func TestQuitKeys(t *testing.T) {
	m := NewModel(context.Background(), newFakeController(0), Options{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestThemeByName(t *testing.T) {
	require.Equal(t, "high-contrast", ThemeByName("high-contrast").Name)
	require.Equal(t, "default", ThemeByName("neon").Name)
}
