// Package tui renders a conversation feed as a terminal chat view.
package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/spark/internal/feed"
)

// Controller is the part of feed.Conversation the view drives.
type Controller interface {
	LoadOlder(ctx context.Context)
	Send(ctx context.Context, content string) (string, <-chan error, error)
	Snapshot() feed.State
	HasMore() bool
	Updates() <-chan struct{}
	SubscriptionState() feed.SubscriptionState
	Err() error
}

// Options configure the view.
type Options struct {
	Title          string
	UserID         string
	Theme          Theme
	ShowTimestamps bool
}

type feedUpdatedMsg struct{}

type olderLoadedMsg struct {
	err error
}

type sentMsg struct {
	id  string
	err error
}

// Model is the bubbletea model of one open conversation.
type Model struct {
	ctx    context.Context
	conv   Controller
	opts   Options
	styles styles

	width  int
	height int

	input   string
	offset  int // messages scrolled off the bottom
	loading bool
	status  string
	failed  bool
}

// NewModel creates a view over conv.
func NewModel(ctx context.Context, conv Controller, opts Options) *Model {
	if opts.Theme.Name == "" {
		opts.Theme = defaultTheme
	}
	return &Model{
		ctx:    ctx,
		conv:   conv,
		opts:   opts,
		styles: opts.Theme.styles(),
		width:  80,
		height: 24,
	}
}

// Run shows the view until the user quits or ctx ends.
func Run(ctx context.Context, conv Controller, opts Options) error {
	program := tea.NewProgram(NewModel(ctx, conv, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return waitForUpdate(m.conv.Updates())
}

func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return feedUpdatedMsg{}
	}
}

func (m *Model) loadOlderCmd() tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		conv.LoadOlder(ctx)
		return olderLoadedMsg{err: conv.Err()}
	}
}

func sendResultCmd(id string, done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{id: id, err: <-done}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.clampOffset()
		return m, nil
	case feedUpdatedMsg:
		m.clampOffset()
		return m, waitForUpdate(m.conv.Updates())
	case olderLoadedMsg:
		m.loading = false
		var fetchErr *feed.FetchError
		if errors.As(typed.err, &fetchErr) {
			m.setStatus("unable to load older messages", true)
		}
		return m, nil
	case sentMsg:
		if typed.err != nil {
			m.setStatus("message not sent: "+rootCause(typed.err), true)
		}
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "esc":
		return tea.Quit
	case "up":
		return m.scroll(1)
	case "down":
		m.scroll(-1)
		return nil
	case "pgup":
		return m.scroll(max(1, m.bodyHeight()/2))
	case "pgdown":
		m.scroll(-max(1, m.bodyHeight()/2))
		return nil
	case "end":
		m.offset = 0
		return nil
	case "enter":
		return m.send()
	case "backspace", "ctrl+h":
		if runes := []rune(m.input); len(runes) > 0 {
			m.input = string(runes[:len(runes)-1])
		}
		return nil
	}

	switch msg.Type {
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
		if !m.failed {
			m.status = ""
		}
	}
	return nil
}

// scroll moves the viewport towards older messages for positive delta.
// Reaching the oldest loaded message asks for the next page; repeated
// requests while one is running are ignored.
func (m *Model) scroll(delta int) tea.Cmd {
	total := m.conv.Snapshot().Len()
	maxOffset := max(0, total-m.visibleCount())
	m.offset = min(max(0, m.offset+delta), maxOffset)

	if delta > 0 && m.offset >= maxOffset && m.conv.HasMore() && !m.loading {
		m.loading = true
		return m.loadOlderCmd()
	}
	return nil
}

func (m *Model) send() tea.Cmd {
	content := strings.TrimSpace(m.input)
	if content == "" {
		return nil
	}
	id, done, err := m.conv.Send(m.ctx, content)
	if err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	m.input = ""
	m.offset = 0
	m.setStatus("", false)
	return sendResultCmd(id, done)
}

func (m *Model) setStatus(status string, failed bool) {
	m.status = status
	m.failed = failed
}

func (m *Model) clampOffset() {
	maxOffset := max(0, m.conv.Snapshot().Len()-m.visibleCount())
	m.offset = min(m.offset, maxOffset)
}

func rootCause(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func (m *Model) headerText() string {
	title := m.opts.Title
	if title == "" {
		title = m.conv.Snapshot().ConversationID()
	}
	parts := []string{title}
	if m.opts.UserID != "" {
		parts = append(parts, "as "+m.opts.UserID)
	}
	parts = append(parts, m.conv.SubscriptionState().String())
	return strings.Join(parts, " · ")
}
