package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/spark/internal/models"
)

const chromeLines = 4 // header, divider, divider, input

func (m *Model) bodyHeight() int {
	return max(1, m.height-chromeLines)
}

// visibleCount approximates how many messages fit; attachments take a line each.
func (m *Model) visibleCount() int {
	return max(1, m.bodyHeight())
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.header.Render(truncateLine(m.headerText(), m.width)))
	b.WriteString("\n")
	b.WriteString(m.styles.divider.Render(strings.Repeat("─", max(1, m.width))))
	b.WriteString("\n")

	body := m.bodyLines()
	for len(body) < m.bodyHeight() {
		body = append([]string{""}, body...)
	}
	b.WriteString(strings.Join(body, "\n"))
	b.WriteString("\n")

	b.WriteString(m.styles.divider.Render(strings.Repeat("─", max(1, m.width))))
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

// bodyLines renders messages oldest at the top, ending offset messages above
// the newest one.
func (m *Model) bodyLines() []string {
	var messages []models.Message
	for msg := range m.conv.Snapshot().Oldest() {
		messages = append(messages, msg)
	}
	end := max(0, len(messages)-m.offset)
	messages = messages[:end]

	var top string
	switch {
	case m.loading:
		top = m.styles.muted.Render("loading older messages…")
	case m.conv.HasMore():
		top = m.styles.muted.Render("↑ older messages")
	}

	height := m.bodyHeight()
	if top != "" {
		height = max(0, height-1)
	}
	var lines []string
	for i := len(messages) - 1; i >= 0 && len(lines) < height; i-- {
		lines = append(m.renderMessage(messages[i]), lines...)
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	if top != "" {
		lines = append([]string{top}, lines...)
	}
	return lines
}

func (m *Model) renderMessage(msg models.Message) []string {
	senderStyle := m.styles.other
	if msg.SenderID == m.opts.UserID {
		senderStyle = m.styles.own
	}

	var head strings.Builder
	if m.opts.ShowTimestamps && !msg.CreatedAt.IsZero() {
		head.WriteString(m.styles.muted.Render(msg.CreatedAt.Local().Format("15:04")))
		head.WriteString(" ")
	}
	head.WriteString(senderStyle.Render("@" + msg.SenderID))
	head.WriteString(" ")
	head.WriteString(m.styles.body.Render(msg.Text()))
	if msg.Pending {
		head.WriteString(" ")
		head.WriteString(m.styles.pending.Render("(sending)"))
	}

	lines := []string{truncateLine(head.String(), m.width)}
	for _, att := range msg.Attachments {
		lines = append(lines, "    "+m.styles.accent.Render(attachmentLabel(att)))
	}
	return lines
}

func attachmentLabel(att models.Attachment) string {
	if att.Variant() == models.VariantImage {
		return fmt.Sprintf("[image %.2f] %s", att.DisplayAspectRatio(), att.Path)
	}
	return fmt.Sprintf("[file %s] %s", att.MimeType, att.Path)
}

func (m *Model) footer() string {
	prompt := m.styles.accent.Render("> ") + m.input + m.styles.muted.Render("▏")
	if m.status == "" {
		return prompt
	}
	style := m.styles.muted
	if m.failed {
		style = m.styles.err
	}
	return prompt + "  " + style.Render(m.status)
}

func truncateLine(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
