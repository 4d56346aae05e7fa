package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the conversation view colors (ANSI-256 codes).
type Theme struct {
	Name       string
	Foreground string
	Muted      string
	Accent     string
	Own        string
	Other      string
	Pending    string
	Error      string
	Header     string
	Border     string
}

var defaultTheme = Theme{
	Name:       "default",
	Foreground: "252",
	Muted:      "245",
	Accent:     "75",
	Own:        "81",
	Other:      "147",
	Pending:    "220",
	Error:      "203",
	Header:     "111",
	Border:     "240",
}

var highContrastTheme = Theme{
	Name:       "high-contrast",
	Foreground: "231",
	Muted:      "250",
	Accent:     "51",
	Own:        "87",
	Other:      "225",
	Pending:    "226",
	Error:      "196",
	Header:     "117",
	Border:     "231",
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	defaultTheme.Name:      defaultTheme,
	highContrastTheme.Name: highContrastTheme,
}

// ThemeByName returns the named theme, falling back to the default.
func ThemeByName(name string) Theme {
	if theme, ok := Themes[name]; ok {
		return theme
	}
	return defaultTheme
}

type styles struct {
	header  lipgloss.Style
	muted   lipgloss.Style
	accent  lipgloss.Style
	own     lipgloss.Style
	other   lipgloss.Style
	pending lipgloss.Style
	err     lipgloss.Style
	body    lipgloss.Style
	divider lipgloss.Style
}

func (t Theme) styles() styles {
	color := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	return styles{
		header:  color(t.Header).Bold(true),
		muted:   color(t.Muted),
		accent:  color(t.Accent),
		own:     color(t.Own).Bold(true),
		other:   color(t.Other).Bold(true),
		pending: color(t.Pending).Italic(true),
		err:     color(t.Error),
		body:    color(t.Foreground),
		divider: color(t.Border),
	}
}
