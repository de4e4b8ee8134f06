// Package tui provides Bubble Tea views for the teeline CLI.
//
// Views are opt-in (--tui), read-only, and render the same payloads as the
// non-interactive output.
package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("#0EA5E9")
	amber  = lipgloss.Color("#F59E0B")
	red    = lipgloss.Color("#EF4444")
	dim    = lipgloss.Color("#6B7280")
	white  = lipgloss.Color("#F9FAFB")
)

var (
	// TitleStyle heads each view.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)

	// ValueStyle renders placeholder and plain values.
	ValueStyle = lipgloss.NewStyle().Foreground(white)

	// BoxStyle frames the payload preview and the trigger list.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dim).
			Padding(0, 1)

	// HelpStyle renders the key hints at the bottom of a view.
	HelpStyle = lipgloss.NewStyle().Foreground(dim).MarginTop(1)

	// StatBoxStyle frames one counter.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	// StatLabelStyle renders a counter name.
	StatLabelStyle = lipgloss.NewStyle().Foreground(dim).Align(lipgloss.Center)

	statValueStyle = lipgloss.NewStyle().Bold(true).Foreground(white).Align(lipgloss.Center)
)

// CounterStyle picks a style for a counter: failures in red, backlog in
// amber.
func CounterStyle(name string, value int64) lipgloss.Style {
	if value == 0 {
		return statValueStyle
	}
	switch name {
	case "delivery_failures":
		return statValueStyle.Foreground(red)
	case "pending_frames", "pending_bytes":
		return statValueStyle.Foreground(amber)
	default:
		return statValueStyle
	}
}

// tableStyles is shared by the source list and the entry list.
func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dim).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.Foreground(white).Background(accent)
	return s
}
