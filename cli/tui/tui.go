package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/teeline/cli/reader"
)

// View types with an interactive rendering.
const (
	ViewRing  = "inspect_ring"
	ViewRings = "inspect_rings"
	ViewStats = "inspect_stats"
)

// Run shows data in the view for viewType until the user quits.
func Run(viewType string, data any) error {
	m, err := NewModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// NewModel builds the model for viewType over data.
func NewModel(viewType string, data any) (tea.Model, error) {
	if !IsTUISupported(viewType) {
		return nil, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	switch viewType {
	case ViewRing:
		v, ok := data.(*reader.RingView)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected data %T", viewType, data)
		}
		return NewRingModel(v), nil
	case ViewRings:
		v, ok := data.(*reader.RingsView)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected data %T", viewType, data)
		}
		return NewRingsModel(v), nil
	default:
		v, ok := data.(*reader.StatsView)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected data %T", viewType, data)
		}
		return NewStatsModel(v), nil
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewRing, ViewRings, ViewStats}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
	Open key.Binding
	Back key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open ring"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
}
