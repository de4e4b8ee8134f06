package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/teeline/cli/reader"
)

// StatsModel shows the aggregator's batch counters.
type StatsModel struct {
	data     *reader.StatsView
	quitting bool
}

// NewStatsModel creates a stats model.
func NewStatsModel(v *reader.StatsView) StatsModel {
	return StatsModel{data: v}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	d := m.data

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Aggregator"))
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Sources", "sources", int64(len(d.Sources))),
		statBox("Enqueued", "frames_enqueued", d.FramesEnqueued),
		statBox("Pending", "pending_frames", d.PendingFrames),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Flushes", "flush_count", d.FlushCount),
		statBox("Delivered", "delivered", d.Delivered),
		statBox("Failed", "delivery_failures", d.DeliveryFailures),
	))
	b.WriteString("\n")

	if len(d.FlushByTrigger) > 0 {
		triggers := make([]string, 0, len(d.FlushByTrigger))
		for k := range d.FlushByTrigger {
			triggers = append(triggers, k)
		}
		sort.Strings(triggers)
		var lines []string
		for _, k := range triggers {
			lines = append(lines, fmt.Sprintf("%-12s %d", k, d.FlushByTrigger[k]))
		}
		b.WriteString(BoxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render("q quit"))
	return b.String()
}

func statBox(label, name string, value int64) string {
	return StatBoxStyle.Render(
		StatLabelStyle.Render(label) + "\n" +
			CounterStyle(name, value).Render(fmt.Sprint(value)),
	)
}
