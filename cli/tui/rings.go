package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/teeline/cli/reader"
)

const defaultTableHeight = 15

// RingsModel browses ring snapshots: a source list, and the entries of one
// source with the selected entry's preview below.
type RingsModel struct {
	rings   []reader.RingView
	sources table.Model
	entries table.Model

	open     int  // index into rings of the ring being shown, -1 for the list
	fixed    bool // a single ring was requested; there is no list to go back to
	quitting bool
}

// NewRingsModel creates a browser over every ring.
func NewRingsModel(v *reader.RingsView) RingsModel {
	m := RingsModel{rings: v.Rings, open: -1}

	rows := make([]table.Row, 0, len(v.Rings))
	for _, s := range v.Summaries() {
		rows = append(rows, table.Row{s.Source, strconv.Itoa(s.Entries), strconv.Itoa(s.Bytes), oneLine(s.LastPreview)})
	}
	m.sources = newTable([]table.Column{
		{Title: "Source", Width: 10},
		{Title: "Entries", Width: 8},
		{Title: "Bytes", Width: 10},
		{Title: "Last", Width: 48},
	}, rows)
	return m
}

// NewRingModel creates a view over one ring.
func NewRingModel(v *reader.RingView) RingsModel {
	m := RingsModel{rings: []reader.RingView{*v}, fixed: true}
	m.openRing(0)
	return m
}

func newTable(cols []table.Column, rows []table.Row) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(defaultTableHeight),
	)
	t.SetStyles(tableStyles())
	return t
}

func (m *RingsModel) openRing(i int) {
	m.open = i
	rows := make([]table.Row, 0, len(m.rings[i].Entries))
	for _, e := range m.rings[i].Entries {
		rows = append(rows, table.Row{strconv.Itoa(e.Index), strconv.Itoa(e.Len), oneLine(e.Preview)})
	}
	m.entries = newTable([]table.Column{
		{Title: "#", Width: 6},
		{Title: "Len", Width: 8},
		{Title: "Preview", Width: 64},
	}, rows)
}

// Init implements tea.Model.
func (m RingsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m RingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h := max(msg.Height-12, 3)
		m.sources.SetHeight(h)
		m.entries.SetHeight(h)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Open) && m.open < 0:
			if len(m.rings) > 0 {
				m.openRing(m.sources.Cursor())
			}
			return m, nil
		case key.Matches(msg, keys.Back) && m.open >= 0 && !m.fixed:
			m.open = -1
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.open < 0 {
		m.sources, cmd = m.sources.Update(msg)
	} else {
		m.entries, cmd = m.entries.Update(msg)
	}
	return m, cmd
}

// Open returns the source of the ring being shown, or "" for the list.
func (m RingsModel) Open() string {
	if m.open < 0 {
		return ""
	}
	return m.rings[m.open].Source
}

// View implements tea.Model.
func (m RingsModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if m.open < 0 {
		b.WriteString(TitleStyle.Render("Rings"))
		b.WriteString("\n")
		if len(m.rings) == 0 {
			b.WriteString(ValueStyle.Render("(no rings)"))
		} else {
			b.WriteString(m.sources.View())
		}
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("enter open • q quit"))
		return b.String()
	}

	ring := m.rings[m.open]
	b.WriteString(TitleStyle.Render("Ring " + ring.Source))
	b.WriteString("\n")
	if len(ring.Entries) == 0 {
		b.WriteString(ValueStyle.Render("(empty)"))
	} else {
		b.WriteString(m.entries.View())
		b.WriteString("\n")
		e := ring.Entries[m.entries.Cursor()]
		b.WriteString(BoxStyle.Render(e.Preview))
	}
	b.WriteString("\n")
	if m.fixed {
		b.WriteString(HelpStyle.Render("q quit"))
	} else {
		b.WriteString(HelpStyle.Render("esc back • q quit"))
	}
	return b.String()
}

// oneLine makes a preview fit a table cell.
func oneLine(s string) string {
	return strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`).Replace(s)
}
