package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4A90E2")).
			Bold(true)
	containerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8AB4F8"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	confirmStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FFEB3B")).
			Padding(0, 1)
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
)

// chrome is the number of rows used by everything but the entry list.
const chrome = 6

func (m *Model) listHeight() int {
	return max(3, m.height-chrome)
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.view.Title))
	if m.view.Loading {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderEntries())
	b.WriteString("\n")

	switch m.mode {
	case modeSearch, modeGoTo, modeProject:
		b.WriteString(m.input.View())
	case modeConfirm:
		b.WriteString(confirmStyle.Render(m.confirm + "  (y/n)"))
	case modeTransfer:
		b.WriteString(m.renderTransfer())
	default:
		b.WriteString(m.renderStatus())
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderEntries() string {
	entries := m.view.Entries
	if len(entries) == 0 {
		if m.view.Loading {
			return dimStyle.Render("loading…")
		}
		return dimStyle.Render("(empty)")
	}

	height := m.listHeight()
	start := 0
	if m.view.Cursor >= height {
		start = m.view.Cursor - height + 1
	}
	end := min(len(entries), start+height)

	nameWidth := max(20, m.width-32)
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		line := formatEntry(entries[i], nameWidth)
		switch {
		case i == m.view.Cursor:
			line = selectedStyle.Render(line)
		case entries[i].IsContainer():
			line = containerStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// formatEntry renders one listing row: name, then size and modification
// time for blobs.
func formatEntry(p cloudpath.Path, nameWidth int) string {
	name := p.Name()
	if len([]rune(name)) > nameWidth {
		name = string([]rune(name)[:nameWidth-1]) + "…"
	}
	if !p.IsBlob() {
		return name
	}
	size, _ := p.Size()
	row := fmt.Sprintf("%-*s %10s", nameWidth, name, humanize.IBytes(uint64(size)))
	if t, ok := p.UpdatedAt(); ok {
		row += "  " + t.Local().Format("2006-01-02 15:04")
	}
	return row
}

func (m *Model) renderStatus() string {
	switch {
	case m.err != "":
		return errorStyle.Render(m.err)
	case m.status != "":
		return statusStyle.Render(m.status)
	default:
		return dimStyle.Render(fmt.Sprintf("%d entries", len(m.view.Entries)))
	}
}

func (m *Model) renderTransfer() string {
	percent := 0.0
	if m.total > 0 {
		percent = float64(m.done) / float64(m.total)
	}
	line := fmt.Sprintf("%s %s %d/%d", m.job.Kind(), m.progress.ViewAs(percent), m.done, m.total)
	if m.current != "" {
		line += "\n" + dimStyle.Render(m.current)
	}
	if m.err != "" {
		line += "\n" + errorStyle.Render(m.err)
	}
	return line
}
