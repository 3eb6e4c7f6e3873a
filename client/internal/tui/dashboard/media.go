package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tapto/tapremote/client/internal/state"
	"github.com/tapto/tapremote/client/internal/tui"
)

const indexBarWidth = 30

// mediaModel shows what the device is doing: last token, running media and
// indexing progress.
type mediaModel struct {
	snap    state.Snapshot
	spinner spinner.Model
}

func newMedia() mediaModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = tui.Selected
	return mediaModel{spinner: sp}
}

func (m *mediaModel) update(snap state.Snapshot) {
	m.snap = snap
}

func (m mediaModel) Update(msg tea.Msg) (mediaModel, tea.Cmd) {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m mediaModel) height() int { return 5 }

func (m mediaModel) View() string {
	label := lipgloss.NewStyle().Foreground(tui.ColorMuted).Width(14)
	value := lipgloss.NewStyle().Foreground(tui.ColorText)

	var sb strings.Builder

	playing := tui.Dimmed.Render("nothing")
	if p := m.snap.Playing; p.MediaName != "" {
		playing = value.Render(p.MediaName) + " " + tui.Dimmed.Render(p.SystemName)
	}
	sb.WriteString("  " + label.Render("Playing") + playing + "\n")

	token := tui.Dimmed.Render("none")
	if t := m.snap.LastToken; t.UID != "" || t.Text != "" {
		token = value.Render(t.Text)
		if t.UID != "" {
			token += " " + tui.Dimmed.Render(t.UID)
		}
		if t.ScanTime != "" {
			token += " " + tui.Dimmed.Render(t.ScanTime)
		}
	}
	sb.WriteString("  " + label.Render("Last token") + token + "\n")

	sb.WriteString("  " + label.Render("Media index") + m.indexView())
	return sb.String()
}

func (m mediaModel) indexView() string {
	idx := m.snap.GamesIndex
	switch {
	case idx.Indexing:
		line := m.spinner.View() + " " + progressBar(idx.CurrentStep, idx.TotalSteps, indexBarWidth)
		line += fmt.Sprintf(" %d/%d", idx.CurrentStep, idx.TotalSteps)
		if idx.CurrentDesc != "" {
			line += " " + tui.Dimmed.Render(idx.CurrentDesc)
		}
		return line
	case idx.Exists:
		return tui.Success.Render(fmt.Sprintf("ready (%d files)", idx.TotalFiles))
	default:
		return tui.WarningStyle.Render("not indexed")
	}
}

// progressBar renders a fixed-width bar for current out of total steps.
func progressBar(current, total, width int) string {
	filled := 0
	if total > 0 {
		filled = current * width / total
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return tui.Selected.Render(strings.Repeat("█", filled)) +
		tui.Dimmed.Render(strings.Repeat("░", width-filled))
}
