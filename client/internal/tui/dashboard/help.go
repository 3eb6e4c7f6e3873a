package dashboard

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tapto/tapremote/client/internal/tui"
)

type helpModel struct {
	visible bool
}

func newHelp() helpModel {
	return helpModel{}
}

func (h *helpModel) toggle() {
	h.visible = !h.visible
}

func (h helpModel) bar() string {
	return tui.Help.Render("  q quit  a address  s stop  i index  j/k scroll  G bottom  ? help")
}

func (h helpModel) View() string {
	title := tui.Title.Render("Keyboard Shortcuts") + "\n\n"

	binds := []struct {
		key  string
		desc string
	}{
		{"q / Ctrl+C", "Quit"},
		{"a", "Change device address"},
		{"s", "Stop running media"},
		{"i", "Rebuild media index"},
		{"j / Down", "Scroll logs down"},
		{"k / Up", "Scroll logs up"},
		{"G", "Jump to bottom"},
		{"g", "Jump to top"},
		{"?", "Toggle this help"},
	}

	keyStyle := lipgloss.NewStyle().
		Foreground(tui.ColorAccent).
		Bold(true).
		Width(14)

	descStyle := lipgloss.NewStyle().
		Foreground(tui.ColorText)

	s := title
	for _, b := range binds {
		s += "  " + keyStyle.Render(b.key) + descStyle.Render(b.desc) + "\n"
	}
	s += "\n" + tui.Help.Render("  Press ? to close")

	return lipgloss.NewStyle().Padding(1, 2).Render(s)
}
