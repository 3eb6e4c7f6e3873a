package dashboard

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tapto/tapremote/client/internal/device"
	"github.com/tapto/tapremote/client/internal/tui"
)

type headerModel struct {
	info device.Info
}

func newHeader(info device.Info) headerModel {
	return headerModel{info: info}
}

func (h *headerModel) update(info device.Info) {
	h.info = info
}

func (h headerModel) View(width int) string {
	left := tui.Title.Render("TapTo Remote")

	addr := h.info.Address
	if addr == "" {
		addr = "no device"
	}
	right := fmt.Sprintf("%s  %s %s", addr, tui.StatusDot(h.info.Status), tui.StatusText(h.info.Status))

	info := fmt.Sprintf("  Pending calls: %d   Uptime: %s", h.info.PendingCalls, h.formatUptime())
	if h.info.ConnectionError != "" {
		info += "\n  " + tui.ErrorStyle.Render(h.info.ConnectionError)
	}

	headerStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorPrimary).
		Width(width - 2).
		Padding(0, 1)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 6
	if gap < 1 {
		gap = 1
	}
	firstRow := lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(gap).Render(""),
		right,
	)

	return headerStyle.Render(firstRow + "\n" + tui.Description.Render(info))
}

func (h headerModel) formatUptime() string {
	if h.info.StartedAt.IsZero() {
		return h.info.Uptime
	}
	d := time.Since(h.info.StartedAt)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
