package dashboard

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tapto/tapremote/client/internal/eventbus"
	"github.com/tapto/tapremote/client/internal/tui"
)

const maxLogLines = 1000

type logsModel struct {
	viewport   viewport.Model
	lines      []string
	autoScroll bool
}

func newLogs() logsModel {
	return logsModel{
		viewport:   viewport.New(80, 10),
		autoScroll: true,
	}
}

func (l *logsModel) SetSize(width, height int) {
	l.viewport.Width = width
	l.viewport.Height = height
}

func (l *logsModel) addEvent(msg EventMsg) {
	l.lines = append(l.lines, formatEvent(msg, time.Now()))
	if len(l.lines) > maxLogLines {
		l.lines = l.lines[len(l.lines)-maxLogLines:]
	}

	l.viewport.SetContent(strings.Join(l.lines, "\n"))
	if l.autoScroll {
		l.viewport.GotoBottom()
	}
}

func formatEvent(msg EventMsg, now time.Time) string {
	ts := now.Format("15:04:05")

	if msg.Type == eventbus.LogEntry {
		var rec eventbus.LogRecord
		if err := json.Unmarshal(msg.Data, &rec); err == nil {
			keys := make([]string, 0, len(rec.Attrs))
			for k := range rec.Attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			attrs := make([]string, 0, len(keys))
			for _, k := range keys {
				attrs = append(attrs, fmt.Sprintf("%s=%v", k, rec.Attrs[k]))
			}

			levelStyle := tui.LogLevelStyle(rec.Level)
			formatted := fmt.Sprintf("  %s %s  %s", ts, levelStyle.Render(fmt.Sprintf("%-5s", rec.Level)), rec.Message)
			if len(attrs) > 0 {
				formatted += "  " + tui.Dimmed.Render(strings.Join(attrs, " "))
			}
			return formatted
		}
	}

	return fmt.Sprintf("  %s %s  %s", ts, tui.Dimmed.Render(msg.Type), string(msg.Data))
}

func (l logsModel) Update(msg tea.Msg) (logsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "G":
			l.autoScroll = true
			l.viewport.GotoBottom()
			return l, nil
		case "g":
			l.autoScroll = false
			l.viewport.GotoTop()
			return l, nil
		case "j", "down", "k", "up":
			l.autoScroll = false
		}
	}

	var cmd tea.Cmd
	l.viewport, cmd = l.viewport.Update(msg)
	return l, cmd
}

func (l logsModel) View() string {
	return l.viewport.View()
}
