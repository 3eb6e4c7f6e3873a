package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tapto/tapremote/client/internal/device"
	"github.com/tapto/tapremote/client/internal/state"
	"github.com/tapto/tapremote/client/internal/tui"
)

const actionTimeout = 10 * time.Second

// Controller is what the dashboard can ask the device to do.
type Controller interface {
	SetDeviceAddress(ctx context.Context, host string) error
	StopMedia(ctx context.Context) error
	RebuildIndex(ctx context.Context) error
}

// Model is the root dashboard TUI model.
type Model struct {
	ctl Controller

	header headerModel
	media  mediaModel
	logs   logsModel
	help   helpModel

	addrInput textinput.Model
	editing   bool
	notice    string
	noticeErr bool

	width    int
	height   int
	quitting bool
}

// NewModel creates a dashboard model.
func NewModel(ctl Controller, info device.Info, snap state.Snapshot) Model {
	ti := textinput.New()
	ti.Placeholder = "192.168.1.20"
	ti.CharLimit = 256
	ti.Width = 40

	m := Model{
		ctl:       ctl,
		header:    newHeader(info),
		media:     newMedia(),
		logs:      newLogs(),
		help:      newHelp(),
		addrInput: ti,
	}
	m.media.update(snap)
	return m
}

// EventMsg wraps an event from the diagnostics bus.
type EventMsg struct {
	Type string
	Data []byte
}

// StateMsg carries a fresh client state snapshot.
type StateMsg struct {
	Snapshot state.Snapshot
}

// InfoMsg carries fresh connection info.
type InfoMsg struct {
	Info device.Info
}

// actionDoneMsg reports the outcome of a user action.
type actionDoneMsg struct {
	what string
	err  error
}

func (m Model) Init() tea.Cmd {
	return m.media.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.editing {
		return m.updateEditing(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logs.SetSize(msg.Width-4, m.logsHeight())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c", "q"))):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("?"))):
			m.help.toggle()
			return m, nil
		case key.Matches(msg, key.NewBinding(key.WithKeys("a"))):
			m.editing = true
			m.addrInput.SetValue(m.header.info.Address)
			cmd := m.addrInput.Focus()
			return m, cmd
		case key.Matches(msg, key.NewBinding(key.WithKeys("s"))):
			return m, m.action("stop", m.ctl.StopMedia)
		case key.Matches(msg, key.NewBinding(key.WithKeys("i"))):
			return m, m.action("index", m.ctl.RebuildIndex)
		}

	case StateMsg:
		m.media.update(msg.Snapshot)
		return m, nil

	case InfoMsg:
		m.header.update(msg.Info)
		return m, nil

	case EventMsg:
		m.logs.addEvent(msg)
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.notice, m.noticeErr = msg.what+" failed: "+msg.err.Error(), true
		} else {
			m.notice, m.noticeErr = msg.what+" ok", false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.media, cmd = m.media.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.logs, cmd = m.logs.Update(msg)
	return m, cmd
}

func (m Model) updateEditing(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			host := m.addrInput.Value()
			m.editing = false
			m.addrInput.Blur()
			return m, m.action("set address", func(ctx context.Context) error {
				return m.ctl.SetDeviceAddress(ctx, host)
			})
		case "esc":
			m.editing = false
			m.addrInput.Blur()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.addrInput, cmd = m.addrInput.Update(msg)
	return m, cmd
}

// action runs fn off the UI goroutine and reports back.
func (m Model) action(what string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{what: what, err: fn(ctx)}
	}
}

func (m Model) View() string {
	if m.help.visible {
		return m.help.View()
	}

	panel := func(title, body string) string {
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(tui.ColorMuted).
			Width(m.width - 2).
			Render(tui.Subtitle.Render(" "+title) + "\n" + body)
	}

	parts := []string{
		m.header.View(m.width),
		panel("Device", m.media.View()),
		panel("Logs", m.logs.View()),
	}
	if m.editing {
		parts = append(parts, "  "+tui.Description.Render("Device address:")+" "+m.addrInput.View())
	} else if m.notice != "" {
		style := tui.Success
		if m.noticeErr {
			style = tui.ErrorStyle
		}
		parts = append(parts, "  "+style.Render(m.notice))
	}
	parts = append(parts, m.help.bar())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Quitting returns true if the user quit.
func (m Model) Quitting() bool { return m.quitting }

func (m Model) logsHeight() int {
	// Header, media panel, notice line, help bar and borders.
	used := 5 + m.media.height() + 2 + 4
	h := m.height - used
	if h < 5 {
		h = 5
	}
	return h
}
