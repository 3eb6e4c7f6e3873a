package dashboard

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tapto/tapremote/client/internal/device"
	"github.com/tapto/tapremote/client/internal/state"
)

const infoRefresh = time.Second

// deviceController adapts a Device to the dashboard's actions.
type deviceController struct {
	d *device.Device
}

func (c deviceController) SetDeviceAddress(ctx context.Context, host string) error {
	return c.d.SetDeviceAddress(ctx, host)
}

func (c deviceController) StopMedia(ctx context.Context) error {
	return c.d.API().Stop(ctx)
}

func (c deviceController) RebuildIndex(ctx context.Context) error {
	return c.d.API().MediaIndex(ctx)
}

// Run shows the dashboard for d, which must already be running, until the user
// quits or ctx is canceled.
func Run(ctx context.Context, d *device.Device) error {
	m := NewModel(deviceController{d}, d.Info(), d.State().Snapshot())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Only the latest snapshot matters; state writers must never block on
	// the UI. Listener calls are serialized, so the swap cannot block.
	updates := make(chan state.Snapshot, 1)
	unsubscribe := d.State().Subscribe(func(s state.Snapshot) {
		select {
		case <-updates:
		default:
		}
		updates <- s
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case s := <-updates:
				p.Send(StateMsg{Snapshot: s})
			}
		}
	}()

	events := d.Bus().Subscribe()
	defer d.Bus().Unsubscribe(events)
	go func() {
		for evt := range events {
			p.Send(EventMsg{Type: evt.Type, Data: evt.Data})
		}
	}()

	go func() {
		ticker := time.NewTicker(infoRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.Send(InfoMsg{Info: d.Info()})
			}
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
