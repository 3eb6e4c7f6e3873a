// Package device is the orchestrator that ties together the address store,
// transport connection, request correlator, notification dispatcher and
// client state.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tapto/tapremote/client/internal/address"
	"github.com/tapto/tapremote/client/internal/config"
	"github.com/tapto/tapremote/client/internal/eventbus"
	"github.com/tapto/tapremote/client/internal/notify"
	"github.com/tapto/tapremote/client/internal/rpc"
	"github.com/tapto/tapremote/client/internal/state"
	"github.com/tapto/tapremote/client/internal/transport"
)

// Option customizes a Device.
type Option func(*transport.Options)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(o *transport.Options) { o.Dialer = d }
}

// Device is the client side of one TapTo device connection.
type Device struct {
	cfg       *config.Config
	addresses address.Store
	logger    *slog.Logger
	bus       *eventbus.Bus
	startedAt time.Time

	state      *state.Store
	conn       *transport.Conn
	correlator *rpc.Correlator
	dispatcher *notify.Dispatcher
	api        *rpc.API

	mu      sync.Mutex
	running bool
}

// Info is a point-in-time summary for status output.
type Info struct {
	Address         string    `json:"address"`
	Status          string    `json:"status"`
	ConnectionError string    `json:"connection_error,omitempty"`
	PendingCalls    int       `json:"pending_calls"`
	StartedAt       time.Time `json:"started_at"`
	Uptime          string    `json:"uptime"`
}

// New wires a Device. A nil bus is replaced by a private one.
func New(cfg *config.Config, addresses address.Store, logger *slog.Logger, bus *eventbus.Bus, opts ...Option) *Device {
	if bus == nil {
		bus = eventbus.New()
	}

	d := &Device{
		cfg:       cfg,
		addresses: addresses,
		logger:    logger.With("component", "device"),
		bus:       bus,
		startedAt: time.Now(),
		state:     state.New(),
	}

	topts := transport.Options{
		ReconnectInterval: cfg.Transport.ReconnectInterval.Duration,
		HeartbeatInterval: cfg.Transport.HeartbeatInterval.Duration,
		HeartbeatTimeout:  cfg.Transport.HeartbeatTimeout.Duration,
		Dialer:            transport.WebSocketDialer{HandshakeTimeout: cfg.Transport.HandshakeTimeout.Duration},
		Bus:               bus,
	}
	if cfg.Transport.DisableHeartbeat {
		topts.HeartbeatInterval = -1
	}
	for _, opt := range opts {
		opt(&topts)
	}

	d.conn = transport.New(topts, logger)
	d.dispatcher = notify.New(d.state.Notifications(), bus, logger)
	d.correlator = rpc.New(d.conn, rpc.Options{
		Timeout:        cfg.RPC.RequestTimeout.Duration,
		Bus:            bus,
		OnNotification: d.dispatcher.Handle,
	}, logger)
	d.api = rpc.NewAPI(d.correlator)

	d.conn.OnMessage(func(text string) {
		// Dropped frames are already logged and published by the correlator.
		_ = d.correlator.HandleRaw(text)
	})
	d.conn.OnStatusChange(d.handleStatusChange)

	return d
}

// Run resolves the device address and keeps the connection alive until ctx is
// canceled. Calls still pending on return are rejected.
func (d *Device) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("device already running")
	}
	d.running = true
	d.mu.Unlock()

	addr, err := d.resolveAddress(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("starting device connection", "address", addr)

	defer func() {
		d.logger.Info("shutting down device connection")
		d.correlator.RejectAll(rpc.ErrDisconnected)
		_ = d.conn.Close()
	}()

	d.conn.Connect(addr)
	err = d.conn.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// resolveAddress prefers the configured address over the stored one.
func (d *Device) resolveAddress(ctx context.Context) (string, error) {
	if d.cfg.Device.Address != "" {
		addr, err := address.Normalize(d.cfg.Device.Address)
		if err != nil {
			return "", fmt.Errorf("device.address: %w", err)
		}
		return addr, nil
	}
	addr, err := d.addresses.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("load device address: %w", err)
	}
	return addr, nil
}

// SetDeviceAddress stores host and reconnects to it.
func (d *Device) SetDeviceAddress(ctx context.Context, host string) error {
	addr, err := address.Normalize(host)
	if err != nil {
		return err
	}
	if err := d.addresses.Set(ctx, addr); err != nil {
		return fmt.Errorf("store device address: %w", err)
	}
	d.conn.Connect(addr)
	return nil
}

// Call issues a raw JSON-RPC call.
func (d *Device) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return d.correlator.Call(ctx, method, params)
}

// API returns the typed method API.
func (d *Device) API() *rpc.API { return d.api }

// State returns the read-only client state.
func (d *Device) State() state.Reader { return d.state }

// Bus returns the diagnostics bus.
func (d *Device) Bus() *eventbus.Bus { return d.bus }

// Info returns the current connection summary.
func (d *Device) Info() Info {
	status, connErr := d.conn.Status()
	return Info{
		Address:         d.conn.Address(),
		Status:          status.String(),
		ConnectionError: connErr,
		PendingCalls:    d.correlator.Pending(),
		StartedAt:       d.startedAt,
		Uptime:          time.Since(d.startedAt).Truncate(time.Second).String(),
	}
}

// WaitConnected blocks until the transport is open or ctx is done.
func (d *Device) WaitConnected(ctx context.Context) error {
	ready := make(chan struct{})
	var once sync.Once
	unsubscribe := d.state.Subscribe(func(s state.Snapshot) {
		if s.Connected {
			once.Do(func() { close(ready) })
		}
	})
	defer unsubscribe()

	if d.state.Snapshot().Connected {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		snap := d.state.Snapshot()
		if snap.ConnectionError != "" {
			return fmt.Errorf("%w: %s", ctx.Err(), snap.ConnectionError)
		}
		return ctx.Err()
	}
}

func (d *Device) handleStatusChange(ch transport.StatusChange) {
	w := d.state.Connection()
	switch ch.To {
	case transport.Connected:
		w.SetConnection(true, "")
	default:
		w.SetConnection(false, ch.Err)
	}

	if ch.From == transport.Connected && ch.To == transport.Disconnected && d.cfg.RPC.RejectOnDisconnect() {
		if n := d.correlator.RejectAll(rpc.ErrDisconnected); n > 0 {
			d.logger.Warn("connection dropped with calls in flight", "rejected", n)
		}
	}
}
