// Package transport owns the persistent WebSocket connection to the device.
//
// A Conn keeps exactly one logical connection alive: it dials the configured
// address, delivers inbound frames in order, and on any failure schedules a
// new attempt after a fixed delay, forever. Changing the address tears the
// current socket down and starts over immediately.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tapto/tapremote/client/internal/eventbus"
	"github.com/tapto/tapremote/pkg/protocol"
)

// Defaults mirror the device app: a LAN peer is expected back quickly.
const (
	DefaultReconnectInterval = 250 * time.Millisecond
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultHeartbeatTimeout  = 60 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
)

var (
	// ErrNotConnected is returned by Send while no socket is open.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("transport closed")
)

// NoAddressError is reported while no device address is configured.
const NoAddressError = "no device address configured"

// Clock abstracts time so reconnect scheduling can be driven by tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options configures a Conn. Zero values fall back to the defaults above.
type Options struct {
	ReconnectInterval time.Duration
	// HeartbeatInterval is how often "ping" is written on an open socket.
	// Negative disables the heartbeat.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout closes a socket that has received nothing for this long.
	HeartbeatTimeout time.Duration
	Dialer           Dialer
	Clock            Clock
	Bus              *eventbus.Bus
}

// Conn is the transport connection.
type Conn struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	address   string
	gen       uint64
	sock      Socket
	status    Status
	connErr   string
	cancel    context.CancelFunc
	closed    bool
	statusFns []func(StatusChange)
	msgFn     func(string)

	wake     chan struct{}
	lastRecv atomic.Int64
}

// New creates a Conn. It does nothing until Run is called.
func New(opts Options, logger *slog.Logger) *Conn {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.HeartbeatTimeout == 0 {
		opts.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{HandshakeTimeout: DefaultHandshakeTimeout}
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Conn{
		opts:   opts,
		logger: logger.With("component", "transport"),
		wake:   make(chan struct{}, 1),
	}
}

// OnStatusChange registers fn to be called once per state transition.
func (c *Conn) OnStatusChange(fn func(StatusChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusFns = append(c.statusFns, fn)
}

// OnMessage sets the handler for inbound frames. Frames are delivered one at a
// time, in arrival order, from the read loop.
func (c *Conn) OnMessage(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgFn = fn
}

// Connect points the transport at address. A different address discards the
// current connection and its pending frames.
func (c *Conn) Connect(address string) {
	c.mu.Lock()
	if c.gen != 0 && c.address == address {
		c.mu.Unlock()
		return
	}
	c.address = address
	c.gen++
	cancel := c.cancel
	c.mu.Unlock()

	c.logger.Info("device address set", "address", address)
	if cancel != nil {
		cancel()
	}
	c.poke()
}

// Address returns the configured address.
func (c *Conn) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Status returns the current state and the last connection error.
func (c *Conn) Status() (Status, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.connErr
}

// Send writes payload to the open socket. Before the socket is open it drops
// the payload and returns ErrNotConnected; nothing is buffered.
func (c *Conn) Send(payload string) error {
	c.mu.Lock()
	sock, status := c.sock, c.status
	c.mu.Unlock()

	if sock == nil || status != Connected {
		c.logger.Warn("send before connection is open, message dropped", "status", status.String())
		return ErrNotConnected
	}
	if err := sock.WriteMessage(payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close stops Run and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.poke()
	return nil
}

// Run keeps the connection alive until ctx is canceled or Close is called.
func (c *Conn) Run(ctx context.Context) error {
	defer c.transition(EventReset, "")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-c.wake:
		default:
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		addr, gen := c.address, c.gen
		attemptCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.mu.Unlock()

		if addr == "" {
			c.transition(EventReset, NoAddressError)
			select {
			case <-ctx.Done():
			case <-c.wake:
			case <-attemptCtx.Done():
			}
			cancel()
			continue
		}

		err := c.connectOnce(attemptCtx, addr, gen)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.isClosed() {
			return ErrClosed
		}
		if c.superseded(gen) {
			continue
		}

		delay := c.opts.ReconnectInterval
		c.logger.Info("reconnecting", "delay", delay, "error", err)
		c.opts.Bus.PublishType(eventbus.TransportReconnecting, map[string]string{
			"address": addr,
			"delay":   delay.String(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.opts.Clock.After(delay):
		case <-c.wake:
		}
	}
}

func (c *Conn) connectOnce(ctx context.Context, addr string, gen uint64) error {
	url := protocol.EndpointURL(addr)
	c.transition(EventDial, "")
	c.logger.Debug("dialing device", "url", url)

	sock, err := c.opts.Dialer.Dial(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			c.transition(EventReset, "")
			return ctx.Err()
		}
		c.transition(EventFail, "could not connect to server: "+url)
		return err
	}

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		_ = sock.Close()
		c.transition(EventReset, "")
		return context.Canceled
	}
	c.sock = sock
	c.mu.Unlock()

	c.lastRecv.Store(c.opts.Clock.Now().UnixNano())
	c.transition(EventOpen, "")
	c.logger.Info("connected to device", "url", url)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sock.Close()
		case <-done:
		}
	}()
	go c.heartbeat(sock, done)

	var readErr error
	for {
		text, err := sock.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		c.lastRecv.Store(c.opts.Clock.Now().UnixNano())
		c.deliver(gen, text)
	}
	close(done)

	c.mu.Lock()
	if c.sock == sock {
		c.sock = nil
	}
	c.mu.Unlock()
	_ = sock.Close()

	if ctx.Err() != nil {
		c.transition(EventReset, "")
		return ctx.Err()
	}
	c.transition(EventClose, "connection to "+url+" lost")
	return fmt.Errorf("read message: %w", readErr)
}

func (c *Conn) heartbeat(sock Socket, done <-chan struct{}) {
	if c.opts.HeartbeatInterval < 0 {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-c.opts.Clock.After(c.opts.HeartbeatInterval):
		}

		idle := c.opts.Clock.Now().Sub(time.Unix(0, c.lastRecv.Load()))
		if c.opts.HeartbeatTimeout > 0 && idle > c.opts.HeartbeatTimeout {
			c.logger.Warn("heartbeat timeout, closing connection", "idle", idle)
			_ = sock.Close()
			return
		}
		if err := sock.WriteMessage(protocol.HeartbeatPing); err != nil {
			c.logger.Debug("heartbeat write failed", "error", err)
			return
		}
	}
}

// deliver hands text to the message handler unless the connection it came
// from has been superseded.
func (c *Conn) deliver(gen uint64, text string) {
	c.mu.Lock()
	fn := c.msgFn
	current := c.gen == gen
	c.mu.Unlock()

	if !current {
		c.logger.Debug("dropping frame from superseded connection")
		return
	}
	if fn != nil {
		fn(text)
	}
}

// transition applies e and notifies listeners when status or error changed.
func (c *Conn) transition(e Event, errText string) {
	c.mu.Lock()
	from := c.status
	to, ok := Next(from, e)
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("ignoring transition", "from", from.String(), "event", e.String())
		return
	}
	switch to {
	case Connecting:
		// Keep showing the last error until a connection succeeds.
		errText = c.connErr
	case Connected:
		errText = ""
	}
	if from == to && c.connErr == errText {
		c.mu.Unlock()
		return
	}
	c.status = to
	c.connErr = errText
	fns := make([]func(StatusChange), len(c.statusFns))
	copy(fns, c.statusFns)
	addr := c.address
	c.mu.Unlock()

	change := StatusChange{From: from, To: to, Event: e, Err: errText}
	for _, fn := range fns {
		fn(change)
	}

	switch {
	case to == Connected:
		c.opts.Bus.PublishType(eventbus.TransportConnected, map[string]string{"address": addr})
	case to == Disconnected && from != Disconnected:
		c.opts.Bus.PublishType(eventbus.TransportDisconnected, map[string]string{
			"address": addr,
			"error":   errText,
		})
	}
}

func (c *Conn) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
