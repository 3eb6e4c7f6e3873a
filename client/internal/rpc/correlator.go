// Package rpc correlates JSON-RPC requests with their responses over a single
// transport and routes id-less messages to a notification handler.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tapto/tapremote/client/internal/eventbus"
	"github.com/tapto/tapremote/pkg/protocol"
)

// DefaultTimeout is how long a call waits for its response.
const DefaultTimeout = 30 * time.Second

var (
	// ErrTimeout settles a call whose response did not arrive in time.
	ErrTimeout = errors.New("request timed out")
	// ErrDisconnected settles calls still pending when the connection drops.
	ErrDisconnected = errors.New("connection lost before response")
	// ErrMalformed reports an inbound frame that is not valid JSON.
	ErrMalformed = errors.New("malformed message")
	// ErrProtocolMismatch reports a frame without the expected jsonrpc tag.
	// It usually means the peer speaks an incompatible protocol version.
	ErrProtocolMismatch = errors.New("protocol mismatch")
	// ErrUnknownID reports a response that matches no pending call.
	ErrUnknownID = errors.New("response for unknown request id")
)

// Sender writes a serialized request to the transport.
type Sender interface {
	Send(payload string) error
}

// Caller issues a request and waits for its result.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Options configures a Correlator.
type Options struct {
	Timeout        time.Duration
	NewID          func() string
	Now            func() time.Time
	Bus            *eventbus.Bus
	OnNotification func(protocol.Notification)
}

type result struct {
	value json.RawMessage
	err   error
}

type pendingCall struct {
	id      string
	method  string
	created time.Time
	ch      chan result // buffered 1, written exactly once
	timer   *time.Timer
}

// Correlator owns the pending call table.
type Correlator struct {
	sender Sender
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// New creates a Correlator sending through sender.
func New(sender Sender, opts Options, logger *slog.Logger) *Correlator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Correlator{
		sender:  sender,
		opts:    opts,
		logger:  logger.With("component", "rpc"),
		pending: make(map[string]*pendingCall),
	}
}

// Call sends method with params and blocks until the matching response, the
// call timeout, or ctx cancellation. A device error is returned as
// *protocol.Error. A failed send leaves the call pending until it times out;
// nothing is replayed after a reconnect.
func (c *Correlator) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.opts.NewID()
	req := protocol.NewRequest(id, method, params, c.opts.Now())
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	call := &pendingCall{
		id:      id,
		method:  method,
		created: c.opts.Now(),
		ch:      make(chan result, 1),
	}

	c.mu.Lock()
	if _, dup := c.pending[id]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("duplicate request id %s", id)
	}
	c.pending[id] = call
	call.timer = time.AfterFunc(c.opts.Timeout, func() { c.expire(id) })
	c.mu.Unlock()

	c.logger.Debug("sending request", "id", id, "method", method)
	if err := c.sender.Send(string(data)); err != nil {
		c.logger.Warn("request not sent", "id", id, "method", method, "error", err)
	}

	select {
	case res := <-call.ch:
		return res.value, res.err
	case <-ctx.Done():
		if c.settle(id, result{err: ctx.Err()}) {
			return nil, ctx.Err()
		}
		// Settled concurrently; the result is already buffered.
		res := <-call.ch
		return res.value, res.err
	}
}

// HandleRaw processes one inbound frame. The returned error classifies
// dropped frames; it never affects other calls.
func (c *Correlator) HandleRaw(text string) error {
	if text == protocol.HeartbeatPong {
		return nil
	}

	var env protocol.Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		c.logger.Error("could not parse message", "error", err, "raw", truncate(text, 200))
		c.opts.Bus.PublishType(eventbus.MalformedMessage, map[string]string{"error": err.Error()})
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.JSONRPC != protocol.Version {
		c.logger.Error("not a valid JSON-RPC payload", "jsonrpc", env.JSONRPC, "want", protocol.Version)
		c.opts.Bus.PublishType(eventbus.ProtocolMismatch, map[string]string{
			"got":  env.JSONRPC,
			"want": protocol.Version,
		})
		return fmt.Errorf("%w: jsonrpc %q", ErrProtocolMismatch, env.JSONRPC)
	}

	// A request shape arriving from the peer (id and method, no result or
	// error) is handled like a notification.
	isRequestShape := env.Method != "" && env.Result == nil && env.Error == nil
	if !env.HasID() || isRequestShape {
		n := env.Notification()
		c.logger.Debug("received notification", "method", n.Method)
		if c.opts.OnNotification != nil {
			c.opts.OnNotification(n)
		}
		return nil
	}

	resp := env.Response()
	res := result{value: resp.Result}
	if resp.Error != nil {
		res = result{err: resp.Error}
	}
	if !c.settle(resp.ID, res) {
		c.logger.Warn("response for unknown request id", "id", resp.ID)
		c.opts.Bus.PublishType(eventbus.UnmatchedResponse, map[string]string{"id": resp.ID})
		return fmt.Errorf("%w: %s", ErrUnknownID, resp.ID)
	}
	return nil
}

// RejectAll settles every pending call with err and returns how many there
// were.
func (c *Correlator) RejectAll(err error) int {
	c.mu.Lock()
	calls := make([]*pendingCall, 0, len(c.pending))
	for id, call := range c.pending {
		calls = append(calls, call)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, call := range calls {
		call.timer.Stop()
		call.ch <- result{err: err}
	}
	if len(calls) > 0 {
		c.logger.Info("rejected pending calls", "count", len(calls), "reason", err)
	}
	return len(calls)
}

// Pending returns the number of calls awaiting a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// settle removes the call before delivering res, so a duplicate response
// finds nothing. It reports whether a call was settled.
func (c *Correlator) settle(id string, res result) bool {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	call.timer.Stop()
	call.ch <- res
	return true
}

func (c *Correlator) expire(id string) {
	c.mu.Lock()
	call, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}

	err := fmt.Errorf("%s: %w after %s", call.method, ErrTimeout, c.opts.Timeout)
	if c.settle(id, result{err: err}) {
		c.logger.Warn("request timed out", "id", id, "method", call.method,
			"age", c.opts.Now().Sub(call.created))
		c.opts.Bus.PublishType(eventbus.CallTimeout, map[string]string{
			"id":     id,
			"method": call.method,
		})
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
