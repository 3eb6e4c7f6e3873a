// Package notify turns device notifications into client state updates.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tapto/tapremote/client/internal/eventbus"
	"github.com/tapto/tapremote/client/internal/state"
	"github.com/tapto/tapremote/pkg/protocol"
)

var (
	// ErrUnknownMethod reports a notification outside the known set.
	ErrUnknownMethod = errors.New("unknown notification method")
	// ErrInvalidPayload reports params that do not fit the method's shape.
	ErrInvalidPayload = errors.New("invalid notification payload")
)

// Kind is one of the notifications the device pushes.
type Kind int

const (
	ReadersConnected Kind = iota + 1
	ReadersDisconnected
	TokensLaunching
	TokensActive
	MediaStarted
	MediaStopped
	MediaIndexing
)

var kindMethods = map[Kind]string{
	ReadersConnected:    protocol.NotifyReadersConnected,
	ReadersDisconnected: protocol.NotifyReadersDisconnected,
	TokensLaunching:     protocol.NotifyTokensLaunching,
	TokensActive:        protocol.NotifyTokensActive,
	MediaStarted:        protocol.NotifyMediaStarted,
	MediaStopped:        protocol.NotifyMediaStopped,
	MediaIndexing:       protocol.NotifyMediaIndexing,
}

var methodKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindMethods))
	for k, method := range kindMethods {
		m[method] = k
	}
	return m
}()

func (k Kind) String() string {
	if m, ok := kindMethods[k]; ok {
		return m
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Classify maps a method name to its Kind.
func Classify(method string) (Kind, bool) {
	k, ok := methodKinds[method]
	return k, ok
}

// Dispatcher applies notifications to the client state. It is synchronous and
// must be called from a single goroutine, the transport read loop.
type Dispatcher struct {
	state  state.NotificationWriter
	bus    *eventbus.Bus
	logger *slog.Logger
}

// New creates a Dispatcher writing to w.
func New(w state.NotificationWriter, bus *eventbus.Bus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		state:  w,
		bus:    bus,
		logger: logger.With("component", "notify"),
	}
}

// Handle classifies and dispatches n. Dropped notifications are logged and
// published; nothing is returned to the caller.
func (d *Dispatcher) Handle(n protocol.Notification) {
	kind, ok := Classify(n.Method)
	if !ok {
		d.drop(n.Method, ErrUnknownMethod)
		return
	}
	if err := d.Dispatch(kind, n.Params); err != nil {
		d.drop(n.Method, err)
		return
	}
	d.bus.PublishType(eventbus.NotificationReceived, map[string]any{
		"method": n.Method,
		"params": rawOrNull(n.Params),
	})
}

// Dispatch validates params for kind and applies the resulting update.
func (d *Dispatcher) Dispatch(kind Kind, params json.RawMessage) error {
	switch kind {
	case TokensActive:
		var tok protocol.Token
		if err := decodeObject(params, &tok); err != nil {
			return err
		}
		d.state.SetLastToken(tok)
		d.logger.Info("token scanned", "uid", tok.UID, "text", tok.Text)

	case MediaStarted:
		var p protocol.Playing
		if err := decodeObject(params, &p); err != nil {
			return err
		}
		d.state.SetPlaying(p)
		d.logger.Info("media started", "system", p.SystemName, "media", p.MediaName)

	case MediaStopped:
		d.state.SetPlaying(protocol.Playing{})
		d.logger.Info("media stopped")

	case MediaIndexing:
		var idx protocol.IndexStatus
		if err := decodeObject(params, &idx); err != nil {
			return err
		}
		if idx.TotalSteps < 0 || idx.CurrentStep < 0 || idx.TotalFiles < 0 {
			return fmt.Errorf("%w: negative indexing counter", ErrInvalidPayload)
		}
		d.state.SetGamesIndex(idx)
		d.logger.Debug("indexing progress", "step", idx.CurrentStep, "total", idx.TotalSteps, "desc", idx.CurrentDesc)

	case ReadersConnected, ReadersDisconnected, TokensLaunching:
		d.logger.Info("device event", "method", kind.String())

	default:
		return fmt.Errorf("%w: %s", ErrUnknownMethod, kind)
	}
	return nil
}

func (d *Dispatcher) drop(method string, err error) {
	d.logger.Warn("dropping notification", "method", method, "error", err)
	d.bus.PublishType(eventbus.NotificationDropped, map[string]string{
		"method": method,
		"error":  err.Error(),
	})
}

// decodeObject requires params to be a JSON object before decoding into v.
func decodeObject(params json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: expected object", ErrInvalidPayload)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
