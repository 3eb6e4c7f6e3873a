// Package eventbus carries diagnostics events from the protocol core to
// observers such as the dashboard. It is a side channel: nothing in the core
// depends on anyone listening.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published on the bus.
const (
	TransportConnected    = "transport.connected"
	TransportDisconnected = "transport.disconnected"
	TransportReconnecting = "transport.reconnecting"
	ProtocolMismatch      = "protocol.mismatch"
	MalformedMessage      = "protocol.malformed"
	UnmatchedResponse     = "rpc.unmatched"
	CallTimeout           = "rpc.timeout"
	NotificationReceived  = "notification.received"
	NotificationDropped   = "notification.dropped"
	LogEntry              = "log.entry"
)

// Event is a single message on the bus.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Bus is a fan-out pub/sub bus. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan Event]map[string]bool // nil filter = all types
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[chan Event]map[string]bool),
	}
}

// Subscribe returns a buffered channel receiving events of the given types,
// or every event when no types are given.
func (b *Bus) Subscribe(types ...string) chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	var filter map[string]bool
	if len(types) > 0 {
		filter = make(map[string]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}
	b.subs[ch] = filter
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish delivers e to every matching subscriber.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, filter := range b.subs {
		if filter != nil && !filter[e.Type] {
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// PublishType marshals data and publishes it under eventType. A nil bus is a
// no-op so components can be built without one.
func (b *Bus) PublishType(eventType string, data any) {
	if b == nil {
		return
	}
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	b.Publish(Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      raw,
	})
}

// Close unsubscribes everyone. Later subscribers get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}
