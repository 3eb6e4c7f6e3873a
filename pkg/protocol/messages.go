// Package protocol defines the JSON-RPC 2.0 wire format spoken between a
// tapremote client and a TapTo device over WebSocket.
//
// Every frame is a JSON text message carrying the "jsonrpc" tag, except the
// heartbeat reply which is the bare text "pong".
package protocol

import (
	"encoding/json"
	"net"
	"strconv"
	"time"
)

// Version is the only protocol tag accepted on the wire.
const Version = "2.0"

// Port is the fixed TCP port the device API listens on.
const Port = 7497

// Heartbeat frames are plain text, never JSON.
const (
	HeartbeatPing = "ping"
	HeartbeatPong = "pong"
)

// Request is an outbound call.
type Request struct {
	JSONRPC   string `json:"jsonrpc"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
}

// Response is the device's reply to a Request.
type Response struct {
	JSONRPC   string          `json:"jsonrpc"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// Notification is a server-pushed message without an id.
type Notification struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Envelope is the union of every inbound shape. It is decoded first and then
// narrowed to a Response or a Notification.
type Envelope struct {
	JSONRPC   string          `json:"jsonrpc"`
	ID        json.RawMessage `json:"id,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// HasID reports whether the envelope carries a usable id. A missing id, a
// JSON null and an empty string all count as absent.
func (e Envelope) HasID() bool {
	id := e.IDString()
	return id != ""
}

// IDString returns the id as text. Numeric ids are rendered verbatim.
func (e Envelope) IDString() string {
	if len(e.ID) == 0 || string(e.ID) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(e.ID, &n); err == nil {
		return n.String()
	}
	return string(e.ID)
}

// Response narrows the envelope to a Response.
func (e Envelope) Response() Response {
	return Response{
		JSONRPC:   e.JSONRPC,
		ID:        e.IDString(),
		Timestamp: e.Timestamp,
		Result:    e.Result,
		Error:     e.Error,
	}
}

// Notification narrows the envelope to a Notification.
func (e Envelope) Notification() Notification {
	return Notification{
		JSONRPC: e.JSONRPC,
		Method:  e.Method,
		Params:  e.Params,
	}
}

// Error is the structured error object returned by the device.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return "device error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// NewRequest builds a Request stamped with the given time.
func NewRequest(id, method string, params any, now time.Time) Request {
	return Request{
		JSONRPC:   Version,
		ID:        id,
		Timestamp: now.UnixMilli(),
		Method:    method,
		Params:    params,
	}
}

// EndpointURL returns the WebSocket URL of the device API for host.
func EndpointURL(host string) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(Port)) + "/"
}

// --- Method constants ---

const (
	MethodVersion        = "version"
	MethodLaunch         = "launch"
	MethodStop           = "stop"
	MethodHistory        = "tokens.history"
	MethodMediaSearch    = "media.search"
	MethodMediaIndex     = "media.index"
	MethodSystems        = "systems"
	MethodSettings       = "settings"
	MethodSettingsUpdate = "settings.update"
	MethodMappings       = "mappings"
	MethodMappingsNew    = "mappings.new"
	MethodMappingsDelete = "mappings.delete"
	MethodMappingsUpdate = "mappings.update"
	MethodReaders        = "readers"
	MethodReadersWrite   = "readers.write"

	// Deprecated: superseded by media.indexing notifications.
	MethodStatus = "status"
)

// --- Notification constants ---

const (
	NotifyReadersConnected    = "readers.connected"
	NotifyReadersDisconnected = "readers.disconnected"
	NotifyTokensLaunching     = "tokens.launching"
	NotifyTokensActive        = "tokens.active"
	NotifyMediaStarted        = "media.started"
	NotifyMediaStopped        = "media.stopped"
	NotifyMediaIndexing       = "media.indexing"
)
