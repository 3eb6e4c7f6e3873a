package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelope_IDString(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string id", `{"jsonrpc":"2.0","id":"abc"}`, "abc"},
		{"numeric id", `{"jsonrpc":"2.0","id":42}`, "42"},
		{"null id", `{"jsonrpc":"2.0","id":null}`, ""},
		{"empty id", `{"jsonrpc":"2.0","id":""}`, ""},
		{"missing id", `{"jsonrpc":"2.0","method":"media.stopped"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			if err := json.Unmarshal([]byte(tt.raw), &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := env.IDString(); got != tt.want {
				t.Errorf("IDString() = %q, want %q", got, tt.want)
			}
			if env.HasID() != (tt.want != "") {
				t.Errorf("HasID() = %v for %s", env.HasID(), tt.raw)
			}
		})
	}
}

func TestNewRequest_Stamped(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	req := NewRequest("id-1", MethodVersion, nil, now)

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["jsonrpc"] != "2.0" {
		t.Errorf("expected jsonrpc 2.0, got %v", decoded["jsonrpc"])
	}
	if decoded["timestamp"] != float64(1700000000123) {
		t.Errorf("unexpected timestamp: %v", decoded["timestamp"])
	}
	if _, ok := decoded["params"]; ok {
		t.Error("expected params to be omitted when nil")
	}
}

func TestEnvelope_Response_CarriesError(t *testing.T) {
	var env Envelope
	raw := `{"jsonrpc":"2.0","id":"x","timestamp":1,"error":{"code":-32601,"message":"unknown method"}}`
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	resp := env.Response()
	if resp.Error == nil {
		t.Fatal("expected error object")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("expected code -32601, got %d", resp.Error.Code)
	}
	if resp.Error.Error() != "device error -32601: unknown method" {
		t.Errorf("unexpected error text: %s", resp.Error.Error())
	}
}

func TestEndpointURL(t *testing.T) {
	if got := EndpointURL("10.0.0.5"); got != "ws://10.0.0.5:7497/" {
		t.Errorf("unexpected url: %s", got)
	}
	if got := EndpointURL("::1"); got != "ws://[::1]:7497/" {
		t.Errorf("unexpected ipv6 url: %s", got)
	}
}
