package notify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/tapto/tapremote/client/internal/eventbus"
	"github.com/tapto/tapremote/client/internal/state"
	"github.com/tapto/tapremote/pkg/protocol"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *state.Store, *eventbus.Bus) {
	t.Helper()
	store := state.New()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(store.Notifications(), bus, logger), store, bus
}

func notification(method, params string) protocol.Notification {
	n := protocol.Notification{JSONRPC: protocol.Version, Method: method}
	if params != "" {
		n.Params = json.RawMessage(params)
	}
	return n
}

func TestClassify(t *testing.T) {
	for _, method := range []string{
		"readers.connected", "readers.disconnected", "tokens.launching",
		"tokens.active", "media.started", "media.stopped", "media.indexing",
	} {
		k, ok := Classify(method)
		if !ok {
			t.Errorf("Classify(%q) not recognized", method)
			continue
		}
		if k.String() != method {
			t.Errorf("Kind.String() = %q, want %q", k.String(), method)
		}
	}
	if _, ok := Classify("media.paused"); ok {
		t.Error("expected unknown method to be unrecognized")
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("unexpected string for unknown kind: %s", Kind(99))
	}
}

func TestHandle_TokensActive(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	d.Handle(notification("tokens.active",
		`{"type":"ntag215","uid":"04ab12","text":"**launch.system:snes","scanTime":"2024-01-01T00:00:00Z"}`))

	want := protocol.Token{Type: "ntag215", UID: "04ab12", Text: "**launch.system:snes", ScanTime: "2024-01-01T00:00:00Z"}
	if got := store.Snapshot().LastToken; got != want {
		t.Errorf("LastToken = %+v, want %+v", got, want)
	}
}

func TestHandle_MediaStartedThenStopped(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	d.Handle(notification("media.started",
		`{"systemId":"SNES","systemName":"Super Nintendo","mediaName":"Super Metroid","mediaPath":"/games/sm.sfc"}`))

	if got := store.Snapshot().Playing; got.MediaName != "Super Metroid" || got.SystemID != "SNES" {
		t.Fatalf("unexpected playing: %+v", got)
	}

	// No id, no params.
	d.Handle(notification("media.stopped", ""))
	if got := store.Snapshot().Playing; got != (protocol.Playing{}) {
		t.Errorf("expected playing cleared, got %+v", got)
	}
}

func TestHandle_MediaStoppedIgnoresPayload(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	d.Handle(notification("media.started", `{"systemId":"NES","mediaName":"Zelda"}`))
	d.Handle(notification("media.stopped", `{"mediaName":"still here"}`))

	if got := store.Snapshot().Playing; got != (protocol.Playing{}) {
		t.Errorf("expected playing cleared, got %+v", got)
	}
}

func TestHandle_MediaIndexing(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	d.Handle(notification("media.indexing",
		`{"exists":true,"indexing":true,"totalSteps":10,"currentStep":3,"currentDesc":"SNES","totalFiles":120}`))

	want := protocol.IndexStatus{Exists: true, Indexing: true, TotalSteps: 10, CurrentStep: 3, CurrentDesc: "SNES", TotalFiles: 120}
	if got := store.Snapshot().GamesIndex; got != want {
		t.Errorf("GamesIndex = %+v, want %+v", got, want)
	}
}

func TestDispatch_InvalidPayloads(t *testing.T) {
	d, store, _ := newTestDispatcher(t)

	tests := []struct {
		name   string
		kind   Kind
		params string
	}{
		{"missing params", TokensActive, ""},
		{"array params", MediaStarted, `[1,2]`},
		{"string params", MediaIndexing, `"indexing"`},
		{"wrong field type", TokensActive, `{"uid":5}`},
		{"negative counter", MediaIndexing, `{"indexing":true,"totalSteps":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var params json.RawMessage
			if tt.params != "" {
				params = json.RawMessage(tt.params)
			}
			err := d.Dispatch(tt.kind, params)
			if !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}

	if got := store.Snapshot(); got != (state.Snapshot{}) {
		t.Errorf("invalid payloads changed state: %+v", got)
	}
}

func TestHandle_UnknownMethodIsDropped(t *testing.T) {
	d, store, bus := newTestDispatcher(t)
	dropped := bus.Subscribe(eventbus.NotificationDropped)

	d.Handle(notification("media.paused", `{"systemId":"SNES"}`))

	if got := store.Snapshot(); got != (state.Snapshot{}) {
		t.Errorf("unknown method changed state: %+v", got)
	}
	select {
	case e := <-dropped:
		var data map[string]string
		if err := json.Unmarshal(e.Data, &data); err != nil {
			t.Fatal(err)
		}
		if data["method"] != "media.paused" {
			t.Errorf("unexpected event data: %s", e.Data)
		}
	default:
		t.Error("expected dropped event")
	}
}

func TestHandle_InformationalKindsDoNotMutate(t *testing.T) {
	d, store, bus := newTestDispatcher(t)
	received := bus.Subscribe(eventbus.NotificationReceived)

	calls := 0
	unsubscribe := store.Subscribe(func(state.Snapshot) { calls++ })
	defer unsubscribe()

	d.Handle(notification("readers.connected", `{"driver":"pn532"}`))
	d.Handle(notification("readers.disconnected", ""))
	d.Handle(notification("tokens.launching", `{"text":"**launch.random:snes"}`))

	if calls != 0 {
		t.Errorf("expected no state change, got %d notifications", calls)
	}
	if len(received) != 3 {
		t.Errorf("expected 3 received events, got %d", len(received))
	}
}
