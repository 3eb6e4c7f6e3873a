package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tapto/tapremote/client/internal/eventbus"
	"github.com/tapto/tapremote/pkg/protocol"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent chan string
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan string, 256)}
}

func (s *fakeSender) Send(payload string) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	s.sent <- payload
	return err
}

// nextRequest waits for the next outbound request and decodes it.
func (s *fakeSender) nextRequest(t *testing.T) protocol.Request {
	t.Helper()
	select {
	case payload := <-s.sent:
		var req protocol.Request
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
		return protocol.Request{}
	}
}

type harness struct {
	c      *Correlator
	sender *fakeSender
	bus    *eventbus.Bus

	mu            sync.Mutex
	notifications []protocol.Notification
}

func (h *harness) notified() []protocol.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Notification(nil), h.notifications...)
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{sender: newFakeSender(), bus: eventbus.New()}
	t.Cleanup(h.bus.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h.c = New(h.sender, Options{
		Timeout: timeout,
		Bus:     h.bus,
		OnNotification: func(n protocol.Notification) {
			h.mu.Lock()
			h.notifications = append(h.notifications, n)
			h.mu.Unlock()
		},
	}, logger)
	return h
}

type callResult struct {
	value json.RawMessage
	err   error
}

func (h *harness) callAsync(method string) <-chan callResult {
	ch := make(chan callResult, 1)
	go func() {
		v, err := h.c.Call(context.Background(), method, nil)
		ch <- callResult{v, err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("call did not settle")
		return callResult{}
	}
}

func respond(id, result string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"timestamp":1,"result":%s}`, id, result)
}

func TestCall_IDsAreUnique(t *testing.T) {
	h := newHarness(t, time.Minute)
	const n = 100

	results := make([]<-chan callResult, n)
	for i := range results {
		results[i] = h.callAsync(protocol.MethodVersion)
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		req := h.sender.nextRequest(t)
		if seen[req.ID] {
			t.Fatalf("duplicate id %s", req.ID)
		}
		seen[req.ID] = true
		if req.JSONRPC != "2.0" || req.Method != protocol.MethodVersion || req.Timestamp == 0 {
			t.Fatalf("unexpected request: %+v", req)
		}
	}
	if h.c.Pending() != n {
		t.Fatalf("expected %d pending, got %d", n, h.c.Pending())
	}

	for id := range seen {
		if err := h.c.HandleRaw(respond(id, `{"version":"1.0","platform":"mister"}`)); err != nil {
			t.Fatalf("HandleRaw: %v", err)
		}
	}
	for _, ch := range results {
		if r := wait(t, ch); r.err != nil {
			t.Errorf("unexpected error: %v", r.err)
		}
	}
	if h.c.Pending() != 0 {
		t.Errorf("expected empty table, got %d", h.c.Pending())
	}
}

func TestCall_ResponsesInReverseOrder(t *testing.T) {
	h := newHarness(t, time.Minute)

	settings := h.callAsync(protocol.MethodSettings)
	settingsReq := h.sender.nextRequest(t)
	systems := h.callAsync(protocol.MethodSystems)
	systemsReq := h.sender.nextRequest(t)

	if settingsReq.ID == systemsReq.ID {
		t.Fatal("expected distinct ids")
	}

	if err := h.c.HandleRaw(respond(systemsReq.ID, `{"systems":[]}`)); err != nil {
		t.Fatal(err)
	}
	if err := h.c.HandleRaw(respond(settingsReq.ID, `{"debug":true}`)); err != nil {
		t.Fatal(err)
	}

	if r := wait(t, systems); string(r.value) != `{"systems":[]}` {
		t.Errorf("systems got %s", r.value)
	}
	if r := wait(t, settings); string(r.value) != `{"debug":true}` {
		t.Errorf("settings got %s", r.value)
	}
}

func TestCall_DeviceErrorRejects(t *testing.T) {
	h := newHarness(t, time.Minute)
	ch := h.callAsync(protocol.MethodLaunch)
	req := h.sender.nextRequest(t)

	raw := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"timestamp":1,"error":{"code":1,"message":"no such system"}}`, req.ID)
	if err := h.c.HandleRaw(raw); err != nil {
		t.Fatal(err)
	}

	r := wait(t, ch)
	var devErr *protocol.Error
	if !errors.As(r.err, &devErr) {
		t.Fatalf("expected *protocol.Error, got %v", r.err)
	}
	if devErr.Code != 1 || devErr.Message != "no such system" {
		t.Errorf("unexpected device error: %+v", devErr)
	}
}

func TestCall_ResultMayBeAbsent(t *testing.T) {
	h := newHarness(t, time.Minute)
	ch := h.callAsync(protocol.MethodMediaIndex)
	req := h.sender.nextRequest(t)

	if err := h.c.HandleRaw(fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"timestamp":1}`, req.ID)); err != nil {
		t.Fatal(err)
	}
	r := wait(t, ch)
	if r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
	if len(r.value) != 0 {
		t.Errorf("expected empty result, got %s", r.value)
	}
	if len(h.notified()) != 0 {
		t.Error("response without result must not become a notification")
	}
}

func TestCall_DuplicateResponseIsUnknown(t *testing.T) {
	h := newHarness(t, time.Minute)
	ch := h.callAsync(protocol.MethodVersion)
	req := h.sender.nextRequest(t)

	if err := h.c.HandleRaw(respond(req.ID, `{}`)); err != nil {
		t.Fatal(err)
	}
	wait(t, ch)

	err := h.c.HandleRaw(respond(req.ID, `{}`))
	if !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID on duplicate, got %v", err)
	}
}

func TestCall_TimeoutRejects(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)
	timeouts := h.bus.Subscribe(eventbus.CallTimeout)

	ch := h.callAsync(protocol.MethodHistory)
	req := h.sender.nextRequest(t)

	r := wait(t, ch)
	if !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", r.err)
	}
	if h.c.Pending() != 0 {
		t.Errorf("expected pending call removed, got %d", h.c.Pending())
	}
	select {
	case <-timeouts:
	case <-time.After(time.Second):
		t.Error("expected timeout event on bus")
	}

	// A late response finds nothing.
	if err := h.c.HandleRaw(respond(req.ID, `{}`)); !errors.Is(err, ErrUnknownID) {
		t.Errorf("expected ErrUnknownID for late response, got %v", err)
	}
}

func TestCall_SendFailureStaysPendingUntilTimeout(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	h.sender.mu.Lock()
	h.sender.err = errors.New("not connected")
	h.sender.mu.Unlock()

	ch := h.callAsync(protocol.MethodVersion)
	h.sender.nextRequest(t)

	if h.c.Pending() != 1 {
		t.Fatalf("expected call to stay pending after failed send, got %d", h.c.Pending())
	}
	r := wait(t, ch)
	if !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", r.err)
	}
	select {
	case p := <-h.sender.sent:
		t.Errorf("request was replayed: %s", p)
	default:
	}
}

func TestCall_ContextCancel(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := h.c.Call(ctx, protocol.MethodSystems, nil)
		done <- err
	}()
	h.sender.nextRequest(t)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return after cancel")
	}
	if h.c.Pending() != 0 {
		t.Errorf("expected pending call removed, got %d", h.c.Pending())
	}
}

func TestRejectAll(t *testing.T) {
	h := newHarness(t, time.Minute)
	a := h.callAsync(protocol.MethodSettings)
	b := h.callAsync(protocol.MethodSystems)
	h.sender.nextRequest(t)
	h.sender.nextRequest(t)

	if n := h.c.RejectAll(ErrDisconnected); n != 2 {
		t.Fatalf("expected 2 rejected, got %d", n)
	}
	for _, ch := range []<-chan callResult{a, b} {
		if r := wait(t, ch); !errors.Is(r.err, ErrDisconnected) {
			t.Errorf("expected ErrDisconnected, got %v", r.err)
		}
	}
	if n := h.c.RejectAll(ErrDisconnected); n != 0 {
		t.Errorf("expected nothing left to reject, got %d", n)
	}
}

func TestHandleRaw_PongIsIgnored(t *testing.T) {
	h := newHarness(t, time.Minute)
	all := h.bus.Subscribe()

	if err := h.c.HandleRaw("pong"); err != nil {
		t.Fatalf("expected pong to be ignored, got %v", err)
	}
	if len(h.notified()) != 0 {
		t.Error("pong must not reach the notification handler")
	}
	select {
	case e := <-all:
		t.Errorf("pong produced bus event %s", e.Type)
	default:
	}
}

func TestHandleRaw_Malformed(t *testing.T) {
	h := newHarness(t, time.Minute)
	for _, raw := range []string{"{not json", "[1,2]", "42", ""} {
		if err := h.c.HandleRaw(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("HandleRaw(%q) = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestHandleRaw_ProtocolMismatch(t *testing.T) {
	h := newHarness(t, time.Minute)
	mismatches := h.bus.Subscribe(eventbus.ProtocolMismatch)

	pending := h.callAsync(protocol.MethodVersion)
	req := h.sender.nextRequest(t)

	for _, raw := range []string{
		`{"id":"a","result":{}}`,
		`{"jsonrpc":"1.0","method":"media.stopped"}`,
		`null`,
	} {
		if err := h.c.HandleRaw(raw); !errors.Is(err, ErrProtocolMismatch) {
			t.Errorf("HandleRaw(%s) = %v, want ErrProtocolMismatch", raw, err)
		}
	}
	if len(mismatches) != 3 {
		t.Errorf("expected 3 mismatch events, got %d", len(mismatches))
	}
	if len(h.notified()) != 0 {
		t.Error("mismatched frames must not be dispatched")
	}

	// The correlator keeps working afterwards.
	if err := h.c.HandleRaw(respond(req.ID, `{}`)); err != nil {
		t.Fatal(err)
	}
	wait(t, pending)
}

func TestHandleRaw_NotificationRouting(t *testing.T) {
	h := newHarness(t, time.Minute)
	pending := h.callAsync(protocol.MethodVersion)
	req := h.sender.nextRequest(t)

	frames := []string{
		`{"jsonrpc":"2.0","method":"media.stopped"}`,
		`{"jsonrpc":"2.0","method":"tokens.active","params":{"uid":"04ab"}}`,
		`{"jsonrpc":"2.0","id":null,"method":"media.indexing","params":{"indexing":true}}`,
		fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"method":"media.started","params":{}}`, req.ID),
	}
	for _, raw := range frames {
		if err := h.c.HandleRaw(raw); err != nil {
			t.Fatalf("HandleRaw(%s): %v", raw, err)
		}
	}

	got := h.notified()
	if len(got) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(got))
	}
	if got[0].Method != protocol.NotifyMediaStopped || len(got[0].Params) != 0 {
		t.Errorf("unexpected first notification: %+v", got[0])
	}
	if string(got[1].Params) != `{"uid":"04ab"}` {
		t.Errorf("unexpected params: %s", got[1].Params)
	}
	if h.c.Pending() != 1 {
		t.Fatalf("notifications must not touch pending calls, got %d pending", h.c.Pending())
	}

	if err := h.c.HandleRaw(respond(req.ID, `{}`)); err != nil {
		t.Fatal(err)
	}
	wait(t, pending)
}

func TestHandleRaw_UnknownIDLeavesOthersAlone(t *testing.T) {
	h := newHarness(t, time.Minute)
	unmatched := h.bus.Subscribe(eventbus.UnmatchedResponse)

	pending := h.callAsync(protocol.MethodSettings)
	req := h.sender.nextRequest(t)

	err := h.c.HandleRaw(`{"jsonrpc":"2.0","id":"x","result":{"indexing":true,"totalSteps":3}}`)
	if !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
	if h.c.Pending() != 1 {
		t.Errorf("unknown id affected pending table: %d", h.c.Pending())
	}
	if len(h.notified()) != 0 {
		t.Error("unknown response must not be dispatched as a notification")
	}
	select {
	case e := <-unmatched:
		var data map[string]string
		_ = json.Unmarshal(e.Data, &data)
		if data["id"] != "x" {
			t.Errorf("unexpected event data: %s", e.Data)
		}
	case <-time.After(time.Second):
		t.Error("expected unmatched response event")
	}

	if err := h.c.HandleRaw(respond(req.ID, `{}`)); err != nil {
		t.Fatal(err)
	}
	if r := wait(t, pending); r.err != nil {
		t.Errorf("unexpected error: %v", r.err)
	}
}
