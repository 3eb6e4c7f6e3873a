package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tapto/tapremote/pkg/protocol"
)

// DecodeError reports a result that did not match the expected shape.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s result: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// API exposes the device methods with typed params and results.
type API struct {
	caller Caller
}

// NewAPI wraps caller.
func NewAPI(caller Caller) *API {
	return &API{caller: caller}
}

func call[T any](ctx context.Context, c Caller, method string, params any) (T, error) {
	var out T
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return out, fmt.Errorf("%s: %w", method, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &DecodeError{Method: method, Err: err}
	}
	return out, nil
}

// exec issues a method whose result is ignored.
func exec(ctx context.Context, c Caller, method string, params any) error {
	if _, err := c.Call(ctx, method, params); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (a *API) Version(ctx context.Context) (protocol.VersionResponse, error) {
	return call[protocol.VersionResponse](ctx, a.caller, protocol.MethodVersion, nil)
}

// Launch behaves as if the token described by req was scanned.
func (a *API) Launch(ctx context.Context, req protocol.LaunchRequest) error {
	return exec(ctx, a.caller, protocol.MethodLaunch, req)
}

// Stop exits the running media.
func (a *API) Stop(ctx context.Context) error {
	return exec(ctx, a.caller, protocol.MethodStop, nil)
}

func (a *API) History(ctx context.Context) (protocol.HistoryResponse, error) {
	return call[protocol.HistoryResponse](ctx, a.caller, protocol.MethodHistory, nil)
}

func (a *API) MediaSearch(ctx context.Context, params protocol.SearchParams) (protocol.SearchResultsResponse, error) {
	if params.Systems == nil {
		params.Systems = []string{}
	}
	return call[protocol.SearchResultsResponse](ctx, a.caller, protocol.MethodMediaSearch, params)
}

// MediaIndex starts a media database rebuild. Progress arrives as
// media.indexing notifications.
func (a *API) MediaIndex(ctx context.Context) error {
	return exec(ctx, a.caller, protocol.MethodMediaIndex, nil)
}

func (a *API) Systems(ctx context.Context) (protocol.SystemsResponse, error) {
	return call[protocol.SystemsResponse](ctx, a.caller, protocol.MethodSystems, nil)
}

func (a *API) Settings(ctx context.Context) (protocol.SettingsResponse, error) {
	return call[protocol.SettingsResponse](ctx, a.caller, protocol.MethodSettings, nil)
}

func (a *API) SettingsUpdate(ctx context.Context, req protocol.UpdateSettingsRequest) error {
	return exec(ctx, a.caller, protocol.MethodSettingsUpdate, req)
}

func (a *API) Mappings(ctx context.Context) (protocol.MappingsResponse, error) {
	return call[protocol.MappingsResponse](ctx, a.caller, protocol.MethodMappings, nil)
}

func (a *API) MappingsNew(ctx context.Context, req protocol.AddMappingRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("%s: invalid mapping type %q", protocol.MethodMappingsNew, req.Type)
	}
	return exec(ctx, a.caller, protocol.MethodMappingsNew, req)
}

func (a *API) MappingsDelete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%s: mapping id required", protocol.MethodMappingsDelete)
	}
	return exec(ctx, a.caller, protocol.MethodMappingsDelete, protocol.DeleteMappingRequest{ID: id})
}

func (a *API) MappingsUpdate(ctx context.Context, req protocol.UpdateMappingRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%s: mapping id required", protocol.MethodMappingsUpdate)
	}
	if req.Type != nil && !req.Type.Valid() {
		return fmt.Errorf("%s: invalid mapping type %q", protocol.MethodMappingsUpdate, *req.Type)
	}
	return exec(ctx, a.caller, protocol.MethodMappingsUpdate, req)
}

// Readers returns the raw reader list; its shape varies by device platform.
func (a *API) Readers(ctx context.Context) (json.RawMessage, error) {
	raw, err := a.caller.Call(ctx, protocol.MethodReaders, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", protocol.MethodReaders, err)
	}
	return raw, nil
}

// ReadersWrite writes text to the next token placed on a reader.
func (a *API) ReadersWrite(ctx context.Context, req protocol.WriteRequest) error {
	return exec(ctx, a.caller, protocol.MethodReadersWrite, req)
}

// Status returns the media index status.
//
// Deprecated: subscribe to media.indexing notifications instead.
func (a *API) Status(ctx context.Context) (protocol.StatusResponse, error) {
	return call[protocol.StatusResponse](ctx, a.caller, protocol.MethodStatus, nil)
}
