package eventbus

import (
	"context"
	"log/slog"
)

// LogRecord is the payload of a LogEntry event.
type LogRecord struct {
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Group   string         `json:"group,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// SlogHandler forwards every record to an inner handler and mirrors it onto
// the bus as a LogEntry event.
type SlogHandler struct {
	inner slog.Handler
	bus   *Bus
	attrs []slog.Attr
	group string
}

// NewSlogHandler wraps inner so records are also published to bus.
func NewSlogHandler(inner slog.Handler, bus *Bus) *SlogHandler {
	return &SlogHandler{inner: inner, bus: bus}
}

func (h *SlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := LogRecord{
		Level:   r.Level.String(),
		Message: r.Message,
		Group:   h.group,
	}
	if n := r.NumAttrs() + len(h.attrs); n > 0 {
		rec.Attrs = make(map[string]any, n)
		for _, a := range h.attrs {
			rec.Attrs[a.Key] = a.Value.Any()
		}
		r.Attrs(func(a slog.Attr) bool {
			rec.Attrs[a.Key] = a.Value.Any()
			return true
		})
	}
	h.bus.PublishType(LogEntry, rec)

	return h.inner.Handle(ctx, r)
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &SlogHandler{
		inner: h.inner.WithAttrs(attrs),
		bus:   h.bus,
		attrs: merged,
		group: h.group,
	}
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &SlogHandler{
		inner: h.inner.WithGroup(name),
		bus:   h.bus,
		attrs: h.attrs,
		group: group,
	}
}
