package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Entry is one captured log record in flattened form.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Service string
	Message string
}

// mutedComponents never reach the capture tap. The capture service's own
// records and transport-level noise would otherwise feed back into the
// pipeline they describe.
var mutedComponents = map[string]bool{
	"log_capture": true,
	"websocket":   true,
	"http":        true,
}

// Handler is a slog.Handler that applies per-component levels and taps every
// record into the capture pipeline before delegating to the wrapped handler.
// The component name is taken from the "service" attribute, normally attached
// once via Logger.With at service construction.
type Handler struct {
	inner   slog.Handler
	levels  *Levels
	tap     func(Entry)
	service string
	attrs   []slog.Attr
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler wraps inner with level control and the capture tap. Both levels
// and tap may be nil, disabling the respective feature.
func NewHandler(inner slog.Handler, levels *Levels, tap func(Entry)) *Handler {
	return &Handler{inner: inner, levels: levels, tap: tap}
}

// Enabled consults the per-component level registry.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.levels != nil {
		return level >= h.levels.LevelFor(h.componentName())
	}
	return h.inner.Enabled(ctx, level)
}

// Handle taps the record into the capture pipeline, then delegates.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	name := h.componentName()
	if h.tap != nil && !mutedComponents[name] {
		h.tap(Entry{
			Time:    r.Time,
			Level:   r.Level,
			Service: name,
			Message: h.flatten(r),
		})
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs tracks the "service" attribute so the component name follows the
// logger, and forwards everything to the wrapped handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &Handler{
		inner:   h.inner.WithAttrs(attrs),
		levels:  h.levels,
		tap:     h.tap,
		service: h.service,
		attrs:   append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
	for _, a := range attrs {
		if a.Key == "service" {
			next.service = a.Value.String()
		}
	}
	return next
}

// WithGroup forwards the group to the wrapped handler. Group nesting does not
// affect capture.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:   h.inner.WithGroup(name),
		levels:  h.levels,
		tap:     h.tap,
		service: h.service,
		attrs:   h.attrs,
	}
}

func (h *Handler) componentName() string {
	if h.service != "" {
		return h.service
	}
	return "system"
}

// flatten renders the record message plus its attributes on one line, the
// form stored in the ring and written to the session log file.
func (h *Handler) flatten(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		if a.Key == "service" {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	return b.String()
}
