// Package slogrecorder provides a test helper that captures slog records.
package slogrecorder

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Record holds a captured slog record for test assertions.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Handler is a [slog.Handler] that captures log records for testing. Attrs
// added with WithAttrs are merged into each record; groups are ignored.
type Handler struct {
	shared *records
	attrs  []slog.Attr
}

type records struct {
	mu   sync.Mutex
	recs []Record
}

// New returns an empty recorder.
func New() *Handler {
	return &Handler{shared: &records{}}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }
func (h *Handler) WithGroup(string) slog.Handler             { return h }

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		shared: h.shared,
		attrs:  append(slices.Clone(h.attrs), attrs...),
	}
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := Record{
		Level:   r.Level,
		Message: r.Message,
		Attrs:   make(map[string]string),
	}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.String()
		return true
	})
	h.shared.mu.Lock()
	h.shared.recs = append(h.shared.recs, rec)
	h.shared.mu.Unlock()
	return nil
}

// Records returns a snapshot of all captured records.
func (h *Handler) Records() []Record {
	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	return slices.Clone(h.shared.recs)
}

// Find returns the records with the given message.
func (h *Handler) Find(msg string) []Record {
	var out []Record
	for _, r := range h.Records() {
		if r.Message == msg {
			out = append(out, r)
		}
	}
	return out
}

// Logger returns a new [slog.Logger] that writes to this handler.
func (h *Handler) Logger() *slog.Logger {
	return slog.New(h)
}
