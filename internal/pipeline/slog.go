package pipeline

import (
	"context"
	"log/slog"

	"github.com/afikmenashe/logpipe/internal/record"
)

// SlogHandler lets code written against log/slog feed the chain.
type SlogHandler struct {
	logger *Logger
	min    slog.Leveler
	attrs  []slog.Attr
	group  string
}

// NewSlogHandler adapts logger. Records below min are dropped before
// reaching the chain.
func NewSlogHandler(logger *Logger, min slog.Leveler) *SlogHandler {
	if min == nil {
		min = slog.LevelDebug
	}
	return &SlogHandler{logger: logger, min: min}
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min.Level()
}

func (h *SlogHandler) Handle(ctx context.Context, sr slog.Record) error {
	fields := make(map[string]any, len(h.attrs)+sr.NumAttrs())
	for _, a := range h.attrs {
		addAttr(fields, "", a)
	}
	sr.Attrs(func(a slog.Attr) bool {
		addAttr(fields, h.group, a)
		return true
	})

	r := record.New(h.logger.Name(), record.FromSlog(sr.Level), sr.Message, fields)
	if !sr.Time.IsZero() {
		r.Time = sr.Time
	}
	return h.logger.LogRecord(ctx, r)
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func addAttr(fields map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(fields, key, ga)
		}
		return
	}
	fields[key] = a.Value.Any()
}
