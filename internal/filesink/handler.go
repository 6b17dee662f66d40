package filesink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/afikmenashe/logpipe/internal/pipeline"
	"github.com/afikmenashe/logpipe/internal/record"
)

const timeLayout = "2006-01-02 15:04:05"

// Handler writes one line per record:
//
//	[2026-01-02 15:04:05] app.ERROR: [AB12-CD34] message {context} {extra}
type Handler struct {
	mu  sync.Mutex
	w   io.WriteCloser
	min record.Level
}

// NewHandler writes records at or above min to w.
func NewHandler(w io.WriteCloser, min record.Level) *Handler {
	return &Handler{w: w, min: min}
}

// Open is NewHandler over a Rotating writer at path.
func Open(path string, days int, min record.Level) *Handler {
	return NewHandler(NewRotating(path, days), min)
}

func (h *Handler) Name() string { return "file" }

func (h *Handler) IsHandling(level record.Level) bool {
	return level >= h.min
}

func (h *Handler) Handle(_ context.Context, r *record.Record) error {
	line := Format(r)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, line); err != nil {
		return fmt.Errorf("filesink: write: %w", err)
	}
	return nil
}

func (h *Handler) HandleBatch(ctx context.Context, records []*record.Record) error {
	return pipeline.HandleEach(ctx, h, records)
}

func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.w.Close()
}

// Format renders a record as a single newline-terminated line.
func Format(r *record.Record) string {
	extra := r.Extra()
	delete(extra, record.ExtraUID)
	return fmt.Sprintf("[%s] %s.%s: [%s] %s %s %s\n",
		r.Time.Format(timeLayout),
		r.Channel,
		r.Level,
		r.UID(),
		r.Message,
		encode(r.Context),
		encode(extra),
	)
}

func encode(m map[string]any) string {
	if len(m) == 0 {
		return "[]"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(m))
	}
	return string(b)
}
