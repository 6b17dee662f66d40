// Package pipeline composes handlers into the chain every record travels
// through: processors first, then each attached handler in order.
package pipeline

import (
	"context"
	"errors"

	"github.com/afikmenashe/logpipe/internal/record"
)

// Handler is a stage of the chain. Leaf handlers deliver records somewhere;
// composite handlers (Group, Deduplication, FingersCrossed) wrap other handlers.
type Handler interface {
	// IsHandling reports whether a record at level would be processed.
	IsHandling(level record.Level) bool

	// Handle processes a single record.
	Handle(ctx context.Context, r *record.Record) error

	// HandleBatch processes records that must travel together, such as a
	// buffer released by FingersCrossed.
	HandleBatch(ctx context.Context, records []*record.Record) error

	// Close releases resources. Buffered records that were never released
	// are discarded.
	Close() error
}

// Processor enriches a record before any handler sees it. ctx is the
// context the record was logged with.
type Processor interface {
	Process(ctx context.Context, r *record.Record)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, r *record.Record)

func (f ProcessorFunc) Process(ctx context.Context, r *record.Record) { f(ctx, r) }

// HandleEach calls h.Handle for every record it accepts. Leaf handlers use it
// as their HandleBatch.
func HandleEach(ctx context.Context, h Handler, records []*record.Record) error {
	var errs []error
	for _, r := range records {
		if !h.IsHandling(r.Level) {
			continue
		}
		if err := h.Handle(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LevelFilter only forwards records at or above Min.
type LevelFilter struct {
	Min  record.Level
	Next Handler
}

// NewLevelFilter wraps next with a minimum level.
func NewLevelFilter(min record.Level, next Handler) *LevelFilter {
	return &LevelFilter{Min: min, Next: next}
}

func (f *LevelFilter) IsHandling(level record.Level) bool {
	return level >= f.Min && f.Next.IsHandling(level)
}

func (f *LevelFilter) Handle(ctx context.Context, r *record.Record) error {
	if !f.IsHandling(r.Level) {
		return nil
	}
	return f.Next.Handle(ctx, r)
}

func (f *LevelFilter) HandleBatch(ctx context.Context, records []*record.Record) error {
	kept := make([]*record.Record, 0, len(records))
	for _, r := range records {
		if r.Level >= f.Min {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return f.Next.HandleBatch(ctx, kept)
}

func (f *LevelFilter) Close() error {
	return f.Next.Close()
}

// Unwrap returns the wrapped handler.
func (f *LevelFilter) Unwrap() Handler { return f.Next }
