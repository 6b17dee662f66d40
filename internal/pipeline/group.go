package pipeline

import (
	"context"
	"errors"

	"github.com/afikmenashe/logpipe/internal/record"
)

// Group fans every record out to all of its handlers. One handler failing
// does not stop delivery to the rest.
type Group struct {
	handlers []Handler
}

// NewGroup creates a fan-out stage.
func NewGroup(handlers ...Handler) *Group {
	return &Group{handlers: handlers}
}

// Children returns the wrapped handlers.
func (g *Group) Children() []Handler {
	out := make([]Handler, len(g.handlers))
	copy(out, g.handlers)
	return out
}

func (g *Group) IsHandling(level record.Level) bool {
	for _, h := range g.handlers {
		if h.IsHandling(level) {
			return true
		}
	}
	return false
}

func (g *Group) Handle(ctx context.Context, r *record.Record) error {
	var errs []error
	for _, h := range g.handlers {
		if !h.IsHandling(r.Level) {
			continue
		}
		if err := safeHandle(ctx, h, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Group) HandleBatch(ctx context.Context, records []*record.Record) error {
	var errs []error
	for _, h := range g.handlers {
		if err := safeBatch(ctx, h, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Group) Close() error {
	var errs []error
	for _, h := range g.handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeBatch(ctx context.Context, h Handler, records []*record.Record) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errors.New("handler panicked during batch")
		}
	}()
	return h.HandleBatch(ctx, records)
}
