package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/afikmenashe/logpipe/internal/record"
)

// FingersCrossed buffers every record until one at or above the trigger level
// arrives, then releases the buffer (trigger included) downstream as one
// batch. Buffers are kept per Scope so concurrent requests never see each
// other's records. Records that never see a trigger are dropped by Reset or
// Close.
type FingersCrossed struct {
	mu            sync.Mutex
	next          Handler
	trigger       record.Level
	bufferSize    int
	stopBuffering bool
	scopes        map[*Scope]*gateState
}

type gateState struct {
	triggered bool
	buffer    []*record.Record
}

// FingersCrossedOption configures the gate.
type FingersCrossedOption func(*FingersCrossed)

// WithBufferSize caps the buffer; the oldest record is dropped when full.
// 0 means unbounded.
func WithBufferSize(n int) FingersCrossedOption {
	return func(f *FingersCrossed) { f.bufferSize = n }
}

// WithKeepBuffering makes the gate go back to buffering after each release
// instead of passing everything through.
func WithKeepBuffering() FingersCrossedOption {
	return func(f *FingersCrossed) { f.stopBuffering = false }
}

// NewFingersCrossed wraps next with a gate that opens at trigger.
func NewFingersCrossed(next Handler, trigger record.Level, opts ...FingersCrossedOption) *FingersCrossed {
	f := &FingersCrossed{
		next:          next,
		trigger:       trigger,
		stopBuffering: true,
		scopes:        make(map[*Scope]*gateState),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Trigger returns the trigger level.
func (f *FingersCrossed) Trigger() record.Level { return f.trigger }

// KeepsBuffering reports whether the gate re-arms after each release.
func (f *FingersCrossed) KeepsBuffering() bool { return !f.stopBuffering }

// Unwrap returns the wrapped handler.
func (f *FingersCrossed) Unwrap() Handler { return f.next }

// Triggered reports whether the gate has opened in the scope of ctx.
func (f *FingersCrossed) Triggered(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.scopes[ScopeFrom(ctx)]
	return ok && st.triggered
}

// Buffered returns the number of records waiting for a trigger in the scope
// of ctx.
func (f *FingersCrossed) Buffered(ctx context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.scopes[ScopeFrom(ctx)]; ok {
		return len(st.buffer)
	}
	return 0
}

// IsHandling is true for every level: the gate needs to see everything to
// keep context.
func (f *FingersCrossed) IsHandling(record.Level) bool {
	return true
}

func (f *FingersCrossed) Handle(ctx context.Context, r *record.Record) error {
	scope := ScopeFrom(ctx)
	f.mu.Lock()
	st, ok := f.scopes[scope]
	if !ok {
		st = &gateState{}
		f.scopes[scope] = st
	}
	if st.triggered {
		f.mu.Unlock()
		if !f.next.IsHandling(r.Level) {
			return nil
		}
		return f.next.Handle(ctx, r)
	}

	st.buffer = append(st.buffer, r)
	if f.bufferSize > 0 && len(st.buffer) > f.bufferSize {
		st.buffer = st.buffer[len(st.buffer)-f.bufferSize:]
	}
	if r.Level < f.trigger {
		f.mu.Unlock()
		return nil
	}

	batch := st.buffer
	st.buffer = nil
	st.triggered = f.stopBuffering
	f.mu.Unlock()

	return f.next.HandleBatch(ctx, batch)
}

func (f *FingersCrossed) HandleBatch(ctx context.Context, records []*record.Record) error {
	var errs []error
	for _, r := range records {
		if err := f.Handle(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset ends the scope of ctx, dropping its untriggered records. Other
// scopes are untouched.
func (f *FingersCrossed) Reset(ctx context.Context) {
	f.mu.Lock()
	delete(f.scopes, ScopeFrom(ctx))
	f.mu.Unlock()
}

func (f *FingersCrossed) Close() error {
	f.mu.Lock()
	clear(f.scopes)
	f.mu.Unlock()
	return f.next.Close()
}
