package pipeline

import (
	"context"
	"sync/atomic"
)

// Scope identifies one unit of work, typically a single HTTP request.
// Buffering handlers keep separate state per scope.
type Scope struct {
	id uint64
}

// ID returns the scope's process-unique number.
func (s *Scope) ID() uint64 { return s.id }

type scopeKey struct{}

var scopeSeq atomic.Uint64

// WithScope starts a new scope on ctx. Records logged with the returned
// context are buffered apart from every other scope.
func WithScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &Scope{id: scopeSeq.Add(1)})
}

// ScopeFrom returns the scope on ctx, or nil for the process-wide scope.
func ScopeFrom(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}
