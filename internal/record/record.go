package record

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Context keys every failure record carries.
const (
	KeyFile  = "file"
	KeyLine  = "line"
	KeyTrace = "trace"
	KeyCode  = "code"
)

// ExtraUID is the extra key holding the correlation id.
const ExtraUID = "uid"

// Record is a single failure/log event. Message, Level, Time, Channel and
// Context are fixed once the record enters the pipeline; Extra may only be
// populated by processors, each key once, before Freeze is called.
type Record struct {
	Message string
	Level   Level
	Time    time.Time
	Channel string
	Context map[string]any

	mu     sync.RWMutex
	extra  map[string]any
	frozen bool
}

// New creates a record stamped with the current time.
func New(channel string, level Level, message string, context map[string]any) *Record {
	if context == nil {
		context = map[string]any{}
	}
	return &Record{
		Message: message,
		Level:   level,
		Time:    time.Now(),
		Channel: channel,
		Context: context,
		extra:   map[string]any{},
	}
}

// SetExtra stores an extra value. It returns false if the record is frozen
// or the key was already set.
func (r *Record) SetExtra(key string, value any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return false
	}
	if r.extra == nil {
		r.extra = map[string]any{}
	}
	if _, exists := r.extra[key]; exists {
		return false
	}
	r.extra[key] = value
	return true
}

// Freeze makes Extra read-only. Called by the logger before any handler sees the record.
func (r *Record) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Record) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Extra returns a copy of the extra metadata.
func (r *Record) Extra() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.extra))
	for k, v := range r.extra {
		out[k] = v
	}
	return out
}

// ExtraValue returns a single extra value.
func (r *Record) ExtraValue(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.extra[key]
	return v, ok
}

// UID returns the correlation id stamped on the record, or "N/A".
func (r *Record) UID() string {
	if v, ok := r.ExtraValue(ExtraUID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "N/A"
}

// File returns the context file or "N/A".
func (r *Record) File() string {
	return r.contextString(KeyFile)
}

// Line returns the context line or "N/A".
func (r *Record) Line() string {
	return r.contextString(KeyLine)
}

// Trace returns the context stack trace, empty if absent.
func (r *Record) Trace() string {
	if v, ok := r.Context[KeyTrace]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// TraceLines returns at most n lines of the stack trace.
func (r *Record) TraceLines(n int) []string {
	trace := r.Trace()
	if trace == "" {
		return nil
	}
	lines := strings.Split(trace, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

func (r *Record) contextString(key string) string {
	if v, ok := r.Context[key]; ok && v != nil {
		s := fmt.Sprint(v)
		if s != "" {
			return s
		}
	}
	return "N/A"
}
