package setup

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrPermissionDenied marks an intentional access-control rejection. Failures
// wrapping it are returned to the caller untouched, never logged.
var ErrPermissionDenied = errors.New("permission denied")

// Failure is a captured error with the location it was raised at.
type Failure struct {
	Message string
	Code    int
	cause   error
	file    string
	line    int
	trace   []string
}

// NewFailure wraps err with the stack of its caller. skip counts additional
// frames above the caller to leave out.
func NewFailure(err error, skip int) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	f = &Failure{cause: err}
	if err != nil {
		f.Message = err.Error()
	}
	f.capture(skip+3, false)
	return f
}

// FromPanic converts a recovered value into a Failure located at the panic site.
func FromPanic(v any) *Failure {
	var err error
	switch x := v.(type) {
	case *Failure:
		return x
	case error:
		err = x
	default:
		err = fmt.Errorf("%v", x)
	}
	f := &Failure{cause: err, Message: err.Error()}
	f.capture(3, true)
	return f
}

// At overrides the recorded location.
func (f *Failure) At(file string, line int) *Failure {
	f.file = file
	f.line = line
	return f
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.cause }

func (f *Failure) File() string { return f.file }

func (f *Failure) Line() int { return f.line }

// Trace returns one "function file:line" entry per frame, innermost first.
func (f *Failure) Trace() []string { return f.trace }

// TraceString is Trace joined by newlines.
func (f *Failure) TraceString() string { return strings.Join(f.trace, "\n") }

// capture records the stack outside the runtime. With fromPanic, frames up
// to the runtime's panic entry are dropped so the trace starts at the panic site.
func (f *Failure) capture(skip int, fromPanic bool) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var trace []string
	for {
		frame, more := frames.Next()
		if fromPanic && frame.Function == "runtime.gopanic" {
			trace = trace[:0]
			f.file, f.line = "", 0
		}
		if !strings.HasPrefix(frame.Function, "runtime.") {
			if f.file == "" {
				f.file = frame.File
				f.line = frame.Line
			}
			trace = append(trace, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	f.trace = trace
}
