// Package setup turns uncaught failures into CRITICAL records and a page for
// the user. Every failure is handled the same way whether it arrived as a
// returned error or a panic.
package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/display"
	"github.com/afikmenashe/logpipe/internal/pipeline"
	"github.com/afikmenashe/logpipe/internal/record"
)

// FatalMessage is shown when failure handling itself fails.
const FatalMessage = "A critical system error occurred. Please contact support."

// ErrAlreadyRegistered is returned by a second Register call.
var ErrAlreadyRegistered = errors.New("setup: already registered")

// State is the phase of failure handling.
type State int32

const (
	StateIdle State = iota
	StateReady
	StateHandling
	StateRecovered
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateHandling:
		return "handling"
	case StateRecovered:
		return "recovered"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IDSource hands out the correlation id of the running logger.
type IDSource interface {
	ID() string
}

// Setup owns failure handling for one logger.
type Setup struct {
	logger   *pipeline.Logger
	ids      IDSource
	display  display.Handler
	fallback io.Writer
	state    atomic.Int32
}

// Option configures a Setup.
type Option func(*Setup)

// WithFallback sets where last-resort diagnostics go. Defaults to os.Stderr.
func WithFallback(w io.Writer) Option {
	return func(s *Setup) { s.fallback = w }
}

// New creates a Setup in the Idle state.
func New(logger *pipeline.Logger, ids IDSource, d display.Handler, opts ...Option) *Setup {
	s := &Setup{
		logger:   logger,
		ids:      ids,
		display:  d,
		fallback: os.Stderr,
	}
	if s.display == nil {
		s.display = display.Silent{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Setup) State() State {
	return State(s.state.Load())
}

// Register moves Setup from Idle to Ready. Recover and Middleware only act
// once registered.
func (s *Setup) Register() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateReady)) {
		return ErrAlreadyRegistered
	}
	slog.Info("Failure handling registered", "display", s.display.Name())
	return nil
}

// Handle logs err at CRITICAL and renders it to w. It returns err itself,
// untouched, when err is a permission rejection or Register was never
// called, so the caller's own handling applies.
func (s *Setup) Handle(ctx context.Context, w io.Writer, err error) error {
	if errors.Is(err, ErrPermissionDenied) || s.State() == StateIdle {
		return err
	}
	s.state.Store(int32(StateHandling))

	f := NewFailure(err, 1)
	if herr := s.handle(ctx, w, f); herr != nil {
		s.state.Store(int32(StateFatal))
		s.fatal(w, f, herr)
		return nil
	}
	s.state.Store(int32(StateRecovered))
	return nil
}

func (s *Setup) handle(ctx context.Context, w io.Writer, f *Failure) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic during failure handling: %v", v)
		}
	}()

	id := s.ids.ID()
	r := record.New(s.logger.Name(), record.LevelCritical, f.Message, map[string]any{
		record.KeyFile:  f.File(),
		record.KeyLine:  f.Line(),
		record.KeyTrace: f.TraceString(),
	})
	r.SetExtra(record.ExtraUID, id)
	if err := s.logger.LogRecord(ctx, r); err != nil {
		return fmt.Errorf("failed to log failure: %w", err)
	}

	s.display.Handle(w, f, id)
	return nil
}

// fatal writes both failures to the fallback writer and the fixed message to w.
func (s *Setup) fatal(w io.Writer, original *Failure, secondary error) {
	defer func() { recover() }()
	fmt.Fprintf(s.fallback, "logpipe: original failure: %s at %s:%d\n", original.Message, original.File(), original.Line())
	fmt.Fprintf(s.fallback, "logpipe: failure handling failed: %v\n", secondary)
	io.WriteString(w, FatalMessage)
}

// Recover handles a panic in progress. Use it as `defer s.Recover(ctx, w)`.
// Permission rejections are re-panicked unchanged.
func (s *Setup) Recover(ctx context.Context, w io.Writer) {
	v := recover()
	if v == nil {
		return
	}
	if s.State() == StateIdle {
		panic(v)
	}
	if err, ok := v.(error); ok && errors.Is(err, ErrPermissionDenied) {
		panic(v)
	}
	s.Handle(ctx, w, FromPanic(v))
}

// Middleware gives each request its own buffering scope and attaches its
// details to the context, handles panics from next and ends the scope when
// the request finishes.
func (s *Setup) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := channel.WithRequest(pipeline.WithScope(r.Context()), channel.RequestInfo{
			URL:        r.URL.RequestURI(),
			Method:     r.Method,
			RemoteAddr: r.RemoteAddr,
			ServerName: r.Host,
			Referrer:   r.Referer(),
		})
		defer s.logger.Reset(ctx)
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler || s.State() == StateIdle {
				panic(v)
			}
			if err, ok := v.(error); ok && errors.Is(err, ErrPermissionDenied) {
				panic(v)
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			s.Handle(ctx, w, FromPanic(v))
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
