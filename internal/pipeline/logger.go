package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/afikmenashe/logpipe/internal/metrics"
	"github.com/afikmenashe/logpipe/internal/record"
)

// ExtraEventID is the extra key holding the per-record event id.
const ExtraEventID = "event_id"

// Logger owns the processors and handlers of one chain. It is built once at
// startup and not modified afterwards.
type Logger struct {
	name       string
	processors []Processor
	handlers   []Handler
	recorder   metrics.Recorder
}

// NewLogger creates a logger. Processors run in order before handlers.
func NewLogger(name string, handlers []Handler, processors ...Processor) *Logger {
	return &Logger{
		name:       name,
		processors: processors,
		handlers:   handlers,
		recorder:   metrics.NewNoOp(),
	}
}

// SetRecorder reports processed records and chain errors to r.
func (l *Logger) SetRecorder(r metrics.Recorder) {
	l.recorder = metrics.OrNoOp(r)
}

// Name returns the channel name stamped on records.
func (l *Logger) Name() string {
	return l.name
}

// Handlers returns the top-level handlers, for inspection.
func (l *Logger) Handlers() []Handler {
	out := make([]Handler, len(l.handlers))
	copy(out, l.handlers)
	return out
}

// Log builds a record and dispatches it.
func (l *Logger) Log(ctx context.Context, level record.Level, message string, context map[string]any) error {
	return l.LogRecord(ctx, record.New(l.name, level, message, context))
}

// LogRecord runs processors, freezes the record, then hands it to every
// handler. Every handler is attempted before returning; their errors are joined.
func (l *Logger) LogRecord(ctx context.Context, r *record.Record) error {
	start := time.Now()
	if r.Channel == "" {
		r.Channel = l.name
	}
	r.SetExtra(ExtraEventID, uuid.NewString())
	for _, p := range l.processors {
		l.process(ctx, p, r)
	}
	r.Freeze()

	var errs []error
	for _, h := range l.handlers {
		if !h.IsHandling(r.Level) {
			continue
		}
		if err := safeHandle(ctx, h, r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		l.recorder.RecordError()
	}
	l.recorder.RecordProcessed(time.Since(start))
	return errors.Join(errs...)
}

func (l *Logger) Debug(ctx context.Context, msg string, c map[string]any) error {
	return l.Log(ctx, record.LevelDebug, msg, c)
}

func (l *Logger) Info(ctx context.Context, msg string, c map[string]any) error {
	return l.Log(ctx, record.LevelInfo, msg, c)
}

func (l *Logger) Notice(ctx context.Context, msg string, c map[string]any) error {
	return l.Log(ctx, record.LevelNotice, msg, c)
}

func (l *Logger) Warning(ctx context.Context, msg string, c map[string]any) error {
	return l.Log(ctx, record.LevelWarning, msg, c)
}

func (l *Logger) Error(ctx context.Context, msg string, c map[string]any) error {
	return l.Log(ctx, record.LevelError, msg, c)
}

func (l *Logger) Critical(ctx context.Context, msg string, c map[string]any) error {
	return l.Log(ctx, record.LevelCritical, msg, c)
}

func (l *Logger) Alert(ctx context.Context, msg string, c map[string]any) error {
	return l.Log(ctx, record.LevelAlert, msg, c)
}

func (l *Logger) Emergency(ctx context.Context, msg string, c map[string]any) error {
	return l.Log(ctx, record.LevelEmergency, msg, c)
}

// Reset ends the buffering scope of ctx: handlers that buffer records
// (FingersCrossed) drop whatever that scope never triggered.
func (l *Logger) Reset(ctx context.Context) {
	for _, h := range l.handlers {
		Walk(h, func(h Handler) {
			if r, ok := h.(interface{ Reset(context.Context) }); ok {
				r.Reset(ctx)
			}
		})
	}
}

// Close closes every handler.
func (l *Logger) Close() error {
	var errs []error
	for _, h := range l.handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// process runs a processor, turning a panic into a skipped enrichment.
func (l *Logger) process(ctx context.Context, p Processor, r *record.Record) {
	defer func() { recover() }()
	p.Process(ctx, r)
}

// safeHandle converts a handler panic into an error so one broken sibling
// cannot prevent the others from running.
func safeHandle(ctx context.Context, h Handler, r *record.Record) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("handler %T panicked: %v", h, v)
		}
	}()
	return h.Handle(ctx, r)
}
