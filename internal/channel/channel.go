// Package channel turns records into outbound notifications. Every channel
// shares the same control flow: consult the rate window, send, and report
// the outcome to the meta-log and metrics. Outcomes never propagate back
// into the chain.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/afikmenashe/logpipe/internal/metalog"
	"github.com/afikmenashe/logpipe/internal/metrics"
	"github.com/afikmenashe/logpipe/internal/pipeline"
	"github.com/afikmenashe/logpipe/internal/ratelimit"
	"github.com/afikmenashe/logpipe/internal/record"
)

// Sender delivers one record to an external target. It returns the status
// code reported by the target (HTTP status, SMTP reply) when there is one.
type Sender interface {
	Send(ctx context.Context, r *record.Record, info Info) (int, error)
}

// StatusError is returned by senders whose target answered with a failure code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("target returned status %d", e.Code)
	}
	return fmt.Sprintf("target returned status %d: %s", e.Code, e.Body)
}

// Channel is a pipeline.Handler wrapping a Sender.
type Channel struct {
	name     string
	min      record.Level
	sender   Sender
	window   *ratelimit.Window
	meta     *metalog.Log
	recorder metrics.Recorder
	identity IdentityProvider
}

// Option configures a Channel.
type Option func(*Channel)

// WithLevel sets the minimum level the channel accepts.
func WithLevel(level record.Level) Option {
	return func(c *Channel) { c.min = level }
}

// WithRateWindow limits sends; nil means unlimited.
func WithRateWindow(w *ratelimit.Window) Option {
	return func(c *Channel) { c.window = w }
}

// WithMetaLog sets where outcomes are recorded.
func WithMetaLog(m *metalog.Log) Option {
	return func(c *Channel) { c.meta = m }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Channel) { c.recorder = r }
}

// WithIdentityProvider sets how the current user is resolved.
func WithIdentityProvider(p IdentityProvider) Option {
	return func(c *Channel) { c.identity = p }
}

// New creates a channel. Without options it accepts DEBUG and above, is not
// rate limited, and reports nowhere.
func New(name string, sender Sender, opts ...Option) *Channel {
	c := &Channel{
		name:     name,
		min:      record.LevelDebug,
		sender:   sender,
		recorder: metrics.NewNoOp(),
		identity: ContextIdentity,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.recorder = metrics.OrNoOp(c.recorder)
	return c
}

func (c *Channel) Name() string { return c.name }

// Level returns the minimum accepted level.
func (c *Channel) Level() record.Level { return c.min }

// Window returns the rate window, nil when unlimited.
func (c *Channel) Window() *ratelimit.Window { return c.window }

// Sender returns the wrapped sender.
func (c *Channel) Sender() Sender { return c.sender }

func (c *Channel) IsHandling(level record.Level) bool {
	return level >= c.min
}

func (c *Channel) Handle(ctx context.Context, r *record.Record) error {
	uid := r.UID()
	if c.window != nil && !c.window.Admit(ctx) {
		slog.Debug("Notification blocked by rate limit", "channel", c.name, "uid", uid)
		c.meta.Blocked(ctx, c.name, uid)
		c.recorder.RecordBlocked(c.name)
		return nil
	}

	code, err := c.sender.Send(ctx, r, c.info(ctx))
	if err != nil {
		slog.Warn("Failed to send notification", "channel", c.name, "uid", uid, "error", err)
		c.meta.Failed(ctx, c.name, uid, err)
		c.recorder.RecordFailed(c.name)
		return nil
	}

	c.meta.Delivered(ctx, c.name, uid, code)
	c.recorder.RecordDelivered(c.name)
	return nil
}

func (c *Channel) HandleBatch(ctx context.Context, records []*record.Record) error {
	return pipeline.HandleEach(ctx, c, records)
}

func (c *Channel) Close() error {
	if closer, ok := c.sender.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Channel) info(ctx context.Context) Info {
	info := Info{Request: RequestFrom(ctx)}
	if c.identity != nil {
		info.User, info.LoggedIn = lookup(ctx, c.identity)
	}
	return info
}

func lookup(ctx context.Context, p IdentityProvider) (id Identity, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			id, ok = Identity{}, false
		}
	}()
	return p.Lookup(ctx)
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// StatusCode exposes the code to retry classification.
func (e *StatusError) StatusCode() int { return e.Code }
