// Package metalog records what happened to each notification attempt in a
// log of its own, separate from the main chain.
package metalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/afikmenashe/logpipe/internal/filesink"
)

// Outcome statuses.
const (
	StatusDelivered = "delivered"
	StatusBlocked   = "blocked"
	StatusFailed    = "failed"
)

// MetadataAgent contributes fields to every meta-log entry.
type MetadataAgent interface {
	Metadata(ctx context.Context) (map[string]any, error)
}

// AgentFunc adapts a function to MetadataAgent.
type AgentFunc func(ctx context.Context) (map[string]any, error)

func (f AgentFunc) Metadata(ctx context.Context) (map[string]any, error) { return f(ctx) }

// Options configures a Log.
type Options struct {
	Enabled bool
	// Path of the log file; rotated daily like the main file sink.
	Path string
	// Days of rotated files to keep, 0 keeps all.
	Days   int
	Agents []MetadataAgent
	// Fallback receives the diagnostic when no directory is writable.
	// Defaults to os.Stderr.
	Fallback io.Writer
}

// Log is the meta-log. A nil or disabled Log accepts every call and does nothing.
type Log struct {
	logger *slog.Logger
	out    io.Closer
	path   string
	agents []MetadataAgent
}

// FallbackDir is where the meta-log goes when the configured directory is unusable.
func FallbackDir() string {
	return filepath.Join(os.TempDir(), "logpipe")
}

// New opens the meta-log. It never fails: problems are reported once on the
// fallback writer and the returned Log is inert.
func New(opts Options) *Log {
	if !opts.Enabled {
		return &Log{}
	}
	if opts.Fallback == nil {
		opts.Fallback = os.Stderr
	}
	if opts.Path == "" {
		opts.Path = filepath.Join("logs", "meta.log")
	}

	path := opts.Path
	if err := filesink.Prepare(filepath.Dir(path)); err != nil {
		path = filepath.Join(FallbackDir(), filepath.Base(opts.Path))
		if ferr := filesink.Prepare(filepath.Dir(path)); ferr != nil {
			fmt.Fprintf(opts.Fallback, "logpipe: meta-log disabled: %v; fallback: %v\n", err, ferr)
			return &Log{}
		}
	}

	w := filesink.NewRotating(path, opts.Days)
	return &Log{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})),
		out:    w,
		path:   path,
		agents: opts.Agents,
	}
}

// Enabled reports whether entries are written anywhere.
func (l *Log) Enabled() bool {
	return l != nil && l.logger != nil
}

// Path returns the configured file path, after any fallback. Empty when disabled.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log writes "[channel] message" at INFO with agent metadata and fields.
func (l *Log) Log(ctx context.Context, channel, message string, fields map[string]any) {
	if !l.Enabled() {
		return
	}

	merged := map[string]any{}
	for _, agent := range l.agents {
		meta, err := collect(ctx, agent)
		if err != nil {
			merged["agent_error"] = err.Error()
			continue
		}
		for k, v := range meta {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys)+1)
	attrs = append(attrs, slog.String("channel", channel))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, merged[k]))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "["+channel+"] "+message, attrs...)
}

// Delivered records a successful send.
func (l *Log) Delivered(ctx context.Context, channel, uid string, code int) {
	l.Log(ctx, channel, "Notification delivered", map[string]any{
		"status": StatusDelivered,
		"uid":    uid,
		"code":   code,
	})
}

// Blocked records a send refused by the rate window.
func (l *Log) Blocked(ctx context.Context, channel, uid string) {
	l.Log(ctx, channel, "Notification blocked by rate limit", map[string]any{
		"status": StatusBlocked,
		"uid":    uid,
	})
}

// Failed records a send that errored.
func (l *Log) Failed(ctx context.Context, channel, uid string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	l.Log(ctx, channel, "Notification failed", map[string]any{
		"status": StatusFailed,
		"uid":    uid,
		"error":  msg,
	})
}

func (l *Log) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	return l.out.Close()
}

func collect(ctx context.Context, agent MetadataAgent) (meta map[string]any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("metadata agent panicked: %v", v)
		}
	}()
	return agent.Metadata(ctx)
}
