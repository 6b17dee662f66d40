// Package slack sends records to a Slack incoming webhook.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/ratelimit"
	"github.com/afikmenashe/logpipe/internal/record"
)

const (
	Name    = "slack"
	RateKey = "slack_log_timestamps"
	// DefaultMaxPerMinute applies when the configured limit is not positive.
	DefaultMaxPerMinute = 6
)

// isValidURL checks if a string is a valid HTTP/HTTPS URL.
func isValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Sender posts attachments to an incoming webhook.
type Sender struct {
	hook *channel.Webhook
}

// NewSender creates a sender for webhookURL.
func NewSender(webhookURL string) *Sender {
	return &Sender{hook: channel.NewWebhook(Name, webhookURL)}
}

// Webhook exposes the HTTP poster for tuning.
func (s *Sender) Webhook() *channel.Webhook { return s.hook }

func (s *Sender) Send(ctx context.Context, r *record.Record, info channel.Info) (int, error) {
	if s.hook.URL == "" {
		return 0, fmt.Errorf("slack webhook URL is required")
	}
	if !isValidURL(s.hook.URL) {
		return 0, fmt.Errorf("invalid Slack webhook URL: %q (must be a valid HTTP/HTTPS URL, not a channel name)", s.hook.URL)
	}
	if channel.IsTestURL(s.hook.URL) {
		return http.StatusOK, nil
	}
	return s.hook.Post(ctx, BuildPayload(r, info))
}

// NewChannel wires a rate-limited Slack channel.
func NewChannel(webhookURL string, store cache.Cache, maxPerMinute int, opts ...channel.Option) *channel.Channel {
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxPerMinute
	}
	window := ratelimit.New(store, RateKey, maxPerMinute)
	opts = append([]channel.Option{channel.WithRateWindow(window)}, opts...)
	return channel.New(Name, NewSender(webhookURL), opts...)
}

// Payload represents a Slack webhook payload.
type Payload struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack message attachment.
type Attachment struct {
	Color     string  `json:"color,omitempty"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Footer    string  `json:"footer,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
}

// Field represents a field in a Slack attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// BuildPayload renders r as one attachment.
func BuildPayload(r *record.Record, info channel.Info) Payload {
	fields := []Field{
		{Title: "Event ID", Value: r.UID(), Short: true},
		{Title: "Level", Value: r.Level.String(), Short: true},
		{Title: "File", Value: r.File(), Short: false},
		{Title: "Line", Value: r.Line(), Short: true},
		{Title: "User IP", Value: info.Request.RemoteAddr, Short: true},
	}
	if info.LoggedIn {
		fields = append(fields, Field{
			Title: "User",
			Value: fmt.Sprintf("%s (%s) %s", info.User.DisplayName, info.User.Login, info.User.Email),
		})
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("*%s*\n", channel.Truncate(r.Message, 250)))
	if lines := r.TraceLines(5); len(lines) > 0 {
		text.WriteString("```\n" + strings.Join(lines, "\n") + "\n```")
	}

	return Payload{
		Attachments: []Attachment{{
			Color:     r.Level.HexColor(),
			Title:     fmt.Sprintf("%s on %s", r.Level, info.Request.ServerName),
			Text:      text.String(),
			Fields:    fields,
			Footer:    "logpipe",
			Timestamp: r.Time.Unix(),
		}},
	}
}
