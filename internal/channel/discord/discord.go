// Package discord sends records to a Discord webhook as rich embeds.
package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/ratelimit"
	"github.com/afikmenashe/logpipe/internal/record"
)

const (
	// Name identifies the channel in the meta-log and metrics.
	Name = "discord"
	// RateKey is the cache key holding recent send timestamps.
	RateKey = "discord_log_timestamps"
	// DefaultMaxPerMinute applies when the configured limit is not positive.
	DefaultMaxPerMinute = 6

	titleLimit = 250
	traceLines = 5
)

// Sender posts embeds to a webhook URL.
type Sender struct {
	hook *channel.Webhook
}

// NewSender creates a sender for webhookURL.
func NewSender(webhookURL string) *Sender {
	return &Sender{hook: channel.NewWebhook(Name, webhookURL)}
}

// Webhook exposes the HTTP poster for tuning (client, retry policy).
func (s *Sender) Webhook() *channel.Webhook { return s.hook }

// Send delivers r. URLs under https://example.com are treated as a test
// target and answered with a synthetic 204 without any network call.
func (s *Sender) Send(ctx context.Context, r *record.Record, info channel.Info) (int, error) {
	if s.hook.URL == "" {
		return 0, fmt.Errorf("discord webhook URL is required")
	}
	if channel.IsTestURL(s.hook.URL) {
		return http.StatusNoContent, nil
	}
	return s.hook.Post(ctx, BuildPayload(r, info))
}

// NewChannel wires a rate-limited Discord channel.
func NewChannel(webhookURL string, store cache.Cache, maxPerMinute int, opts ...channel.Option) *channel.Channel {
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxPerMinute
	}
	window := ratelimit.New(store, RateKey, maxPerMinute)
	opts = append([]channel.Option{channel.WithRateWindow(window)}, opts...)
	return channel.New(Name, NewSender(webhookURL), opts...)
}

// Payload is the webhook body.
type Payload struct {
	Embeds []Embed `json:"embeds"`
}

// Embed is a Discord rich embed.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Author      Author  `json:"author"`
	Fields      []Field `json:"fields"`
	Footer      Footer  `json:"footer"`
	Timestamp   string  `json:"timestamp"`
}

type Author struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Footer struct {
	Text string `json:"text"`
}

// BuildPayload renders r as a single embed.
func BuildPayload(r *record.Record, info channel.Info) Payload {
	var description string
	if lines := r.TraceLines(traceLines); len(lines) > 0 {
		description = "```\n" + strings.Join(lines, "\n") + "\n...```"
	}

	fields := []Field{
		{Name: "🆔 Event ID", Value: "`" + r.UID() + "`", Inline: true},
		{Name: "Level", Value: r.Level.String(), Inline: true},
		{Name: "File", Value: "`" + r.File() + "`", Inline: false},
		{Name: "Line", Value: "`" + r.Line() + "`", Inline: true},
		{Name: "User IP", Value: info.Request.RemoteAddr, Inline: true},
	}
	if info.LoggedIn {
		u := info.User
		fields = append(fields, Field{
			Name: "👤 Logged-in user",
			Value: fmt.Sprintf("**ID:** `%s`\n**Login:** `%s`\n**Name:** `%s`\n**Email:** `%s`",
				u.UserID, u.Login, u.DisplayName, u.Email),
		})
	} else {
		fields = append(fields, Field{Name: "👤 Session", Value: "No user was logged in when the error occurred."})
	}

	return Payload{Embeds: []Embed{{
		Title:       "🚨 " + channel.Truncate(r.Message, titleLimit),
		Description: description,
		Color:       r.Level.Color(),
		Author:      Author{Name: info.Request.ServerName, IconURL: levelIcon(r.Level)},
		Fields:      fields,
		Footer:      Footer{Text: "Error time"},
		Timestamp:   r.Time.Format(time.RFC3339),
	}}}
}

func levelIcon(l record.Level) string {
	switch {
	case l <= record.LevelInfo:
		return "https://i.imgur.com/v3iZ42u.png"
	case l <= record.LevelWarning:
		return "https://i.imgur.com/P4OUPdY.png"
	default:
		return "https://i.imgur.com/t1hB5G7.png"
	}
}
