// Package chain builds the immutable handler chain from configuration: the
// file sink, and beside it an optional fingers-crossed, deduplication and
// group subtree that fans out to the notification channels.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/channel/discord"
	"github.com/afikmenashe/logpipe/internal/channel/email"
	"github.com/afikmenashe/logpipe/internal/channel/email/provider"
	"github.com/afikmenashe/logpipe/internal/channel/kafka"
	"github.com/afikmenashe/logpipe/internal/channel/slack"
	"github.com/afikmenashe/logpipe/internal/config"
	"github.com/afikmenashe/logpipe/internal/filesink"
	"github.com/afikmenashe/logpipe/internal/metalog"
	"github.com/afikmenashe/logpipe/internal/metrics"
	"github.com/afikmenashe/logpipe/internal/pipeline"
	"github.com/afikmenashe/logpipe/internal/record"
	"github.com/afikmenashe/logpipe/internal/uid"
)

// ErrNilConfig is returned by Build when no configuration was loaded.
var ErrNilConfig = errors.New("chain: configuration is required")

// Deps are the collaborators shared by every stage.
type Deps struct {
	// Cache backs rate windows and deduplication. Defaults to a MemoryCache.
	Cache    cache.Cache
	Recorder metrics.Recorder
	Identity channel.IdentityProvider
	// Agents add fields to every meta-log entry.
	Agents []metalog.MetadataAgent
	// UID assigns the correlation id. Defaults to a freshly generated one.
	UID *uid.Processor
	// EmailRegistry replaces the providers built from email_handler.
	EmailRegistry *provider.Registry
	// KafkaWriter replaces the writer dialled from kafka_handler.
	KafkaWriter kafka.MessageWriter
}

// Chain is a built logger together with what it owns.
type Chain struct {
	*pipeline.Logger
	MetaLog *metalog.Log
	UID     *uid.Processor
}

// Slog returns a slog.Logger that feeds the chain. It must not become the
// slog default: channels report their own failures through slog.
func (c *Chain) Slog(min slog.Leveler) *slog.Logger {
	return slog.New(pipeline.NewSlogHandler(c.Logger, min))
}

// Close closes every handler and the meta-log.
func (c *Chain) Close() error {
	return errors.Join(c.Logger.Close(), c.MetaLog.Close())
}

// Build constructs the chain once. It fails only on a nil configuration;
// an unusable file directory or channel is skipped with a warning.
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*Chain, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryCache()
	}
	if deps.UID == nil {
		deps.UID = uid.NewProcessor()
	}
	deps.Recorder = metrics.OrNoOp(deps.Recorder)
	if deps.Identity == nil {
		deps.Identity = channel.ContextIdentity
	}

	meta := metalog.New(metalog.Options{
		Enabled: cfg.File.Enabled,
		Path:    cfg.MetaLogPath(),
		Days:    cfg.MetaLog.Days,
		Agents:  deps.Agents,
	})

	var handlers []pipeline.Handler
	if cfg.File.Enabled {
		if h, err := fileSink(cfg.File); err != nil {
			slog.Warn("File sink disabled", "path", cfg.File.Path, "error", err)
		} else {
			handlers = append(handlers, h)
		}
	}

	channels := buildChannels(ctx, cfg, deps, meta)
	if len(channels) > 0 {
		handlers = append(handlers, aggregate(cfg.Strategy, deps.Cache, channels))
	}

	logger := pipeline.NewLogger(cfg.General.Application, handlers, deps.UID, channel.WebProcessor{})
	logger.SetRecorder(deps.Recorder)

	slog.Info("Log chain built",
		"uid", deps.UID.ID(),
		"chain", Describe(logger),
		"meta_log", meta.Path(),
	)

	return &Chain{Logger: logger, MetaLog: meta, UID: deps.UID}, nil
}

func fileSink(cfg config.FileHandler) (*filesink.Handler, error) {
	if err := filesink.Prepare(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}
	return filesink.Open(cfg.Path, cfg.Days, cfg.Level.Record()), nil
}

// NotificationLevel is the minimum level reaching channels: the trigger
// level, lowered to WARNING when warnings are logged for deduplication.
func NotificationLevel(s config.NotificationStrategy) record.Level {
	trigger := s.TriggerLevel.Record()
	if s.LogWarningsEnabled {
		return record.MinLevel(record.LevelWarning, trigger)
	}
	return trigger
}

// channelLevel is the level channels are created at. Behind a fingers-crossed
// gate they accept everything so the released buffer arrives whole.
func channelLevel(s config.NotificationStrategy, configured config.Level) record.Level {
	level := NotificationLevel(s)
	if s.UseFingersCrossed {
		level = record.LevelDebug
	}
	if configured.Record() > level {
		return configured.Record()
	}
	return level
}

func buildChannels(ctx context.Context, cfg *config.Config, deps Deps, meta *metalog.Log) []pipeline.Handler {
	var out []pipeline.Handler
	for _, kind := range cfg.EnabledChannels() {
		h, err := buildChannel(ctx, kind, cfg, deps, meta)
		if err != nil {
			slog.Warn("Notification channel disabled", "channel", kind.String(), "error", err)
			continue
		}
		out = append(out, h)
	}
	return out
}

func buildChannel(ctx context.Context, kind config.ChannelKind, cfg *config.Config, deps Deps, meta *metalog.Log) (pipeline.Handler, error) {
	opts := func(level config.Level) []channel.Option {
		return []channel.Option{
			channel.WithLevel(channelLevel(cfg.Strategy, level)),
			channel.WithMetaLog(meta),
			channel.WithRecorder(deps.Recorder),
			channel.WithIdentityProvider(deps.Identity),
		}
	}

	switch kind {
	case config.ChannelDiscord:
		return discord.NewChannel(cfg.Discord.WebhookURL, deps.Cache, cfg.Discord.MaxPerMinute, opts(cfg.Discord.Level)...), nil

	case config.ChannelSlack:
		return slack.NewChannel(cfg.Slack.WebhookURL, deps.Cache, cfg.Slack.MaxPerMinute, opts(cfg.Slack.Level)...), nil

	case config.ChannelEmail:
		registry := deps.EmailRegistry
		if registry == nil {
			var err error
			if registry, err = EmailRegistry(ctx, cfg.Email); err != nil {
				return nil, err
			}
		}
		ecfg := email.Config{
			To:      cfg.Email.ToAddress,
			From:    cfg.Email.FromAddress,
			Subject: cfg.Email.Subject,
		}
		return email.NewChannel(ecfg, registry, deps.Cache, cfg.Email.MaxPerMinute, opts(cfg.Email.Level)...), nil

	case config.ChannelKafka:
		var sender *kafka.Sender
		if deps.KafkaWriter != nil {
			sender = kafka.NewSender(deps.KafkaWriter, cfg.Kafka.Topic)
		} else {
			var err error
			if sender, err = kafka.Dial(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
				return nil, fmt.Errorf("failed to create kafka writer: %w", err)
			}
		}
		return kafka.NewChannel(sender, deps.Cache, cfg.Kafka.MaxPerMinute, opts(cfg.Kafka.Level)...), nil
	}
	return nil, fmt.Errorf("unknown channel kind %d", int(kind))
}

// EmailRegistry registers the primary and fallback providers named in cfg.
func EmailRegistry(ctx context.Context, cfg config.EmailHandler) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	names := append([]string{cfg.Provider}, cfg.Fallback...)
	for _, name := range names {
		if _, ok := registry.Get(name); ok {
			continue
		}
		switch name {
		case config.ProviderSMTP:
			registry.Register(provider.NewSMTPProvider(provider.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				User:     cfg.SMTP.User,
				Password: cfg.SMTP.Password,
			}))
		case config.ProviderSES:
			registry.Register(provider.NewSESProvider(ctx, cfg.SES.Region))
		case config.ProviderResend:
			registry.Register(provider.NewResendProvider(cfg.Resend.APIKey))
		default:
			return nil, fmt.Errorf("unknown email provider %q", name)
		}
	}
	if err := registry.SetPrimary(cfg.Provider); err != nil {
		return nil, err
	}
	if err := registry.SetFallback(cfg.Fallback...); err != nil {
		return nil, err
	}
	return registry, nil
}

// aggregate wraps the channels in Group, then Deduplication when warnings
// are logged, then FingersCrossed when gating is on.
func aggregate(s config.NotificationStrategy, store cache.Cache, channels []pipeline.Handler) pipeline.Handler {
	var h pipeline.Handler = pipeline.NewGroup(channels...)
	if s.LogWarningsEnabled {
		window := time.Duration(s.DeduplicationTime) * time.Second
		h = pipeline.NewDeduplication(h, store,
			pipeline.WithDedupLevel(record.LevelWarning),
			pipeline.WithDedupWindow(window),
		)
	}
	if s.UseFingersCrossed {
		var opts []pipeline.FingersCrossedOption
		if s.BufferSize > 0 {
			opts = append(opts, pipeline.WithBufferSize(s.BufferSize))
		}
		if s.KeepBuffering {
			opts = append(opts, pipeline.WithKeepBuffering())
		}
		h = pipeline.NewFingersCrossed(h, s.TriggerLevel.Record(), opts...)
	}
	return h
}

// Describe renders every top-level handler of logger, separated by " | ".
func Describe(logger *pipeline.Logger) string {
	handlers := logger.Handlers()
	if len(handlers) == 0 {
		return "none"
	}
	parts := make([]string, len(handlers))
	for i, h := range handlers {
		parts[i] = pipeline.Describe(h)
	}
	return strings.Join(parts, " | ")
}
