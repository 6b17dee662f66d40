package config

import (
	"github.com/afikmenashe/logpipe/internal/record"
	"github.com/afikmenashe/logpipe/pkg/shared"
)

// ApplyEnv overrides file values with LOGPIPE_* variables that are set.
func (c *Config) ApplyEnv() {
	c.General.Application = shared.GetEnvOrDefault("LOGPIPE_APPLICATION", c.General.Application)
	c.General.Environment = shared.GetEnvOrDefault("LOGPIPE_ENVIRONMENT", c.General.Environment)
	c.General.Debug = shared.GetEnvBool("LOGPIPE_DEBUG", c.General.Debug)
	c.General.Display = shared.GetEnvOrDefault("LOGPIPE_DISPLAY", c.General.Display)

	c.File.Enabled = shared.GetEnvBool("LOGPIPE_FILE_ENABLED", c.File.Enabled)
	c.File.Path = shared.GetEnvOrDefault("LOGPIPE_FILE_PATH", c.File.Path)
	c.File.Days = shared.GetEnvInt("LOGPIPE_FILE_DAYS", c.File.Days)

	c.Discord.Enabled = shared.GetEnvBool("LOGPIPE_DISCORD_ENABLED", c.Discord.Enabled)
	c.Discord.WebhookURL = shared.GetEnvOrDefault("LOGPIPE_DISCORD_WEBHOOK_URL", c.Discord.WebhookURL)
	c.Slack.Enabled = shared.GetEnvBool("LOGPIPE_SLACK_ENABLED", c.Slack.Enabled)
	c.Slack.WebhookURL = shared.GetEnvOrDefault("LOGPIPE_SLACK_WEBHOOK_URL", c.Slack.WebhookURL)

	c.Email.Enabled = shared.GetEnvBool("LOGPIPE_EMAIL_ENABLED", c.Email.Enabled)
	c.Email.ToAddress = shared.GetEnvOrDefault("LOGPIPE_EMAIL_TO", c.Email.ToAddress)
	c.Email.Provider = shared.GetEnvOrDefault("LOGPIPE_EMAIL_PROVIDER", c.Email.Provider)
	c.Email.SMTP.Host = shared.GetEnvOrDefault("LOGPIPE_SMTP_HOST", c.Email.SMTP.Host)
	c.Email.SMTP.Port = shared.GetEnvInt("LOGPIPE_SMTP_PORT", c.Email.SMTP.Port)
	c.Email.SMTP.User = shared.GetEnvOrDefault("LOGPIPE_SMTP_USER", c.Email.SMTP.User)
	c.Email.SMTP.Password = shared.GetEnvOrDefault("LOGPIPE_SMTP_PASSWORD", c.Email.SMTP.Password)
	c.Email.SES.Region = shared.GetEnvOrDefault("AWS_REGION", c.Email.SES.Region)
	c.Email.Resend.APIKey = shared.GetEnvOrDefault("RESEND_API_KEY", c.Email.Resend.APIKey)

	c.Kafka.Enabled = shared.GetEnvBool("LOGPIPE_KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = shared.GetEnvOrDefault("LOGPIPE_KAFKA_BROKERS", c.Kafka.Brokers)

	if name := shared.GetEnvOrDefault("LOGPIPE_TRIGGER_LEVEL", ""); name != "" {
		if l, err := record.ParseLevel(name); err == nil {
			c.Strategy.TriggerLevel = Level(l)
		}
	}

	c.Cache.Backend = shared.GetEnvOrDefault("LOGPIPE_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = shared.GetEnvOrDefault("LOGPIPE_REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.PostgresDSN = shared.GetEnvOrDefault("LOGPIPE_POSTGRES_DSN", c.Cache.PostgresDSN)
}
