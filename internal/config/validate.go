package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks that required fields are set and values are in range.
// Enabled channels without a destination are not errors: the chain builder
// skips them.
func (c *Config) Validate() error {
	var errs []string

	if c.General.Application == "" {
		errs = append(errs, "general.application cannot be empty")
	}
	switch strings.ToLower(c.General.Environment) {
	case Development, Production:
	default:
		errs = append(errs, fmt.Sprintf("general.environment must be %q or %q, got %q", Development, Production, c.General.Environment))
	}
	switch c.General.Display {
	case DisplayAuto, DisplaySilent:
	default:
		errs = append(errs, fmt.Sprintf("general.display must be empty or %q, got %q", DisplaySilent, c.General.Display))
	}

	if c.File.Enabled && c.File.Path == "" {
		errs = append(errs, "file_handler.path cannot be empty")
	}
	if c.File.Days < 0 {
		errs = append(errs, "file_handler.days cannot be negative")
	}

	for name, n := range map[string]int{
		"discord_handler.max_per_minute": c.Discord.MaxPerMinute,
		"slack_handler.max_per_minute":   c.Slack.MaxPerMinute,
		"email_handler.max_per_minute":   c.Email.MaxPerMinute,
		"kafka_handler.max_per_minute":   c.Kafka.MaxPerMinute,
	} {
		if n < 0 {
			errs = append(errs, name+" cannot be negative")
		}
	}

	if c.Email.Enabled {
		for _, p := range append([]string{c.Email.Provider}, c.Email.Fallback...) {
			if !validProvider(p) {
				errs = append(errs, fmt.Sprintf("email_handler: unknown provider %q", p))
			}
		}
	}

	if c.Strategy.DeduplicationTime < 0 {
		errs = append(errs, "notification_strategy.deduplication_time cannot be negative")
	}
	if c.Strategy.BufferSize < 0 {
		errs = append(errs, "notification_strategy.buffer_size cannot be negative")
	}

	switch c.Cache.Backend {
	case CacheFile, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr cannot be empty")
		}
	case CachePostgres:
		if c.Cache.PostgresDSN == "" {
			errs = append(errs, "cache.postgres_dsn cannot be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.GCProbability < 0 || c.Cache.GCProbability > 100 {
		errs = append(errs, "cache.gc_probability must be between 0 and 100")
	}
	if c.Cache.GCSchedule != "" {
		if _, err := cron.ParseStandard(c.Cache.GCSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("cache.gc_schedule: %v", err))
		}
	}

	if c.Metrics.RedisReport && c.Cache.RedisAddr == "" {
		errs = append(errs, "metrics.redis_report requires cache.redis_addr")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validProvider(name string) bool {
	switch name {
	case ProviderSMTP, ProviderSES, ProviderResend:
		return true
	}
	return false
}
