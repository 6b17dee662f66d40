package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/afikmenashe/logpipe/internal/record"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !cfg.File.Enabled {
		t.Error("File.Enabled = false, want true")
	}
	if cfg.File.Days != 14 {
		t.Errorf("File.Days = %d, want 14", cfg.File.Days)
	}
	if got := cfg.Strategy.TriggerLevel.Record(); got != record.LevelError {
		t.Errorf("TriggerLevel = %v, want ERROR", got)
	}
	if cfg.Strategy.DeduplicationTime != 300 {
		t.Errorf("DeduplicationTime = %d, want 300", cfg.Strategy.DeduplicationTime)
	}
	if cfg.Email.Subject != "Application error" {
		t.Errorf("Email.Subject = %q, want %q", cfg.Email.Subject, "Application error")
	}
	if got := cfg.EnabledChannels(); len(got) != 0 {
		t.Errorf("EnabledChannels() = %v, want none", got)
	}
}

func TestParse_Full(t *testing.T) {
	data := `
general:
  application: shop
  environment: development
file_handler:
  enabled: true
  path: /var/log/shop/app.log
  level: info
discord_handler:
  enabled: true
  webhook_url: https://example.com/hook
  max_per_minute: 3
email_handler:
  enabled: true
  to_address: ops@example.com
  provider: ses
  fallback: [smtp]
notification_strategy:
  use_fingers_crossed: true
  trigger_level: critical
  log_warnings_enabled: true
  deduplication_time: 60
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
	if got := cfg.File.Level.Record(); got != record.LevelInfo {
		t.Errorf("File.Level = %v, want INFO", got)
	}
	if cfg.Discord.MaxPerMinute != 3 {
		t.Errorf("Discord.MaxPerMinute = %d, want 3", cfg.Discord.MaxPerMinute)
	}
	if got := cfg.Strategy.TriggerLevel.Record(); got != record.LevelCritical {
		t.Errorf("TriggerLevel = %v, want CRITICAL", got)
	}
	if got := cfg.MetaLogPath(); got != "/var/log/shop/meta.log" {
		t.Errorf("MetaLogPath() = %q, want /var/log/shop/meta.log", got)
	}
	got := cfg.EnabledChannels()
	if len(got) != 2 || got[0] != ChannelDiscord || got[1] != ChannelEmail {
		t.Errorf("EnabledChannels() = %v, want [discord email]", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad level", "notification_strategy:\n  trigger_level: loud\n", "unknown log level"},
		{"bad environment", "general:\n  environment: staging\n", "general.environment"},
		{"empty application", "general:\n  application: \"\"\n", "general.application cannot be empty"},
		{"empty file path", "file_handler:\n  path: \"\"\n", "file_handler.path cannot be empty"},
		{"negative rate", "discord_handler:\n  max_per_minute: -1\n", "discord_handler.max_per_minute cannot be negative"},
		{"redis without addr", "cache:\n  backend: redis\n", "cache.redis_addr cannot be empty"},
		{"unknown backend", "cache:\n  backend: mongo\n", "unknown backend"},
		{"bad schedule", "cache:\n  gc_schedule: sometimes\n", "cache.gc_schedule"},
		{"unknown provider", "email_handler:\n  enabled: true\n  provider: pigeon\n", "unknown provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logpipe.yaml")
	if err := os.WriteFile(path, []byte("general:\n  application: api\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.General.Application != "api" {
		t.Errorf("Application = %q, want api", cfg.General.Application)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LOGPIPE_DISCORD_ENABLED", "true")
	t.Setenv("LOGPIPE_DISCORD_WEBHOOK_URL", "https://example.com/env")
	t.Setenv("LOGPIPE_TRIGGER_LEVEL", "warning")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !cfg.Configured(ChannelDiscord) {
		t.Error("Configured(discord) = false, want true")
	}
	if got := cfg.Strategy.TriggerLevel.Record(); got != record.LevelWarning {
		t.Errorf("TriggerLevel = %v, want WARNING", got)
	}
}

func TestConfigured(t *testing.T) {
	cfg := Default()
	cfg.Email.Enabled = true
	if cfg.Configured(ChannelEmail) {
		t.Error("Configured(email) without to_address = true, want false")
	}
	cfg.Email.ToAddress = "ops@example.com"
	if !cfg.Configured(ChannelEmail) {
		t.Error("Configured(email) = false, want true")
	}
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = "localhost:9092"
	if !cfg.Configured(ChannelKafka) {
		t.Error("Configured(kafka) = false, want true")
	}
	if ChannelKind(99).String() != "unknown" {
		t.Errorf("ChannelKind(99).String() = %q, want unknown", ChannelKind(99).String())
	}
}
