// Package config loads the YAML file that drives chain construction.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/afikmenashe/logpipe/internal/record"
)

// Environments.
const (
	Development = "development"
	Production  = "production"
)

// Display modes. An empty mode follows Environment.
const (
	DisplayAuto   = ""
	DisplaySilent = "silent"
)

// Cache backends.
const (
	CacheFile     = "file"
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// Email providers.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderResend = "resend"
)

// Config is the top-level YAML structure.
type Config struct {
	General  General              `yaml:"general"`
	File     FileHandler          `yaml:"file_handler"`
	MetaLog  MetaLog              `yaml:"meta_log"`
	Discord  WebhookHandler       `yaml:"discord_handler"`
	Slack    WebhookHandler       `yaml:"slack_handler"`
	Email    EmailHandler         `yaml:"email_handler"`
	Kafka    KafkaHandler         `yaml:"kafka_handler"`
	Strategy NotificationStrategy `yaml:"notification_strategy"`
	Cache    Cache                `yaml:"cache"`
	Metrics  Metrics              `yaml:"metrics"`
}

type General struct {
	Application string `yaml:"application"`
	Environment string `yaml:"environment"`
	Debug       bool   `yaml:"debug"`
	Pretty      bool   `yaml:"pretty"`
	Display     string `yaml:"display"`
}

type FileHandler struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Days    int    `yaml:"days"`
	Level   Level  `yaml:"level"`
}

// MetaLog locates the meta-log. It is written only while the file handler is
// enabled.
type MetaLog struct {
	Path string `yaml:"path"`
	Days int    `yaml:"days"`
}

// WebhookHandler configures Discord and Slack.
type WebhookHandler struct {
	Enabled      bool   `yaml:"enabled"`
	WebhookURL   string `yaml:"webhook_url"`
	MaxPerMinute int    `yaml:"max_per_minute"`
	Level        Level  `yaml:"level"`
}

type EmailHandler struct {
	Enabled      bool     `yaml:"enabled"`
	ToAddress    string   `yaml:"to_address"`
	FromAddress  string   `yaml:"from_address"`
	Subject      string   `yaml:"subject"`
	Provider     string   `yaml:"provider"`
	Fallback     []string `yaml:"fallback"`
	MaxPerMinute int      `yaml:"max_per_minute"`
	Level        Level    `yaml:"level"`
	SMTP         SMTP     `yaml:"smtp"`
	SES          SES      `yaml:"ses"`
	Resend       Resend   `yaml:"resend"`
}

type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type SES struct {
	Region string `yaml:"region"`
}

type Resend struct {
	APIKey string `yaml:"api_key"`
}

type KafkaHandler struct {
	Enabled      bool   `yaml:"enabled"`
	Brokers      string `yaml:"brokers"`
	Topic        string `yaml:"topic"`
	MaxPerMinute int    `yaml:"max_per_minute"`
	Level        Level  `yaml:"level"`
}

type NotificationStrategy struct {
	UseFingersCrossed  bool  `yaml:"use_fingers_crossed"`
	TriggerLevel       Level `yaml:"trigger_level"`
	LogWarningsEnabled bool  `yaml:"log_warnings_enabled"`
	// DeduplicationTime is the suppression window in seconds.
	DeduplicationTime int `yaml:"deduplication_time"`
	// BufferSize caps the fingers-crossed buffer, 0 = unbounded.
	BufferSize int `yaml:"buffer_size"`
	// KeepBuffering re-arms the gate after each release instead of passing
	// the rest of the request through.
	KeepBuffering bool `yaml:"keep_buffering"`
}

type Cache struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPrefix   string `yaml:"redis_prefix"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	PostgresTable string `yaml:"postgres_table"`
	GCSchedule    string `yaml:"gc_schedule"`
	GCProbability int    `yaml:"gc_probability"`
}

type Metrics struct {
	Instance    string `yaml:"instance"`
	RedisReport bool   `yaml:"redis_report"`
	Prometheus  bool   `yaml:"prometheus"`
}

// Level is a record level spelled by name in YAML.
type Level record.Level

// Record returns the level as a record.Level.
func (l Level) Record() record.Level { return record.Level(l) }

func (l Level) String() string { return record.Level(l).String() }

func (l *Level) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := record.ParseLevel(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*l = Level(parsed)
	return nil
}

func (l Level) MarshalYAML() (any, error) {
	return l.String(), nil
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		General: General{
			Application: "logpipe",
			Environment: Production,
		},
		File: FileHandler{
			Enabled: true,
			Path:    filepath.Join("logs", "app.log"),
			Days:    14,
			Level:   Level(record.LevelDebug),
		},
		MetaLog: MetaLog{Days: 14},
		Discord: WebhookHandler{
			MaxPerMinute: 6,
			Level:        Level(record.LevelDebug),
		},
		Slack: WebhookHandler{
			MaxPerMinute: 6,
			Level:        Level(record.LevelDebug),
		},
		Email: EmailHandler{
			Subject:  "Application error",
			Provider: ProviderSMTP,
			Level:    Level(record.LevelDebug),
			SMTP:     SMTP{Host: "localhost", Port: 25},
			SES:      SES{Region: "us-east-1"},
		},
		Kafka: KafkaHandler{
			Topic: "logpipe.records",
			Level: Level(record.LevelDebug),
		},
		Strategy: NotificationStrategy{
			TriggerLevel:      Level(record.LevelError),
			DeduplicationTime: 300,
		},
		Cache: Cache{
			Backend:       CacheFile,
			RedisPrefix:   "logpipe:",
			PostgresTable: "logpipe_cache",
			GCSchedule:    "@every 10m",
		},
	}
}

// Load reads path over the defaults, applies LOGPIPE_* environment
// overrides and validates the result. A missing file is an error: the
// chain must not be built from a partial configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MetaLogPath returns the meta-log location, next to the main log by default.
func (c *Config) MetaLogPath() string {
	if c.MetaLog.Path != "" {
		return c.MetaLog.Path
	}
	return filepath.Join(filepath.Dir(c.File.Path), "meta.log")
}

// IsDevelopment reports whether the environment is development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.General.Environment, Development)
}
