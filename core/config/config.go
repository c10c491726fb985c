package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	KeysOrder string `yaml:"keys_order"`
	Dir       string `yaml:"dir"`
	BotFile   string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// DialogueConfig carries defaults applied to dialogue definitions that do not
// override them explicitly.
type DialogueConfig struct {
	MaxAttempts          int    `yaml:"max_attempts" envconfig:"DIALOGUE_MAX_ATTEMPTS"`
	CancelTimeoutSeconds int    `yaml:"cancel_timeout_seconds" envconfig:"DIALOGUE_CANCEL_TIMEOUT_SECONDS"`
	CancelCommand        string `yaml:"cancel_command" envconfig:"DIALOGUE_CANCEL_COMMAND"`
	// StateTTLSeconds bounds how long an abandoned dialogue state may live in
	// the store; 0 disables store-level expiry (lazy expiry still applies).
	StateTTLSeconds int `yaml:"state_ttl_seconds" envconfig:"DIALOGUE_STATE_TTL_SECONDS"`
}

const (
	// StoreBackendMemory keeps dialogue state in process memory.
	StoreBackendMemory = "memory"
	// StoreBackendRedis keeps dialogue state in Redis.
	StoreBackendRedis = "redis"
	// StoreBackendPostgres keeps dialogue state in Postgres.
	StoreBackendPostgres = "postgres"
)

// RedisConfig holds connection settings for the Redis store backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// StoreConfig selects and configures the keyed store backend.
type StoreConfig struct {
	Backend   string      `yaml:"backend" envconfig:"STORE_BACKEND"`
	KeyPrefix string      `yaml:"key_prefix" envconfig:"STORE_KEY_PREFIX"`
	Redis     RedisConfig `yaml:"redis"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// RateLimitConfig holds settings for per-user rate limiting.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.Dialogue.MaxAttempts < 0 {
		return fmt.Errorf("dialogue.max_attempts must be >= 0")
	}
	if cfg.Dialogue.MaxAttempts == 0 {
		cfg.Dialogue.MaxAttempts = 3
	}
	if cfg.Dialogue.CancelTimeoutSeconds < 0 {
		return fmt.Errorf("dialogue.cancel_timeout_seconds must be >= 0")
	}
	if cfg.Dialogue.CancelTimeoutSeconds == 0 {
		cfg.Dialogue.CancelTimeoutSeconds = 300
	}
	if strings.TrimSpace(cfg.Dialogue.CancelCommand) == "" {
		cfg.Dialogue.CancelCommand = "/cancel"
	}
	if cfg.Dialogue.StateTTLSeconds < 0 {
		return fmt.Errorf("dialogue.state_ttl_seconds must be >= 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if backend == "" {
		backend = StoreBackendMemory
	}
	switch backend {
	case StoreBackendMemory, StoreBackendPostgres:
	case StoreBackendRedis:
		if strings.TrimSpace(cfg.Store.Redis.Addr) == "" {
			return fmt.Errorf("store.redis.addr is required when store.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid store.backend %q; allowed: memory, redis, postgres", cfg.Store.Backend)
	}
	cfg.Store.Backend = backend
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "dialogue."
	}

	return nil
}
